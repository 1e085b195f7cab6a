package server

import (
	"context"
	"net/url"
	"strconv"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/perm"
	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// listTypes returns every descriptor to administrators and the ones the
// caller holds a grant on to everybody else.
func (s *Server) listTypes(ctx context.Context, id model.Identity) ([]*model.TypeDescriptor, error) {
	all, err := s.reg.List(ctx)
	if err != nil {
		return nil, err
	}
	if id.Admin {
		return all, nil
	}
	visible, err := s.perms.Visible(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*model.TypeDescriptor, 0, len(visible))
	for _, d := range all {
		if visible[d.ID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Server) getType(ctx context.Context, id model.Identity, typeID string) (*model.TypeDescriptor, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpRead, typeID, ""); err != nil {
		return nil, err
	}
	return s.reg.Get(ctx, typeID)
}

// declareType creates or extends typeID. Extending needs write on the
// type and creating needs create.
func (s *Server) declareType(ctx context.Context, id model.Identity, typeID, description string, props model.Properties) (*model.TypeDescriptor, bool, error) {
	op := perm.OpUpdate
	if _, err := s.reg.Get(ctx, typeID); err != nil {
		if kind, _ := model.KindOf(err); kind != model.ErrTypeNotFound {
			return nil, false, err
		}
		op = perm.OpCreate
	}
	if err := s.perms.Authorize(ctx, id, op, typeID, ""); err != nil {
		return nil, false, err
	}
	return s.reg.Declare(ctx, typeID, description, props)
}

func (s *Server) deleteType(ctx context.Context, id model.Identity, typeID string) (*model.TypeDescriptor, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpDelete, typeID, ""); err != nil {
		return nil, err
	}
	d, err := s.reg.Get(ctx, typeID)
	if err != nil {
		return nil, err
	}
	if err := s.reg.Delete(ctx, typeID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Server) deleteTypes(ctx context.Context, id model.Identity) ([]string, error) {
	if !id.Admin {
		return nil, model.NewError(model.ErrForbidden, "", "only administrators may delete every type")
	}
	deleted, err := s.reg.DeleteAll(ctx)
	if deleted == nil {
		deleted = []string{}
	}
	return deleted, err
}

// createObject stores payload as a new record of typeID, creating or
// extending the type first. Writing over an existing id also needs write
// on that record.
func (s *Server) createObject(ctx context.Context, id model.Identity, typeID string, payload map[string]any) (*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpCreate, typeID, ""); err != nil {
		return nil, err
	}
	if rid, ok := payload[model.FieldID].(string); ok && rid != "" && !id.Admin {
		if s.recordExists(ctx, typeID, rid) {
			if err := s.perms.Authorize(ctx, id, perm.OpUpdate, typeID, rid); err != nil {
				return nil, err
			}
		}
	}
	m, err := s.reg.InferAndMaybeMigrate(ctx, typeID, payload)
	if err != nil {
		return nil, err
	}
	rec, err := m.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicRecordCreated, events.RecordCreated{TypeID: typeID, Record: rec})
	return rec, nil
}

func (s *Server) recordExists(ctx context.Context, typeID, recordID string) bool {
	m, err := s.reg.Model(ctx, typeID)
	if err != nil {
		return false
	}
	_, err = m.Get(ctx, recordID)
	return err == nil
}

func (s *Server) listObjects(ctx context.Context, id model.Identity, typeID string, q typemodel.Query) ([]*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpList, typeID, ""); err != nil {
		return nil, err
	}
	m, err := s.reg.Model(ctx, typeID)
	if err != nil {
		return nil, err
	}
	recs, err := m.List(ctx, q)
	if recs == nil && err == nil {
		recs = []*model.Record{}
	}
	return recs, err
}

// deleteObjects deletes the records matching q and returns them.
func (s *Server) deleteObjects(ctx context.Context, id model.Identity, typeID string, q typemodel.Query) ([]*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpDelete, typeID, ""); err != nil {
		return nil, err
	}
	m, err := s.reg.Model(ctx, typeID)
	if err != nil {
		return nil, err
	}
	recs, err := m.List(ctx, q)
	if err != nil {
		return nil, err
	}
	ids, err := m.DeleteAll(ctx, q)
	if err != nil {
		return nil, err
	}
	gone := make(map[string]bool, len(ids))
	for _, rid := range ids {
		gone[rid] = true
		s.publish(ctx, events.TopicRecordDeleted, events.RecordDeleted{TypeID: typeID, RecordID: rid})
	}
	out := make([]*model.Record, 0, len(ids))
	for _, rec := range recs {
		if gone[rec.ID()] {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Server) getObject(ctx context.Context, id model.Identity, typeID, recordID string) (*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpRead, typeID, recordID); err != nil {
		return nil, err
	}
	m, err := s.reg.Model(ctx, typeID)
	if err != nil {
		return nil, err
	}
	return m.Get(ctx, recordID)
}

func (s *Server) replaceObject(ctx context.Context, id model.Identity, typeID, recordID string, payload map[string]any) (*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpUpdate, typeID, recordID); err != nil {
		return nil, err
	}
	m, err := s.reg.InferAndMaybeMigrate(ctx, typeID, payload)
	if err != nil {
		return nil, err
	}
	rec, err := m.Replace(ctx, recordID, payload)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicRecordUpdated, events.RecordUpdated{TypeID: typeID, Record: rec})
	return rec, nil
}

func (s *Server) patchObject(ctx context.Context, id model.Identity, typeID, recordID string, payload map[string]any) (*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpUpdate, typeID, recordID); err != nil {
		return nil, err
	}
	m, err := s.reg.InferAndMaybeMigrate(ctx, typeID, payload)
	if err != nil {
		return nil, err
	}
	rec, err := m.Patch(ctx, recordID, payload)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicRecordUpdated, events.RecordUpdated{TypeID: typeID, Record: rec})
	return rec, nil
}

func (s *Server) deleteObject(ctx context.Context, id model.Identity, typeID, recordID string) (*model.Record, error) {
	if err := s.perms.Authorize(ctx, id, perm.OpDelete, typeID, recordID); err != nil {
		return nil, err
	}
	m, err := s.reg.Model(ctx, typeID)
	if err != nil {
		return nil, err
	}
	rec, err := m.Delete(ctx, recordID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TopicRecordDeleted, events.RecordDeleted{TypeID: typeID, RecordID: recordID})
	return rec, nil
}

// resolve reports the caller's effective capabilities on a type or record.
func (s *Server) resolve(ctx context.Context, id model.Identity, typeID, recordID string) (model.Capabilities, error) {
	return s.perms.Effective(ctx, id, typeID, recordID)
}

// queryFromValues reads limit, offset and equality filters from URL
// query parameters.
func queryFromValues(v url.Values) (typemodel.Query, error) {
	q := typemodel.Query{Equals: map[string]string{}}
	ve := &model.ValidationError{}
	for key, vals := range v {
		if len(vals) == 0 {
			continue
		}
		switch key {
		case "limit", "offset":
			n, err := strconv.Atoi(vals[0])
			if err != nil || n < 0 {
				ve.Add(key, "must be a non-negative integer")
				continue
			}
			if key == "limit" {
				q.Limit = n
			} else {
				q.Offset = n
			}
		default:
			q.Equals[key] = vals[0]
		}
	}
	return q, ve.Err()
}
