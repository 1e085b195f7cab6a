package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/registry"
	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	TypeCount   int       `json:"type_count"`
	RecordCount int       `json:"record_count"`
	GrantCount  int       `json:"grant_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type   string `json:"type"`
	TypeID string `json:"type_id,omitempty"`
	Data   any    `json:"data"`
}

// exportedUser is a user without credentials.
type exportedUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// ExportJSONL writes every descriptor, record, user and grant as JSONL to
// w. Descriptors come first so a reader can build each type before its
// records. Credentials are never exported.
func ExportJSONL(ctx context.Context, reg *registry.Registry, w io.Writer) error {
	descs, err := reg.List(ctx)
	if err != nil {
		return fmt.Errorf("list types: %w", err)
	}

	records := make(map[string][]*model.Record)
	nRecords := 0
	for _, d := range descs {
		if model.IsReserved(d.ID) {
			continue
		}
		m, err := reg.Model(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("load type %s: %w", d.ID, err)
		}
		recs, err := m.List(ctx, typemodel.Query{})
		if err != nil {
			return fmt.Errorf("list records of %s: %w", d.ID, err)
		}
		records[d.ID] = recs
		nRecords += len(recs)
	}

	st := reg.Store()
	users, err := st.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	var grants []*model.Grant
	for _, u := range users {
		gs, err := st.ListGrants(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("list grants of %s: %w", u.ID, err)
		}
		grants = append(grants, gs...)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		TypeCount:   len(descs),
		RecordCount: nRecords,
		GrantCount:  len(grants),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, d := range descs {
		if err := enc.Encode(record{Type: "type", Data: d}); err != nil {
			return fmt.Errorf("encode type %s: %w", d.ID, err)
		}
	}
	for _, d := range descs {
		for _, rec := range records[d.ID] {
			if err := enc.Encode(record{Type: "record", TypeID: d.ID, Data: rec}); err != nil {
				return fmt.Errorf("encode record %s/%s: %w", d.ID, rec.ID(), err)
			}
		}
	}
	for _, u := range users {
		if err := enc.Encode(record{Type: "user", Data: exportedUser{ID: u.ID, Role: u.Role}}); err != nil {
			return fmt.Errorf("encode user %s: %w", u.ID, err)
		}
	}
	for _, g := range grants {
		if err := enc.Encode(record{Type: "grant", Data: g}); err != nil {
			return fmt.Errorf("encode grant %s/%s: %w", g.Owner, g.ResourceID, err)
		}
	}

	return nil
}
