package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// SystemDescriptors returns the descriptors of the reserved types. They
// describe the system tables and have no record namespace.
func SystemDescriptors() []*model.TypeDescriptor {
	str := model.FieldSpec{Kind: model.KindString}
	flag := model.FieldSpec{Kind: model.KindBoolean}

	descriptors := model.NewTypeDescriptor(model.TypeDescriptors)
	descriptors.Description = "type descriptors"
	descriptors.Properties.Add("description", str)
	descriptors.Properties.Add("properties", model.FieldSpec{Kind: model.KindObject, Format: model.FormatDescriptor})

	users := model.NewTypeDescriptor(model.TypeUsers)
	users.Description = "users"
	users.Properties.Add("role", model.FieldSpec{Kind: model.KindString, Required: true})
	users.Properties.Add("api_key", model.FieldSpec{Kind: model.KindString, Format: model.FormatUUID, Indexed: true})

	perms := model.NewTypeDescriptor(model.TypePermissions)
	perms.Description = "permission grants"
	perms.Properties.Add("type", str)
	perms.Properties.Add("owner", model.FieldSpec{Kind: model.KindString, Required: true, Indexed: true})
	perms.Properties.Add("read", flag)
	perms.Properties.Add("write", flag)
	perms.Properties.Add("create", flag)

	return []*model.TypeDescriptor{descriptors, users, perms}
}

// Bootstrap registers the reserved descriptors that are not stored yet.
// Concurrent bootstraps are safe: each insert is conditional.
func (r *Registry) Bootstrap(ctx context.Context) error {
	for _, d := range SystemDescriptors() {
		d.LastModified = r.now()
		created, err := r.st.CreateDescriptorIfAbsent(ctx, d)
		if err != nil {
			return fmt.Errorf("registering %s: %w", d.ID, err)
		}
		if created {
			slog.Info("registered system type", "type", d.ID)
		}
	}
	return nil
}

// WatchInvalidations drops cached models when another process migrates
// or deletes a type. The returned function stops watching.
func (r *Registry) WatchInvalidations(sub events.QueueSubscriber) (func(), error) {
	return sub.Handle(events.TopicTypeAll, "", func(data []byte) error {
		var evt map[string]any
		if err := json.Unmarshal(data, &evt); err != nil {
			slog.Warn("ignoring malformed type event", "error", err)
			return err
		}
		if id := events.TypeIDOf(evt); id != "" {
			r.Invalidate(id)
		}
		return nil
	})
}
