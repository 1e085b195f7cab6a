package events

import (
	"context"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// Event topic constants
const (
	TopicTypeCreated  = "moist.type.created"
	TopicTypeMigrated = "moist.type.migrated"
	TopicTypeDeleted  = "moist.type.deleted"

	TopicRecordCreated = "moist.record.created"
	TopicRecordUpdated = "moist.record.updated"
	TopicRecordDeleted = "moist.record.deleted"

	TopicUserCreated = "moist.user.created"
	TopicUserDeleted = "moist.user.deleted"

	TopicGrantSet     = "moist.grant.set"
	TopicGrantDeleted = "moist.grant.deleted"

	// TopicIngestFailed carries ingest messages that could not be stored.
	TopicIngestFailed = "moist.ingest.failed"

	// TopicTypeAll matches every descriptor event.
	TopicTypeAll = "moist.type.>"
)

// Event types

type TypeCreated struct {
	Type *model.TypeDescriptor `json:"type"`
}

type TypeMigrated struct {
	Type      *model.TypeDescriptor `json:"type"`
	NewFields []string              `json:"new_fields"`
}

type TypeDeleted struct {
	TypeID string `json:"type_id"`
}

type RecordCreated struct {
	TypeID string        `json:"type_id"`
	Record *model.Record `json:"record"`
}

type RecordUpdated struct {
	TypeID string        `json:"type_id"`
	Record *model.Record `json:"record"`
}

type RecordDeleted struct {
	TypeID   string `json:"type_id"`
	RecordID string `json:"record_id"`
}

type UserCreated struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type UserDeleted struct {
	UserID string `json:"user_id"`
}

type GrantSet struct {
	Grant *model.Grant `json:"grant"`
}

type GrantDeleted struct {
	Key model.GrantKey `json:"key"`
}

type IngestFailed struct {
	TypeID string `json:"type_id,omitempty"`
	Reason string `json:"reason"`
	Kind   string `json:"error_code"`
	Data   []byte `json:"data"`
}

// TypeIDOf extracts the type id from a descriptor event payload.
func TypeIDOf(evt map[string]any) string {
	if id, ok := evt["type_id"].(string); ok {
		return id
	}
	if t, ok := evt["type"].(map[string]any); ok {
		id, _ := t["id"].(string)
		return id
	}
	return ""
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
