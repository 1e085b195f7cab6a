// Package client provides a transport-agnostic interface for the
// moisturizer service and an HTTP/JSON implementation of it.
package client

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// Client is the interface that the moist CLI commands use to talk to a
// server. It is implemented by HTTPClient.
type Client interface {
	// Types
	ListTypes(ctx context.Context) ([]*model.TypeDescriptor, error)
	GetType(ctx context.Context, id string) (*model.TypeDescriptor, error)
	DeclareType(ctx context.Context, req *DeclareTypeRequest) (*model.TypeDescriptor, error)
	DeleteType(ctx context.Context, id string) (*model.TypeDescriptor, error)

	// Objects
	ListObjects(ctx context.Context, typeID string, filter url.Values) ([]Object, error)
	GetObject(ctx context.Context, typeID, id string) (Object, error)
	CreateObject(ctx context.Context, typeID string, body Object) (Object, error)
	PutObject(ctx context.Context, typeID, id string, body Object) (Object, error)
	PatchObject(ctx context.Context, typeID, id string, body Object) (Object, error)
	DeleteObject(ctx context.Context, typeID, id string) (Object, error)

	// Users and grants
	ListUsers(ctx context.Context) ([]*model.User, error)
	CreateUser(ctx context.Context, req *CreateUserRequest) (*model.User, error)
	DeleteUser(ctx context.Context, id string) (*model.User, error)
	ListGrants(ctx context.Context, userID string) ([]*model.Grant, error)
	SetGrant(ctx context.Context, userID string, req *SetGrantRequest) (*model.Grant, error)
	RevokeGrant(ctx context.Context, userID, resourceID, typeScope string) error

	// Batch
	Batch(ctx context.Context, spec json.RawMessage) (*BatchResponse, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// Object is a record as sent over the wire. Numbers decode as json.Number.
type Object = map[string]any

// Credentials select how requests authenticate. Token takes precedence
// over User and Secret; all empty sends no Authorization header.
type Credentials struct {
	Token  string
	User   string
	Secret string // API key or password
}

// DeclareTypeRequest holds a type declaration.
type DeclareTypeRequest struct {
	ID          string           `json:"id"`
	Description string           `json:"description,omitempty"`
	Properties  model.Properties `json:"properties"`
}

// CreateUserRequest holds parameters for creating a user.
type CreateUserRequest struct {
	ID       string `json:"id"`
	Role     string `json:"role,omitempty"`
	Password string `json:"password,omitempty"`
}

// SetGrantRequest holds a grant to store. TypeScope makes it a grant on
// one record of that type.
type SetGrantRequest struct {
	ResourceID string `json:"id"`
	TypeScope  string `json:"type,omitempty"`
	model.Capabilities
}

// BatchResponse is the response from Batch.
type BatchResponse struct {
	Responses []BatchItem `json:"responses"`
}

// BatchItem is the outcome of one batch sub-request.
type BatchItem struct {
	Path    string            `json:"path"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
}
