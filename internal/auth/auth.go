// Package auth matches request credentials to identities.
//
// Two schemes are accepted. "Bearer <token>" authenticates as the
// administrator when it equals the configured service token. "Basic"
// carries a user id and either the user's API key or password.
package auth

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/alfredjeanlab/moisturizer/internal/idgen"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// UserStore is the part of the store holding users.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	CreateUserIfAbsent(ctx context.Context, u *model.User) (bool, error)
}

// Authenticator resolves Authorization header values.
type Authenticator struct {
	users   UserStore
	token   string
	adminID string
}

// New returns an authenticator. An empty token disables the Bearer scheme.
func New(users UserStore, token, adminID string) *Authenticator {
	return &Authenticator{users: users, token: token, adminID: adminID}
}

func unauthenticated(format string, args ...any) error {
	return model.NewError(model.ErrUnauthenticated, "", format, args...)
}

// Authenticate returns the identity for an Authorization header value.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (model.Identity, error) {
	if header == "" {
		return model.Identity{}, unauthenticated("missing authorization header")
	}
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok {
		return model.Identity{}, unauthenticated("invalid authorization header")
	}
	switch strings.ToLower(scheme) {
	case "bearer":
		if a.token == "" || subtle.ConstantTimeCompare([]byte(cred), []byte(a.token)) != 1 {
			return model.Identity{}, unauthenticated("invalid token")
		}
		return model.Identity{ID: a.adminID, Admin: true}, nil
	case "basic":
		raw, err := base64.StdEncoding.DecodeString(cred)
		if err != nil {
			return model.Identity{}, unauthenticated("malformed basic credentials")
		}
		id, secret, ok := strings.Cut(string(raw), ":")
		if !ok || id == "" {
			return model.Identity{}, unauthenticated("malformed basic credentials")
		}
		return a.checkUser(ctx, id, secret)
	}
	return model.Identity{}, unauthenticated("unsupported authorization scheme %q", scheme)
}

func (a *Authenticator) checkUser(ctx context.Context, id, secret string) (model.Identity, error) {
	u, err := a.users.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, unauthenticated("invalid credentials")
	}
	if err != nil {
		return model.Identity{}, fmt.Errorf("loading user %s: %w", id, err)
	}
	if u.APIKey != "" && subtle.ConstantTimeCompare([]byte(secret), []byte(u.APIKey)) == 1 {
		return u.Identity(), nil
	}
	if u.PasswordHash != "" && bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)) == nil {
		return u.Identity(), nil
	}
	return model.Identity{}, unauthenticated("invalid credentials")
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(h), nil
}

// NewAPIKey returns a fresh random API key.
func NewAPIKey() string { return uuid.NewString() }

// NewUser builds a user with a fresh API key. An empty id is generated and
// an empty password leaves the user with API key access only.
func NewUser(id, role, password string) (*model.User, error) {
	if id == "" {
		var err error
		if id, err = idgen.UserID(); err != nil {
			return nil, err
		}
	}
	if role == "" {
		role = model.RoleUser
	}
	u := &model.User{
		ID:           id,
		Role:         role,
		APIKey:       NewAPIKey(),
		LastModified: time.Now().UTC().Truncate(time.Microsecond),
	}
	if password != "" {
		h, err := HashPassword(password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = h
	}
	if err := model.ValidateUser(u); err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureAdmin creates the administrator user unless it exists. The insert
// is conditional, so concurrent bootstraps never overwrite each other.
// The returned user is nil when it already existed.
func EnsureAdmin(ctx context.Context, users UserStore, id, password string) (*model.User, error) {
	u, err := NewUser(id, model.RoleAdmin, password)
	if err != nil {
		return nil, err
	}
	created, err := users.CreateUserIfAbsent(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("creating admin user: %w", err)
	}
	if !created {
		return nil, nil
	}
	slog.Info("created admin user", "user", u.ID)
	return u, nil
}
