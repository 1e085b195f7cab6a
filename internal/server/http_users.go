package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/auth"
	"github.com/alfredjeanlab/moisturizer/internal/events"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// userInput is the body of POST /v1/users.
type userInput struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

// grantInput is the body of grant writes. On PUT the resource comes from
// the path.
type grantInput struct {
	ResourceID string `json:"id"`
	TypeScope  string `json:"type"`
	model.Capabilities
}

// requireAdmin refuses callers that are not administrators.
func requireAdmin(id model.Identity, action string) error {
	if !id.Admin {
		return model.NewError(model.ErrForbidden, "", "only administrators may %s", action)
	}
	return nil
}

// requireSelfOrAdmin allows administrators and the user the resource
// belongs to.
func requireSelfOrAdmin(id model.Identity, userID string) error {
	if id.Admin || id.ID == userID {
		return nil
	}
	return model.NewError(model.ErrForbidden, "", "%s may not read %s", id.ID, userID)
}

func (s *Server) checkWritable() error {
	if s.cfg.Schema.ReadOnly {
		return model.NewError(model.ErrForbidden, "", "server is read-only")
	}
	return nil
}

// loadUser returns the user or a NotFound error.
func (s *Server) loadUser(ctx context.Context, userID string) (*model.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewError(model.ErrNotFound, "", "user %s not found", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading user %s: %w", userID, err)
	}
	return u, nil
}

// handleListUsers handles GET /v1/users.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) error {
	if err := requireAdmin(identity(r), "list users"); err != nil {
		return err
	}
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	writeJSON(w, http.StatusOK, users)
	return nil
}

// handleCreateUser handles POST /v1/users. The response carries the new
// user's API key.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) error {
	if err := requireAdmin(identity(r), "create users"); err != nil {
		return err
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	var in userInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	u, err := auth.NewUser(in.ID, in.Role, in.Password)
	if err != nil {
		return err
	}
	created, err := s.store.CreateUserIfAbsent(r.Context(), u)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	if !created {
		ve := &model.ValidationError{}
		ve.Add("id", "user %s already exists", u.ID)
		return ve
	}
	s.publish(r.Context(), events.TopicUserCreated, events.UserCreated{UserID: u.ID, Role: u.Role})
	writeJSON(w, http.StatusCreated, u)
	return nil
}

// handleGetUser handles GET /v1/users/{id}.
func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) error {
	userID := r.PathValue("id")
	if err := requireSelfOrAdmin(identity(r), userID); err != nil {
		return err
	}
	u, err := s.loadUser(r.Context(), userID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, u)
	return nil
}

// handleDeleteUser handles DELETE /v1/users/{id}. The user's grants go
// with it.
func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) error {
	caller := identity(r)
	if err := requireAdmin(caller, "delete users"); err != nil {
		return err
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	userID := r.PathValue("id")
	if userID == caller.ID {
		ve := &model.ValidationError{}
		ve.Add("id", "cannot delete the calling user")
		return ve
	}
	u, err := s.loadUser(r.Context(), userID)
	if err != nil {
		return err
	}
	grants, err := s.store.ListGrants(r.Context(), userID)
	if err != nil {
		return fmt.Errorf("listing grants: %w", err)
	}
	for _, g := range grants {
		if err := s.store.DeleteGrant(r.Context(), g.GrantKey); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("deleting grant: %w", err)
		}
	}
	if err := s.store.DeleteUser(r.Context(), userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewError(model.ErrNotFound, "", "user %s not found", userID)
		}
		return fmt.Errorf("deleting user: %w", err)
	}
	s.publish(r.Context(), events.TopicUserDeleted, events.UserDeleted{UserID: userID})
	u.APIKey = ""
	writeJSON(w, http.StatusOK, u)
	return nil
}

// handleListGrants handles GET /v1/users/{id}/permissions.
func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) error {
	userID := r.PathValue("id")
	if err := requireSelfOrAdmin(identity(r), userID); err != nil {
		return err
	}
	grants, err := s.store.ListGrants(r.Context(), userID)
	if err != nil {
		return fmt.Errorf("listing grants: %w", err)
	}
	if grants == nil {
		grants = []*model.Grant{}
	}
	writeJSON(w, http.StatusOK, grants)
	return nil
}

// handleCreateGrant handles POST /v1/users/{id}/permissions.
func (s *Server) handleCreateGrant(w http.ResponseWriter, r *http.Request) error {
	var in grantInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	g, err := s.putGrant(r, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, g)
	return nil
}

// handlePutGrant handles PUT /v1/users/{id}/permissions/{resource}.
func (s *Server) handlePutGrant(w http.ResponseWriter, r *http.Request) error {
	var in grantInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	in.ResourceID = r.PathValue("resource")
	if scope := r.URL.Query().Get("type"); scope != "" {
		in.TypeScope = scope
	}
	g, err := s.putGrant(r, in)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, g)
	return nil
}

func (s *Server) putGrant(r *http.Request, in grantInput) (*model.Grant, error) {
	if err := requireAdmin(identity(r), "grant permissions"); err != nil {
		return nil, err
	}
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	userID := r.PathValue("id")
	if _, err := s.loadUser(r.Context(), userID); err != nil {
		return nil, err
	}
	g := &model.Grant{
		GrantKey:     model.GrantKey{ResourceID: in.ResourceID, TypeScope: in.TypeScope, Owner: userID},
		Capabilities: in.Capabilities,
		LastModified: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := model.ValidateGrant(g); err != nil {
		return nil, err
	}
	if err := s.store.PutGrant(r.Context(), g); err != nil {
		return nil, fmt.Errorf("storing grant: %w", err)
	}
	s.publish(r.Context(), events.TopicGrantSet, events.GrantSet{Grant: g})
	return g, nil
}

// grantKey reads the grant addressed by the path and the optional type
// query parameter.
func grantKey(r *http.Request) model.GrantKey {
	return model.GrantKey{
		ResourceID: r.PathValue("resource"),
		TypeScope:  r.URL.Query().Get("type"),
		Owner:      r.PathValue("id"),
	}
}

// handleGetGrant handles GET /v1/users/{id}/permissions/{resource}.
func (s *Server) handleGetGrant(w http.ResponseWriter, r *http.Request) error {
	key := grantKey(r)
	if err := requireSelfOrAdmin(identity(r), key.Owner); err != nil {
		return err
	}
	g, err := s.store.GetGrant(r.Context(), key)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewError(model.ErrNotFound, key.TypeScope, "no grant on %s for %s", key.ResourceID, key.Owner)
	}
	if err != nil {
		return fmt.Errorf("reading grant: %w", err)
	}
	writeJSON(w, http.StatusOK, g)
	return nil
}

// handleDeleteGrant handles DELETE /v1/users/{id}/permissions/{resource}.
func (s *Server) handleDeleteGrant(w http.ResponseWriter, r *http.Request) error {
	if err := requireAdmin(identity(r), "revoke permissions"); err != nil {
		return err
	}
	if err := s.checkWritable(); err != nil {
		return err
	}
	key := grantKey(r)
	if err := s.store.DeleteGrant(r.Context(), key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewError(model.ErrNotFound, key.TypeScope, "no grant on %s for %s", key.ResourceID, key.Owner)
		}
		return fmt.Errorf("deleting grant: %w", err)
	}
	s.publish(r.Context(), events.TopicGrantDeleted, events.GrantDeleted{Key: key})
	w.WriteHeader(http.StatusNoContent)
	return nil
}
