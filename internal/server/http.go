package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alfredjeanlab/moisturizer/internal/batch"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// DefaultMaxBodyBytes caps request bodies when Config.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 8 << 20

// NewHTTPHandler returns an http.Handler with all routes registered behind
// recovery, access logging and authentication.
func (s *Server) NewHTTPHandler() http.Handler {
	return RecoveryMiddleware(LoggingMiddleware(s.AuthMiddleware(s.routes)))
}

func (s *Server) newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /__heartbeat__", s.handleHeartbeat)

	mux.Handle("GET /v1/types", s.api(s.handleListTypes))
	mux.Handle("POST /v1/types", s.api(s.handleCreateType))
	mux.Handle("DELETE /v1/types", s.api(s.handleDeleteTypes))
	mux.Handle("GET /v1/types/{type}", s.api(s.handleGetType))
	mux.Handle("PUT /v1/types/{type}", s.api(s.handleDeclareType))
	mux.Handle("PATCH /v1/types/{type}", s.api(s.handleDeclareType))
	mux.Handle("DELETE /v1/types/{type}", s.api(s.handleDeleteType))

	mux.Handle("GET /v1/types/{type}/objects", s.api(s.handleListObjects))
	mux.Handle("POST /v1/types/{type}/objects", s.api(s.handleCreateObject))
	mux.Handle("DELETE /v1/types/{type}/objects", s.api(s.handleDeleteObjects))
	mux.Handle("GET /v1/types/{type}/objects/{id}", s.api(s.handleGetObject))
	mux.Handle("PUT /v1/types/{type}/objects/{id}", s.api(s.handleReplaceObject))
	mux.Handle("PATCH /v1/types/{type}/objects/{id}", s.api(s.handlePatchObject))
	mux.Handle("DELETE /v1/types/{type}/objects/{id}", s.api(s.handleDeleteObject))

	mux.Handle("GET /v1/users", s.api(s.handleListUsers))
	mux.Handle("POST /v1/users", s.api(s.handleCreateUser))
	mux.Handle("GET /v1/users/{id}", s.api(s.handleGetUser))
	mux.Handle("DELETE /v1/users/{id}", s.api(s.handleDeleteUser))
	mux.Handle("GET /v1/users/{id}/permissions", s.api(s.handleListGrants))
	mux.Handle("POST /v1/users/{id}/permissions", s.api(s.handleCreateGrant))
	mux.Handle("GET /v1/users/{id}/permissions/{resource}", s.api(s.handleGetGrant))
	mux.Handle("PUT /v1/users/{id}/permissions/{resource}", s.api(s.handlePutGrant))
	mux.Handle("DELETE /v1/users/{id}/permissions/{resource}", s.api(s.handleDeleteGrant))

	mux.Handle("POST "+batch.Path, s.api(s.handleBatch))
	mux.Handle("GET /v1/events/stream", s.api(s.handleEventStream))
	mux.Handle("GET /v1/events/ws", s.api(s.handleEventSocket))

	mux.Handle("/{type}", s.api(s.handleLegacy))
	mux.Handle("/{type}/{id}", s.api(s.handleLegacy))
	return mux
}

// apiFunc is a handler that reports failures as errors.
type apiFunc func(w http.ResponseWriter, r *http.Request) error

// api adapts fn, rendering returned errors as JSON error bodies.
func (s *Server) api(fn apiFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		if err := fn(w, r); err != nil {
			writeError(w, r, err)
		}
	})
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHeartbeat handles GET /__heartbeat__. It checks that the
// descriptor and user tables answer.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	_, schemaErr := s.store.ListDescriptors(r.Context())
	_, usersErr := s.store.ListUsers(r.Context())
	status := http.StatusOK
	if schemaErr != nil || usersErr != nil {
		slog.Warn("heartbeat failed", "schema_error", schemaErr, "users_error", usersErr)
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{
		"server": true,
		"schema": schemaErr == nil,
		"users":  usersErr == nil,
	})
}

// handleLegacy redirects the unversioned object paths to their /v1 form.
func (s *Server) handleLegacy(w http.ResponseWriter, r *http.Request) error {
	typeID := r.PathValue("type")
	if typeID == "v1" {
		return model.NewError(model.ErrNotFound, "", "no route for %s %s", r.Method, r.URL.Path)
	}
	target := "/v1/types/" + typeID + "/objects"
	if id := r.PathValue("id"); id != "" {
		target += "/" + id
	}
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	w.Header().Set("Location", target)
	w.WriteHeader(http.StatusPermanentRedirect)
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError renders err as a JSON error body. Failures that are not
// recoverable are logged, and their detail is withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if sink, ok := r.Context().Value(errSinkKey).(*errSink); ok {
		sink.err = err
	}
	if !model.Recoverable(err) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	detail := model.Describe(err)
	writeJSON(w, detail.Kind.HTTPStatus(), model.ErrorBody{Error: detail})
}

// decodeJSON reads the request body into v. Numbers are kept as
// json.Number so integers and floats can be told apart.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.NewError(model.ErrValidationFailed, "", "request body exceeds %d bytes", tooLarge.Limit)
		}
		return model.NewError(model.ErrValidationFailed, "", "reading body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return model.NewError(model.ErrValidationFailed, "", "request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return model.NewError(model.ErrValidationFailed, "", "invalid JSON body: %s must be %s", typeErr.Field, typeErr.Type)
		}
		return model.NewError(model.ErrValidationFailed, "", "invalid JSON body")
	}
	return nil
}

type ctxKey int

const (
	identityKey ctxKey = iota
	errSinkKey
)

// WithIdentity returns ctx carrying the caller's identity.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the identity bound to ctx.
func IdentityFrom(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(identityKey).(model.Identity)
	return id, ok
}

// identity returns the caller of r. The auth middleware guarantees one on
// every authenticated route.
func identity(r *http.Request) model.Identity {
	id, _ := IdentityFrom(r.Context())
	return id
}

// errSink captures the error a handler rendered, so in-process callers
// can tell a recoverable failure from one that must abort.
type errSink struct {
	err error
}
