package server

import (
	"net/http"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// typeInput is the body of type declarations.
type typeInput struct {
	ID          string           `json:"id"`
	Description string           `json:"description"`
	Properties  model.Properties `json:"properties"`
}

// handleListTypes handles GET /v1/types.
func (s *Server) handleListTypes(w http.ResponseWriter, r *http.Request) error {
	ds, err := s.listTypes(r.Context(), identity(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, ds)
	return nil
}

// handleCreateType handles POST /v1/types.
func (s *Server) handleCreateType(w http.ResponseWriter, r *http.Request) error {
	var in typeInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	return s.declare(w, r, in.ID, in)
}

// handleDeclareType handles PUT and PATCH /v1/types/{type}. Both are
// additive: declared fields are appended and never retyped.
func (s *Server) handleDeclareType(w http.ResponseWriter, r *http.Request) error {
	typeID := r.PathValue("type")
	var in typeInput
	if err := decodeJSON(r, &in); err != nil {
		return err
	}
	if in.ID != "" && in.ID != typeID {
		ve := &model.ValidationError{TypeID: typeID}
		ve.Add("id", "does not match the path (%s)", in.ID)
		return ve
	}
	return s.declare(w, r, typeID, in)
}

func (s *Server) declare(w http.ResponseWriter, r *http.Request, typeID string, in typeInput) error {
	d, created, err := s.declareType(r.Context(), identity(r), typeID, in.Description, in.Properties)
	if err != nil {
		return err
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, d)
	return nil
}

// handleDeleteTypes handles DELETE /v1/types.
func (s *Server) handleDeleteTypes(w http.ResponseWriter, r *http.Request) error {
	deleted, err := s.deleteTypes(r.Context(), identity(r))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, deleted)
	return nil
}

// handleGetType handles GET /v1/types/{type}.
func (s *Server) handleGetType(w http.ResponseWriter, r *http.Request) error {
	d, err := s.getType(r.Context(), identity(r), r.PathValue("type"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}

// handleDeleteType handles DELETE /v1/types/{type}.
func (s *Server) handleDeleteType(w http.ResponseWriter, r *http.Request) error {
	d, err := s.deleteType(r.Context(), identity(r), r.PathValue("type"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, d)
	return nil
}
