package server

import (
	"net/http"
)

// handleListObjects handles GET /v1/types/{type}/objects. Query
// parameters other than limit and offset filter by field equality.
func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) error {
	q, err := queryFromValues(r.URL.Query())
	if err != nil {
		return err
	}
	recs, err := s.listObjects(r.Context(), identity(r), r.PathValue("type"), q)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, recs)
	return nil
}

// handleCreateObject handles POST /v1/types/{type}/objects.
func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) error {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}
	rec, err := s.createObject(r.Context(), identity(r), r.PathValue("type"), payload)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, rec)
	return nil
}

// handleDeleteObjects handles DELETE /v1/types/{type}/objects and returns
// the deleted records.
func (s *Server) handleDeleteObjects(w http.ResponseWriter, r *http.Request) error {
	q, err := queryFromValues(r.URL.Query())
	if err != nil {
		return err
	}
	recs, err := s.deleteObjects(r.Context(), identity(r), r.PathValue("type"), q)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, recs)
	return nil
}

// handleGetObject handles GET /v1/types/{type}/objects/{id}.
func (s *Server) handleGetObject(w http.ResponseWriter, r *http.Request) error {
	rec, err := s.getObject(r.Context(), identity(r), r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handleReplaceObject handles PUT /v1/types/{type}/objects/{id}.
func (s *Server) handleReplaceObject(w http.ResponseWriter, r *http.Request) error {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}
	rec, err := s.replaceObject(r.Context(), identity(r), r.PathValue("type"), r.PathValue("id"), payload)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handlePatchObject handles PATCH /v1/types/{type}/objects/{id}.
func (s *Server) handlePatchObject(w http.ResponseWriter, r *http.Request) error {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		return err
	}
	rec, err := s.patchObject(r.Context(), identity(r), r.PathValue("type"), r.PathValue("id"), payload)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// handleDeleteObject handles DELETE /v1/types/{type}/objects/{id}.
func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) error {
	rec, err := s.deleteObject(r.Context(), identity(r), r.PathValue("type"), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}
