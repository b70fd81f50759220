package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/store"
	"github.com/safetydesk/causemap/pkg/tree"
)

type generateRequest struct {
	Text  string `json:"text"`
	Level int    `json:"level,omitempty"`
}

type generateResponse struct {
	Nodes    []tree.Node `json:"nodes"`
	Count    int         `json:"count"`
	MaxDepth int         `json:"maxDepth"`
}

// handleGenerate builds a causal tree without persisting anything.
// Clients use this to preview a diagram before attaching it to an incident.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	nodes, err := s.runner.Generate(r.Context(), pipeline.Options{
		Description: req.Text,
		Level:       req.Level,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Nodes:    nodes,
		Count:    len(nodes),
		MaxDepth: tree.MaxDepth(nodes),
	})
}

type incidentRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Details     string `json:"details,omitempty"`
	Level       int    `json:"level,omitempty"`
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())

	var (
		incidents []store.Incident
		err       error
	)
	if sess.Admin {
		incidents, err = s.store.ListAllIncidents(r.Context())
	} else {
		incidents, err = s.store.ListIncidents(r.Context(), sess.User)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (s *Server) handleCreateIncident(w http.ResponseWriter, r *http.Request) {
	var req incidentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess := sessionFrom(r.Context())
	rec, err := s.store.SaveIncident(r.Context(), sess.User, store.NewIncident{
		Title:       req.Title,
		Description: req.Description,
		Details:     req.Details,
		Level:       req.Level,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// loadIncident fetches the incident from the URL and enforces ownership:
// non-admins only see their own records.
func (s *Server) loadIncident(r *http.Request) (*store.Incident, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid incident id %q", chi.URLParam(r, "id"))
	}

	rec, err := s.store.GetIncident(r.Context(), id)
	if err != nil {
		return nil, err
	}

	sess := sessionFrom(r.Context())
	if !sess.Admin && rec.Owner != sess.User {
		return nil, errors.New(errors.ErrCodeForbidden, "incident %d belongs to another user", id)
	}
	return rec, nil
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadIncident(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type incidentPatchRequest struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	Details         *string `json:"details,omitempty"`
	Level           *int    `json:"level,omitempty"`
	ExpectedVersion int     `json:"expectedVersion,omitempty"`
}

func (s *Server) handlePatchIncident(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadIncident(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req incidentPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.store.UpdateIncident(r.Context(), rec.ID, store.IncidentPatch{
		Title:           req.Title,
		Description:     req.Description,
		Details:         req.Details,
		Level:           req.Level,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteIncident(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadIncident(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.store.DeleteIncident(r.Context(), rec.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
