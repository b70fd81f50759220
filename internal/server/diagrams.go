package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/safetydesk/causemap/pkg/cache"
	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/generate"
	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/render"
	"github.com/safetydesk/causemap/pkg/store"
	"github.com/safetydesk/causemap/pkg/tree"
)

func (s *Server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadIncident(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	diagrams, err := s.store.ListDiagrams(r.Context(), rec.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"diagrams": diagrams})
}

type diagramRequest struct {
	Title string      `json:"title"`
	Nodes []tree.Node `json:"nodes,omitempty"`
}

// handleCreateDiagram attaches a diagram to an incident. When the request
// carries no nodes, the tree is generated from the incident description at
// its stored analysis level.
func (s *Server) handleCreateDiagram(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadIncident(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req diagramRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	nodes := req.Nodes
	if len(nodes) == 0 {
		nodes, err = s.runner.Generate(r.Context(), pipeline.Options{
			Description: rec.Description,
			Level:       generate.ParseLevelLabel(rec.AnalysisLevel),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	d, err := s.store.CreateDiagram(r.Context(), rec.ID, req.Title, nodes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// loadDiagram fetches the diagram from the URL and authorizes through its
// owning incident.
func (s *Server) loadDiagram(r *http.Request) (*store.Diagram, *store.Incident, error) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		return nil, nil, errors.New(errors.ErrCodeInvalidInput, "invalid diagram id %q", chi.URLParam(r, "id"))
	}

	d, err := s.store.GetDiagram(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}

	rec, err := s.store.GetIncident(r.Context(), d.IncidentID)
	if err != nil {
		return nil, nil, err
	}

	sess := sessionFrom(r.Context())
	if !sess.Admin && rec.Owner != sess.User {
		return nil, nil, errors.New(errors.ErrCodeForbidden, "diagram %d belongs to another user", id)
	}
	return d, rec, nil
}

func (s *Server) handleGetDiagram(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.loadDiagram(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type diagramPatchRequest struct {
	Title           *string     `json:"title,omitempty"`
	Nodes           []tree.Node `json:"nodes,omitempty"`
	ExpectedVersion int         `json:"expectedVersion,omitempty"`
}

func (s *Server) handlePatchDiagram(w http.ResponseWriter, r *http.Request) {
	d, _, err := s.loadDiagram(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req diagramPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	updated, err := s.store.UpdateDiagram(r.Context(), d.ID, store.DiagramPatch{
		Title:           req.Title,
		Nodes:           req.Nodes,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// exportFormats are the formats served by the export endpoint. DOT and
// JSON stay internal; clients read nodes from the diagram resource itself.
var exportFormats = map[string]string{
	pipeline.FormatSVG:  "image/svg+xml",
	pipeline.FormatPDF:  "application/pdf",
	pipeline.FormatPNG:  "image/png",
	pipeline.FormatHTML: "text/html; charset=utf-8",
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	d, rec, err := s.loadDiagram(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = pipeline.FormatSVG
	}
	contentType, ok := exportFormats[format]
	if !ok {
		s.writeError(w, r, errors.New(errors.ErrCodeUnsupported,
			"invalid export format: %q (must be one of: svg, pdf, png, html)", format))
		return
	}

	nodes, err := d.Nodes()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	detailed := r.URL.Query().Get("detailed") == "true"

	// Scope cache keys per owner so one user's artifacts never serve
	// another's requests.
	runner := pipeline.Runner{
		Cache:  s.runner.Cache,
		Keyer:  cache.NewScopedKeyer(s.runner.Keyer, rec.Owner+":"),
		Logger: s.runner.Logger,
	}
	artifacts, err := runner.Render(r.Context(), nodes, pipeline.Options{
		Formats:  []string{format},
		Detailed: detailed,
		Title:    rec.Title,
		Level:    generate.ParseLevelLabel(rec.AnalysisLevel),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filename := render.ExportFilename(format, time.Now())
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("X-Artifact-ID", uuid.NewString())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(artifacts[format])
}
