// Package server implements the causemap HTTP API.
//
// Routes are grouped under /api with session-cookie authentication.
// Handlers translate between JSON bodies and the store/pipeline layers;
// all domain rules live below this package.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/safetydesk/causemap/pkg/pipeline"
	"github.com/safetydesk/causemap/pkg/session"
	"github.com/safetydesk/causemap/pkg/store"
)

// Server holds the dependencies shared by all handlers.
type Server struct {
	store    store.Store
	sessions session.Store
	runner   *pipeline.Runner
	logger   *log.Logger
	ttl      time.Duration
}

// New creates a server. A nil logger falls back to the default charm
// logger; a zero ttl falls back to session.DefaultTTL.
func New(st store.Store, sessions session.Store, runner *pipeline.Runner, logger *log.Logger, ttl time.Duration) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if ttl == 0 {
		ttl = session.DefaultTTL
	}
	return &Server{
		store:    st,
		sessions: sessions,
		runner:   runner,
		logger:   logger,
		ttl:      ttl,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/logout", s.handleLogout)
			r.Post("/generate", s.handleGenerate)

			r.Route("/incidents", func(r chi.Router) {
				r.Get("/", s.handleListIncidents)
				r.Post("/", s.handleCreateIncident)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetIncident)
					r.Patch("/", s.handlePatchIncident)
					r.Delete("/", s.handleDeleteIncident)
					r.Get("/diagrams", s.handleListDiagrams)
					r.Post("/diagrams", s.handleCreateDiagram)
				})
			})

			r.Route("/diagrams/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDiagram)
				r.Patch("/", s.handlePatchDiagram)
				r.Get("/export", s.handleExport)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Delete("/{name}", s.handleDeleteUser)
			})
		})
	})

	return r
}

// Run serves the API until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start))
	})
}
