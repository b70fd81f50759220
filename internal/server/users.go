package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/safetydesk/causemap/pkg/errors"
	"github.com/safetydesk/causemap/pkg/store"
)

// minPasswordLen is the minimum accepted password length for new accounts.
const minPasswordLen = 8

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Admin    bool   `json:"admin,omitempty"`
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := errors.ValidateUsername(req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Password) < minPasswordLen {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput,
			"password must be at least %d characters", minPasswordLen))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "hash password"))
		return
	}

	u := store.User{Name: req.Name, PasswordHash: string(hash), Admin: req.Admin}
	if err := s.store.CreateUser(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("user created", "name", req.Name, "admin", req.Admin)
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if sess := sessionFrom(r.Context()); sess.User == name {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidUser, "cannot delete the signed-in account"))
		return
	}

	if err := s.store.DeleteUser(r.Context(), name); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
