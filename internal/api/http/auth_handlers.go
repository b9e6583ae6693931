package http

import (
	"net/http"
	"time"

	authmw "github.com/mind-engage/examdesk/internal/auth/middleware"
	"github.com/mind-engage/examdesk/internal/metrics"
	"github.com/mind-engage/examdesk/internal/users"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	AccessToken string     `json:"access_token"`
	TokenType   string     `json:"token_type"`
	ExpiresAt   time.Time  `json:"expires_at"`
	User        users.User `json:"user"`
}

// POST /auth/login
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.Users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		metrics.LoginAttempts.WithLabelValues("failure", "password").Inc()
		s.respondError(w, r, err)
		return
	}
	tok, exp, err := s.Tokens.IssueJWT(u.ID, string(u.Role))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	metrics.LoginAttempts.WithLabelValues("success", "password").Inc()
	respondJSON(w, http.StatusOK, loginResponse{AccessToken: tok, TokenType: "Bearer", ExpiresAt: exp, User: u})
}

// GET /auth/me
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	u, ok := authmw.UserFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
		return
	}
	respondJSON(w, http.StatusOK, u)
}
