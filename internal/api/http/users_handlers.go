package http

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/users"
)

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8"`
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pageFrom(r)
	opts := users.ListOpts{
		Role:   users.Role(q.Get("role")),
		Q:      q.Get("q"),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, r, errBadRequest)
			return
		}
		opts.Active = &b
	}
	items, total, err := s.Users.List(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listOf(items, total, p))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in users.NewUser
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.Users.Create(r.Context(), in)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.create", u.ID, map[string]string{"username": u.Username, "role": string(u.Role)})
	respondJSON(w, http.StatusCreated, u)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var p users.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}
	u, err := s.Users.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.update", u.ID, p)
	respondJSON(w, http.StatusOK, u)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	purged, err := s.Users.Delete(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.delete", id, map[string]int{"attempts_purged": purged})
	respondJSON(w, http.StatusOK, map[string]int{"attempts_purged": purged})
}

// POST /users/bulk  (JSON array or CSV; body or multipart file=)
func (s *Server) bulkUsers(w http.ResponseWriter, r *http.Request) {
	data, _, _, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	rows, err := users.ParseBulk(data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	res, err := s.Users.BulkUpsert(r.Context(), rows, users.Role(role(r)))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.bulk_upsert", "", res)
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.Users.ChangePassword(r.Context(), actor(r), req.OldPassword, req.NewPassword); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.change_password", actor(r), nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.Users.ResetPassword(r.Context(), id, req.Password); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "user.reset_password", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type piiExport struct {
	users.PII
	Attempts []exam.Attempt `json:"attempts"`
}

// exportPII bundles the account with every attempt the user made.
func (s *Server) exportPII(w http.ResponseWriter, r *http.Request) {
	pii, err := s.Users.ExportPII(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	out := piiExport{PII: pii, Attempts: []exam.Attempt{}}
	const batch = 500
	for offset := 0; ; offset += batch {
		items, _, err := s.Exams.ListAttempts(r.Context(), exam.AttemptListOpts{UserID: pii.User.ID, Limit: batch, Offset: offset})
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		out.Attempts = append(out.Attempts, items...)
		if len(items) < batch {
			break
		}
	}
	s.record(r, "user.export_pii", pii.User.ID, nil)
	w.Header().Set("Content-Disposition", `attachment; filename="`+pii.User.Username+`-pii.json"`)
	respondJSON(w, http.StatusOK, out)
}
