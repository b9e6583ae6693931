package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/rbac"
)

type startRequest struct {
	ExamID string `json:"exam_id" validate:"required"`
}

type responsesRequest struct {
	Responses map[string]interface{} `json:"responses"`
}

func viewAll(r *http.Request) bool { return rbac.Can(role(r), "attempt:view-all") }

// startAttempt answers 201 for a new attempt and 200 when the caller already
// has one in progress.
func (s *Server) startAttempt(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, created, err := s.Exams.Start(r.Context(), req.ExamID, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
		s.record(r, "attempt.start", a.ID, map[string]string{"exam_id": a.ExamID})
	}
	respondJSON(w, code, a)
}

func (s *Server) listAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pageFrom(r)
	opts := exam.AttemptListOpts{
		ExamID: q.Get("exam_id"),
		UserID: q.Get("user_id"),
		Status: exam.AttemptStatus(q.Get("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if !viewAll(r) {
		opts.UserID = actor(r)
	}
	items, total, err := s.Exams.ListAttempts(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listOf(items, total, p))
}

// getAttempt returns the raw attempt to staff and the candidate view, with
// keys removed, to its owner.
func (s *Server) getAttempt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if viewAll(r) {
		a, err := s.Exams.GetAttempt(r.Context(), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, a)
		return
	}
	v, err := s.Exams.View(r.Context(), id, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (s *Server) saveResponses(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	a, err := s.Exams.Save(r.Context(), chi.URLParam(r, "id"), actor(r), req.Responses)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// submitAttempt accepts an empty body when everything was saved already.
func (s *Server) submitAttempt(w http.ResponseWriter, r *http.Request) {
	var req responsesRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.respondError(w, r, err)
		return
	}
	a, err := s.Exams.Submit(r.Context(), chi.URLParam(r, "id"), actor(r), req.Responses)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "attempt.submit", a.ID, map[string]any{"exam_id": a.ExamID, "score": a.Score, "max_score": a.MaxScore})
	respondJSON(w, http.StatusOK, a)
}
