package http

import (
	"net/http"
	"strconv"

	"github.com/mind-engage/examdesk/internal/audit"
)

// GET /audit?q=&limit=
func (s *Server) searchAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		respondJSON(w, http.StatusOK, []audit.Event{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.Audit.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}
