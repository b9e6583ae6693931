package http

import (
	"net/http"

	"github.com/mind-engage/examdesk/internal/notify"
)

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r)
	items, total, err := s.Notify.List(r.Context(), p.Limit, p.Offset)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listOf(items, total, p))
}

// sendNotification answers 201 even when delivery failed; the stored
// notification carries status failed and the error.
func (s *Server) sendNotification(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	req.CreatedBy = actor(r)
	n, err := s.Notify.Send(r.Context(), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "notification.send", n.ID, map[string]any{"kind": n.Kind, "recipients": n.Recipients, "status": n.Status})
	respondJSON(w, http.StatusCreated, n)
}
