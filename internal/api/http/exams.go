package http

import (
	"bytes"
	"fmt"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/rbac"
)

// staff reports whether the caller may see drafts and answer keys.
func staff(r *http.Request) bool { return rbac.Can(role(r), "exam:edit") }

func (s *Server) listExams(w http.ResponseWriter, r *http.Request) {
	p := pageFrom(r)
	opts := exam.ListOpts{
		Q:      r.URL.Query().Get("q"),
		Status: exam.Status(r.URL.Query().Get("status")),
		Limit:  p.Limit,
		Offset: p.Offset,
	}
	if !staff(r) {
		opts.Status = exam.StatusPublished
	}
	items, total, err := s.Exams.List(r.Context(), opts)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listOf(items, total, p))
}

func (s *Server) createExam(w http.ResponseWriter, r *http.Request) {
	var in exam.ExamInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.respondError(w, r, err)
		return
	}
	e, err := s.Exams.Create(r.Context(), in, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.create", e.ID, map[string]string{"title": e.Title})
	respondJSON(w, http.StatusCreated, e)
}

// getExam hides drafts and blueprints from candidates.
func (s *Server) getExam(w http.ResponseWriter, r *http.Request) {
	e, err := s.Exams.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if !staff(r) {
		if e.Status != exam.StatusPublished {
			s.respondError(w, r, exam.ErrNotFound)
			return
		}
		e.Blueprint = nil
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) examDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.Exams.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, d)
}

func (s *Server) updateExam(w http.ResponseWriter, r *http.Request) {
	var p exam.Patch
	if err := decodeJSON(w, r, &p); err != nil {
		s.respondError(w, r, err)
		return
	}
	e, err := s.Exams.Update(r.Context(), chi.URLParam(r, "id"), p)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.update", e.ID, p)
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) deleteExam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Exams.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishExam(w http.ResponseWriter, r *http.Request) {
	e, err := s.Exams.Publish(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.publish", e.ID, nil)
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) closeExam(w http.ResponseWriter, r *http.Request) {
	e, err := s.Exams.Close(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.close", e.ID, nil)
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) releaseResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := s.Exams.ReleaseResults(r.Context(), id, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "exam.release", id, map[string]any{"notification": n.ID, "recipients": n.Recipients})
	respondJSON(w, http.StatusOK, n)
}

func (s *Server) autoFill(w http.ResponseWriter, r *http.Request) {
	var req exam.AutoFillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.Exams.AutoFill(r.Context(), id, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if res.Applied {
		s.record(r, "exam.autofill", id, map[string]any{
			"mode": res.Mode, "seed": res.Seed, "added": len(res.Added), "shortfall": res.Allocation.Shortfall,
		})
	}
	respondJSON(w, http.StatusOK, res)
}

// GET /exams/{id}/export?format=qti|json
func (s *Server) exportExam(w http.ResponseWriter, r *http.Request) {
	format := exam.ExportFormat(r.URL.Query().Get("format"))
	x, err := s.Exams.Export(r.Context(), chi.URLParam(r, "id"), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// ?store=1 archives the export in blob storage and returns its location.
	if r.URL.Query().Get("store") != "" {
		if s.Blobs == nil {
			s.respondError(w, r, errNoBlobs)
			return
		}
		key := path.Join("exports", chi.URLParam(r, "id"), x.Filename)
		stored, err := s.Blobs.Put(r.Context(), key, bytes.NewReader(x.Data), int64(len(x.Data)), x.ContentType)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		s.record(r, "exam.export", stored, map[string]any{"format": format, "size": len(x.Data)})
		respondJSON(w, http.StatusCreated, map[string]string{"key": stored, "url": s.mediaURL(stored)})
		return
	}
	w.Header().Set("Content-Type", x.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", x.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(x.Data)))
	_, _ = w.Write(x.Data)
}

func (s *Server) resultsCSV(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	if err := s.Exams.WriteResultsCSV(r.Context(), id, &buf); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+"-results.csv"))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) examStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.Stats.Exam(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	ov, err := s.Stats.Overview(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ov)
}
