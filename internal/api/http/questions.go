package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/bank"
)

// maxUpload bounds import files and media uploads.
const maxUpload = 64 << 20

func (s *Server) listQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := pageFrom(r)
	f := bank.Filter{
		Topic:      q.Get("topic"),
		Difficulty: bank.Difficulty(q.Get("difficulty")),
		Type:       bank.QuestionType(q.Get("type")),
		Tag:        q.Get("tag"),
		Q:          q.Get("q"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if ids := q.Get("ids"); ids != "" {
		f.IDs = strings.Split(ids, ",")
	}
	items, total, err := s.Questions.List(r.Context(), f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listOf(items, total, p))
}

func (s *Server) createQuestion(w http.ResponseWriter, r *http.Request) {
	var q bank.Question
	if err := decodeJSON(w, r, &q); err != nil {
		s.respondError(w, r, err)
		return
	}
	out, err := s.Questions.Create(r.Context(), q, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "question.create", out.ID, map[string]string{"topic": out.Topic})
	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) getQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := s.Questions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, q)
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var q bank.Question
	if err := decodeJSON(w, r, &q); err != nil {
		s.respondError(w, r, err)
		return
	}
	q.ID = chi.URLParam(r, "id")
	out, err := s.Questions.Update(r.Context(), q)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "question.update", out.ID, nil)
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Questions.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "question.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) questionTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.Questions.Topics(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if topics == nil {
		topics = []bank.TopicCount{}
	}
	respondJSON(w, http.StatusOK, topics)
}

// readUpload returns the multipart "file" part, or the raw body otherwise,
// with its content type.
func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return nil, "", "", fmt.Errorf("%w: file required", errBadRequest)
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return nil, "", "", err
		}
		return b, hdr.Header.Get("Content-Type"), hdr.Filename, nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", "", err
	}
	return b, ct, "", nil
}

// POST /questions/import  (JSON array or CSV; body or multipart file=)
func (s *Server) importQuestions(w http.ResponseWriter, r *http.Request) {
	data, ct, name, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.respondError(w, r, fmt.Errorf("%w: empty payload", errBadRequest))
		return
	}
	format := bank.DetectFormat(ct, data)
	if f := r.URL.Query().Get("format"); f != "" {
		format = bank.Format(f)
	} else if strings.HasSuffix(strings.ToLower(name), ".csv") {
		format = bank.FormatCSV
	}
	res, err := s.Questions.Import(r.Context(), format, data, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "question.import", string(format), res)
	respondJSON(w, http.StatusCreated, res)
}

// POST /questions/import/qti?topic=..&difficulty=..
func (s *Server) importQTI(w http.ResponseWriter, r *http.Request) {
	data, _, _, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	topic := q.Get("topic")
	if topic == "" {
		topic = r.FormValue("topic")
	}
	diff := q.Get("difficulty")
	if diff == "" {
		diff = r.FormValue("difficulty")
	}
	d := bank.Medium
	if diff != "" {
		if d, err = bank.ParseDifficulty(diff); err != nil {
			s.respondError(w, r, err)
			return
		}
	}
	batch := uuid.NewString()
	opts := bank.QTIOptions{
		Topic:      topic,
		Difficulty: d,
		MediaURL:   s.mediaURL,
	}
	if s.Blobs != nil {
		opts.StoreMedia = func(ctx context.Context, name string, b []byte) (string, error) {
			key := path.Join("qti", batch, name)
			return s.Blobs.Put(ctx, key, bytes.NewReader(b), int64(len(b)), mime.TypeByExtension(path.Ext(name)))
		}
	}
	res, err := s.Questions.ImportQTI(r.Context(), data, opts, actor(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "question.import_qti", batch, res)
	respondJSON(w, http.StatusCreated, res)
}

// mediaURL is the API route that serves a stored blob.
func (s *Server) mediaURL(key string) string {
	return strings.TrimSuffix(s.PublicURL, "/") + "/media/" + key
}
