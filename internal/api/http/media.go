package http

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mind-engage/examdesk/internal/storage"
)

var errNoBlobs = errors.New("media storage is not configured")

const mediaLinkTTL = 15 * time.Minute

// POST /media  multipart file= and optional key=
func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if s.Blobs == nil {
		s.respondError(w, r, errNoBlobs)
		return
	}
	data, ct, name, err := readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if len(data) == 0 {
		s.respondError(w, r, errBadRequest)
		return
	}
	key := r.FormValue("key")
	if key == "" {
		if name == "" {
			name = "upload"
		}
		key = path.Join("media", uuid.NewString(), path.Base(name))
	}
	if key, err = storage.CleanKey(key); err != nil {
		s.respondError(w, r, err)
		return
	}
	if ct == "" || strings.HasPrefix(ct, "multipart/") {
		ct = mime.TypeByExtension(path.Ext(key))
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	stored, err := s.Blobs.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), ct)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "media.upload", stored, map[string]any{"size": len(data), "content_type": ct})
	respondJSON(w, http.StatusCreated, map[string]string{"key": stored, "url": s.mediaURL(stored)})
}

func (s *Server) getMedia(w http.ResponseWriter, r *http.Request) {
	if s.Blobs == nil {
		s.respondError(w, r, storage.ErrNotFound)
		return
	}
	key, err := storage.CleanKey(chi.URLParam(r, "*"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	// ?link=1 hands out a direct, expiring URL instead of proxying the bytes.
	if r.URL.Query().Get("link") != "" {
		url, err := s.Blobs.SignedURL(r.Context(), key, mediaLinkTTL)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"url": url, "expires_in": int(mediaLinkTTL.Seconds())})
		return
	}
	rc, err := s.Blobs.Get(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(key))
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if _, err := io.Copy(w, rc); err != nil {
		s.log.Warnf("media %s: %v", key, err)
	}
}

func (s *Server) deleteMedia(w http.ResponseWriter, r *http.Request) {
	if s.Blobs == nil {
		s.respondError(w, r, storage.ErrNotFound)
		return
	}
	key, err := storage.CleanKey(chi.URLParam(r, "*"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.Blobs.Delete(r.Context(), key); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.record(r, "media.delete", key, nil)
	w.WriteHeader(http.StatusNoContent)
}
