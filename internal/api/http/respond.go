package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mind-engage/examdesk/internal/auth"
	"github.com/mind-engage/examdesk/internal/autofill"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/notify"
	"github.com/mind-engage/examdesk/internal/storage"
	"github.com/mind-engage/examdesk/internal/users"
)

// maxBody bounds JSON request bodies; uploads have their own limit.
const maxBody = 4 << 20

var errBadRequest = errors.New("bad request")

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %w", errBadRequest, err)
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		msgs := make([]string, 0, len(ves))
		for _, fe := range ves {
			msg := fe.Field() + " failed " + fe.Tag()
			if fe.Param() != "" {
				msg += "=" + fe.Param()
			}
			msgs = append(msgs, msg)
		}
		return fmt.Errorf("%w: %s", errBadRequest, strings.Join(msgs, "; "))
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		return nil
	}
	return err
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, bank.ErrInvalid),
		errors.Is(err, exam.ErrInvalid),
		errors.Is(err, users.ErrInvalid),
		errors.Is(err, notify.ErrInvalid),
		errors.Is(err, autofill.ErrInvalidBlueprint),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrBadCredentials),
		errors.Is(err, users.ErrInactive):
		return http.StatusUnauthorized
	case errors.Is(err, exam.ErrNotOwner),
		errors.Is(err, users.ErrForbidden),
		errors.Is(err, auth.ErrNotStaff):
		return http.StatusForbidden
	case errors.Is(err, bank.ErrNotFound),
		errors.Is(err, exam.ErrNotFound),
		errors.Is(err, exam.ErrAttemptNotFound),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bank.ErrExists),
		errors.Is(err, bank.ErrInUse),
		errors.Is(err, users.ErrExists),
		errors.Is(err, users.ErrLastAdmin),
		errors.Is(err, exam.ErrFrozen),
		errors.Is(err, exam.ErrHasAttempts),
		errors.Is(err, exam.ErrStatus),
		errors.Is(err, exam.ErrNotOpen),
		errors.Is(err, exam.ErrAttemptClosed):
		return http.StatusConflict
	case errors.Is(err, exam.ErrNotReady),
		errors.Is(err, exam.ErrShortfall),
		errors.Is(err, exam.ErrTimeUp),
		errors.Is(err, notify.ErrNoRecipients):
		return http.StatusUnprocessableEntity
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, errNoBlobs) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError maps domain errors to status codes. Import errors carry their
// per-row details; internal errors are logged and hidden.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		s.log.Error(r.Method+" "+r.URL.Path, err, nil)
		respondJSON(w, code, map[string]string{"error": "internal error"})
		return
	}
	var ie *bank.ImportError
	if errors.As(err, &ie) {
		respondJSON(w, code, map[string]any{"error": ie.Error(), "rows": ie.Rows})
		return
	}
	respondJSON(w, code, map[string]string{"error": err.Error()})
}

type page struct {
	Limit  int
	Offset int
}

func pageFrom(r *http.Request) page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	switch {
	case limit <= 0:
		limit = 50
	case limit > 500:
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return page{Limit: limit, Offset: offset}
}

type listResponse[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func listOf[T any](items []T, total int, p page) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items, Total: total, Limit: p.Limit, Offset: p.Offset}
}
