package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/examdesk/internal/rbac"
	"github.com/mind-engage/examdesk/internal/users"
)

// Directory resolves token subjects to stored accounts.
type Directory interface {
	Get(ctx context.Context, idOrUsername string) (users.User, error)
}

// AttachRoleFromStore replaces the claimed role with the stored one, so role
// changes and deactivation apply to tokens already issued.
func AttachRoleFromStore(dir Directory) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			u, err := dir.Get(ctx, SubjectFromContext(ctx))
			switch {
			case errors.Is(err, users.ErrNotFound):
				unauthorized(w, "unknown account")
				return
			case err != nil:
				http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
				return
			case !u.Active:
				unauthorized(w, users.ErrInactive.Error())
				return
			}
			ctx = WithSubject(ctx, u.ID)
			ctx = WithUser(ctx, u)
			ctx = rbac.WithRole(ctx, string(u.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
