package rbac

import (
	"net/http"
)

var builtin = Compile(nil)

// Can reports whether role holds perm under the built-in policy.
func Can(role, perm string) bool { return builtin.Allows(role, perm) }

// Require rejects requests whose role lacks perm.
func Require(perm string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return builtin.Allows(role, perm) })
}

// RequireAny rejects requests whose role holds none of perms.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return guard(func(role string) bool { return builtin.AllowsAny(role, perms...) })
}

func guard(allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if role := RoleFromContext(r.Context()); role != "" && allowed(role) {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"forbidden"}` + "\n"))
		})
	}
}
