package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleAdmin, "audit:view", true},
		{RoleAdmin, "users:pii", true},
		{RoleStaff, "question:import", true},
		{RoleStaff, "exam:autofill", true},
		{RoleStaff, "notify:send", true},
		{RoleStaff, "users:manage", false},
		{RoleStaff, "audit:view", false},
		{RoleStaff, "attempt:create", false},
		{RoleStudent, "exam:view", true},
		{RoleStudent, "attempt:submit", true},
		{RoleStudent, "media:view", true},
		{RoleStudent, "media:upload", false},
		{RoleStudent, "question:view", false},
		{"teacher", "exam:view", false},
		{"", "exam:view", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Can(c.role, c.perm), "%s %s", c.role, c.perm)
	}
}

func TestCompiledWildcards(t *testing.T) {
	p := Compile(map[string][]string{
		"root":   {"*"},
		"editor": {"exam:*", "media:view"},
	})
	assert.True(t, p.Allows("root", "anything"))
	assert.True(t, p.Allows("editor", "exam:publish"))
	assert.False(t, p.Allows("editor", "exams:publish"))
	assert.True(t, p.Allows("editor", "media:view"))
	assert.False(t, p.Allows("editor", "media:upload"))
	assert.False(t, p.Allows("nobody", "media:view"))
	assert.True(t, p.AllowsAny("editor", "media:upload", "exam:edit"))
}

func TestRequire(t *testing.T) {
	h := Require("stats:view")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), RoleStudent)))
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithRole(req.Context(), RoleStaff)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
