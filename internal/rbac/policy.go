package rbac

import (
	"context"
	"strings"
)

// Policy answers permission questions for a fixed role table. Grants ending
// in "*" cover every permission sharing the prefix; a bare "*" covers all.
type Policy struct {
	exact    map[string]map[string]bool
	prefixes map[string][]string
}

// Compile indexes a role table. A nil table compiles the built-in one.
func Compile(table map[string][]string) *Policy {
	if table == nil {
		table = RolePermissions
	}
	p := &Policy{
		exact:    make(map[string]map[string]bool, len(table)),
		prefixes: make(map[string][]string, len(table)),
	}
	for role, grants := range table {
		set := make(map[string]bool, len(grants))
		for _, g := range grants {
			if prefix, ok := strings.CutSuffix(g, "*"); ok {
				p.prefixes[role] = append(p.prefixes[role], prefix)
				continue
			}
			set[g] = true
		}
		p.exact[role] = set
	}
	return p
}

// Allows reports whether role holds perm.
func (p *Policy) Allows(role, perm string) bool {
	if p.exact[role][perm] {
		return true
	}
	for _, prefix := range p.prefixes[role] {
		if strings.HasPrefix(perm, prefix) {
			return true
		}
	}
	return false
}

// AllowsAny reports whether role holds at least one of perms.
func (p *Policy) AllowsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Allows(role, perm) {
			return true
		}
	}
	return false
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

// RoleFromContext returns the role set by WithRole, or "".
func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}
