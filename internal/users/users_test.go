package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mind-engage/examdesk/internal/db"
)

type purgeFunc func(ctx context.Context, userID string) (int, error)

func (f purgeFunc) PurgeUser(ctx context.Context, userID string) (int, error) { return f(ctx, userID) }

func newTestService(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()
	sqlDB, err := db.Open(ctx, db.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	s := NewService(NewSQLStore(sqlDB), nil)
	s.cost = bcrypt.MinCost
	return s
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	u, err := s.Create(ctx, NewUser{Username: "alice", Email: "alice@example.com", Role: "staff", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, u.Role)
	assert.True(t, u.Active)
	assert.NotEmpty(t, u.ID)

	_, err = s.Create(ctx, NewUser{Username: "alice", Password: "something else"})
	assert.ErrorIs(t, err, ErrExists)

	_, err = s.Create(ctx, NewUser{Username: "bob", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalid)

	got, err := s.Authenticate(ctx, "alice", "correct horse")
	require.NoError(t, err)
	assert.NotZero(t, got.LastLoginAt)

	_, err = s.Authenticate(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = s.Authenticate(ctx, "nobody", "whatever")
	assert.ErrorIs(t, err, ErrBadCredentials)

	inactive := false
	_, err = s.Update(ctx, "alice", Patch{Active: &inactive})
	require.NoError(t, err)
	_, err = s.Authenticate(ctx, "alice", "correct horse")
	assert.ErrorIs(t, err, ErrInactive)
}

func TestLastAdminGuard(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)

	root, err := s.Create(ctx, NewUser{Username: "root", Role: "admin", Password: "adminpass"})
	require.NoError(t, err)

	staff := "staff"
	_, err = s.Update(ctx, root.ID, Patch{Role: &staff})
	assert.ErrorIs(t, err, ErrLastAdmin)
	off := false
	_, err = s.Update(ctx, root.ID, Patch{Active: &off})
	assert.ErrorIs(t, err, ErrLastAdmin)
	_, err = s.Delete(ctx, root.ID)
	assert.ErrorIs(t, err, ErrLastAdmin)

	_, err = s.Create(ctx, NewUser{Username: "second", Role: "admin", Password: "adminpass"})
	require.NoError(t, err)
	_, err = s.Update(ctx, root.ID, Patch{Role: &staff})
	assert.NoError(t, err)
}

func TestBulkUpsertKeepsAnAdmin(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	for _, name := range []string{"a1", "a2"} {
		_, err := s.Create(ctx, NewUser{Username: name, Role: "admin", Password: "adminpass"})
		require.NoError(t, err)
	}

	demoteBoth := []BulkRow{{Username: "a1", Role: "staff"}, {Username: "a2", Role: "staff"}}
	_, err := s.BulkUpsert(ctx, demoteBoth, RoleAdmin)
	require.ErrorIs(t, err, ErrLastAdmin)
	n, err := s.store.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	off := false
	_, err = s.BulkUpsert(ctx, []BulkRow{{Username: "a1", Active: &off}, {Username: "a2", Role: "student"}}, RoleAdmin)
	require.ErrorIs(t, err, ErrLastAdmin)

	// a replacement admin in the same batch makes the demotion safe
	res, err := s.BulkUpsert(ctx, append(demoteBoth, BulkRow{Username: "a3", Role: "admin", Password: "adminpass"}), RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Inserted: 1, Updated: 2}, res)
	n, err = s.store.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBulkUpsertByStaff(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.Create(ctx, NewUser{Username: "root", Role: "admin", Password: "adminpass"})
	require.NoError(t, err)
	_, err = s.Create(ctx, NewUser{Username: "tess", Role: "staff", Password: "staffpass"})
	require.NoError(t, err)

	for name, rows := range map[string][]BulkRow{
		"self promotion":   {{Username: "tess", Role: "admin"}},
		"new admin":        {{Username: "mal", Role: "admin", Password: "password1"}},
		"touch admin":      {{Username: "root", Email: "x@example.com"}},
		"reset a password": {{Username: "tess", Password: "newpass99"}},
	} {
		_, err := s.BulkUpsert(ctx, rows, RoleStaff)
		assert.ErrorIs(t, err, ErrForbidden, name)
	}

	_, err = s.Authenticate(ctx, "tess", "staffpass")
	assert.NoError(t, err)
	tess, err := s.Get(ctx, "tess")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, tess.Role)

	res, err := s.BulkUpsert(ctx, []BulkRow{
		{Username: "tess", DisplayName: "Tess"},
		{Username: "uma", Password: "password1"},
	}, RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Inserted: 1, Updated: 1}, res)
	tess, err = s.Get(ctx, "tess")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, tess.Role, "blank role keeps the current one")
}

func TestDeletePurgesAttempts(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	var purged string
	s.SetPurger(purgeFunc(func(_ context.Context, id string) (int, error) {
		purged = id
		return 3, nil
	}))

	u, err := s.Create(ctx, NewUser{Username: "carol", Password: "password1"})
	require.NoError(t, err)
	n, err := s.Delete(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, u.ID, purged)

	_, err = s.Get(ctx, u.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPasswords(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	u, err := s.Create(ctx, NewUser{Username: "dave", Password: "first-pass"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.ChangePassword(ctx, u.ID, "nope", "second-pass"), ErrBadCredentials)
	require.NoError(t, s.ChangePassword(ctx, u.ID, "first-pass", "second-pass"))
	_, err = s.Authenticate(ctx, "dave", "second-pass")
	require.NoError(t, err)

	require.NoError(t, s.ResetPassword(ctx, "dave", "third-pass"))
	_, err = s.Authenticate(ctx, "dave", "third-pass")
	require.NoError(t, err)
	assert.ErrorIs(t, s.ResetPassword(ctx, "dave", "x"), ErrInvalid)
}

func TestBulkUpsert(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	_, err := s.Create(ctx, NewUser{Username: "erin", Password: "password1"})
	require.NoError(t, err)

	rows, err := ParseBulk([]byte("username,email,role,password\n" +
		"erin,erin@example.com,teacher,\n" +
		"frank,frank@example.com,student,password2\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	res, err := s.BulkUpsert(ctx, rows, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, BulkResult{Inserted: 1, Updated: 1}, res)

	erin, err := s.Get(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, erin.Role)
	assert.Equal(t, "erin@example.com", erin.Email)
	_, err = s.Authenticate(ctx, "erin", "password1")
	assert.NoError(t, err, "password untouched when the row leaves it blank")

	_, err = s.Authenticate(ctx, "frank", "password2")
	assert.NoError(t, err)
}

func TestParseBulkByteOrderMark(t *testing.T) {
	rows, err := ParseBulk([]byte("\ufeffusername,role\nzoe,staff\n"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "zoe", rows[0].Username)
	assert.Equal(t, "staff", rows[0].Role)
}

func TestBulkUpsertAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	rows, err := ParseBulk([]byte(`[
		{"username":"gina","password":"password1"},
		{"username":"hank"},
		{"username":"ivy","role":"wizard","password":"password1"}
	]`))
	require.NoError(t, err)

	_, err = s.BulkUpsert(ctx, rows, RoleAdmin)
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "row 3")

	_, total, err := s.List(ctx, ListOpts{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestListAndCounts(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t)
	for _, n := range []struct{ name, role string }{{"kim", "admin"}, {"lee", "staff"}, {"max", "student"}, {"ned", "student"}} {
		_, err := s.Create(ctx, NewUser{Username: n.name, Role: n.role, Password: "password1"})
		require.NoError(t, err)
	}
	list, total, err := s.List(ctx, ListOpts{Role: RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "max", list[0].Username)

	list, _, err = s.List(ctx, ListOpts{Q: "le"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "lee", list[0].Username)

	counts, err := s.CountByRole(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Role]int{RoleAdmin: 1, RoleStaff: 1, RoleStudent: 2}, counts)

	active, err := s.ActiveUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 4)
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Teacher")
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, r)
	r, err = ParseRole("")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, r)
	_, err = ParseRole("root")
	assert.ErrorIs(t, err, ErrInvalid)
}
