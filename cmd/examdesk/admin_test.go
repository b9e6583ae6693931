package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examdesk/internal/users"
)

func TestReadLine(t *testing.T) {
	pw, err := readLine(strings.NewReader("s3cretpass\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cretpass", pw)

	_, err = readLine(strings.NewReader("\n"))
	assert.ErrorIs(t, err, errEmptyPassword)
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestAddUserAndResetPassword(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_DSN", "file:"+filepath.Join(dir, "examdesk.db"))
	t.Setenv("BLOB_BASE_PATH", filepath.Join(dir, "blobs"))
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("NOTIFY_CHANNELS", "log")

	run(t, "", "migrate")
	out := run(t, "firstpass1\n", "adduser", "alice", "--role", "admin", "--email", "alice@example.com")
	assert.Contains(t, out, "created alice (admin)")
	run(t, "secondpass2\n", "resetpassword", "alice")

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	a, err := newApp(context.Background(), cfg, false)
	require.NoError(t, err)
	defer a.close()

	_, err = a.users.Authenticate(context.Background(), "alice", "firstpass1")
	assert.ErrorIs(t, err, users.ErrBadCredentials)
	u, err := a.users.Authenticate(context.Background(), "alice", "secondpass2")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, u.Role)
	assert.Equal(t, "alice@example.com", u.Email)
}
