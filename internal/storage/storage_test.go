package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	for in, want := range map[string]string{
		"media/a.png":   "media/a.png",
		"/media//b.png": "media/b.png",
		`media\c.png`:   "media/c.png",
		"media/./d.png": "media/d.png",
	} {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "  ", "../etc/passwd", "media/../../x", "/", "."} {
		_, err := CleanKey(bad)
		assert.ErrorIs(t, err, ErrInvalidKey, bad)
	}
}

func TestFSStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(t.TempDir(), "http://localhost:8080/media/")
	require.NoError(t, err)

	key, err := s.Put(ctx, "/qti/items/sky.png", strings.NewReader("png-bytes"), -1, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "qti/items/sky.png", key)

	rc, err := s.Get(ctx, key)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(b))

	url, err := s.SignedURL(ctx, key, 0)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/media/qti/items/sky.png", url)

	_, err = s.Put(ctx, "../escape.txt", strings.NewReader("x"), 1, "")
	assert.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, key), ErrNotFound)
}
