// Package storage holds question media and generated export archives.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

type BlobStore interface {
	// Put stores r under key and returns the canonical key. size may be -1.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// SignedURL returns a URL a browser can fetch the object from.
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// CleanKey normalises a slash separated key and rejects keys that would
// escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return "", ErrInvalidKey
		}
	}
	key = path.Clean(key)
	if key == "." {
		return "", ErrInvalidKey
	}
	return key, nil
}
