// Package audit keeps an append-only log of administrative changes.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

type Event struct {
	Seq       int64           `json:"offset"`
	Actor     string          `json:"actor"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt int64           `json:"created_at"`
}

// Log appends events and searches them newest first.
type Log interface {
	Append(ctx context.Context, e Event) (Event, error)
	Search(ctx context.Context, q string, limit int) ([]Event, error)
}

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

func clampLimit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}

// Record marshals data and appends an event stamped with the current time.
func Record(ctx context.Context, l Log, actor, typ, key string, data any) error {
	if l == nil {
		return nil
	}
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return err
		}
		raw = b
	}
	_, err := l.Append(ctx, Event{
		Actor:     actor,
		Type:      typ,
		Key:       key,
		Data:      raw,
		CreatedAt: time.Now().Unix(),
	})
	return err
}
