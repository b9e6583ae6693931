package bank

import (
	"context"
	"errors"
)

var ErrExists = errors.New("question already exists")

// Store persists bank questions. Implementations return ErrNotFound for
// unknown ids and ErrExists when Create hits an existing id.
type Store interface {
	Create(ctx context.Context, qs ...Question) error
	Update(ctx context.Context, q Question) error
	Get(ctx context.Context, id string) (Question, error)
	GetMany(ctx context.Context, ids []string) (map[string]Question, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Question, int, error)
	Topics(ctx context.Context) ([]TopicCount, error)
	// Pool returns ids grouped by topic key and difficulty; nil topicKeys means all.
	Pool(ctx context.Context, topicKeys []string) (Pool, error)
}
