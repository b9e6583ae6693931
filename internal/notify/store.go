package notify

import "context"

type Store interface {
	Create(ctx context.Context, n Notification) error
	// List returns notifications newest first and the total count.
	List(ctx context.Context, limit, offset int) ([]Notification, int, error)
}
