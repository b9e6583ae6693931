package users

import "context"

type Store interface {
	Create(ctx context.Context, u User) error
	Update(ctx context.Context, u User) error
	// Get finds a user by id or username.
	Get(ctx context.Context, idOrUsername string) (User, error)
	List(ctx context.Context, o ListOpts) ([]User, int, error)
	Active(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id string) error
	SetPassword(ctx context.Context, id, hash string) error
	TouchLogin(ctx context.Context, id string, at int64) error
	CountActiveAdmins(ctx context.Context) (int, error)
	CountByRole(ctx context.Context) (map[Role]int, error)
	// Apply creates and updates users atomically where the backend allows it.
	Apply(ctx context.Context, creates, updates []User) error
}
