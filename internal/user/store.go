package user

import (
	"context"
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	Ping(ctx context.Context) error

	Create(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, bool, error)
	GetByEmail(ctx context.Context, email string) (User, bool, error)
	ListByIDs(ctx context.Context, ids []string) ([]User, error)

	AddLike(ctx context.Context, userID, productID string) error
	RemoveLike(ctx context.Context, userID, productID string) error

	// RemoveLikesForProducts prunes the given product ids from every user's
	// likes and reports how many references were removed. One statement on
	// the database-backed store.
	RemoveLikesForProducts(ctx context.Context, productIDs []string) (int, error)
}
