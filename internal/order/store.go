package order

import (
	"context"
	"time"
)

type Item struct {
	ProductID  string `json:"product_id"`
	Qty        int    `json:"qty"`
	PriceCents int64  `json:"price_cents"`
}

type Order struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Items      []Item    `json:"items"`
	TotalCents int64     `json:"total_cents"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store interface {
	Ping(ctx context.Context) error

	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, bool, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)

	// ListByProducts returns every order with a line item referencing any of
	// the given product ids.
	ListByProducts(ctx context.Context, productIDs []string) ([]Order, error)

	// ScrubProducts rewrites every line item referencing one of the given
	// product ids to the sentinel id and reports how many items changed.
	// One statement on the database-backed store.
	ScrubProducts(ctx context.Context, productIDs []string, sentinel string) (int, error)
}
