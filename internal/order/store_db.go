package order

import (
	"context"
	"database/sql"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 5 * time.Second
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Create(ctx context.Context, o Order) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders (id, user_id, total_cents, status, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, o.ID, o.UserID, o.TotalCents, o.Status, o.CreatedAt)
		if err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, it := range o.Items {
			if _, err := stmt.ExecContext(ctx, o.ID, i, it.ProductID, it.Qty, it.PriceCents); err != nil {
				return err
			}
		}

		return tx.Commit()
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Order, bool, error) {
	var o Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, user_id, total_cents, status, created_at
			FROM orders
			WHERE id = $1
		`, id).Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, err
	}

	if err := s.loadItems(ctx, &o); err != nil {
		return Order{}, false, err
	}
	return o, true, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.listWhere(ctx, `user_id = $1`, userID)
}

func (s *PostgresStore) ListByProducts(ctx context.Context, productIDs []string) ([]Order, error) {
	return s.listWhere(ctx, `
		id IN (SELECT order_id FROM order_items WHERE product_id = ANY($1))
	`, productIDs)
}

func (s *PostgresStore) listWhere(ctx context.Context, cond string, arg any) ([]Order, error) {
	var out []Order
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, user_id, total_cents, status, created_at
			FROM orders
			WHERE `+cond+`
			ORDER BY id ASC
		`, arg)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Order, 0, 8)
		for rows.Next() {
			var o Order
			if err := rows.Scan(&o.ID, &o.UserID, &o.TotalCents, &o.Status, &o.CreatedAt); err != nil {
				return err
			}
			out = append(out, o)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadItems(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) ScrubProducts(ctx context.Context, productIDs []string, sentinel string) (int, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE order_items
			SET product_id = $1
			WHERE product_id = ANY($2)
		`, sentinel, productIDs)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *PostgresStore) loadItems(ctx context.Context, o *Order) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT product_id, qty, price_cents
			FROM order_items
			WHERE order_id = $1
			ORDER BY position ASC
		`, o.ID)
		if err != nil {
			return err
		}
		defer rows.Close()

		items := make([]Item, 0, 8)
		for rows.Next() {
			var it Item
			if err := rows.Scan(&it.ProductID, &it.Qty, &it.PriceCents); err != nil {
				return err
			}
			items = append(items, it)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		o.Items = items
		return nil
	})
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
