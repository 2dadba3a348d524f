package user

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

func (s *PostgresStore) Create(ctx context.Context, u User) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO users (id, email, name, created_at)
			VALUES ($1, $2, $3, $4)
		`, u.ID, u.Email, u.Name, u.CreatedAt)
		return err
	})
}

func (s *PostgresStore) Get(ctx context.Context, id string) (User, bool, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (User, bool, error) {
	return s.getWhere(ctx, `email = $1`, email)
}

func (s *PostgresStore) getWhere(ctx context.Context, cond string, arg any) (User, bool, error) {
	var u User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, email, name, created_at FROM users WHERE `+cond,
			arg).Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt)
	})
	if err == sql.ErrNoRows {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}
	if err := s.loadLikes(ctx, &u); err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

func (s *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]User, error) {
	var out []User
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, email, name, created_at
			FROM users
			WHERE id = ANY($1)
			ORDER BY id ASC
		`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]User, 0, len(ids))
		for rows.Next() {
			var u User
			if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadLikes(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) AddLike(ctx context.Context, userID, productID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO product_likes (product_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, productID, userID)
		return err
	})
}

func (s *PostgresStore) RemoveLike(ctx context.Context, userID, productID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM product_likes WHERE product_id = $1 AND user_id = $2
		`, productID, userID)
		return err
	})
}

func (s *PostgresStore) RemoveLikesForProducts(ctx context.Context, productIDs []string) (int, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM product_likes WHERE product_id = ANY($1)
		`, productIDs)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *PostgresStore) loadLikes(ctx context.Context, u *User) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT product_id
			FROM product_likes
			WHERE user_id = $1
			ORDER BY product_id ASC
		`, u.ID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var pid string
			if err := rows.Scan(&pid); err != nil {
				return err
			}
			u.Likes = append(u.Likes, pid)
		}
		return rows.Err()
	})
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
