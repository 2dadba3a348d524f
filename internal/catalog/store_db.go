package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 5 * time.Second

	pgUniqueCode = "23505"
)

const productColumns = `
	id, legacy_id, name, url, description, vendor, category,
	price_cents, price_to_show_cents, quantity, available, fetched,
	images, params, added_to_cart, created_at
`

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

func (s *PostgresStore) Create(ctx context.Context, p Product) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.insert(ctx, s.db.ExecContext, p)
	})
}

func (s *PostgresStore) CreateMany(ctx context.Context, ps []Product) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		for _, p := range ps {
			if err := s.insert(ctx, tx.ExecContext, p); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
}

type execFunc func(ctx context.Context, query string, args ...any) (sql.Result, error)

func (s *PostgresStore) insert(ctx context.Context, exec execFunc, p Product) error {
	images, params, cart, err := marshalJSONFields(p)
	if err != nil {
		return err
	}
	_, err = exec(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, p.ID, p.LegacyID, p.Name, p.URL, p.Description, p.Vendor, NormalizeCategory(p.Category),
		p.PriceCents, p.PriceToShowCents, p.Quantity, p.Available, p.Fetched,
		images, params, cart, p.CreatedAt)
	return err
}

func (s *PostgresStore) Update(ctx context.Context, p Product) error {
	images, params, cart, err := marshalJSONFields(p)
	if err != nil {
		return err
	}
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE products SET
				legacy_id = $2, name = $3, url = $4, description = $5, vendor = $6,
				category = $7, price_cents = $8, price_to_show_cents = $9,
				quantity = $10, available = $11, fetched = $12,
				images = $13, params = $14, added_to_cart = $15
			WHERE id = $1
		`, p.ID, p.LegacyID, p.Name, p.URL, p.Description, p.Vendor,
			NormalizeCategory(p.Category), p.PriceCents, p.PriceToShowCents,
			p.Quantity, p.Available, p.Fetched, images, params, cart)
		return err
	})
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		return err
	})
}

func (s *PostgresStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ANY($1)`, ids)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *PostgresStore) DeleteFetched(ctx context.Context) (int, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE fetched`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Product, bool, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

func (s *PostgresStore) GetByLegacyID(ctx context.Context, legacyID string) (Product, bool, error) {
	return s.getWhere(ctx, `legacy_id = $1`, legacyID)
}

func (s *PostgresStore) getWhere(ctx context.Context, cond string, arg any) (Product, bool, error) {
	var p Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE `+cond, arg)
		var scanErr error
		p, scanErr = scanProduct(row)
		return scanErr
	})
	if err == sql.ErrNoRows {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	if err := s.attachLikes(ctx, []*Product{&p}); err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Product, error) {
	return s.listWhere(ctx, `id <> $1`, DeletedProductID)
}

func (s *PostgresStore) ListAvailable(ctx context.Context) ([]Product, error) {
	return s.listWhere(ctx, `id <> $1 AND available AND quantity > 0`, DeletedProductID)
}

func (s *PostgresStore) ListLatest(ctx context.Context, n int) ([]Product, error) {
	return s.listQuery(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id <> $1 AND available
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, DeletedProductID, n)
}

func (s *PostgresStore) ListByCategory(ctx context.Context, name string) ([]Product, error) {
	return s.listWhere(ctx, `category = $1`, name)
}

func (s *PostgresStore) ListByIDs(ctx context.Context, ids []string) ([]Product, error) {
	return s.listWhere(ctx, `id = ANY($1)`, ids)
}

func (s *PostgresStore) ListLikedBy(ctx context.Context, userID string) ([]Product, error) {
	return s.listQuery(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE available AND id IN (SELECT product_id FROM product_likes WHERE user_id = $1)
		ORDER BY id ASC
	`, userID)
}

func (s *PostgresStore) listWhere(ctx context.Context, cond string, args ...any) ([]Product, error) {
	return s.listQuery(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE `+cond+`
		ORDER BY id ASC
	`, args...)
}

func (s *PostgresStore) listQuery(ctx context.Context, query string, args ...any) ([]Product, error) {
	var out []Product
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			p, err := scanProduct(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	refs := make([]*Product, len(out))
	for i := range out {
		refs[i] = &out[i]
	}
	if err := s.attachLikes(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) SetCategoryByName(ctx context.Context, old, new string) (int, error) {
	return s.retarget(ctx, `UPDATE products SET category = $1 WHERE category = $2`, new, old)
}

func (s *PostgresStore) SetCategoryByIDs(ctx context.Context, ids []string, name string) (int, error) {
	return s.retarget(ctx, `UPDATE products SET category = $1 WHERE id = ANY($2)`, name, ids)
}

func (s *PostgresStore) ApplyCategoryDiscount(ctx context.Context, name string, pct float64) (int, error) {
	return s.retarget(ctx, `
		UPDATE products
		SET price_cents = round(price_to_show_cents * (100 - $2) / 100.0)::bigint
		WHERE category = $1
	`, name, pct)
}

func (s *PostgresStore) retarget(ctx context.Context, query string, args ...any) (int, error) {
	var n int64
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return int(n), err
}

func (s *PostgresStore) AddLike(ctx context.Context, productID, userID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO product_likes (product_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, productID, userID)
		return err
	})
}

func (s *PostgresStore) RemoveLike(ctx context.Context, productID, userID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM product_likes WHERE product_id = $1 AND user_id = $2
		`, productID, userID)
		return err
	})
}

func (s *PostgresStore) RecordCartAdd(ctx context.Context, productID string, at time.Time) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE products
			SET added_to_cart = added_to_cart || to_jsonb($2::timestamptz)
			WHERE id = $1
		`, productID, at)
		return err
	})
}

func (s *PostgresStore) RegisterCategory(ctx context.Context, c Category) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO categories (id, name, discount_pct)
			VALUES ($1, $2, $3)
		`, c.ID, c.Name, c.DiscountPct)
		if isUniqueViolation(err) {
			return ErrCategoryExists
		}
		return err
	})
}

func (s *PostgresStore) GetCategoryByName(ctx context.Context, name string) (Category, bool, error) {
	var c Category
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT id, name, discount_pct FROM categories WHERE name = $1
		`, name).Scan(&c.ID, &c.Name, &c.DiscountPct)
	})
	if err == sql.ErrNoRows {
		return Category{}, false, nil
	}
	if err != nil {
		return Category{}, false, err
	}
	return c, true, nil
}

func (s *PostgresStore) ListRegisteredCategories(ctx context.Context) ([]Category, error) {
	var out []Category
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, discount_pct FROM categories ORDER BY name ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Category, 0, 8)
		for rows.Next() {
			var c Category
			if err := rows.Scan(&c.ID, &c.Name, &c.DiscountPct); err != nil {
				return err
			}
			out = append(out, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) RenameRegisteredCategory(ctx context.Context, old, new string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE categories SET name = $1 WHERE name = $2`, new, old)
		return err
	})
}

func (s *PostgresStore) SetCategoryDiscount(ctx context.Context, name string, pct float64) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `UPDATE categories SET discount_pct = $1 WHERE name = $2`, pct, name)
		return err
	})
}

func (s *PostgresStore) DropRegisteredCategory(ctx context.Context, name string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE name = $1`, name)
		return err
	})
}

func (s *PostgresStore) attachLikes(ctx context.Context, ps []*Product) error {
	if len(ps) == 0 {
		return nil
	}

	ids := make([]string, len(ps))
	byID := make(map[string]*Product, len(ps))
	for i, p := range ps {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT product_id, user_id
			FROM product_likes
			WHERE product_id = ANY($1)
			ORDER BY user_id ASC
		`, ids)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var productID, userID string
			if err := rows.Scan(&productID, &userID); err != nil {
				return err
			}
			if p, ok := byID[productID]; ok {
				p.LikedBy = append(p.LikedBy, userID)
			}
		}
		return rows.Err()
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p      Product
		images []byte
		params []byte
		cart   []byte
	)
	err := row.Scan(
		&p.ID, &p.LegacyID, &p.Name, &p.URL, &p.Description, &p.Vendor, &p.Category,
		&p.PriceCents, &p.PriceToShowCents, &p.Quantity, &p.Available, &p.Fetched,
		&images, &params, &cart, &p.CreatedAt,
	)
	if err != nil {
		return Product{}, err
	}
	if err := unmarshalJSONFields(&p, images, params, cart); err != nil {
		return Product{}, err
	}
	return p, nil
}

func marshalJSONFields(p Product) (images, params, cart []byte, err error) {
	if images, err = json.Marshal(emptyIfNil(p.Images)); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal images")
	}
	if params, err = json.Marshal(emptyParams(p.Params)); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal params")
	}
	if cart, err = json.Marshal(emptyTimes(p.AddedToCart)); err != nil {
		return nil, nil, nil, errors.Wrap(err, "marshal added_to_cart")
	}
	return images, params, cart, nil
}

func unmarshalJSONFields(p *Product, images, params, cart []byte) error {
	if err := json.Unmarshal(images, &p.Images); err != nil {
		return errors.Wrap(err, "unmarshal images")
	}
	if err := json.Unmarshal(params, &p.Params); err != nil {
		return errors.Wrap(err, "unmarshal params")
	}
	if err := json.Unmarshal(cart, &p.AddedToCart); err != nil {
		return errors.Wrap(err, "unmarshal added_to_cart")
	}
	return nil
}

func emptyIfNil(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func emptyParams(ps []Param) []Param {
	if ps == nil {
		return []Param{}
	}
	return ps
}

func emptyTimes(ts []time.Time) []time.Time {
	if ts == nil {
		return []time.Time{}
	}
	return ts
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
