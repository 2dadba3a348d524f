package catalog

import (
	"context"
	"time"
)

const (
	// NoCategory is the single sentinel for products without a category.
	// Every creation path that receives an empty category gets this value.
	NoCategory = "No-category"

	// DeletedProductID is the reserved id substituted into order line items
	// when a product is removed, so historical orders stay renderable.
	DeletedProductID = "p_deleted"
)

type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Product struct {
	ID               string      `json:"id"`
	LegacyID         string      `json:"legacy_id"`
	Name             string      `json:"name"`
	URL              string      `json:"url"`
	Images           []string    `json:"images"`
	Description      string      `json:"description"`
	Vendor           string      `json:"vendor"`
	Category         string      `json:"category"`
	PriceCents       int64       `json:"price_cents"`
	PriceToShowCents int64       `json:"price_to_show_cents"`
	Quantity         int         `json:"quantity"`
	Available        bool        `json:"available"`
	Fetched          bool        `json:"fetched"`
	Params           []Param     `json:"params"`
	LikedBy          []string    `json:"liked_by"`
	AddedToCart      []time.Time `json:"added_to_cart,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Category is the auxiliary registry entry. The live category view is the
// derived index over Product.Category values; the registry only exists so the
// admin create-flow can reserve a name before any product uses it, and so
// discounts have somewhere to live.
type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	DiscountPct float64 `json:"discount_pct"`
}

type Products interface {
	Create(ctx context.Context, p Product) error
	CreateMany(ctx context.Context, ps []Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id string) error
	DeleteByIDs(ctx context.Context, ids []string) (int, error)
	DeleteFetched(ctx context.Context) (int, error)

	Get(ctx context.Context, id string) (Product, bool, error)
	GetByLegacyID(ctx context.Context, legacyID string) (Product, bool, error)
	List(ctx context.Context) ([]Product, error)
	ListAvailable(ctx context.Context) ([]Product, error)
	ListLatest(ctx context.Context, n int) ([]Product, error)
	ListByCategory(ctx context.Context, name string) ([]Product, error)
	ListByIDs(ctx context.Context, ids []string) ([]Product, error)
	ListLikedBy(ctx context.Context, userID string) ([]Product, error)

	// SetCategoryByName retargets every product in old to new and reports
	// how many changed. A single statement on the database-backed store.
	SetCategoryByName(ctx context.Context, old, new string) (int, error)
	SetCategoryByIDs(ctx context.Context, ids []string, name string) (int, error)

	// ApplyCategoryDiscount recomputes each member's charged price from its
	// display price in one pass and reports how many changed.
	ApplyCategoryDiscount(ctx context.Context, name string, pct float64) (int, error)

	AddLike(ctx context.Context, productID, userID string) error
	RemoveLike(ctx context.Context, productID, userID string) error
	RecordCartAdd(ctx context.Context, productID string, at time.Time) error
}

type Categories interface {
	RegisterCategory(ctx context.Context, c Category) error
	GetCategoryByName(ctx context.Context, name string) (Category, bool, error)
	ListRegisteredCategories(ctx context.Context) ([]Category, error)
	RenameRegisteredCategory(ctx context.Context, old, new string) error
	SetCategoryDiscount(ctx context.Context, name string, pct float64) error
	DropRegisteredCategory(ctx context.Context, name string) error
}

type Store interface {
	Ping(ctx context.Context) error
	Products
	Categories
}

// NormalizeCategory maps the empty category to the sentinel.
func NormalizeCategory(name string) string {
	if name == "" {
		return NoCategory
	}
	return name
}
