// Package maintainer keeps product category strings, order line-item
// references and like back-references consistent across the catalog, order
// and user stores. Every structural category operation is a fan-out over
// denormalized state; the maintainer batches the fan-out per store and
// publishes domain events for cache invalidation instead of touching caches
// itself.
package maintainer

import (
	"context"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"FurniStore/internal/catalog"
	"FurniStore/internal/order"
	"FurniStore/internal/user"
)

var ErrNoProductsMatched = errors.New("no products matched for deletion")

type Maintainer struct {
	products catalog.Store
	orders   order.Store
	users    user.Store
	bus      *Bus
	log      *zap.Logger
}

func New(products catalog.Store, orders order.Store, users user.Store, bus *Bus, log *zap.Logger) *Maintainer {
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = NewBus()
	}
	return &Maintainer{
		products: products,
		orders:   orders,
		users:    users,
		bus:      bus,
		log:      log,
	}
}

func (m *Maintainer) Bus() *Bus { return m.bus }

// ProductRef identifies a product either by its opaque id or by the
// human-facing legacy id used in storefront URLs. Exactly one field is set.
type ProductRef struct {
	ID       string
	LegacyID string
}

type deleteConfig struct {
	keepCatalogCache bool
}

type DeleteOption func(*deleteConfig)

// KeepCatalogCache suppresses the catalog-wide invalidation for this call.
// Callers about to perform many deletions set it and refresh once at the end.
func KeepCatalogCache() DeleteOption {
	return func(c *deleteConfig) { c.keepCatalogCache = true }
}

// DeleteProduct removes a single product and fans out: likes are pruned from
// both sides, order line items are rewritten to the deleted-product sentinel,
// then the record is removed. Deleting a product that does not exist is a
// no-op, not an error.
func (m *Maintainer) DeleteProduct(ctx context.Context, ref ProductRef, opts ...DeleteOption) error {
	p, ok, err := m.resolve(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "delete product")
	}
	if !ok {
		return nil
	}
	if err := m.deleteResolved(ctx, []catalog.Product{p}, applyOpts(opts)); err != nil {
		return errors.Wrapf(err, "delete product %s", p.ID)
	}
	return nil
}

// DeleteProducts is the bulk variant. Unlike the single-product path it fails
// the whole call when the id set matches nothing.
func (m *Maintainer) DeleteProducts(ctx context.Context, ids []string, opts ...DeleteOption) error {
	products, err := m.products.ListByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "delete products")
	}
	if len(products) == 0 {
		return errors.Wrap(ErrNoProductsMatched, "delete products")
	}
	if err := m.deleteResolved(ctx, products, applyOpts(opts)); err != nil {
		return errors.Wrap(err, "delete products")
	}
	return nil
}

// deleteResolved applies the deletion fan-out in one pass per store. The
// order matters: like references go first, then order lines are scrubbed to
// the sentinel, then the product records. A failure mid-sequence leaves the
// products in place with some references already cleaned, never a dangling
// reference to a removed product.
func (m *Maintainer) deleteResolved(ctx context.Context, products []catalog.Product, cfg deleteConfig) error {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}

	prunedLikes, err := m.users.RemoveLikesForProducts(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "prune likes")
	}

	scrubbed, err := m.orders.ScrubProducts(ctx, ids, catalog.DeletedProductID)
	if err != nil {
		return errors.Wrap(err, "scrub order items")
	}

	deleted, err := m.products.DeleteByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "delete records")
	}

	m.log.Info("products deleted",
		zap.Int("deleted", deleted),
		zap.Int("likes_pruned", prunedLikes),
		zap.Int("order_items_scrubbed", scrubbed),
	)

	m.bus.Publish(ProductsDeleted{IDs: ids, KeepCatalogCache: cfg.keepCatalogCache})
	return nil
}

// RenameCategory retargets every product in old to new. A no-op when no
// products and no registry entry match.
func (m *Maintainer) RenameCategory(ctx context.Context, old, new string) error {
	n, err := m.products.SetCategoryByName(ctx, old, new)
	if err != nil {
		return errors.Wrapf(err, "rename category %q", old)
	}
	if err := m.products.RenameRegisteredCategory(ctx, old, new); err != nil {
		return errors.Wrapf(err, "rename category %q", old)
	}

	m.log.Info("category renamed", zap.String("old", old), zap.String("new", new), zap.Int("products", n))
	m.bus.Publish(CategoryChanged{Name: new})
	return nil
}

// MoveProductsToCategory moves exactly the listed products (not everything in
// the source category) to dest, registering dest first when it is new.
func (m *Maintainer) MoveProductsToCategory(ctx context.Context, source, dest string, productIDs []string) error {
	dest = catalog.NormalizeCategory(dest)

	if err := m.ensureRegistered(ctx, dest); err != nil {
		return errors.Wrapf(err, "move products to %q", dest)
	}

	n, err := m.products.SetCategoryByIDs(ctx, productIDs, dest)
	if err != nil {
		return errors.Wrapf(err, "move products to %q", dest)
	}

	m.log.Info("products moved",
		zap.String("source", source), zap.String("dest", dest), zap.Int("moved", n))
	m.bus.Publish(CategoryChanged{Name: dest})
	return nil
}

// ChangeProductsCategory sets the category of an explicit id list.
func (m *Maintainer) ChangeProductsCategory(ctx context.Context, productIDs []string, name string) error {
	name = catalog.NormalizeCategory(name)
	n, err := m.products.SetCategoryByIDs(ctx, productIDs, name)
	if err != nil {
		return errors.Wrapf(err, "change products category to %q", name)
	}

	m.log.Info("products recategorized", zap.String("category", name), zap.Int("changed", n))
	m.bus.Publish(CategoryChanged{Name: name})
	return nil
}

// DeleteCategoryOpts selects what happens to member products: removal through
// the product deletion fan-out, or reassignment to MoveProductsTo (empty
// reassignment target falls back to the no-category sentinel).
type DeleteCategoryOpts struct {
	RemoveProducts bool
	MoveProductsTo string
}

func (m *Maintainer) DeleteCategory(ctx context.Context, name string, opts DeleteCategoryOpts) error {
	if opts.RemoveProducts {
		members, err := m.products.ListByCategory(ctx, name)
		if err != nil {
			return errors.Wrapf(err, "delete category %q", name)
		}
		if len(members) > 0 {
			if err := m.deleteResolved(ctx, members, deleteConfig{keepCatalogCache: true}); err != nil {
				return errors.Wrapf(err, "delete category %q", name)
			}
		}
	} else {
		fallback := catalog.NormalizeCategory(opts.MoveProductsTo)
		if _, err := m.products.SetCategoryByName(ctx, name, fallback); err != nil {
			return errors.Wrapf(err, "delete category %q", name)
		}
	}

	if err := m.products.DropRegisteredCategory(ctx, name); err != nil {
		return errors.Wrapf(err, "delete category %q", name)
	}

	m.log.Info("category deleted", zap.String("category", name), zap.Bool("removed_products", opts.RemoveProducts))
	m.bus.Publish(CategoryChanged{Name: name})
	return nil
}

// SetCategoryDiscount recomputes every member's charged price from its
// display price in one store pass and records the percentage in the registry.
// The percentage is clamped to [0, 100].
func (m *Maintainer) SetCategoryDiscount(ctx context.Context, name string, percentage float64) error {
	percentage = clampPct(percentage)

	n, err := m.products.ApplyCategoryDiscount(ctx, name, percentage)
	if err != nil {
		return errors.Wrapf(err, "set discount on %q", name)
	}

	if err := m.products.SetCategoryDiscount(ctx, name, percentage); err != nil {
		return errors.Wrapf(err, "set discount on %q", name)
	}

	m.log.Info("category discount set",
		zap.String("category", name), zap.Float64("pct", percentage), zap.Int("products", n))
	m.bus.Publish(CategoryChanged{Name: name})
	return nil
}

// ToggleLike flips the symmetric like back-reference between a product and
// the user identified by email. Toggling twice restores the original state.
// An empty email is a no-op.
func (m *Maintainer) ToggleLike(ctx context.Context, legacyProductID, email, path string) (bool, error) {
	if email == "" {
		return false, nil
	}

	p, ok, err := m.products.GetByLegacyID(ctx, legacyProductID)
	if err != nil {
		return false, errors.Wrapf(err, "toggle like on %s", legacyProductID)
	}
	if !ok {
		return false, errors.Errorf("toggle like on %s: product not found", legacyProductID)
	}

	u, ok, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		return false, errors.Wrapf(err, "toggle like on %s", legacyProductID)
	}
	if !ok {
		return false, errors.Errorf("toggle like on %s: user not found", legacyProductID)
	}

	// The product side goes first; if it fails the user side is untouched,
	// so the pair never ends up one-sided.
	liked := slices.Contains(p.LikedBy, u.ID)
	if liked {
		err = m.products.RemoveLike(ctx, p.ID, u.ID)
		if err == nil {
			err = m.users.RemoveLike(ctx, u.ID, p.ID)
		}
	} else {
		err = m.products.AddLike(ctx, p.ID, u.ID)
		if err == nil {
			err = m.users.AddLike(ctx, u.ID, p.ID)
		}
	}
	if err != nil {
		return false, errors.Wrapf(err, "toggle like on %s", legacyProductID)
	}

	m.bus.Publish(ProductLiked{
		ProductID: p.ID,
		UserID:    u.ID,
		Liked:     !liked,
		Paths:     []string{path, "/liked/" + u.ID},
	})
	return !liked, nil
}

// CategoryView is one entry of the derived category index.
type CategoryView struct {
	Name        string   `json:"name"`
	Count       int      `json:"count"`
	ProductIDs  []string `json:"product_ids"`
	AvgDiscount float64  `json:"avg_discount_pct"`
}

// CategoryIndex recomputes the name -> members view by scanning all products.
// The index is derived, never maintained incrementally.
func (m *Maintainer) CategoryIndex(ctx context.Context) ([]CategoryView, error) {
	products, err := m.products.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "category index")
	}

	byName := map[string]*CategoryView{}
	sums := map[string]float64{}
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		v, ok := byName[p.Category]
		if !ok {
			v = &CategoryView{Name: p.Category}
			byName[p.Category] = v
		}
		v.Count++
		v.ProductIDs = append(v.ProductIDs, p.ID)
		sums[p.Category] += productDiscountPct(p)
	}

	out := make([]CategoryView, 0, len(byName))
	for name, v := range byName {
		v.AvgDiscount = math.Round(sums[name]/float64(v.Count)*100) / 100
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateProduct fills missing identity fields, normalizes the category and
// persists the record.
func (m *Maintainer) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	p = prepare(p)
	if err := m.products.Create(ctx, p); err != nil {
		return catalog.Product{}, errors.Wrapf(err, "create product %s", p.LegacyID)
	}

	m.bus.Publish(ProductsCreated{IDs: []string{p.ID}})
	return p, nil
}

// ImportProducts bulk-creates URL-fetched products and registers any category
// names the batch introduces.
func (m *Maintainer) ImportProducts(ctx context.Context, ps []catalog.Product) ([]catalog.Product, error) {
	ids := make([]string, 0, len(ps))
	for i := range ps {
		ps[i].Fetched = true
		ps[i] = prepare(ps[i])
		ids = append(ids, ps[i].ID)
	}

	for _, name := range newCategoryNames(ps) {
		if err := m.ensureRegistered(ctx, name); err != nil {
			return nil, errors.Wrap(err, "import products")
		}
	}

	if err := m.products.CreateMany(ctx, ps); err != nil {
		return nil, errors.Wrap(err, "import products")
	}

	m.bus.Publish(ProductsCreated{IDs: ids})
	return ps, nil
}

// EditProduct rewrites a product located by its legacy id, preserving
// identity, likes and cart history.
func (m *Maintainer) EditProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	existing, ok, err := m.products.GetByLegacyID(ctx, p.LegacyID)
	if err != nil {
		return catalog.Product{}, errors.Wrapf(err, "edit product %s", p.LegacyID)
	}
	if !ok {
		return catalog.Product{}, errors.Errorf("edit product %s: product not found", p.LegacyID)
	}

	p.ID = existing.ID
	p.LikedBy = existing.LikedBy
	p.AddedToCart = existing.AddedToCart
	p.CreatedAt = existing.CreatedAt
	p.Category = catalog.NormalizeCategory(p.Category)

	if err := m.products.Update(ctx, p); err != nil {
		return catalog.Product{}, errors.Wrapf(err, "edit product %s", p.LegacyID)
	}

	m.bus.Publish(ProductsUpdated{IDs: []string{p.ID}})
	return p, nil
}

// DeleteFetchedProducts drops every URL-imported product. Imported products
// are not orderable, so no order scrub happens here.
func (m *Maintainer) DeleteFetchedProducts(ctx context.Context) (int, error) {
	n, err := m.products.DeleteFetched(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "delete fetched products")
	}

	m.bus.Publish(ProductsDeleted{})
	return n, nil
}

// RecordCartAdd appends an add-to-cart timestamp to the product.
func (m *Maintainer) RecordCartAdd(ctx context.Context, productID string) error {
	if err := m.products.RecordCartAdd(ctx, productID, time.Now().UTC()); err != nil {
		return errors.Wrapf(err, "record cart add for %s", productID)
	}

	m.bus.Publish(AddedToCart{ProductID: productID})
	return nil
}

// RegisterCategory reserves a category name before any product uses it.
func (m *Maintainer) RegisterCategory(ctx context.Context, name string) (catalog.Category, error) {
	name = catalog.NormalizeCategory(name)

	c := catalog.Category{ID: "c_" + uuid.NewString(), Name: name}
	if err := m.products.RegisterCategory(ctx, c); err != nil {
		return catalog.Category{}, errors.Wrapf(err, "register category %q", name)
	}

	m.bus.Publish(CategoryChanged{Name: name})
	return c, nil
}

func (m *Maintainer) ensureRegistered(ctx context.Context, name string) error {
	_, ok, err := m.products.GetCategoryByName(ctx, name)
	if err != nil || ok {
		return err
	}
	return m.products.RegisterCategory(ctx, catalog.Category{
		ID:   "c_" + uuid.NewString(),
		Name: name,
	})
}

func (m *Maintainer) resolve(ctx context.Context, ref ProductRef) (catalog.Product, bool, error) {
	if ref.ID != "" {
		return m.products.Get(ctx, ref.ID)
	}
	return m.products.GetByLegacyID(ctx, ref.LegacyID)
}

func prepare(p catalog.Product) catalog.Product {
	if p.ID == "" {
		p.ID = "p_" + uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.PriceToShowCents == 0 {
		p.PriceToShowCents = p.PriceCents
	}
	p.Category = catalog.NormalizeCategory(p.Category)
	return p
}

func newCategoryNames(ps []catalog.Product) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range ps {
		name := catalog.NormalizeCategory(p.Category)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func productDiscountPct(p catalog.Product) float64 {
	if p.PriceToShowCents <= 0 || p.PriceCents >= p.PriceToShowCents {
		return 0
	}
	return (1 - float64(p.PriceCents)/float64(p.PriceToShowCents)) * 100
}

func clampPct(pct float64) float64 {
	return math.Min(100, math.Max(0, pct))
}

func applyOpts(opts []DeleteOption) deleteConfig {
	var cfg deleteConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
