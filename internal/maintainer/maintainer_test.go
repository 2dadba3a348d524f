package maintainer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"FurniStore/internal/catalog"
	"FurniStore/internal/maintainer"
	"FurniStore/internal/order"
	"FurniStore/internal/user"
)

type fixture struct {
	products *catalog.MemStore
	orders   *order.MemStore
	users    *user.MemStore
	events   chan maintainer.Event
	m        *maintainer.Maintainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		products: catalog.NewMemStore(),
		orders:   order.NewMemStore(),
		users:    user.NewMemStore(),
		events:   make(chan maintainer.Event, 16),
	}

	bus := maintainer.NewBus()
	bus.Subscribe(func(_ context.Context, ev maintainer.Event) { f.events <- ev })

	f.m = maintainer.New(f.products, f.orders, f.users, bus, nil)
	return f
}

func (f *fixture) seedProduct(t *testing.T, p catalog.Product) {
	t.Helper()
	require.NoError(t, f.products.Create(context.Background(), p))
}

func (f *fixture) seedUser(t *testing.T, u user.User) {
	t.Helper()
	require.NoError(t, f.users.Create(context.Background(), u))
}

func (f *fixture) seedOrder(t *testing.T, o order.Order) {
	t.Helper()
	require.NoError(t, f.orders.Create(context.Background(), o))
}

func (f *fixture) waitEvent(t *testing.T) maintainer.Event {
	t.Helper()
	select {
	case ev := <-f.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
		return nil
	}
}

func TestDeleteProduct_FanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, user.User{ID: "u_1", Email: "a@example.com", Likes: []string{"p_a"}})
	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table", LikedBy: []string{"u_1"}})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "1002", Name: "Chair"})
	f.seedOrder(t, order.Order{ID: "o_1", UserID: "u_1", Items: []order.Item{
		{ProductID: "p_a", Qty: 2},
		{ProductID: "p_b", Qty: 1},
	}})

	require.NoError(t, f.m.DeleteProduct(ctx, maintainer.ProductRef{ID: "p_a"}))

	_, ok, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.False(t, ok, "product record should be gone")

	o, ok, err := f.orders.Get(ctx, "o_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catalog.DeletedProductID, o.Items[0].ProductID, "order line must point at the sentinel")
	require.Equal(t, "p_b", o.Items[1].ProductID, "unrelated lines untouched")

	u, ok, err := f.users.Get(ctx, "u_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, u.Likes, "likes must be pruned")

	ev := f.waitEvent(t)
	deleted, ok := ev.(maintainer.ProductsDeleted)
	require.True(t, ok, "expected ProductsDeleted, got %T", ev)
	require.Equal(t, []string{"p_a"}, deleted.IDs)
	require.False(t, deleted.KeepCatalogCache)
}

func TestDeleteProduct_ByLegacyID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})

	require.NoError(t, f.m.DeleteProduct(ctx, maintainer.ProductRef{LegacyID: "1001"}))

	_, ok, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteProduct_MissingIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.m.DeleteProduct(context.Background(), maintainer.ProductRef{ID: "p_gone"}))
	require.Empty(t, f.events, "no event for a no-op delete")
}

func TestDeleteProduct_KeepCatalogCache(t *testing.T) {
	f := newFixture(t)

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})

	require.NoError(t, f.m.DeleteProduct(context.Background(),
		maintainer.ProductRef{ID: "p_a"}, maintainer.KeepCatalogCache()))

	deleted, ok := f.waitEvent(t).(maintainer.ProductsDeleted)
	require.True(t, ok)
	require.True(t, deleted.KeepCatalogCache)
}

func TestDeleteProducts_ZeroMatchFails(t *testing.T) {
	f := newFixture(t)

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})

	err := f.m.DeleteProducts(context.Background(), []string{"p_x", "p_y"})
	require.ErrorIs(t, err, maintainer.ErrNoProductsMatched)

	_, ok, getErr := f.products.Get(context.Background(), "p_a")
	require.NoError(t, getErr)
	require.True(t, ok, "nothing may be touched on a zero-match bulk delete")
}

func TestDeleteProducts_BatchedFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, user.User{ID: "u_1", Email: "a@example.com", Likes: []string{"p_a", "p_b", "p_c"}})
	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Table", LikedBy: []string{"u_1"}})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Chair", LikedBy: []string{"u_1"}})
	f.seedProduct(t, catalog.Product{ID: "p_c", LegacyID: "3", Name: "Lamp", LikedBy: []string{"u_1"}})
	f.seedOrder(t, order.Order{ID: "o_1", UserID: "u_1", Items: []order.Item{
		{ProductID: "p_a", Qty: 1},
		{ProductID: "p_c", Qty: 1},
	}})

	require.NoError(t, f.m.DeleteProducts(ctx, []string{"p_a", "p_b"}))

	o, _, err := f.orders.Get(ctx, "o_1")
	require.NoError(t, err)
	require.Equal(t, catalog.DeletedProductID, o.Items[0].ProductID)
	require.Equal(t, "p_c", o.Items[1].ProductID)

	u, _, err := f.users.Get(ctx, "u_1")
	require.NoError(t, err)
	require.Equal(t, []string{"p_c"}, u.Likes)

	remaining, err := f.products.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "p_c", remaining[0].ID)
}

func TestRenameCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk lamp", Category: "Lamps"})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Floor lamp", Category: "Lamps"})
	f.seedProduct(t, catalog.Product{ID: "p_c", LegacyID: "3", Name: "Spot", Category: "Lighting"})
	f.seedProduct(t, catalog.Product{ID: "p_d", LegacyID: "4", Name: "Sofa", Category: "Seating"})

	require.NoError(t, f.m.RenameCategory(ctx, "Lamps", "Lighting"))

	old, err := f.products.ListByCategory(ctx, "Lamps")
	require.NoError(t, err)
	require.Empty(t, old, "zero products may remain in the old category")

	renamed, err := f.products.ListByCategory(ctx, "Lighting")
	require.NoError(t, err)
	require.Len(t, renamed, 3, "old members plus pre-existing members")

	other, err := f.products.ListByCategory(ctx, "Seating")
	require.NoError(t, err)
	require.Len(t, other, 1)

	ev, ok := f.waitEvent(t).(maintainer.CategoryChanged)
	require.True(t, ok)
	require.Equal(t, "Lighting", ev.Name)
}

func TestMoveProductsToCategory_OnlyListedIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Office"})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Shelf", Category: "Office"})

	require.NoError(t, f.m.MoveProductsToCategory(ctx, "Office", "Storage", []string{"p_b"}))

	a, _, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Equal(t, "Office", a.Category, "products outside the id set stay put")

	b, _, err := f.products.Get(ctx, "p_b")
	require.NoError(t, err)
	require.Equal(t, "Storage", b.Category)

	_, registered, err := f.products.GetCategoryByName(ctx, "Storage")
	require.NoError(t, err)
	require.True(t, registered, "new destination must be registered first")
}

func TestDeleteCategory_RemoveProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Office"})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Shelf", Category: "Office"})
	f.seedProduct(t, catalog.Product{ID: "p_c", LegacyID: "3", Name: "Sofa", Category: "Seating"})
	f.seedOrder(t, order.Order{ID: "o_1", UserID: "u_1", Items: []order.Item{
		{ProductID: "p_a", Qty: 1},
	}})

	require.NoError(t, f.m.DeleteCategory(ctx, "Office", maintainer.DeleteCategoryOpts{RemoveProducts: true}))

	members, err := f.products.ListByCategory(ctx, "Office")
	require.NoError(t, err)
	require.Empty(t, members)

	o, _, err := f.orders.Get(ctx, "o_1")
	require.NoError(t, err)
	require.Equal(t, catalog.DeletedProductID, o.Items[0].ProductID)

	remaining, err := f.products.List(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "p_c", remaining[0].ID)
}

func TestDeleteCategory_ReassignProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Old"})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Shelf", Category: "Old"})

	require.NoError(t, f.m.DeleteCategory(ctx, "Old", maintainer.DeleteCategoryOpts{
		RemoveProducts: false,
		MoveProductsTo: "Misc",
	}))

	for _, id := range []string{"p_a", "p_b"} {
		p, ok, err := f.products.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, ok, "reassignment mode must not delete products")
		require.Equal(t, "Misc", p.Category)
	}
}

func TestDeleteCategory_ReassignFallsBackToSentinel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Old"})

	require.NoError(t, f.m.DeleteCategory(ctx, "Old", maintainer.DeleteCategoryOpts{RemoveProducts: false}))

	p, _, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Equal(t, catalog.NoCategory, p.Category)
}

func TestToggleLike_TwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedUser(t, user.User{ID: "u_1", Email: "a@example.com"})
	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})

	liked, err := f.m.ToggleLike(ctx, "1001", "a@example.com", "/catalog/1001")
	require.NoError(t, err)
	require.True(t, liked)

	p, _, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Equal(t, []string{"u_1"}, p.LikedBy)

	u, _, err := f.users.Get(ctx, "u_1")
	require.NoError(t, err)
	require.Equal(t, []string{"p_a"}, u.Likes)

	liked, err = f.m.ToggleLike(ctx, "1001", "a@example.com", "/catalog/1001")
	require.NoError(t, err)
	require.False(t, liked)

	p, _, err = f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Empty(t, p.LikedBy)

	u, _, err = f.users.Get(ctx, "u_1")
	require.NoError(t, err)
	require.Empty(t, u.Likes)
}

type likeFailStore struct {
	*catalog.MemStore
}

func (likeFailStore) AddLike(context.Context, string, string) error {
	return errors.New("like write failed")
}

func TestToggleLike_ProductWriteFailureLeavesUserSideUntouched(t *testing.T) {
	ctx := context.Background()

	products := catalog.NewMemStore()
	users := user.NewMemStore()
	require.NoError(t, products.Create(ctx, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"}))
	require.NoError(t, users.Create(ctx, user.User{ID: "u_1", Email: "a@example.com"}))

	m := maintainer.New(likeFailStore{products}, order.NewMemStore(), users, maintainer.NewBus(), nil)

	_, err := m.ToggleLike(ctx, "1001", "a@example.com", "/catalog/1001")
	require.Error(t, err)

	u, _, err := users.Get(ctx, "u_1")
	require.NoError(t, err)
	require.Empty(t, u.Likes, "user side must not be written when the product side fails")
}

func TestToggleLike_EmptyEmailIsNoop(t *testing.T) {
	f := newFixture(t)

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})

	liked, err := f.m.ToggleLike(context.Background(), "1001", "", "/catalog/1001")
	require.NoError(t, err)
	require.False(t, liked)
	require.Empty(t, f.events)
}

func TestSetCategoryDiscount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.RegisterCategory(ctx, "Lamps")
	require.NoError(t, err)

	f.seedProduct(t, catalog.Product{
		ID: "p_a", LegacyID: "1", Name: "Desk lamp", Category: "Lamps",
		PriceCents: 10000, PriceToShowCents: 10000,
	})

	require.NoError(t, f.m.SetCategoryDiscount(ctx, "Lamps", 25))

	p, _, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Equal(t, int64(7500), p.PriceCents)
	require.Equal(t, int64(10000), p.PriceToShowCents, "display price keeps the undiscounted value")

	c, ok, err := f.products.GetCategoryByName(ctx, "Lamps")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 25.0, c.DiscountPct)
}

func TestSetCategoryDiscount_ClampsPercentage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.m.RegisterCategory(ctx, "Lamps")
	require.NoError(t, err)

	f.seedProduct(t, catalog.Product{
		ID: "p_a", LegacyID: "1", Name: "Desk lamp", Category: "Lamps",
		PriceCents: 10000, PriceToShowCents: 10000,
	})

	require.NoError(t, f.m.SetCategoryDiscount(ctx, "Lamps", 150))

	p, _, err := f.products.Get(ctx, "p_a")
	require.NoError(t, err)
	require.Equal(t, int64(0), p.PriceCents)
}

func TestCategoryIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Office", PriceCents: 5000, PriceToShowCents: 10000})
	f.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Shelf", Category: "Office", PriceCents: 10000, PriceToShowCents: 10000})
	f.seedProduct(t, catalog.Product{ID: "p_c", LegacyID: "3", Name: "Sofa", Category: "Seating", PriceCents: 20000, PriceToShowCents: 20000})

	index, err := f.m.CategoryIndex(ctx)
	require.NoError(t, err)
	require.Len(t, index, 2)

	require.Equal(t, "Office", index[0].Name)
	require.Equal(t, 2, index[0].Count)
	require.ElementsMatch(t, []string{"p_a", "p_b"}, index[0].ProductIDs)
	require.Equal(t, 25.0, index[0].AvgDiscount)

	require.Equal(t, "Seating", index[1].Name)
	require.Equal(t, 1, index[1].Count)
}

func TestCreateProduct_NormalizesCategory(t *testing.T) {
	f := newFixture(t)

	p, err := f.m.CreateProduct(context.Background(), catalog.Product{LegacyID: "1", Name: "Desk"})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)
	require.Equal(t, catalog.NoCategory, p.Category)
}

func TestImportProducts_RegistersNewCategories(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.m.ImportProducts(ctx, []catalog.Product{
		{LegacyID: "1", Name: "Desk", Category: "Office"},
		{LegacyID: "2", Name: "Shelf", Category: "Office"},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	require.True(t, created[0].Fetched)

	_, registered, err := f.products.GetCategoryByName(ctx, "Office")
	require.NoError(t, err)
	require.True(t, registered)
}

func TestEditProduct_PreservesIdentityAndLikes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedProduct(t, catalog.Product{
		ID: "p_a", LegacyID: "1001", Name: "Oak table", Category: "Tables",
		LikedBy: []string{"u_1"},
	})

	updated, err := f.m.EditProduct(ctx, catalog.Product{
		LegacyID: "1001", Name: "Walnut table", Category: "Tables",
	})
	require.NoError(t, err)
	require.Equal(t, "p_a", updated.ID)
	require.Equal(t, "Walnut table", updated.Name)
	require.Equal(t, []string{"u_1"}, updated.LikedBy)
}
