package admin_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"FurniStore/internal/admin"
	"FurniStore/internal/cache"
	"FurniStore/internal/catalog"
	"FurniStore/internal/maintainer"
	"FurniStore/internal/order"
	"FurniStore/internal/user"
)

const testSecret = "test-secret"

type env struct {
	products *catalog.MemStore
	orders   *order.MemStore
	users    *user.MemStore
	srv      *httptest.Server
	token    string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		products: catalog.NewMemStore(),
		orders:   order.NewMemStore(),
		users:    user.NewMemStore(),
	}

	s := &admin.Server{
		Products:   e.products,
		Orders:     e.orders,
		Users:      e.users,
		Maintainer: maintainer.New(e.products, e.orders, e.users, maintainer.NewBus(), nil),
	}

	jwt := admin.NewTokenMaker(testSecret)
	e.srv = httptest.NewServer(admin.NewHandler(s, admin.HTTPDeps{
		Log:     zap.NewNop(),
		Service: "admin",
		JWT:     jwt,
	}))
	t.Cleanup(e.srv.Close)

	token, err := jwt.New("u_admin", "admin@example.com", "admin", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	e.token = token
	return e
}

func (e *env) doJSON(t *testing.T, method, path string, body, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func (e *env) seedProduct(t *testing.T, p catalog.Product) {
	t.Helper()
	if err := e.products.Create(context.Background(), p); err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

type downCache struct {
	*cache.MemCache
}

func (downCache) Ping(context.Context) error { return errors.New("cache unreachable") }

func TestReadyzReportsCacheFailure(t *testing.T) {
	products := catalog.NewMemStore()
	orders := order.NewMemStore()
	users := user.NewMemStore()

	s := &admin.Server{
		Products:   products,
		Orders:     orders,
		Users:      users,
		Maintainer: maintainer.New(products, orders, users, maintainer.NewBus(), nil),
		Cache:      downCache{cache.NewMemCache()},
	}
	srv := httptest.NewServer(admin.NewHandler(s, admin.HTTPDeps{
		Log:     zap.NewNop(),
		Service: "admin",
		JWT:     admin.NewTokenMaker(testSecret),
	}))
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz with dead cache = %d, want 503", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)

	resp, err := http.Get(e.srv.URL + "/categories")
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", resp.StatusCode)
	}
}

func TestNonAdminForbidden(t *testing.T) {
	e := newEnv(t)

	token, err := admin.NewTokenMaker(testSecret).New("u_1", "a@example.com", "customer", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	e.token = token

	resp := e.doJSON(t, http.MethodGet, "/categories", nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status with customer token = %d, want 403", resp.StatusCode)
	}
}

func TestCreateAndDeleteProduct(t *testing.T) {
	e := newEnv(t)

	var created catalog.Product
	resp := e.doJSON(t, http.MethodPost, "/products", map[string]any{
		"legacy_id": "1001", "name": "Oak table", "price_cents": 19900,
	}, &created)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	if created.ID == "" || created.Category != catalog.NoCategory {
		t.Fatalf("created = %+v, want generated id and sentinel category", created)
	}

	resp = e.doJSON(t, http.MethodDelete, "/products/"+created.ID, nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	_, ok, err := e.products.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("product still present after delete")
	}
}

func TestDeleteProductScrubsOrders(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1001", Name: "Oak table"})
	if err := e.orders.Create(context.Background(), order.Order{
		ID: "o_1", UserID: "u_1",
		Items: []order.Item{{ProductID: "p_a", Qty: 1}},
	}); err != nil {
		t.Fatal(err)
	}

	resp := e.doJSON(t, http.MethodDelete, "/products/legacy/1001", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}

	var o order.Order
	resp = e.doJSON(t, http.MethodGet, "/orders/o_1", nil, &o)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get order status = %d, want 200", resp.StatusCode)
	}
	if o.Items[0].ProductID != catalog.DeletedProductID {
		t.Fatalf("order item product = %q, want %q", o.Items[0].ProductID, catalog.DeletedProductID)
	}
}

func TestBulkDeleteNoMatch(t *testing.T) {
	e := newEnv(t)

	resp := e.doJSON(t, http.MethodPost, "/products/delete", map[string]any{
		"ids": []string{"p_x"},
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestRenameCategory(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk lamp", Category: "Lamps"})
	e.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Spot", Category: "Lighting"})

	resp := e.doJSON(t, http.MethodPatch, "/categories/Lamps", map[string]string{
		"new_name": "Lighting",
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	renamed, err := e.products.ListByCategory(context.Background(), "Lighting")
	if err != nil {
		t.Fatal(err)
	}
	if len(renamed) != 2 {
		t.Fatalf("products in Lighting = %d, want 2", len(renamed))
	}
}

func TestRenameCategoryRequiresNewName(t *testing.T) {
	e := newEnv(t)

	resp := e.doJSON(t, http.MethodPatch, "/categories/Lamps", map[string]string{}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteCategoryReassigns(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Desk", Category: "Old"})

	resp := e.doJSON(t, http.MethodDelete, "/categories/Old", map[string]any{
		"remove_products": false,
		"move_products_to": "Misc",
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	p, ok, err := e.products.Get(context.Background(), "p_a")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || p.Category != "Misc" {
		t.Fatalf("product after reassign = %+v, want category Misc", p)
	}
}

func TestRegisterCategoryConflict(t *testing.T) {
	e := newEnv(t)

	resp := e.doJSON(t, http.MethodPost, "/categories", map[string]string{"name": "Office"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first register status = %d, want 201", resp.StatusCode)
	}

	resp = e.doJSON(t, http.MethodPost, "/categories", map[string]string{"name": "Office"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second register status = %d, want 409", resp.StatusCode)
	}
}

func TestSetDiscount(t *testing.T) {
	e := newEnv(t)
	e.doJSON(t, http.MethodPost, "/categories", map[string]string{"name": "Lamps"}, nil)
	e.seedProduct(t, catalog.Product{
		ID: "p_a", LegacyID: "1", Name: "Desk lamp", Category: "Lamps",
		PriceCents: 10000, PriceToShowCents: 10000,
	})

	resp := e.doJSON(t, http.MethodPost, "/categories/Lamps/discount", map[string]float64{
		"percentage": 20,
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	p, _, err := e.products.Get(context.Background(), "p_a")
	if err != nil {
		t.Fatal(err)
	}
	if p.PriceCents != 8000 {
		t.Fatalf("price = %d, want 8000", p.PriceCents)
	}
}

func TestListOrdersByProduct(t *testing.T) {
	e := newEnv(t)
	if err := e.orders.Create(context.Background(), order.Order{
		ID: "o_1", UserID: "u_1", Items: []order.Item{{ProductID: "p_a", Qty: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	if err := e.orders.Create(context.Background(), order.Order{
		ID: "o_2", UserID: "u_2", Items: []order.Item{{ProductID: "p_b", Qty: 1}},
	}); err != nil {
		t.Fatal(err)
	}

	var got []order.Order
	resp := e.doJSON(t, http.MethodGet, "/orders?product_id=p_a", nil, &got)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(got) != 1 || got[0].ID != "o_1" {
		t.Fatalf("orders = %v, want [o_1]", got)
	}

	resp = e.doJSON(t, http.MethodGet, "/orders", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unfiltered status = %d, want 400", resp.StatusCode)
	}
}

func TestProductLikers(t *testing.T) {
	e := newEnv(t)
	if err := e.users.Create(context.Background(), user.User{ID: "u_1", Email: "a@example.com"}); err != nil {
		t.Fatal(err)
	}
	e.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Oak table", LikedBy: []string{"u_1"}})

	var likers []user.User
	resp := e.doJSON(t, http.MethodGet, "/products/p_a/likers", nil, &likers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(likers) != 1 || likers[0].Email != "a@example.com" {
		t.Fatalf("likers = %v, want [a@example.com]", likers)
	}
}

func TestDeleteFetched(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, catalog.Product{ID: "p_a", LegacyID: "1", Name: "Imported", Fetched: true})
	e.seedProduct(t, catalog.Product{ID: "p_b", LegacyID: "2", Name: "Manual"})

	var res struct {
		Deleted int `json:"deleted"`
	}
	resp := e.doJSON(t, http.MethodDelete, "/products/fetched", nil, &res)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if res.Deleted != 1 {
		t.Fatalf("deleted = %d, want 1", res.Deleted)
	}

	_, ok, err := e.products.Get(context.Background(), "p_b")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("manual product must survive")
	}
}
