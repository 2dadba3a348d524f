package admin

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"FurniStore/internal/cache"
	"FurniStore/internal/catalog"
	"FurniStore/internal/maintainer"
	"FurniStore/internal/order"
	"FurniStore/internal/user"
	"FurniStore/pkg/kit"
)

type Server struct {
	Products   catalog.Store
	Orders     order.Store
	Users      user.Store
	Maintainer *maintainer.Maintainer
	Cache      cache.Cache
	Log        *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Post("/products", s.createProduct)
	r.Post("/products/import", s.importProducts)
	r.Put("/products/{legacyID}", s.editProduct)
	r.Delete("/products/fetched", s.deleteFetched)
	r.Delete("/products/legacy/{legacyID}", s.deleteProductLegacy)
	r.Delete("/products/{id}", s.deleteProduct)
	r.Post("/products/delete", s.deleteProducts)
	r.Post("/products/category", s.changeProductsCategory)
	r.Get("/products/{id}/likers", s.productLikers)

	r.Get("/categories", s.listCategories)
	r.Post("/categories", s.registerCategory)
	r.Patch("/categories/{name}", s.renameCategory)
	r.Delete("/categories/{name}", s.deleteCategory)
	r.Post("/categories/{name}/move", s.moveProducts)
	r.Post("/categories/{name}/discount", s.setDiscount)

	r.Get("/orders", s.listOrders)
	r.Get("/orders/{id}", s.getOrder)

	return r
}

type productReq struct {
	LegacyID         string          `json:"legacy_id"`
	Name             string          `json:"name"`
	URL              string          `json:"url"`
	Images           []string        `json:"images"`
	Description      string          `json:"description"`
	Vendor           string          `json:"vendor"`
	Category         string          `json:"category"`
	PriceCents       int64           `json:"price_cents"`
	PriceToShowCents int64           `json:"price_to_show_cents"`
	Quantity         int             `json:"quantity"`
	Available        bool            `json:"available"`
	Params           []catalog.Param `json:"params"`
}

func (req productReq) product() catalog.Product {
	return catalog.Product{
		LegacyID:         req.LegacyID,
		Name:             req.Name,
		URL:              req.URL,
		Images:           req.Images,
		Description:      req.Description,
		Vendor:           req.Vendor,
		Category:         req.Category,
		PriceCents:       req.PriceCents,
		PriceToShowCents: req.PriceToShowCents,
		Quantity:         req.Quantity,
		Available:        req.Available,
		Params:           req.Params,
	}
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	p, err := s.Maintainer.CreateProduct(r.Context(), req.product())
	if err != nil {
		s.writeOpError(w, r, "create product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, p)
}

type importReq struct {
	Products []productReq `json:"products"`
}

func (s *Server) importProducts(w http.ResponseWriter, r *http.Request) {
	var req importReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	ps := make([]catalog.Product, len(req.Products))
	for i, pr := range req.Products {
		ps[i] = pr.product()
	}

	created, err := s.Maintainer.ImportProducts(r.Context(), ps)
	if err != nil {
		s.writeOpError(w, r, "import products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, created)
}

func (s *Server) editProduct(w http.ResponseWriter, r *http.Request) {
	var req productReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	p := req.product()
	p.LegacyID = chi.URLParam(r, "legacyID")

	updated, err := s.Maintainer.EditProduct(r.Context(), p)
	if err != nil {
		s.writeOpError(w, r, "edit product failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	s.deleteOne(w, r, maintainer.ProductRef{ID: chi.URLParam(r, "id")})
}

func (s *Server) deleteProductLegacy(w http.ResponseWriter, r *http.Request) {
	s.deleteOne(w, r, maintainer.ProductRef{LegacyID: chi.URLParam(r, "legacyID")})
}

func (s *Server) deleteOne(w http.ResponseWriter, r *http.Request, ref maintainer.ProductRef) {
	var opts []maintainer.DeleteOption
	if r.URL.Query().Get("keep_catalog_cache") == "true" {
		opts = append(opts, maintainer.KeepCatalogCache())
	}

	if err := s.Maintainer.DeleteProduct(r.Context(), ref, opts...); err != nil {
		s.writeOpError(w, r, "delete product failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteProductsReq struct {
	IDs              []string `json:"ids"`
	KeepCatalogCache bool     `json:"keep_catalog_cache"`
}

func (s *Server) deleteProducts(w http.ResponseWriter, r *http.Request) {
	var req deleteProductsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	var opts []maintainer.DeleteOption
	if req.KeepCatalogCache {
		opts = append(opts, maintainer.KeepCatalogCache())
	}

	if a, ok := AdminFromContext(r.Context()); ok && s.Log != nil {
		s.Log.Info("bulk delete requested", zap.String("admin", a.Email), zap.Int("ids", len(req.IDs)))
	}

	if err := s.Maintainer.DeleteProducts(r.Context(), req.IDs, opts...); err != nil {
		if errors.Is(err, maintainer.ErrNoProductsMatched) {
			kit.WriteError(w, r, http.StatusNotFound, "no products matched", nil)
			return
		}
		s.writeOpError(w, r, "delete products failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteFetched(w http.ResponseWriter, r *http.Request) {
	n, err := s.Maintainer.DeleteFetchedProducts(r.Context())
	if err != nil {
		s.writeOpError(w, r, "delete fetched failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

type changeCategoryReq struct {
	IDs  []string `json:"ids"`
	Name string   `json:"name"`
}

func (s *Server) changeProductsCategory(w http.ResponseWriter, r *http.Request) {
	var req changeCategoryReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	if err := s.Maintainer.ChangeProductsCategory(r.Context(), req.IDs, req.Name); err != nil {
		s.writeOpError(w, r, "change products category failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Products.ListRegisteredCategories(r.Context())
	if err != nil {
		s.writeOpError(w, r, "list categories failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, categories)
}

type registerCategoryReq struct {
	Name string `json:"name"`
}

func (s *Server) registerCategory(w http.ResponseWriter, r *http.Request) {
	var req registerCategoryReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	c, err := s.Maintainer.RegisterCategory(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, catalog.ErrCategoryExists) {
			kit.WriteError(w, r, http.StatusConflict, "category exists", map[string]any{"name": req.Name})
			return
		}
		s.writeOpError(w, r, "register category failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusCreated, c)
}

type renameCategoryReq struct {
	NewName string `json:"new_name"`
}

func (s *Server) renameCategory(w http.ResponseWriter, r *http.Request) {
	var req renameCategoryReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}
	if req.NewName == "" {
		kit.WriteError(w, r, http.StatusBadRequest, "new_name required", nil)
		return
	}

	if err := s.Maintainer.RenameCategory(r.Context(), chi.URLParam(r, "name"), req.NewName); err != nil {
		s.writeOpError(w, r, "rename category failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deleteCategoryReq struct {
	RemoveProducts bool   `json:"remove_products"`
	MoveProductsTo string `json:"move_products_to"`
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	var req deleteCategoryReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	err := s.Maintainer.DeleteCategory(r.Context(), chi.URLParam(r, "name"), maintainer.DeleteCategoryOpts{
		RemoveProducts: req.RemoveProducts,
		MoveProductsTo: req.MoveProductsTo,
	})
	if err != nil {
		s.writeOpError(w, r, "delete category failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveProductsReq struct {
	Target     string   `json:"target"`
	ProductIDs []string `json:"product_ids"`
}

func (s *Server) moveProducts(w http.ResponseWriter, r *http.Request) {
	var req moveProductsReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	err := s.Maintainer.MoveProductsToCategory(r.Context(), chi.URLParam(r, "name"), req.Target, req.ProductIDs)
	if err != nil {
		s.writeOpError(w, r, "move products failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type discountReq struct {
	Percentage float64 `json:"percentage"`
}

func (s *Server) setDiscount(w http.ResponseWriter, r *http.Request) {
	var req discountReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	if err := s.Maintainer.SetCategoryDiscount(r.Context(), chi.URLParam(r, "name"), req.Percentage); err != nil {
		s.writeOpError(w, r, "set discount failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// productLikers returns the users behind a product's liked_by entries.
func (s *Server) productLikers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, ok, err := s.Products.Get(r.Context(), id)
	if err != nil {
		s.writeOpError(w, r, "get product failed", err)
		return
	}
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}

	users, err := s.Users.ListByIDs(r.Context(), p.LikedBy)
	if err != nil {
		s.writeOpError(w, r, "list likers failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, users)
}

// listOrders filters orders by product_id or user_id.
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		orders []order.Order
		err    error
	)
	switch {
	case q.Get("product_id") != "":
		orders, err = s.Orders.ListByProducts(r.Context(), []string{q.Get("product_id")})
	case q.Get("user_id") != "":
		orders, err = s.Orders.ListByUser(r.Context(), q.Get("user_id"))
	default:
		kit.WriteError(w, r, http.StatusBadRequest, "product_id or user_id required", nil)
		return
	}
	if err != nil {
		s.writeOpError(w, r, "list orders failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, orders)
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, ok, err := s.Orders.Get(r.Context(), id)
	if err != nil {
		s.writeOpError(w, r, "get order failed", err)
		return
	}
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": id})
		return
	}
	kit.WriteJSON(w, http.StatusOK, o)
}

func (s *Server) writeOpError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	if isTimeoutErr(err) {
		kit.WriteError(w, r, http.StatusGatewayTimeout, "timeout", nil)
		return
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}

func isTimeoutErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
