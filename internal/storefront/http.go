package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"FurniStore/internal/cache"
	"FurniStore/internal/catalog"
	"FurniStore/internal/maintainer"
	"FurniStore/internal/user"
	"FurniStore/pkg/kit"
)

const latestCount = 12

type Server struct {
	Products   catalog.Store
	Users      user.Store
	Maintainer *maintainer.Maintainer
	Cache      cache.Cache
	Log        *zap.Logger
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.ready)

	r.Get("/products", s.listProducts)
	r.Get("/products/latest", s.listLatest)
	r.Get("/products/available", s.listAvailable)
	r.Get("/products/{legacyID}", s.productPage)
	r.Post("/products/{legacyID}/like", s.toggleLike)
	r.Post("/products/{id}/cart-ping", s.cartPing)

	r.Get("/categories", s.listCategories)
	r.Get("/categories/{name}/products", s.categoryProducts)

	r.Get("/users/{userID}/liked", s.likedProducts)

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if err := s.Products.Ping(ctx); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.String("dep", "store"), zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
		return
	}
	if s.Cache != nil {
		if err := s.Cache.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz failed", zap.String("dep", "cache"), zap.Error(err))
			}
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

// listProducts serves the full catalog, through the catalog cache when one is
// wired. The cached payload is the marshalled response body.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	if s.Cache != nil {
		if payload, ok, err := s.Cache.GetCatalog(r.Context()); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(payload)
			return
		}
	}

	products, err := s.Products.List(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}

	payload, err := json.Marshal(products)
	if err != nil {
		s.serverError(w, r, "encode products failed", err)
		return
	}

	if s.Cache != nil {
		if err := s.Cache.SetCatalog(r.Context(), payload); err != nil && s.Log != nil {
			s.Log.Warn("set catalog cache failed", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) listLatest(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.ListLatest(r.Context(), latestCount)
	if err != nil {
		s.serverError(w, r, "list latest failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) listAvailable(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.ListAvailable(r.Context())
	if err != nil {
		s.serverError(w, r, "list available failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

type productPagePayload struct {
	Product    catalog.Product           `json:"product"`
	Categories []maintainer.CategoryView `json:"categories"`
}

// productPage returns the product plus the derived category index, which the
// storefront renders alongside it.
func (s *Server) productPage(w http.ResponseWriter, r *http.Request) {
	legacyID := chi.URLParam(r, "legacyID")

	p, ok, err := s.Products.GetByLegacyID(r.Context(), legacyID)
	if err != nil {
		s.serverError(w, r, "get product failed", err)
		return
	}
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, "not found", map[string]any{"id": legacyID})
		return
	}

	categories, err := s.Maintainer.CategoryIndex(r.Context())
	if err != nil {
		s.serverError(w, r, "category index failed", err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, productPagePayload{Product: p, Categories: categories})
}

type likeReq struct {
	Email string `json:"email"`
	Path  string `json:"path"`
}

func (s *Server) toggleLike(w http.ResponseWriter, r *http.Request) {
	var req likeReq
	if err := kit.DecodeJSON(w, r, &req); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	liked, err := s.Maintainer.ToggleLike(r.Context(), chi.URLParam(r, "legacyID"), req.Email, req.Path)
	if err != nil {
		s.serverError(w, r, "toggle like failed", err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, map[string]any{"liked": liked})
}

func (s *Server) cartPing(w http.ResponseWriter, r *http.Request) {
	if err := s.Maintainer.RecordCartAdd(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.serverError(w, r, "cart ping failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.Maintainer.CategoryIndex(r.Context())
	if err != nil {
		s.serverError(w, r, "category index failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, categories)
}

func (s *Server) categoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.ListByCategory(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.serverError(w, r, "list category products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) likedProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Products.ListLikedBy(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.serverError(w, r, "list liked products failed", err)
		return
	}
	kit.WriteJSON(w, http.StatusOK, products)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "server error", nil)
}
