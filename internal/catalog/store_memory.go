package catalog

import (
	"context"
	"errors"
	"math"
	"slices"
	"sort"
	"sync"
	"time"
)

var ErrCategoryExists = errors.New("category already registered")

type MemStore struct {
	mu         sync.RWMutex
	products   map[string]Product
	categories map[string]Category
}

func NewMemStore() *MemStore {
	return &MemStore{
		products:   map[string]Product{},
		categories: map[string]Category{},
	}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Create(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Category = NormalizeCategory(p.Category)
	s.products[p.ID] = p
	return nil
}

func (s *MemStore) CreateMany(ctx context.Context, ps []Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		p.Category = NormalizeCategory(p.Category)
		s.products[p.ID] = p
	}
	return nil
}

func (s *MemStore) Update(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		return nil
	}
	p.Category = NormalizeCategory(p.Category)
	s.products[p.ID] = p
	return nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.products, id)
	return nil
}

func (s *MemStore) DeleteByIDs(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.products[id]; ok {
			delete(s.products, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) DeleteFetched(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.products {
		if p.Fetched {
			delete(s.products, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	return clone(p), ok, nil
}

func (s *MemStore) GetByLegacyID(ctx context.Context, legacyID string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.LegacyID == legacyID {
			return clone(p), true, nil
		}
	}
	return Product{}, false, nil
}

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	return s.filter(func(Product) bool { return true }), nil
}

func (s *MemStore) ListAvailable(ctx context.Context) ([]Product, error) {
	return s.filter(func(p Product) bool { return p.Available && p.Quantity > 0 }), nil
}

func (s *MemStore) ListLatest(ctx context.Context, n int) ([]Product, error) {
	out := s.filter(func(p Product) bool { return p.Available })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (s *MemStore) ListByCategory(ctx context.Context, name string) ([]Product, error) {
	return s.filter(func(p Product) bool { return p.Category == name }), nil
}

func (s *MemStore) ListByIDs(ctx context.Context, ids []string) ([]Product, error) {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return s.filter(func(p Product) bool {
		_, ok := set[p.ID]
		return ok
	}), nil
}

func (s *MemStore) ListLikedBy(ctx context.Context, userID string) ([]Product, error) {
	return s.filter(func(p Product) bool {
		return p.Available && slices.Contains(p.LikedBy, userID)
	}), nil
}

func (s *MemStore) SetCategoryByName(ctx context.Context, old, new string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.products {
		if p.Category == old {
			p.Category = new
			s.products[id] = p
			n++
		}
	}
	return n, nil
}

func (s *MemStore) SetCategoryByIDs(ctx context.Context, ids []string, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		p, ok := s.products[id]
		if !ok {
			continue
		}
		p.Category = name
		s.products[id] = p
		n++
	}
	return n, nil
}

func (s *MemStore) ApplyCategoryDiscount(ctx context.Context, name string, pct float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.products {
		if p.Category != name {
			continue
		}
		p.PriceCents = int64(math.Round(float64(p.PriceToShowCents) * (100 - pct) / 100))
		s.products[id] = p
		n++
	}
	return n, nil
}

func (s *MemStore) AddLike(ctx context.Context, productID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil
	}
	if !slices.Contains(p.LikedBy, userID) {
		p.LikedBy = append(p.LikedBy, userID)
		s.products[productID] = p
	}
	return nil
}

func (s *MemStore) RemoveLike(ctx context.Context, productID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil
	}
	p.LikedBy = slices.DeleteFunc(slices.Clone(p.LikedBy), func(id string) bool { return id == userID })
	s.products[productID] = p
	return nil
}

func (s *MemStore) RecordCartAdd(ctx context.Context, productID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return nil
	}
	p.AddedToCart = append(slices.Clone(p.AddedToCart), at)
	s.products[productID] = p
	return nil
}

func (s *MemStore) RegisterCategory(ctx context.Context, c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.Name]; ok {
		return ErrCategoryExists
	}
	s.categories[c.Name] = c
	return nil
}

func (s *MemStore) GetCategoryByName(ctx context.Context, name string) (Category, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[name]
	return c, ok, nil
}

func (s *MemStore) ListRegisteredCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) RenameRegisteredCategory(ctx context.Context, old, new string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[old]
	if !ok {
		return nil
	}
	delete(s.categories, old)
	c.Name = new
	s.categories[new] = c
	return nil
}

func (s *MemStore) SetCategoryDiscount(ctx context.Context, name string, pct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[name]
	if !ok {
		return nil
	}
	c.DiscountPct = pct
	s.categories[name] = c
	return nil
}

func (s *MemStore) DropRegisteredCategory(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.categories, name)
	return nil
}

func (s *MemStore) filter(keep func(Product) bool) []Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		if p.ID == DeletedProductID || !keep(p) {
			continue
		}
		out = append(out, clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func clone(p Product) Product {
	p.Images = slices.Clone(p.Images)
	p.Params = slices.Clone(p.Params)
	p.LikedBy = slices.Clone(p.LikedBy)
	p.AddedToCart = slices.Clone(p.AddedToCart)
	return p
}
