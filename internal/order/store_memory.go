package order

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type MemStore struct {
	mu sync.RWMutex
	m  map[string]Order
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]Order{}}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Create(ctx context.Context, o Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Items = slices.Clone(o.Items)
	s.m[o.ID] = o
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Order, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.m[id]
	o.Items = slices.Clone(o.Items)
	return o, ok, nil
}

func (s *MemStore) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.filter(func(o Order) bool { return o.UserID == userID }), nil
}

func (s *MemStore) ListByProducts(ctx context.Context, productIDs []string) ([]Order, error) {
	set := idSet(productIDs)
	return s.filter(func(o Order) bool {
		return slices.ContainsFunc(o.Items, func(it Item) bool {
			_, ok := set[it.ProductID]
			return ok
		})
	}), nil
}

func (s *MemStore) ScrubProducts(ctx context.Context, productIDs []string, sentinel string) (int, error) {
	set := idSet(productIDs)

	s.mu.Lock()
	defer s.mu.Unlock()

	scrubbed := 0
	for id, o := range s.m {
		items := slices.Clone(o.Items)
		changed := false
		for i, it := range items {
			if _, ok := set[it.ProductID]; ok {
				items[i].ProductID = sentinel
				scrubbed++
				changed = true
			}
		}
		if changed {
			o.Items = items
			s.m[id] = o
		}
	}
	return scrubbed, nil
}

func (s *MemStore) filter(keep func(Order) bool) []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Order, 0, len(s.m))
	for _, o := range s.m {
		if keep(o) {
			o.Items = slices.Clone(o.Items)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func idSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
