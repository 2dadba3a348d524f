package user

import (
	"context"
	"slices"
	"sort"
	"sync"
)

type MemStore struct {
	mu sync.RWMutex
	m  map[string]User
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]User{}}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) Create(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[u.ID] = u
	return nil
}

func (s *MemStore) Get(ctx context.Context, id string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.m[id]
	u.Likes = slices.Clone(u.Likes)
	return u, ok, nil
}

func (s *MemStore) GetByEmail(ctx context.Context, email string) (User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.m {
		if u.Email == email {
			u.Likes = slices.Clone(u.Likes)
			return u, true, nil
		}
	}
	return User{}, false, nil
}

func (s *MemStore) ListByIDs(ctx context.Context, ids []string) ([]User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.m[id]; ok {
			u.Likes = slices.Clone(u.Likes)
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) AddLike(ctx context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[userID]
	if !ok {
		return nil
	}
	if !slices.Contains(u.Likes, productID) {
		u.Likes = append(u.Likes, productID)
		s.m[userID] = u
	}
	return nil
}

func (s *MemStore) RemoveLike(ctx context.Context, userID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.m[userID]
	if !ok {
		return nil
	}
	u.Likes = slices.DeleteFunc(slices.Clone(u.Likes), func(id string) bool { return id == productID })
	s.m[userID] = u
	return nil
}

func (s *MemStore) RemoveLikesForProducts(ctx context.Context, productIDs []string) (int, error) {
	set := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, u := range s.m {
		likes := slices.DeleteFunc(slices.Clone(u.Likes), func(pid string) bool {
			_, drop := set[pid]
			if drop {
				removed++
			}
			return drop
		})
		u.Likes = likes
		s.m[id] = u
	}
	return removed, nil
}
