package cache

import (
	"context"
	"slices"
	"sync"
)

// MemCache backs development and tests. It also records which invalidations
// happened, which is what the subscriber tests assert on.
type MemCache struct {
	mu      sync.Mutex
	catalog []byte
	has     bool

	CatalogClears int
	ClearedTags   []string
	StalePaths    []string
}

func NewMemCache() *MemCache {
	return &MemCache{}
}

func (c *MemCache) Ping(ctx context.Context) error { return nil }

func (c *MemCache) GetCatalog(ctx context.Context) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.has {
		return nil, false, nil
	}
	return slices.Clone(c.catalog), true, nil
}

func (c *MemCache) SetCatalog(ctx context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = slices.Clone(payload)
	c.has = true
	return nil
}

func (c *MemCache) ClearCatalog(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog = nil
	c.has = false
	c.CatalogClears++
	return nil
}

func (c *MemCache) ClearTag(ctx context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ClearedTags = append(c.ClearedTags, tag)
	return nil
}

func (c *MemCache) RevalidatePath(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.StalePaths = append(c.StalePaths, path)
	return nil
}

// Snapshot returns copies of the recorded invalidations.
func (c *MemCache) Snapshot() (catalogClears int, tags, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CatalogClears, slices.Clone(c.ClearedTags), slices.Clone(c.StalePaths)
}
