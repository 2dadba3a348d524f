package maintainer

import (
	"context"
	"sync"
	"time"
)

// Domain events published after mutations. Cache invalidation policy lives
// with the subscribers, not with the mutation path.
type Event interface{ event() }

type ProductsCreated struct{ IDs []string }

type ProductsUpdated struct{ IDs []string }

type ProductsDeleted struct {
	IDs []string

	// KeepCatalogCache suppresses the catalog-wide invalidation for this
	// deletion. Bulk callers set it and refresh once at the end.
	KeepCatalogCache bool
}

type CategoryChanged struct{ Name string }

type ProductLiked struct {
	ProductID string
	UserID    string
	Liked     bool
	Paths     []string
}

type AddedToCart struct{ ProductID string }

func (ProductsCreated) event() {}
func (ProductsUpdated) event() {}
func (ProductsDeleted) event() {}
func (CategoryChanged) event() {}
func (ProductLiked) event()    {}
func (AddedToCart) event()     {}

const publishTimeout = 5 * time.Second

// Bus is a fire-and-forget in-process event bus. Publish never blocks the
// mutation path; consumers tolerate a brief staleness window.
type Bus struct {
	mu   sync.RWMutex
	subs []func(context.Context, Event)
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(fn func(context.Context, Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]func(context.Context, Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	if len(subs) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		for _, fn := range subs {
			fn(ctx, ev)
		}
	}()
}
