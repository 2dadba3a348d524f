package cache

import (
	"context"

	"go.uber.org/zap"

	"FurniStore/internal/maintainer"
)

// Subscriber owns the invalidation policy: it maps domain events published by
// the maintainer to cache operations. Failures are logged and dropped; the
// signal is fire-and-forget.
type Subscriber struct {
	cache Cache
	log   *zap.Logger
}

func NewSubscriber(c Cache, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{cache: c, log: log}
}

func (s *Subscriber) Handle(ctx context.Context, ev maintainer.Event) {
	switch e := ev.(type) {
	case maintainer.ProductsCreated:
		s.clearCatalog(ctx)
		s.clearTag(ctx, TagCreateProduct)

	case maintainer.ProductsUpdated:
		s.clearCatalog(ctx)
		s.clearTag(ctx, TagUpdateProduct)

	case maintainer.ProductsDeleted:
		if !e.KeepCatalogCache {
			s.clearCatalog(ctx)
		}
		s.clearTag(ctx, TagDeleteProduct)

	case maintainer.CategoryChanged:
		s.clearCatalog(ctx)
		s.clearTag(ctx, TagUpdateProduct)

	case maintainer.ProductLiked:
		s.clearTag(ctx, TagLikeProduct)
		for _, path := range e.Paths {
			if path == "" {
				continue
			}
			if err := s.cache.RevalidatePath(ctx, path); err != nil {
				s.log.Warn("revalidate path failed", zap.String("path", path), zap.Error(err))
			}
		}

	case maintainer.AddedToCart:
		s.clearTag(ctx, TagAddToCart)
	}
}

func (s *Subscriber) clearCatalog(ctx context.Context) {
	if err := s.cache.ClearCatalog(ctx); err != nil {
		s.log.Warn("clear catalog cache failed", zap.Error(err))
	}
}

func (s *Subscriber) clearTag(ctx context.Context, tag string) {
	if err := s.cache.ClearTag(ctx, tag); err != nil {
		s.log.Warn("clear tag failed", zap.String("tag", tag), zap.Error(err))
	}
}
