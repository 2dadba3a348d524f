package cache

import "context"

// Tags mirror the mutation kinds the presentation layer caches by.
const (
	TagCreateProduct = "createProduct"
	TagUpdateProduct = "updateProduct"
	TagDeleteProduct = "deleteProduct"
	TagLikeProduct   = "likeProduct"
	TagAddToCart     = "addToCart"
)

// Cache is the presentation-layer cache the invalidation signal feeds.
// Consumers tolerate a brief staleness window; none of these calls are on
// the mutation path.
type Cache interface {
	Ping(ctx context.Context) error

	GetCatalog(ctx context.Context) ([]byte, bool, error)
	SetCatalog(ctx context.Context, payload []byte) error
	ClearCatalog(ctx context.Context) error

	ClearTag(ctx context.Context, tag string) error

	// RevalidatePath marks a rendered route as stale.
	RevalidatePath(ctx context.Context, path string) error
}
