// Package contextstore implements the context-store manager: a thin
// boot-time wrapper around storage.EnsureEmbeddingDimension, called once
// the settings client has reported the configured embedding dimension.
package contextstore

import (
	"context"

	"github.com/jhacksman/FeedEater-sub001/storage"
)

// Ensure ensures the vector extension, embedding column, and ANN index
// match dim. All operations are idempotent and best-effort;
// failures are logged inside storage.EnsureEmbeddingDimension and never
// returned, so this call cannot fail the boot sequence.
func Ensure(ctx context.Context, store *storage.Store, dim int) {
	store.EnsureEmbeddingDimension(ctx, dim)
}
