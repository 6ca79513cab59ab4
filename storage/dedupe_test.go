package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeDedupeOlderThan(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.MarkReemitted(ctx, "old", now.Add(-2*time.Hour)))
	require.NoError(t, store.MarkReemitted(ctx, "recent", now))

	n, err := store.PurgeDedupeOlderThan(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMarkReemittedUpsertsLastEmittedAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	t0 := time.Now()

	require.NoError(t, store.MarkReemitted(ctx, "m-1", t0))
	require.NoError(t, store.MarkReemitted(ctx, "m-1", t0.Add(time.Hour)))

	// A cutoff just after t0 but before t0+1h must not purge the refreshed row.
	n, err := store.PurgeDedupeOlderThan(ctx, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
