package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertContextInsertThenUpdate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id1, v1, err := store.UpsertContext(ctx, UpsertContextInput{
		OwnerModule:  "kalshi",
		SourceKey:    "market-1",
		SummaryShort: "short",
		SummaryLong:  "long",
		KeyPoints:    []string{"a", "b"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, v1)

	id2, v2, err := store.UpsertContext(ctx, UpsertContextInput{
		OwnerModule:  "kalshi",
		SourceKey:    "market-1",
		SummaryShort: "short v2",
		SummaryLong:  "long v2",
	}, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, id1, id2, "same (ownerModule, sourceKey) must resolve to the same row")
	assert.Equal(t, 2, v2)

	row, err := store.GetContextByKey(ctx, "kalshi", "market-1")
	require.NoError(t, err)
	assert.Equal(t, "short v2", row.SummaryShort)
	assert.Equal(t, 2, row.Version)
}

func TestGetContextByKeyNotFound(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetContextByKey(context.Background(), "kalshi", "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLinkContextMessageIgnoresDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, _, err := store.UpsertContext(ctx, UpsertContextInput{
		OwnerModule: "kalshi", SourceKey: "market-1", SummaryShort: "s", SummaryLong: "l",
	}, now)
	require.NoError(t, err)

	require.NoError(t, store.LinkContextMessage(ctx, id, "m-1", now))
	require.NoError(t, store.LinkContextMessage(ctx, id, "m-1", now))
}

func TestEncodeDecodeEmbeddingRoundtrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	blob := EncodeEmbedding(v)
	got := DecodeEmbedding(blob)
	assert.Equal(t, v, got)
}
