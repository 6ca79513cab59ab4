package replay

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/storage"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.db")
	store, err := storage.Open(context.Background(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func openTestBus(t *testing.T) *bus.Bus {
	t.Helper()
	b, err := bus.Connect("")
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Drain(ctx)
	})
	return b
}

func TestRunRepublishesArchivedMessagesWithinWindow(t *testing.T) {
	store := openTestStore(t)
	b := openTestBus(t)
	ctx := context.Background()

	msg := wire.NormalizedMessage{ID: "m-1", CreatedAt: time.Now(), Source: wire.MessageSource{Module: "kalshi"}, Message: "hi"}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = store.ArchiveMessage(ctx, msg, raw)
	require.NoError(t, err)

	received := make(chan wire.MessageCreatedEnvelope, 1)
	unsub, err := b.Subscribe("feedeater.kalshi.messageCreated", func(subject string, data []byte) {
		var env wire.MessageCreatedEnvelope
		if err := json.Unmarshal(data, &env); err == nil {
			received <- env
		}
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, Run(ctx, b, store, 60, nil))

	select {
	case env := <-received:
		assert.Equal(t, "m-1", env.Message.ID)
		require.NotNil(t, env.Message.Realtime)
		assert.False(t, *env.Message.Realtime)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for replayed message")
	}
}

func TestRunSecondPassIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	b := openTestBus(t)
	ctx := context.Background()

	msg := wire.NormalizedMessage{ID: "m-1", CreatedAt: time.Now(), Source: wire.MessageSource{Module: "kalshi"}}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = store.ArchiveMessage(ctx, msg, raw)
	require.NoError(t, err)

	received := make(chan struct{}, 8)
	unsub, err := b.Subscribe("feedeater.kalshi.messageCreated", func(subject string, data []byte) {
		received <- struct{}{}
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, Run(ctx, b, store, 60, nil))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first replay")
	}

	require.NoError(t, Run(ctx, b, store, 60, nil))

	select {
	case <-received:
		t.Fatal("second replay pass must not re-publish an already-reemitted message")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRunSkipsMessagesOutsideWindow(t *testing.T) {
	store := openTestStore(t)
	b := openTestBus(t)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	msg := wire.NormalizedMessage{ID: "old-1", CreatedAt: old, Source: wire.MessageSource{Module: "kalshi"}}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	_, err = store.ArchiveMessage(ctx, msg, raw)
	require.NoError(t, err)

	received := make(chan struct{}, 1)
	unsub, err := b.Subscribe("feedeater.kalshi.messageCreated", func(subject string, data []byte) {
		received <- struct{}{}
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, Run(ctx, b, store, 60, nil))

	select {
	case <-received:
		t.Fatal("a message outside the lookback window must not be replayed")
	case <-time.After(300 * time.Millisecond):
	}
}
