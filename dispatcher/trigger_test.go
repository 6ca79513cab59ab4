package dispatcher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

func TestSubscribeExternalTriggersRepublishesAsJobRun(t *testing.T) {
	b, err := bus.Connect("")
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = b.Drain(ctx)
	}()

	bindings := []ExternalTriggerBinding{
		{Module: "kalshi", Queue: "ingest", Job: "onMessage", Subject: "feedeater.upstream.messageCreated"},
	}
	stop, err := SubscribeExternalTriggers(b, bindings, nil)
	require.NoError(t, err)
	defer stop()

	received := make(chan wire.JobRunEvent, 1)
	unsub, err := b.Subscribe(bus.JobRunSubject("kalshi", "ingest", "onMessage"), func(subject string, data []byte) {
		var ev wire.JobRunEvent
		if err := json.Unmarshal(data, &ev); err == nil {
			received <- ev
		}
	})
	require.NoError(t, err)
	defer unsub()

	msg := wire.NormalizedMessage{ID: "m-1", Source: wire.MessageSource{Module: "upstream"}}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, b.Publish("feedeater.upstream.messageCreated", data))

	select {
	case ev := <-received:
		assert.Equal(t, "kalshi", ev.Module)
		assert.Equal(t, "onMessage", ev.Job)
		assert.Equal(t, wire.TriggerEvent, ev.Trigger.Type)
		assert.Equal(t, "m-1", ev.Trigger.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for re-published job-run event")
	}
}
