// Package replay implements the startup replayer: it
// purges stale dedupe rows, then re-publishes archived messages within the
// configured lookback window that have not yet been re-emitted, so late
// subscribers see a bounded history.
package replay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/metrics"
	"github.com/jhacksman/FeedEater-sub001/storage"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// Run executes one replay pass. lookbackMinutes is
// dashboard_bus_history_minutes (already normalized: negative → 60 is the
// caller's responsibility, handled by settings.ParseSystemSettings).
func Run(ctx context.Context, b *bus.Bus, store *storage.Store, lookbackMinutes int, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now()
	cutoff := now.Add(-time.Duration(lookbackMinutes) * time.Minute)

	if _, err := store.PurgeDedupeOlderThan(ctx, cutoff); err != nil {
		return err
	}

	messages, err := store.ListMessagesSince(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, m := range messages {
		var normalized wire.NormalizedMessage
		if err := json.Unmarshal(m.RawJSON, &normalized); err != nil {
			logger.Warn("failed to decode archived message for replay, skipping", "message_id", m.ID, "error", err)
			continue
		}
		realtime := false
		normalized.Realtime = &realtime

		env := wire.MessageCreatedEnvelope{Type: "MessageCreated", Message: normalized}
		payload, err := json.Marshal(env)
		if err != nil {
			logger.Warn("failed to encode replay envelope, skipping", "message_id", m.ID, "error", err)
			continue
		}

		subject := bus.MessageCreatedSubject(normalized.Source.Module)
		if err := b.Publish(subject, payload); err != nil {
			logger.Warn("failed to publish replay message, skipping", "message_id", m.ID, "subject", subject, "error", err)
			continue
		}

		if err := store.MarkReemitted(ctx, m.ID, now); err != nil {
			logger.Warn("failed to mark message reemitted", "message_id", m.ID, "error", err)
			continue
		}
		metrics.ReplayedMessagesTotal.WithLabelValues(normalized.Source.Module).Inc()
	}

	return nil
}
