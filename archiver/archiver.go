// Package archiver implements the bus archiver: it
// subscribes to every module's messageCreated subject and persists each
// normalized message into the durable bus_messages table.
package archiver

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/metrics"
	"github.com/jhacksman/FeedEater-sub001/storage"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// messageCreatedWildcard subscribes across every module's messageCreated
// subject family in one call, rather than one subscription per discovered
// module, so a module that starts publishing after boot is still archived.
const messageCreatedWildcard = "feedeater.*.messageCreated"

// Archiver subscribes to feedeater.*.messageCreated and persists each
// accepted message.
type Archiver struct {
	store  *storage.Store
	logger *slog.Logger
}

// New constructs an Archiver.
func New(store *storage.Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger}
}

// Start subscribes to the messageCreated wildcard and begins archiving.
// The returned stop func unsubscribes.
func (a *Archiver) Start(ctx context.Context, b *bus.Bus) (stop func(), err error) {
	return b.Subscribe(messageCreatedWildcard, func(subject string, data []byte) {
		a.handle(ctx, subject, data)
	})
}

func (a *Archiver) handle(ctx context.Context, subject string, data []byte) {
	msg, err := wire.DecodeMessageCreated(data)
	if err != nil {
		a.logger.Error("failed to decode messageCreated payload, dropping", "subject", subject, "error", err)
		return
	}

	// rawJson stores the normalized message itself, re-marshaled, rather
	// than the as-received bytes: the replayer decodes rawJson back into a
	// bare NormalizedMessage, and the publisher may
	// have sent either wire form.
	raw, err := json.Marshal(msg)
	if err != nil {
		a.logger.Error("failed to re-encode normalized message, dropping", "subject", subject, "message_id", msg.ID, "error", err)
		return
	}

	inserted, err := a.store.ArchiveMessage(ctx, msg, raw)
	if err != nil {
		a.logger.Error("failed to persist archived message, dropping", "subject", subject, "message_id", msg.ID, "error", err)
		return
	}
	if inserted {
		metrics.ArchivedMessagesTotal.WithLabelValues(msg.Source.Module).Inc()
	}
}
