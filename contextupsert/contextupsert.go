// Package contextupsert implements the context upserter: it
// subscribes to every module's contextUpdated subject, applies the five
// processing rules (sourceKey defaulting, summary truncation, embedding
// dimension gating, versioned upsert, optional link row), and persists the
// result.
package contextupsert

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/metrics"
	"github.com/jhacksman/FeedEater-sub001/storage"
)

// summaryShortMaxChars is the UTF-8 rune cap on summaryShort.
const summaryShortMaxChars = 128

// Upserter subscribes to feedeater.*.contextUpdated and applies context
// updates to the store.
type Upserter struct {
	store    *storage.Store
	embedDim int
	nowFunc  func() time.Time
	logger   *slog.Logger
}

// New constructs an Upserter. embedDim is the currently configured
// embedding dimension.
func New(store *storage.Store, embedDim int, logger *slog.Logger) *Upserter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Upserter{store: store, embedDim: embedDim, nowFunc: time.Now, logger: logger}
}

// SetEmbedDim replaces the dimension used for rule 3's equality check. The
// orchestrator sets the dimension once through New and does not call this.
func (u *Upserter) SetEmbedDim(dim int) {
	u.embedDim = dim
}

type contextPayload struct {
	OwnerModule  string    `json:"ownerModule"`
	SourceKey    string    `json:"sourceKey,omitempty"`
	SummaryShort string    `json:"summaryShort"`
	SummaryLong  string    `json:"summaryLong"`
	KeyPoints    []string  `json:"keyPoints,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

type contextUpdatedEvent struct {
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	MessageID string         `json:"messageId,omitempty"`
	Context   contextPayload `json:"context"`
}

// Start subscribes to the contextUpdated wildcard.
func (u *Upserter) Start(ctx context.Context, b *bus.Bus) (stop func(), err error) {
	return b.Subscribe(bus.ContextUpdatedWildcard, func(subject string, data []byte) {
		u.handle(ctx, subject, data)
	})
}

func (u *Upserter) handle(ctx context.Context, subject string, data []byte) {
	var ev contextUpdatedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		u.logger.Warn("failed to decode contextUpdated event, dropping", "subject", subject, "error", err)
		return
	}

	sourceKey := ev.Context.SourceKey
	if sourceKey == "" {
		sourceKey = ev.MessageID
	}
	if sourceKey == "" {
		sourceKey = uuid.New().String()
	}

	summaryShort := truncateUTF8(ev.Context.SummaryShort, summaryShortMaxChars)

	var embeddingBlob []byte
	if len(ev.Context.Embedding) > 0 && len(ev.Context.Embedding) == u.embedDim {
		embeddingBlob = storage.EncodeEmbedding(ev.Context.Embedding)
	}

	now := u.nowFunc()
	id, version, err := u.store.UpsertContext(ctx, storage.UpsertContextInput{
		OwnerModule:  ev.Context.OwnerModule,
		SourceKey:    sourceKey,
		SummaryShort: summaryShort,
		SummaryLong:  ev.Context.SummaryLong,
		KeyPoints:    ev.Context.KeyPoints,
		Embedding:    embeddingBlob,
	}, now)
	if err != nil {
		u.logger.Warn("failed to upsert context, dropping", "subject", subject, "owner_module", ev.Context.OwnerModule, "error", err)
		metrics.ContextUpsertsTotal.WithLabelValues(ev.Context.OwnerModule, "dropped").Inc()
		return
	}

	result := "updated"
	if version == 1 {
		result = "inserted"
	}
	metrics.ContextUpsertsTotal.WithLabelValues(ev.Context.OwnerModule, result).Inc()

	if embeddingBlob != nil {
		u.store.IndexEmbedding(ctx, id, embeddingBlob)
	}

	if ev.MessageID != "" {
		if err := u.store.LinkContextMessage(ctx, id, ev.MessageID, now); err != nil {
			u.logger.Warn("failed to link context to message", "context_id", id, "message_id", ev.MessageID, "error", err)
		}
	}
}

func truncateUTF8(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes])
}
