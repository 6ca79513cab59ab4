package storage

import (
	"context"
	"time"
)

// PurgeDedupeOlderThan deletes bus_reemit_dedupe rows whose lastEmittedAt
// predates cutoff.
func (s *Store) PurgeDedupeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bus_reemit_dedupe WHERE last_emitted_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkReemitted upserts a dedupe row recording that messageID was just
// re-emitted, so a subsequent replay pass within the lookback window skips
// it.
func (s *Store) MarkReemitted(ctx context.Context, messageID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_reemit_dedupe (message_id, last_emitted_at)
		VALUES (?, ?)
		ON CONFLICT(message_id) DO UPDATE SET last_emitted_at = excluded.last_emitted_at
	`, messageID, formatTime(at))
	return err
}
