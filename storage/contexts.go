package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContextRow is a row in bus_contexts.
type ContextRow struct {
	ID           string
	OwnerModule  string
	SourceKey    string
	SummaryShort string
	SummaryLong  string
	KeyPoints    []string
	Embedding    []float32
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertContextInput carries the already-validated fields for a context
// upsert (truncation, embedding dimension check, and sourceKey defaulting
// are the context upserter's (C6) responsibility, not the store's).
type UpsertContextInput struct {
	OwnerModule  string
	SourceKey    string
	SummaryShort string
	SummaryLong  string
	KeyPoints    []string
	Embedding    []byte // nil if not accepted
}

// UpsertContext inserts a row with version=1, or, when (ownerModule,
// sourceKey) already exists, overwrites summaries/keyPoints/embedding and
// bumps version, in one transaction. It does not write the context-message
// link (see LinkContextMessage). Returns the row's id and resulting version.
func (s *Store) UpsertContext(ctx context.Context, in UpsertContextInput, now time.Time) (id string, version int, err error) {
	keyPointsJSON, err := json.Marshal(in.KeyPoints)
	if err != nil {
		return "", 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var existingID string
	var existingVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT id, version FROM bus_contexts WHERE owner_module = ? AND source_key = ?
	`, in.OwnerModule, in.SourceKey).Scan(&existingID, &existingVersion)

	switch {
	case err == sql.ErrNoRows:
		id = uuid.New().String()
		version = 1
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bus_contexts (id, owner_module, source_key, summary_short, summary_long, key_points_json, embedding, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, id, in.OwnerModule, in.SourceKey, in.SummaryShort, in.SummaryLong, string(keyPointsJSON),
			nullableBytes(in.Embedding), version, formatTime(now), formatTime(now))
		if err != nil {
			return "", 0, err
		}
	case err != nil:
		return "", 0, err
	default:
		id = existingID
		version = existingVersion + 1
		_, err = tx.ExecContext(ctx, `
			UPDATE bus_contexts
			SET summary_short = ?, summary_long = ?, key_points_json = ?, embedding = ?, version = ?, updated_at = ?
			WHERE id = ?
		`, in.SummaryShort, in.SummaryLong, string(keyPointsJSON), nullableBytes(in.Embedding), version,
			formatTime(now), id)
		if err != nil {
			return "", 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", 0, err
	}
	return id, version, nil
}

// LinkContextMessage inserts a context-message link row, ignoring the
// insert if the (contextId, messageId) pair already exists// step 5, §3 "Context-message link").
func (s *Store) LinkContextMessage(ctx context.Context, contextID, messageID string, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_context_messages (context_id, message_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(context_id, message_id) DO NOTHING
	`, contextID, messageID, formatTime(now))
	return err
}

// GetContextByKey fetches a context row by its natural key, used by tests
// and operator tooling.
func (s *Store) GetContextByKey(ctx context.Context, ownerModule, sourceKey string) (*ContextRow, error) {
	var row ContextRow
	var keyPointsJSON sql.NullString
	var embedding []byte
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_module, source_key, summary_short, summary_long, key_points_json, embedding, version, created_at, updated_at
		FROM bus_contexts WHERE owner_module = ? AND source_key = ?
	`, ownerModule, sourceKey).Scan(&row.ID, &row.OwnerModule, &row.SourceKey, &row.SummaryShort, &row.SummaryLong,
		&keyPointsJSON, &embedding, &row.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if keyPointsJSON.Valid && keyPointsJSON.String != "" {
		if err := json.Unmarshal([]byte(keyPointsJSON.String), &row.KeyPoints); err != nil {
			return nil, err
		}
	}
	row.Embedding = DecodeEmbedding(embedding)
	row.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	row.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return &row, nil
}
