package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jhacksman/FeedEater-sub001/wire"
)

// ArchivedMessage is a row in bus_messages.
type ArchivedMessage struct {
	ID           string
	SourceModule string
	SourceStream string
	CreatedAt    time.Time
	RawJSON      []byte
	TagsJSON     []byte
	From         string
	Message      string
}

// ArchiveMessage inserts msg into bus_messages, ignoring the insert if the
// id already exists. Returns
// whether a new row was inserted.
func (s *Store) ArchiveMessage(ctx context.Context, msg wire.NormalizedMessage, raw []byte) (bool, error) {
	var tagsJSON []byte
	if len(msg.Tags) > 0 {
		var err error
		tagsJSON, err = json.Marshal(msg.Tags)
		if err != nil {
			return false, err
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_messages (id, source_module, source_stream, created_at, raw_json, tags_json, from_field, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, msg.ID, msg.Source.Module, nullableString(msg.Source.Stream), formatTime(msg.CreatedAt),
		string(raw), nullableBytes(tagsJSON), nullableString(msg.From), msg.Message)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListMessagesSince returns archived messages with createdAt >= since,
// ordered by createdAt ascending, excluding any message that has a dedupe
// row (expired rows count too; replay purges them before calling this).
func (s *Store) ListMessagesSince(ctx context.Context, since time.Time) ([]ArchivedMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.source_module, m.source_stream, m.created_at, m.raw_json
		FROM bus_messages m
		LEFT JOIN bus_reemit_dedupe d ON d.message_id = m.id
		WHERE m.created_at >= ? AND d.message_id IS NULL
		ORDER BY m.created_at ASC
	`, formatTime(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedMessage
	for rows.Next() {
		var m ArchivedMessage
		var sourceStream sql.NullString
		var createdAt string
		var raw string
		if err := rows.Scan(&m.ID, &m.SourceModule, &sourceStream, &createdAt, &raw); err != nil {
			return nil, err
		}
		m.SourceStream = sourceStream.String
		m.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		m.RawJSON = []byte(raw)
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
