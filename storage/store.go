// Package storage implements the worker's persistence layer: the durable
// side of the message bus (archived messages, replay dedupe) and the job
// lifecycle tables (job_runs, job_states), plus the per-source context
// table with its embedding column.
//
// The backing engine is SQLite with the sqlite-vec extension loaded for
// vector storage and ANN search.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Registers the vec0 virtual table module globally for all connections,
	// used by EnsureEmbeddingDimension for the context ANN cosine index.
	sqlite_vec.Auto()
}

// Store wraps a SQLite connection pool with the worker's schema and query
// methods. It is safe for concurrent use from every component (archiver,
// dispatcher, context upserter, replayer, context-store manager).
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path and
// ensures the base schema exists. Schema creation uses idempotent
// CREATE TABLE IF NOT EXISTS statements: failures here are treated as
// boot-fatal since the worker cannot operate without its tables.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS bus_messages (
	id TEXT PRIMARY KEY,
	source_module TEXT NOT NULL,
	source_stream TEXT,
	created_at TEXT NOT NULL,
	raw_json TEXT NOT NULL,
	tags_json TEXT,
	from_field TEXT,
	message TEXT
);
CREATE INDEX IF NOT EXISTS idx_bus_messages_created_at ON bus_messages(created_at);
CREATE INDEX IF NOT EXISTS idx_bus_messages_source_module ON bus_messages(source_module);

CREATE TABLE IF NOT EXISTS bus_reemit_dedupe (
	message_id TEXT PRIMARY KEY,
	last_emitted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bus_reemit_dedupe_last_emitted ON bus_reemit_dedupe(last_emitted_at);

CREATE TABLE IF NOT EXISTS bus_contexts (
	id TEXT PRIMARY KEY,
	owner_module TEXT NOT NULL,
	source_key TEXT NOT NULL,
	summary_short TEXT NOT NULL,
	summary_long TEXT NOT NULL,
	key_points_json TEXT,
	embedding BLOB,
	version INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE(owner_module, source_key)
);

CREATE TABLE IF NOT EXISTS bus_context_messages (
	context_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(context_id, message_id)
);

CREATE TABLE IF NOT EXISTS job_runs (
	id TEXT PRIMARY KEY,
	module TEXT NOT NULL,
	queue TEXT NOT NULL,
	job TEXT NOT NULL,
	status TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	trigger_json TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	error TEXT,
	metrics_json TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_runs_module_queue_job ON job_runs(module, queue, job);

CREATE TABLE IF NOT EXISTS job_states (
	module TEXT NOT NULL,
	job TEXT NOT NULL,
	last_run_at TEXT,
	last_success_at TEXT,
	last_error_at TEXT,
	last_error TEXT,
	last_metrics_json TEXT,
	PRIMARY KEY (module, job)
);

CREATE TABLE IF NOT EXISTS bus_vector_meta (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	dimension INTEGER NOT NULL
);
`

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}
