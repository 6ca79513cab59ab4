package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// annIndexTable is the sqlite-vec virtual table backing the ANN cosine
// search over bus_contexts.embedding.
const annIndexTable = "bus_contexts_vec"

// EncodeEmbedding serializes a float32 vector to the little-endian binary
// blob format used both for the bus_contexts.embedding column and for
// inserts into the sqlite-vec ANN index.
func EncodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeEmbedding is the inverse of EncodeEmbedding.
func DecodeEmbedding(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// EnsureEmbeddingDimension ensures the configured embedding dimension is
// recorded and that the ANN cosine index matches it:
//   - the vector extension is loaded at process init (sqlite_vec.Auto());
//   - the bus_contexts.embedding column accepts vectors of dimension dim
//     (SQLite BLOB columns are untyped, so this step is a bookkeeping
//     record rather than a DDL ALTER);
//   - if 1 <= dim <= 2000, the ANN cosine index is (re)created;
//   - otherwise the ANN index is dropped and a warning logged.
//
// All steps are best-effort: a failure is logged at WARN and does not halt
// startup.
func (s *Store) EnsureEmbeddingDimension(ctx context.Context, dim int) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bus_vector_meta (id, dimension) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET dimension = excluded.dimension
	`, dim); err != nil {
		s.logger.Warn("failed to record embedding dimension", "error", err, "dimension", dim)
		return
	}

	if dim < 1 || dim > 2000 {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, annIndexTable)); err != nil {
			s.logger.Warn("failed to drop ANN index for out-of-range dimension", "error", err, "dimension", dim)
			return
		}
		s.logger.Warn("embedding dimension out of ANN-indexable range, index dropped", "dimension", dim)
		return
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, annIndexTable)); err != nil {
		s.logger.Warn("failed to drop stale ANN index", "error", err)
		return
	}
	createStmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE %s USING vec0(context_id TEXT PRIMARY KEY, embedding FLOAT[%d] distance_metric=cosine)`,
		annIndexTable, dim)
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		s.logger.Warn("failed to create ANN cosine index", "error", err, "dimension", dim)
		return
	}
}

// IndexEmbedding upserts the embedding for contextID into the ANN index.
// Best-effort: failures are logged at WARN (the index is a performance
// accelerator, not the source of truth — bus_contexts.embedding is).
func (s *Store) IndexEmbedding(ctx context.Context, contextID string, embedding []byte) {
	if len(embedding) == 0 {
		return
	}
	if _, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (context_id, embedding) VALUES (?, ?) ON CONFLICT(context_id) DO UPDATE SET embedding = excluded.embedding`, annIndexTable),
		contextID, embedding); err != nil {
		s.logger.Warn("failed to index embedding", "error", err, "context_id", contextID)
	}
}
