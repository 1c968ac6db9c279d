package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SequenceRepository manages durable per-prefix counters. Uniqueness under
// concurrent callers hinges on the increment being a single atomic statement
// at the storage layer; it must never be split into a read and a write.
type SequenceRepository struct {
	db *sqlx.DB
}

// NewSequenceRepository constructs a SequenceRepository.
func NewSequenceRepository(db *sqlx.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// IncrementAndGet atomically advances the counter for the prefix and returns
// the new value. An unseen prefix is seeded at 1. Two concurrent calls with
// the same prefix always observe distinct, strictly increasing values.
func (r *SequenceRepository) IncrementAndGet(ctx context.Context, prefix string) (int64, error) {
	const query = `INSERT INTO sequence_counters (prefix, value, updated_at)
        VALUES ($1, 1, NOW())
        ON CONFLICT (prefix) DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
        RETURNING value`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, prefix); err != nil {
		return 0, fmt.Errorf("increment sequence %q: %w", prefix, err)
	}
	return value, nil
}

// Peek returns the last committed counter value without mutating it, or 0 if
// the prefix has never been seen. The result may be stale by the time the
// caller acts on it.
func (r *SequenceRepository) Peek(ctx context.Context, prefix string) (int64, error) {
	const query = `SELECT value FROM sequence_counters WHERE prefix = $1`
	var value int64
	if err := r.db.GetContext(ctx, &value, query, prefix); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("peek sequence %q: %w", prefix, err)
	}
	return value, nil
}
