package repository

import (
	"context"
	"fmt"

	"github.com/zr01/ledgee/internal/domain"
)

// Names of the shared Postgres sequences backing the id allocators.
const (
	LedgerSequence  = "app_ledger_id_seq"
	AccountSequence = "app_account_id_seq"
)

// txRunner scopes a unit of work to one database transaction. *Store
// satisfies it.
type txRunner interface {
	RunInTx(ctx context.Context, fn func(tx DBTX) error) error
}

// SequenceRepository reserves contiguous id ranges from Postgres sequences.
type SequenceRepository struct {
	store txRunner
}

func NewSequenceRepository(store txRunner) *SequenceRepository {
	return &SequenceRepository{store: store}
}

// ReserveRange advances the named sequence by batchSize and returns the
// reserved half-open range. The setval statement alone is not atomic across
// sessions: the inner last_value read and the outer setval can interleave,
// handing two sessions the same range. The reservation therefore runs in a
// transaction holding an advisory lock keyed by the sequence name, so
// concurrent reservations serialize and never overlap.
func (r *SequenceRepository) ReserveRange(ctx context.Context, sequenceName string, batchSize int64) (domain.SequenceRange, error) {
	var end int64
	err := r.store.RunInTx(ctx, func(tx DBTX) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sequenceName); err != nil {
			return fmt.Errorf("lock sequence %s: %w", sequenceName, err)
		}
		query := fmt.Sprintf(`
		SELECT setval('%s', (SELECT last_value + $1 FROM %s))`, sequenceName, sequenceName)
		return tx.QueryRow(ctx, query, batchSize).Scan(&end)
	})
	if err != nil {
		return domain.SequenceRange{}, fmt.Errorf("reserve %d ids from %s: %w", batchSize, sequenceName, err)
	}
	return domain.SequenceRange{Start: end - batchSize, End: end}, nil
}

// Reserver binds a sequence name into the allocator's refill callback shape.
func (r *SequenceRepository) Reserver(sequenceName string) func(ctx context.Context, batchSize int64) (domain.SequenceRange, error) {
	return func(ctx context.Context, batchSize int64) (domain.SequenceRange, error) {
		return r.ReserveRange(ctx, sequenceName, batchSize)
	}
}
