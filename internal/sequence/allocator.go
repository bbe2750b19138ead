// Package sequence issues unique formatted public identifiers by reserving
// batched ranges from a shared external counter. One Allocator instance owns
// one id prefix; instances are injected where ids are needed, never shared
// through package state.
package sequence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/observability"
)

// ReserveRange reserves a half-open range [start, end) from the backing
// counter. The reservation must be a single atomic operation at the storage
// layer so that no two allocator instances ever receive overlapping ranges.
type ReserveRange func(ctx context.Context, batchSize int64) (domain.SequenceRange, error)

// Allocator hands out identifiers from a locally reserved range. The hot
// path is a single atomic increment; only the refill takes a lock, and at
// most one refill is in flight at a time.
type Allocator struct {
	prefix    string
	batchSize int64
	reserve   ReserveRange
	format    Formatter

	cursor atomic.Int64
	end    atomic.Int64
	mu     sync.Mutex
}

// NewAllocator builds an allocator for one prefix. The first NextVal call
// performs the initial range reservation.
func NewAllocator(prefix string, batchSize int64, format Formatter, reserve ReserveRange) *Allocator {
	if batchSize <= 0 {
		batchSize = 100
	}
	a := &Allocator{
		prefix:    prefix,
		batchSize: batchSize,
		reserve:   reserve,
		format:    format,
	}
	// cursor == end marks the range as exhausted.
	a.cursor.Store(0)
	a.end.Store(0)
	return a
}

// NextVal returns the next identifier for this prefix. It is safe for any
// number of concurrent callers and never returns the same value twice for
// the lifetime of the backing counter. A failed range reservation surfaces
// synchronously; no identifier is skipped or fabricated.
func (a *Allocator) NextVal(ctx context.Context) (string, error) {
	for {
		seq := a.cursor.Add(1) - 1
		if seq < a.end.Load() {
			return a.format.Format(a.prefix, seq), nil
		}

		if err := a.refill(ctx, seq); err != nil {
			return "", err
		}
	}
}

// refill reserves a fresh range unless another caller already did while we
// waited for the lock.
func (a *Allocator) refill(ctx context.Context, exhaustedSeq int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cursor.Load() < a.end.Load() || exhaustedSeq < a.end.Load() {
		// A concurrent caller refilled first; retry on the new range.
		return nil
	}

	reserved, err := a.reserve(ctx, a.batchSize)
	if err != nil {
		return fmt.Errorf("reserve id range for prefix %s: %w", a.prefix, err)
	}
	if reserved.End <= reserved.Start {
		return fmt.Errorf("reserve id range for prefix %s: empty range [%d,%d)", a.prefix, reserved.Start, reserved.End)
	}

	observability.IncrementAllocatorRefill(a.prefix)
	a.cursor.Store(reserved.Start)
	a.end.Store(reserved.End)
	return nil
}

// Prefix returns the id prefix this allocator owns.
func (a *Allocator) Prefix() string { return a.prefix }
