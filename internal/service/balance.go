package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/observability"
)

// ErrExhaustedRetries is returned when every optimistic write attempt lost
// the version race.
var ErrExhaustedRetries = errors.New("exhausted balance update retries")

// BalanceStore is the versioned-row access the updater needs.
type BalanceStore interface {
	Get(ctx context.Context, virtualAccountID int64, balanceType domain.BalanceType) (*domain.VirtualAccountBalance, error)
	WriteIfVersionMatches(ctx context.Context, balance *domain.VirtualAccountBalance, expectedVersion int64) (bool, error)
}

const (
	defaultBalanceAttempts = 50
	defaultBalanceBackoff  = 10 * time.Millisecond
)

// BalanceUpdater applies entry movements to a versioned balance row with
// bounded optimistic retry. A movement is either fully applied or not at all.
type BalanceUpdater struct {
	store    BalanceStore
	attempts int
	backoff  time.Duration
}

func NewBalanceUpdater(store BalanceStore) *BalanceUpdater {
	return &BalanceUpdater{
		store:    store,
		attempts: defaultBalanceAttempts,
		backoff:  defaultBalanceBackoff,
	}
}

// WithTx rebinds the updater to a transactional balance store.
func (u *BalanceUpdater) WithTx(store BalanceStore) *BalanceUpdater {
	return &BalanceUpdater{store: store, attempts: u.attempts, backoff: u.backoff}
}

// UpdateBalance nets the signed amounts of entries into the pending and
// available buckets of one balance row. Pending entries move the pending
// bucket, settled entries the available one.
func (u *BalanceUpdater) UpdateBalance(ctx context.Context, virtualAccountID int64, balanceType domain.BalanceType, entries []domain.LedgerEntry) error {
	var availableDelta, pendingDelta int64
	for _, entry := range entries {
		movement := domain.SignedMinorUnits(entry)
		if entry.IsPending.Bool() {
			pendingDelta += movement
		} else {
			availableDelta += movement
		}
	}
	if availableDelta == 0 && pendingDelta == 0 {
		return nil
	}

	for attempt := 1; attempt <= u.attempts; attempt++ {
		balance, err := u.store.Get(ctx, virtualAccountID, balanceType)
		if err != nil {
			return fmt.Errorf("read %s balance: %w", balanceType, err)
		}

		version := balance.Version
		balance.AvailableBalance += availableDelta
		balance.PendingBalance += pendingDelta

		ok, err := u.store.WriteIfVersionMatches(ctx, balance, version)
		if err != nil {
			return fmt.Errorf("write %s balance: %w", balanceType, err)
		}
		if ok {
			return nil
		}

		observability.IncrementBalanceConflict()
		zap.L().Debug("balance version conflict, retrying",
			zap.Int64("virtualAccountId", virtualAccountID),
			zap.String("balanceType", string(balanceType)),
			zap.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(u.backoff):
		}
	}
	return fmt.Errorf("update %s balance for account %d: %w", balanceType, virtualAccountID, ErrExhaustedRetries)
}
