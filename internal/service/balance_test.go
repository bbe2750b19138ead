package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr01/ledgee/internal/domain"
)

type fakeBalanceStore struct {
	mu        sync.Mutex
	balance   domain.VirtualAccountBalance
	conflicts int // number of writes to reject before accepting
	getErr    error
	writes    int
}

func (f *fakeBalanceStore) Get(_ context.Context, _ int64, _ domain.BalanceType) (*domain.VirtualAccountBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	row := f.balance
	return &row, nil
}

func (f *fakeBalanceStore) WriteIfVersionMatches(_ context.Context, balance *domain.VirtualAccountBalance, expectedVersion int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.conflicts > 0 {
		f.conflicts--
		f.balance.Version++ // simulate a concurrent writer winning
		return false, nil
	}
	if expectedVersion != f.balance.Version {
		return false, nil
	}
	f.balance = *balance
	f.balance.Version = expectedVersion + 1
	return true, nil
}

func entryFor(amount int64, entryType domain.EntryType, pending domain.IsPending) domain.LedgerEntry {
	return domain.LedgerEntry{
		AccountID: 1,
		Amount:    amount,
		EntryType: entryType,
		IsPending: pending,
	}
}

func TestUpdateBalanceSplitsBuckets(t *testing.T) {
	store := &fakeBalanceStore{}
	updater := NewBalanceUpdater(store)

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceProjected, []domain.LedgerEntry{
		entryFor(1000, domain.CreditRecord, domain.PendingNo),
		entryFor(250, domain.CreditRecord, domain.PendingYes),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1000), store.balance.AvailableBalance)
	assert.Equal(t, int64(250), store.balance.PendingBalance)
	assert.Equal(t, int64(1), store.balance.Version)
}

func TestUpdateBalanceDebitCreditNetsToZero(t *testing.T) {
	store := &fakeBalanceStore{}
	updater := NewBalanceUpdater(store)

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
		entryFor(500, domain.DebitRecord, domain.PendingNo),
		entryFor(500, domain.CreditRecord, domain.PendingNo),
	})
	require.NoError(t, err)

	// A matched pair moves nothing, and a zero delta skips the write.
	assert.Equal(t, int64(0), store.balance.AvailableBalance)
	assert.Equal(t, 0, store.writes)
}

func TestUpdateBalanceVoidReversesLeg(t *testing.T) {
	store := &fakeBalanceStore{}
	updater := NewBalanceUpdater(store)

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
		entryFor(300, domain.DebitRecord, domain.PendingNo),
		entryFor(300, domain.DebitRecordVoid, domain.PendingNo),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), store.balance.AvailableBalance)
}

func TestUpdateBalanceRetriesOnVersionConflict(t *testing.T) {
	store := &fakeBalanceStore{conflicts: 3}
	updater := NewBalanceUpdater(store)
	updater.backoff = time.Millisecond

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
		entryFor(100, domain.CreditRecord, domain.PendingNo),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, store.writes)
	assert.Equal(t, int64(100), store.balance.AvailableBalance)
}

func TestUpdateBalanceExhaustsRetries(t *testing.T) {
	store := &fakeBalanceStore{conflicts: 1 << 20}
	updater := NewBalanceUpdater(store)
	updater.attempts = 5
	updater.backoff = time.Millisecond

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
		entryFor(100, domain.CreditRecord, domain.PendingNo),
	})
	require.ErrorIs(t, err, ErrExhaustedRetries)
	assert.Equal(t, 5, store.writes)
	assert.Equal(t, int64(0), store.balance.AvailableBalance)
}

func TestUpdateBalancePropagatesReadError(t *testing.T) {
	readErr := errors.New("connection reset")
	store := &fakeBalanceStore{getErr: readErr}
	updater := NewBalanceUpdater(store)

	err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
		entryFor(100, domain.CreditRecord, domain.PendingNo),
	})
	require.ErrorIs(t, err, readErr)
}

func TestUpdateBalanceConcurrentWritersAllApply(t *testing.T) {
	store := &fakeBalanceStore{}
	updater := NewBalanceUpdater(store)
	updater.backoff = time.Millisecond

	const writers = 20
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := updater.UpdateBalance(context.Background(), 1, domain.BalanceActual, []domain.LedgerEntry{
				entryFor(10, domain.CreditRecord, domain.PendingNo),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10*writers), store.balance.AvailableBalance)
	assert.Equal(t, int64(writers), store.balance.Version)
}
