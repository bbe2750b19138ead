package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr01/ledgee/internal/domain"
)

type fakeReconcileStore struct {
	groups      map[string][]domain.LedgerEntry
	scanErr     error
	entriesErr  map[string]error
	applied     [][]StatusTransition
	applyCalls  int
	applyErrFor string
}

func newFakeReconcileStore() *fakeReconcileStore {
	return &fakeReconcileStore{
		groups:     map[string][]domain.LedgerEntry{},
		entriesErr: map[string]error{},
	}
}

func (f *fakeReconcileStore) StaleReferenceIDs(_ context.Context, _ time.Duration, _ int) ([]string, error) {
	if f.scanErr != nil {
		return nil, f.scanErr
	}
	var refs []string
	for ref := range f.groups {
		refs = append(refs, ref)
	}
	return refs, nil
}

func (f *fakeReconcileStore) EntriesByReferenceID(_ context.Context, ref string) ([]domain.LedgerEntry, error) {
	if err := f.entriesErr[ref]; err != nil {
		return nil, err
	}
	return f.groups[ref], nil
}

func (f *fakeReconcileStore) ApplyTransitions(_ context.Context, transitions []StatusTransition) error {
	f.applyCalls++
	if f.applyErrFor != "" && transitions[0].Entry.ExternalReferenceID == f.applyErrFor {
		return errors.New("apply failed")
	}
	f.applied = append(f.applied, transitions)
	return nil
}

func stagedEntry(id int64, publicID string, entryType domain.EntryType, amount int64, ref string) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:                  id,
		PublicID:            publicID,
		AccountID:           id,
		Amount:              amount,
		EntryType:           entryType,
		IsPending:           domain.PendingYes,
		RecordStatus:        domain.StatusStaged,
		ExternalReferenceID: ref,
	}
}

func TestBatchReconcileBalancedPair(t *testing.T) {
	store := newFakeReconcileStore()
	store.groups["ref-1"] = []domain.LedgerEntry{
		stagedEntry(1, "dr0001", domain.DebitRecord, 1000, "ref-1"),
		stagedEntry(2, "cr0001", domain.CreditRecord, 1000, "ref-1"),
	}

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	require.NoError(t, reconciler.Run(context.Background()))

	require.Len(t, store.applied, 1)
	transitions := store.applied[0]
	require.Len(t, transitions, 2)
	for _, tr := range transitions {
		assert.Equal(t, domain.StatusBalanced, tr.Entry.RecordStatus)
		assert.Equal(t, domain.StatusStaged, tr.Previous)
		require.NotNil(t, tr.Entry.ReconciledOn)
		assert.Equal(t, batchActor, tr.Entry.ReconciledBy)
	}
}

func TestBatchReconcileMissingLegIsUnbalanced(t *testing.T) {
	store := newFakeReconcileStore()
	store.groups["ref-1"] = []domain.LedgerEntry{
		stagedEntry(1, "dr0001", domain.DebitRecord, 1000, "ref-1"),
	}

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	require.NoError(t, reconciler.Run(context.Background()))

	require.Len(t, store.applied, 1)
	transitions := store.applied[0]
	require.Len(t, transitions, 1)
	assert.Equal(t, domain.StatusUnbalanced, transitions[0].Entry.RecordStatus)
	assert.Nil(t, transitions[0].Entry.ReconciledOn)
}

func TestBatchReconcileUnequalAmountsAreError(t *testing.T) {
	store := newFakeReconcileStore()
	store.groups["ref-1"] = []domain.LedgerEntry{
		stagedEntry(1, "dr0001", domain.DebitRecord, 1000, "ref-1"),
		stagedEntry(2, "cr0001", domain.CreditRecord, 999, "ref-1"),
	}

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	require.NoError(t, reconciler.Run(context.Background()))

	require.Len(t, store.applied, 1)
	for _, tr := range store.applied[0] {
		assert.Equal(t, domain.StatusError, tr.Entry.RecordStatus)
	}
}

func TestBatchReconcileVoidedLegDoesNotCount(t *testing.T) {
	voided := stagedEntry(1, "dr0001", domain.DebitRecord, 1000, "ref-1")
	voided.RecordStatus = domain.StatusVoid
	store := newFakeReconcileStore()
	store.groups["ref-1"] = []domain.LedgerEntry{
		voided,
		stagedEntry(2, "cr0001", domain.CreditRecord, 1000, "ref-1"),
	}

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	require.NoError(t, reconciler.Run(context.Background()))

	// Only the still-staged credit transitions; the voided debit is untouched.
	require.Len(t, store.applied, 1)
	transitions := store.applied[0]
	require.Len(t, transitions, 1)
	assert.Equal(t, "cr0001", transitions[0].Entry.PublicID)
	assert.Equal(t, domain.StatusUnbalanced, transitions[0].Entry.RecordStatus)
}

func TestBatchReconcileGroupFailureIsIsolated(t *testing.T) {
	store := newFakeReconcileStore()
	store.groups["ref-bad"] = []domain.LedgerEntry{
		stagedEntry(1, "dr0001", domain.DebitRecord, 1000, "ref-bad"),
		stagedEntry(2, "cr0001", domain.CreditRecord, 1000, "ref-bad"),
	}
	store.groups["ref-good"] = []domain.LedgerEntry{
		stagedEntry(3, "dr0002", domain.DebitRecord, 500, "ref-good"),
		stagedEntry(4, "cr0002", domain.CreditRecord, 500, "ref-good"),
	}
	store.applyErrFor = "ref-bad"

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	require.NoError(t, reconciler.Run(context.Background()))

	// Both groups were attempted and the good one landed.
	assert.Equal(t, 2, store.applyCalls)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "ref-good", store.applied[0][0].Entry.ExternalReferenceID)
}

func TestBatchReconcileScanErrorPropagates(t *testing.T) {
	store := newFakeReconcileStore()
	store.scanErr = errors.New("db down")

	reconciler := NewBatchReconciler(store, time.Minute, 10)
	err := reconciler.Run(context.Background())
	require.ErrorIs(t, err, store.scanErr)
}
