package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/observability"
	"github.com/zr01/ledgee/internal/reconcile"
	"github.com/zr01/ledgee/internal/repository"
)

const batchActor = "batch-reconciler"

// StatusTransition is one status move the reconciler decided on.
type StatusTransition struct {
	Entry    domain.LedgerEntry
	Previous domain.RecordStatus
	Reason   string
}

// ReconcileStore is the persistence surface the batch reconciler runs over.
type ReconcileStore interface {
	StaleReferenceIDs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error)
	EntriesByReferenceID(ctx context.Context, externalReferenceID string) ([]domain.LedgerEntry, error)
	ApplyTransitions(ctx context.Context, transitions []StatusTransition) error
}

// BatchReconciler sweeps entries the stream pipeline left behind: still
// Staged and pending past the age threshold. Each reference group is
// validated against persisted state with the same rule the aggregator uses,
// and its outcome persisted. Groups fail independently.
type BatchReconciler struct {
	store        ReconcileStore
	ageThreshold time.Duration
	batchSize    int
}

func NewBatchReconciler(store ReconcileStore, ageThreshold time.Duration, batchSize int) *BatchReconciler {
	if ageThreshold <= 0 {
		ageThreshold = 15 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &BatchReconciler{store: store, ageThreshold: ageThreshold, batchSize: batchSize}
}

// Run performs one sweep. It returns an error only when the scan itself
// fails; individual group failures are logged and skipped.
func (r *BatchReconciler) Run(ctx context.Context) error {
	refs, err := r.store.StaleReferenceIDs(ctx, r.ageThreshold, r.batchSize)
	if err != nil {
		return fmt.Errorf("scan stale references: %w", err)
	}
	if len(refs) == 0 {
		return nil
	}

	zap.L().Info("batch reconcile sweep", zap.Int("groups", len(refs)))
	for _, ref := range refs {
		if err := r.reconcileGroup(ctx, ref); err != nil {
			zap.L().Error("batch reconcile group failed",
				zap.String("externalReferenceId", ref),
				zap.Error(err))
		}
	}
	return nil
}

func (r *BatchReconciler) reconcileGroup(ctx context.Context, ref string) error {
	entries, err := r.store.EntriesByReferenceID(ctx, ref)
	if err != nil {
		return err
	}

	debit, credit, fault := reconcile.Validate(entries)

	var transitions []StatusTransition
	if fault == nil {
		now := time.Now().UTC()
		for _, leg := range []*domain.LedgerEntry{debit, credit} {
			updated := *leg
			updated.RecordStatus = domain.StatusBalanced
			updated.ReconciledOn = &now
			updated.ReconciledBy = batchActor
			transitions = append(transitions, StatusTransition{
				Entry:    updated,
				Previous: leg.RecordStatus,
				Reason:   "zero-sum pair",
			})
		}
		observability.IncrementReconciliation(string(domain.StatusBalanced))
		zap.L().Info("batch reconciled",
			zap.String("externalReferenceId", ref),
			zap.String("debit", debit.PublicID),
			zap.String("credit", credit.PublicID))
	} else {
		status := fault.Code.BatchStatus()
		for _, entry := range entries {
			if entry.RecordStatus != domain.StatusStaged {
				continue
			}
			updated := entry
			updated.RecordStatus = status
			transitions = append(transitions, StatusTransition{
				Entry:    updated,
				Previous: entry.RecordStatus,
				Reason:   fault.Message,
			})
		}
		observability.IncrementReconciliation(string(status))
		log := zap.L().Warn
		if status == domain.StatusError {
			log = zap.L().Error
		}
		log("batch reconcile classified group",
			zap.String("externalReferenceId", ref),
			zap.String("code", string(fault.Code)),
			zap.String("recordStatus", string(status)))
	}

	if len(transitions) == 0 {
		return nil
	}
	return r.store.ApplyTransitions(ctx, transitions)
}

// PgReconcileStore is the pgx-backed ReconcileStore used in production.
type PgReconcileStore struct {
	store   *repository.Store
	entries *repository.LedgerRepository
	audits  *AuditService
	updater *BalanceUpdater
}

func NewPgReconcileStore(store *repository.Store, audits *AuditService) *PgReconcileStore {
	return &PgReconcileStore{
		store:   store,
		entries: repository.NewLedgerRepository(store.DB()),
		audits:  audits,
		updater: NewBalanceUpdater(repository.NewBalanceRepository(store.DB())),
	}
}

func (s *PgReconcileStore) StaleReferenceIDs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	return s.entries.FindStaleStagedReferenceIDs(ctx, olderThan, limit)
}

func (s *PgReconcileStore) EntriesByReferenceID(ctx context.Context, ref string) ([]domain.LedgerEntry, error) {
	rows, err := s.entries.FindAllByExternalReferenceID(ctx, ref)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LedgerEntry, len(rows))
	for i, row := range rows {
		entries[i] = *row
	}
	return entries, nil
}

// ApplyTransitions persists status moves and audit rows in one transaction.
// Entries reaching Balanced also move the actual balance of their account.
func (s *PgReconcileStore) ApplyTransitions(ctx context.Context, transitions []StatusTransition) error {
	return s.store.RunInTx(ctx, func(tx repository.DBTX) error {
		entries := s.entries.WithTx(tx)
		updater := s.updater.WithTx(repository.NewBalanceRepository(tx))

		settled := map[int64][]domain.LedgerEntry{}
		for _, t := range transitions {
			entry := t.Entry
			if err := entries.UpdateReconciliation(ctx, &entry); err != nil {
				return err
			}
			if err := s.audits.Write(ctx, tx, entry.ID, t.Previous, entry.RecordStatus,
				AuditReconciled, t.Reason, batchActor); err != nil {
				return err
			}
			if entry.RecordStatus == domain.StatusBalanced {
				settled[entry.AccountID] = append(settled[entry.AccountID], entry)
			}
		}

		for accountID, accountEntries := range settled {
			if err := updater.UpdateBalance(ctx, accountID, domain.BalanceActual, accountEntries); err != nil {
				return err
			}
		}
		return nil
	})
}
