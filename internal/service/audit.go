package service

import (
	"context"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/repository"
)

// Audit change types.
const (
	AuditCreated    = "CREATED"
	AuditReconciled = "RECONCILED"
	AuditVoided     = "VOIDED"
	AuditCorrected  = "CORRECTED"
)

// AuditService appends immutable status-transition rows for ledger entries.
type AuditService struct {
	audits *repository.AuditRepository
}

func NewAuditService(store *repository.Store) *AuditService {
	return &AuditService{audits: repository.NewAuditRepository(store.DB())}
}

// Write records one transition against the supplied tx.
func (s *AuditService) Write(ctx context.Context, tx repository.DBTX, ledgerID int64, previous, next domain.RecordStatus, changeType, reason, actor string) error {
	return s.audits.WithTx(tx).Record(ctx, &repository.LedgerAudit{
		LedgerID:       ledgerID,
		PreviousStatus: previous,
		NewStatus:      next,
		ChangeType:     changeType,
		ChangeReason:   reason,
		ChangedBy:      actor,
	})
}

// Trail returns the audit rows for one entry, oldest first.
func (s *AuditService) Trail(ctx context.Context, ledgerID int64) ([]repository.LedgerAudit, error) {
	return s.audits.FindByLedgerID(ctx, ledgerID)
}
