package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/zr01/ledgee/internal/domain"
)

// LedgerAudit is one status-transition row in the ledger audit log.
type LedgerAudit struct {
	ID             int64
	LedgerID       int64
	PreviousStatus domain.RecordStatus
	NewStatus      domain.RecordStatus
	ChangeType     string
	ChangeReason   string
	ChangedBy      string
	ChangedOn      time.Time
}

// AuditRepository appends to and reads the ledger audit log.
type AuditRepository struct {
	db DBTX
}

func NewAuditRepository(db DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) WithTx(tx DBTX) *AuditRepository {
	return &AuditRepository{db: tx}
}

// Record appends one audit row. Audit rows are append-only.
func (r *AuditRepository) Record(ctx context.Context, audit *LedgerAudit) error {
	query := `
		INSERT INTO ledger_audits (ledger_id, previous_status, new_status, change_type, change_reason, changed_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, changed_on`
	err := r.db.QueryRow(ctx, query,
		audit.LedgerID, string(audit.PreviousStatus), string(audit.NewStatus),
		audit.ChangeType, audit.ChangeReason, audit.ChangedBy,
	).Scan(&audit.ID, &audit.ChangedOn)
	if err != nil {
		return fmt.Errorf("record audit for ledger %d: %w", audit.LedgerID, err)
	}
	return nil
}

// FindByLedgerID returns the audit trail for one entry, oldest first.
func (r *AuditRepository) FindByLedgerID(ctx context.Context, ledgerID int64) ([]LedgerAudit, error) {
	query := `
		SELECT id, ledger_id, previous_status, new_status, change_type, change_reason, changed_by, changed_on
		FROM ledger_audits
		WHERE ledger_id = $1
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, ledgerID)
	if err != nil {
		return nil, fmt.Errorf("find audits for ledger %d: %w", ledgerID, err)
	}
	defer rows.Close()

	var audits []LedgerAudit
	for rows.Next() {
		var a LedgerAudit
		if err := rows.Scan(&a.ID, &a.LedgerID, &a.PreviousStatus, &a.NewStatus,
			&a.ChangeType, &a.ChangeReason, &a.ChangedBy, &a.ChangedOn); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return audits, nil
}
