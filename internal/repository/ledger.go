package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zr01/ledgee/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const ledgerColumns = `id, public_id, parent_public_id, account_id, public_account_id, amount, entry_type,
	is_pending, record_status, external_reference_id, entry_reference_id, description,
	transaction_on, created_on, created_by, reconciled_on, reconciled_by`

// LedgerRepository persists ledger entries. Entries are append-only: rows
// are never deleted, only status-transitioned.
type LedgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *LedgerRepository) WithTx(tx DBTX) *LedgerRepository {
	return &LedgerRepository{db: tx}
}

// Save inserts the entry and fills its generated id and created timestamp.
func (r *LedgerRepository) Save(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger (public_id, parent_public_id, account_id, public_account_id, amount, entry_type,
			is_pending, record_status, external_reference_id, entry_reference_id, description,
			transaction_on, created_by)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), $11, $12, $13)
		RETURNING id, created_on`
	err := r.db.QueryRow(ctx, query,
		entry.PublicID, entry.ParentPublicID, entry.AccountID, entry.PublicAccountID, entry.Amount,
		string(entry.EntryType), string(entry.IsPending), string(entry.RecordStatus),
		entry.ExternalReferenceID, entry.EntryReferenceID, entry.Description,
		entry.TransactionOn, entry.CreatedBy,
	).Scan(&entry.ID, &entry.CreatedOn)
	if err != nil {
		return fmt.Errorf("save ledger entry %s: %w", entry.PublicID, err)
	}
	return nil
}

// UpdateReconciliation persists a status transition plus the reconciliation
// stamp for a single entry.
func (r *LedgerRepository) UpdateReconciliation(ctx context.Context, entry *domain.LedgerEntry) error {
	query := `
		UPDATE ledger
		SET record_status = $2, reconciled_on = $3, reconciled_by = NULLIF($4, '')
		WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, entry.ID, string(entry.RecordStatus), entry.ReconciledOn, entry.ReconciledBy)
	if err != nil {
		return fmt.Errorf("update ledger entry %d: %w", entry.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update ledger entry %d: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// SaveAllReconciliation applies UpdateReconciliation to every entry.
func (r *LedgerRepository) SaveAllReconciliation(ctx context.Context, entries []*domain.LedgerEntry) error {
	for _, entry := range entries {
		if err := r.UpdateReconciliation(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// FindByPublicID loads one entry by its allocator-issued id.
func (r *LedgerRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.LedgerEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM ledger WHERE public_id = $1`, ledgerColumns)
	entry, err := scanLedgerEntry(r.db.QueryRow(ctx, query, publicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("ledger entry %s: %w", publicID, ErrNotFound)
		}
		return nil, fmt.Errorf("find ledger entry %s: %w", publicID, err)
	}
	return entry, nil
}

// FindAllByExternalReferenceID loads every entry for a correlation key in
// creation order.
func (r *LedgerRepository) FindAllByExternalReferenceID(ctx context.Context, externalReferenceID string) ([]*domain.LedgerEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM ledger WHERE external_reference_id = $1 ORDER BY id`, ledgerColumns)
	rows, err := r.db.Query(ctx, query, externalReferenceID)
	if err != nil {
		return nil, fmt.Errorf("find entries for %s: %w", externalReferenceID, err)
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry for %s: %w", externalReferenceID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// FindStaleStagedReferenceIDs returns correlation keys that still have
// Staged pending entries older than the age threshold. Feeds the batch
// reconciler.
func (r *LedgerRepository) FindStaleStagedReferenceIDs(ctx context.Context, olderThan time.Duration, limit int) ([]string, error) {
	query := `
		SELECT DISTINCT external_reference_id
		FROM ledger
		WHERE record_status = $1
		  AND is_pending = $2
		  AND created_on < NOW() - $3::interval
		LIMIT $4`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	rows, err := r.db.Query(ctx, query, string(domain.StatusStaged), string(domain.PendingYes), interval, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale staged entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale reference id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var (
		entry          domain.LedgerEntry
		parentPublicID *string
		entryRefID     *string
		reconciledBy   *string
		entryType      string
		isPending      string
		recordStatus   string
	)
	err := row.Scan(
		&entry.ID, &entry.PublicID, &parentPublicID, &entry.AccountID, &entry.PublicAccountID, &entry.Amount,
		&entryType, &isPending, &recordStatus, &entry.ExternalReferenceID, &entryRefID,
		&entry.Description, &entry.TransactionOn, &entry.CreatedOn, &entry.CreatedBy,
		&entry.ReconciledOn, &reconciledBy,
	)
	if err != nil {
		return nil, err
	}
	entry.EntryType = domain.EntryType(entryType)
	entry.IsPending = domain.IsPending(isPending)
	entry.RecordStatus = domain.RecordStatus(recordStatus)
	if parentPublicID != nil {
		entry.ParentPublicID = *parentPublicID
	}
	if entryRefID != nil {
		entry.EntryReferenceID = *entryRefID
	}
	if reconciledBy != nil {
		entry.ReconciledBy = *reconciledBy
	}
	return &entry, nil
}
