package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zr01/ledgee/internal/domain"
)

// BalanceRepository reads and conditionally writes versioned balance rows.
type BalanceRepository struct {
	db DBTX
}

func NewBalanceRepository(db DBTX) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) WithTx(tx DBTX) *BalanceRepository {
	return &BalanceRepository{db: tx}
}

// Get returns the balance row of the given type for an account.
func (r *BalanceRepository) Get(ctx context.Context, virtualAccountID int64, balanceType domain.BalanceType) (*domain.VirtualAccountBalance, error) {
	query := `
		SELECT id, virtual_account_id, balance_type, available_balance, pending_balance, last_updated, version
		FROM virtual_account_balances
		WHERE virtual_account_id = $1 AND balance_type = $2`
	var balance domain.VirtualAccountBalance
	err := r.db.QueryRow(ctx, query, virtualAccountID, string(balanceType)).Scan(
		&balance.ID, &balance.VirtualAccountID, &balance.BalanceType,
		&balance.AvailableBalance, &balance.PendingBalance, &balance.LastUpdated, &balance.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s balance for account %d: %w", balanceType, virtualAccountID, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s balance for account %d: %w", balanceType, virtualAccountID, err)
	}
	return &balance, nil
}

// WriteIfVersionMatches applies the new amounts only when the stored version
// is still expectedVersion, bumping the version on success. A false return
// with nil error means another writer got there first.
func (r *BalanceRepository) WriteIfVersionMatches(ctx context.Context, balance *domain.VirtualAccountBalance, expectedVersion int64) (bool, error) {
	query := `
		UPDATE virtual_account_balances
		SET available_balance = $1, pending_balance = $2, version = version + 1, last_updated = NOW()
		WHERE id = $3 AND version = $4`
	tag, err := r.db.Exec(ctx, query,
		balance.AvailableBalance, balance.PendingBalance, balance.ID, expectedVersion)
	if err != nil {
		return false, fmt.Errorf("write balance %d: %w", balance.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}
