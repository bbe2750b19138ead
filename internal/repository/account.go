package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zr01/ledgee/internal/domain"
)

// AccountRepository persists virtual accounts and their balance rows.
type AccountRepository struct {
	db DBTX
}

func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) WithTx(tx DBTX) *AccountRepository {
	return &AccountRepository{db: tx}
}

// Create inserts the account together with its Actual and Projected balance
// rows. Every account carries exactly one of each.
func (r *AccountRepository) Create(ctx context.Context, account *domain.VirtualAccount) error {
	query := `
		INSERT INTO virtual_accounts (public_id, account_id, product_code, currency, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_on`
	err := r.db.QueryRow(ctx, query,
		account.PublicID, account.AccountID, account.ProductCode, account.Currency, account.CreatedBy,
	).Scan(&account.ID, &account.CreatedOn)
	if err != nil {
		return fmt.Errorf("create virtual account %s: %w", account.AccountID, err)
	}

	for _, balanceType := range []domain.BalanceType{domain.BalanceActual, domain.BalanceProjected} {
		_, err := r.db.Exec(ctx, `
			INSERT INTO virtual_account_balances (virtual_account_id, balance_type, available_balance, pending_balance, version)
			VALUES ($1, $2, 0, 0, 0)`,
			account.ID, string(balanceType))
		if err != nil {
			return fmt.Errorf("create %s balance for account %s: %w", balanceType, account.PublicID, err)
		}
	}
	return nil
}

// FindByAccountIDAndProductCode resolves an account by its external identity.
func (r *AccountRepository) FindByAccountIDAndProductCode(ctx context.Context, accountID, productCode string) (*domain.VirtualAccount, error) {
	query := `
		SELECT id, public_id, account_id, product_code, currency, created_on, created_by
		FROM virtual_accounts
		WHERE account_id = $1 AND product_code = $2`
	return r.scanAccount(r.db.QueryRow(ctx, query, accountID, productCode), accountID)
}

// FindByPublicID resolves an account by its allocator-issued public id.
func (r *AccountRepository) FindByPublicID(ctx context.Context, publicID string) (*domain.VirtualAccount, error) {
	query := `
		SELECT id, public_id, account_id, product_code, currency, created_on, created_by
		FROM virtual_accounts
		WHERE public_id = $1`
	return r.scanAccount(r.db.QueryRow(ctx, query, publicID), publicID)
}

func (r *AccountRepository) scanAccount(row pgx.Row, ref string) (*domain.VirtualAccount, error) {
	var account domain.VirtualAccount
	err := row.Scan(&account.ID, &account.PublicID, &account.AccountID,
		&account.ProductCode, &account.Currency, &account.CreatedOn, &account.CreatedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("virtual account %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("find virtual account %s: %w", ref, err)
	}
	return &account, nil
}
