package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/repository"
	"github.com/zr01/ledgee/internal/sequence"
)

// VirtualAccountService resolves and lazily creates virtual accounts.
type VirtualAccountService struct {
	store    *repository.Store
	accounts *repository.AccountRepository
	balances *repository.BalanceRepository
	alloc    *sequence.Allocator
}

func NewVirtualAccountService(store *repository.Store, alloc *sequence.Allocator) *VirtualAccountService {
	return &VirtualAccountService{
		store:    store,
		accounts: repository.NewAccountRepository(store.DB()),
		balances: repository.NewBalanceRepository(store.DB()),
		alloc:    alloc,
	}
}

// GetOrCreate resolves the account for an external identity, creating it with
// a freshly allocated public id when it does not exist yet. Runs against the
// supplied tx so account creation commits with the entry that triggered it.
func (s *VirtualAccountService) GetOrCreate(ctx context.Context, tx repository.DBTX, accountID, productCode, currency, actor string) (*domain.VirtualAccount, error) {
	accounts := s.accounts.WithTx(tx)
	account, err := accounts.FindByAccountIDAndProductCode(ctx, accountID, productCode)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	publicID, err := s.alloc.NextVal(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate account public id: %w", err)
	}
	account = &domain.VirtualAccount{
		PublicID:    publicID,
		AccountID:   accountID,
		ProductCode: productCode,
		Currency:    currency,
		CreatedBy:   actor,
	}
	if err := accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	return account, nil
}

// BalanceSummary is the API view of one account's balance rows.
type BalanceSummary struct {
	Account   *domain.VirtualAccount
	Actual    *domain.VirtualAccountBalance
	Projected *domain.VirtualAccountBalance
}

// GetBalances returns an account with both of its balance rows.
func (s *VirtualAccountService) GetBalances(ctx context.Context, publicID string) (*BalanceSummary, error) {
	account, err := s.accounts.FindByPublicID(ctx, publicID)
	if err != nil {
		return nil, err
	}
	actual, err := s.balances.Get(ctx, account.ID, domain.BalanceActual)
	if err != nil {
		return nil, err
	}
	projected, err := s.balances.Get(ctx, account.ID, domain.BalanceProjected)
	if err != nil {
		return nil, err
	}
	return &BalanceSummary{Account: account, Actual: actual, Projected: projected}, nil
}
