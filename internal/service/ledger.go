package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/events"
	"github.com/zr01/ledgee/internal/repository"
	"github.com/zr01/ledgee/internal/sequence"
)

var (
	ErrEntryNotFound   = errors.New("ledger entry not found")
	ErrInvalidAmount   = errors.New("amount must be positive")
	ErrNotCorrectable  = errors.New("entry cannot be corrected")
	ErrUnknownCurrency = errors.New("unknown currency")
)

// EntryEventPublisher emits recorded entries onto the stream after commit.
type EntryEventPublisher interface {
	PublishEntryRecorded(ctx context.Context, evt events.LedgerEntryRecorded) error
}

// Allocators groups the prefixed id allocators a ledger service posts with.
// They are injected, never global: each process owns its reserved ranges.
type Allocators struct {
	Debit   *sequence.Allocator
	Credit  *sequence.Allocator
	Account *sequence.Allocator
}

// PostEntryCmd is one movement to record.
type PostEntryCmd struct {
	EntryType           domain.EntryType
	AccountID           string
	ProductCode         string
	Currency            string
	Amount              int64
	IsPending           bool
	ExternalReferenceID string
	EntryReferenceID    string
	Description         string
	TransactionOn       time.Time
	Actor               string
}

// CorrectionCmd voids an existing entry and posts its replacement.
type CorrectionCmd struct {
	Amount        int64
	Description   string
	TransactionOn time.Time
	Actor         string
}

// LedgerService records entries: public id allocation, account resolution,
// balance movement, and persistence happen in one transaction; the recorded
// event is published only after that transaction commits.
type LedgerService struct {
	store     *repository.Store
	entries   *repository.LedgerRepository
	balances  *repository.BalanceRepository
	accounts  *VirtualAccountService
	audits    *AuditService
	updater   *BalanceUpdater
	alloc     Allocators
	publisher EntryEventPublisher
}

func NewLedgerService(store *repository.Store, accounts *VirtualAccountService, audits *AuditService, alloc Allocators, publisher EntryEventPublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		entries:   repository.NewLedgerRepository(store.DB()),
		balances:  repository.NewBalanceRepository(store.DB()),
		accounts:  accounts,
		audits:    audits,
		updater:   NewBalanceUpdater(repository.NewBalanceRepository(store.DB())),
		alloc:     alloc,
		publisher: publisher,
	}
}

// PostLedgerEntry records one movement and publishes it for reconciliation.
func (s *LedgerService) PostLedgerEntry(ctx context.Context, cmd PostEntryCmd) (*domain.LedgerEntry, error) {
	if cmd.Amount <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAmount, cmd.Amount)
	}
	if _, err := domain.LookupCurrency(cmd.Currency); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCurrency, cmd.Currency)
	}
	if cmd.ExternalReferenceID == "" {
		cmd.ExternalReferenceID = uuid.NewString()
	}
	if cmd.TransactionOn.IsZero() {
		cmd.TransactionOn = time.Now().UTC()
	}

	publicID, err := s.allocatePublicID(ctx, cmd.EntryType)
	if err != nil {
		return nil, err
	}

	entry := &domain.LedgerEntry{
		PublicID:            publicID,
		Amount:              cmd.Amount,
		EntryType:           cmd.EntryType,
		IsPending:           domain.PendingFromBool(cmd.IsPending),
		RecordStatus:        domain.StatusStaged,
		ExternalReferenceID: cmd.ExternalReferenceID,
		EntryReferenceID:    cmd.EntryReferenceID,
		Description:         cmd.Description,
		TransactionOn:       cmd.TransactionOn,
		CreatedBy:           cmd.Actor,
	}

	err = s.store.RunInTx(ctx, func(tx repository.DBTX) error {
		account, err := s.accounts.GetOrCreate(ctx, tx, cmd.AccountID, cmd.ProductCode, cmd.Currency, cmd.Actor)
		if err != nil {
			return err
		}
		entry.AccountID = account.ID
		entry.PublicAccountID = account.PublicID
		return s.persistEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, *entry)
	return entry, nil
}

// PostCorrectionEntries voids the entry identified by parentPublicID and
// posts a correction in its place, linked through parentPublicId. Both rows
// commit together.
func (s *LedgerService) PostCorrectionEntries(ctx context.Context, parentPublicID string, cmd CorrectionCmd) (voided, correction *domain.LedgerEntry, err error) {
	if cmd.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidAmount, cmd.Amount)
	}

	original, err := s.entries.FindByPublicID(ctx, parentPublicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrEntryNotFound, parentPublicID)
		}
		return nil, nil, err
	}
	if original.EntryType.IsVoid() || original.RecordStatus == domain.StatusVoid {
		return nil, nil, fmt.Errorf("%w: %s is already void", ErrNotCorrectable, parentPublicID)
	}

	voidID, err := s.allocatePublicID(ctx, original.EntryType.VoidType())
	if err != nil {
		return nil, nil, err
	}
	correctionID, err := s.allocatePublicID(ctx, original.EntryType.CorrectionType())
	if err != nil {
		return nil, nil, err
	}

	now := cmd.TransactionOn
	if now.IsZero() {
		now = time.Now().UTC()
	}

	voidEntry := &domain.LedgerEntry{
		PublicID:            voidID,
		ParentPublicID:      original.PublicID,
		AccountID:           original.AccountID,
		PublicAccountID:     original.PublicAccountID,
		Amount:              original.Amount,
		EntryType:           original.EntryType.VoidType(),
		IsPending:           original.IsPending,
		RecordStatus:        domain.StatusStaged,
		ExternalReferenceID: original.ExternalReferenceID,
		EntryReferenceID:    original.EntryReferenceID,
		Description:         cmd.Description,
		TransactionOn:       now,
		CreatedBy:           cmd.Actor,
	}
	correctionEntry := &domain.LedgerEntry{
		PublicID:            correctionID,
		ParentPublicID:      original.PublicID,
		AccountID:           original.AccountID,
		PublicAccountID:     original.PublicAccountID,
		Amount:              cmd.Amount,
		EntryType:           original.EntryType.CorrectionType(),
		IsPending:           original.IsPending,
		RecordStatus:        domain.StatusStaged,
		ExternalReferenceID: original.ExternalReferenceID,
		EntryReferenceID:    original.EntryReferenceID,
		Description:         cmd.Description,
		TransactionOn:       now,
		CreatedBy:           cmd.Actor,
	}

	err = s.store.RunInTx(ctx, func(tx repository.DBTX) error {
		if err := s.persistEntry(ctx, tx, voidEntry); err != nil {
			return err
		}
		if err := s.persistEntry(ctx, tx, correctionEntry); err != nil {
			return err
		}
		return s.audits.Write(ctx, tx, original.ID, original.RecordStatus, original.RecordStatus,
			AuditCorrected, fmt.Sprintf("corrected by %s", correctionEntry.PublicID), cmd.Actor)
	})
	if err != nil {
		return nil, nil, err
	}

	s.publish(ctx, *voidEntry)
	s.publish(ctx, *correctionEntry)
	return voidEntry, correctionEntry, nil
}

// GetEntry looks up one entry by public id.
func (s *LedgerService) GetEntry(ctx context.Context, publicID string) (*domain.LedgerEntry, error) {
	entry, err := s.entries.FindByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, publicID)
		}
		return nil, err
	}
	return entry, nil
}

// persistEntry saves the row, moves the projected balance, and writes the
// creation audit row, all against the supplied tx. The actual balance moves
// only once the entry reconciles.
func (s *LedgerService) persistEntry(ctx context.Context, tx repository.DBTX, entry *domain.LedgerEntry) error {
	if err := s.entries.WithTx(tx).Save(ctx, entry); err != nil {
		return err
	}

	updater := s.updater.WithTx(s.balances.WithTx(tx))
	if err := updater.UpdateBalance(ctx, entry.AccountID, domain.BalanceProjected, []domain.LedgerEntry{*entry}); err != nil {
		return err
	}

	return s.audits.Write(ctx, tx, entry.ID, "", entry.RecordStatus, AuditCreated, "entry posted", entry.CreatedBy)
}

func (s *LedgerService) allocatePublicID(ctx context.Context, entryType domain.EntryType) (string, error) {
	alloc := s.alloc.Credit
	if entryType.IsDebitLeg() {
		alloc = s.alloc.Debit
	}
	id, err := alloc.NextVal(ctx)
	if err != nil {
		return "", fmt.Errorf("allocate public id for %s: %w", entryType, err)
	}
	return id, nil
}

// publish emits the recorded event. Publication failures do not undo the
// committed entry; the batch reconciler picks up anything the stream missed.
func (s *LedgerService) publish(ctx context.Context, entry domain.LedgerEntry) {
	if s.publisher == nil {
		return
	}
	evt := events.FromLedgerEntry(entry, entry.CreatedBy)
	if err := s.publisher.PublishEntryRecorded(ctx, evt); err != nil {
		zap.L().Error("publish recorded entry failed",
			zap.String("publicId", entry.PublicID),
			zap.String("externalReferenceId", entry.ExternalReferenceID),
			zap.Error(err))
	}
}
