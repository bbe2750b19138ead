package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr01/ledgee/internal/domain"
)

func persistedEntry(publicID string, entryType domain.EntryType, amount int64) domain.LedgerEntry {
	return domain.LedgerEntry{
		PublicID:            publicID,
		Amount:              amount,
		EntryType:           entryType,
		RecordStatus:        domain.StatusStaged,
		ExternalReferenceID: "ext-ref-id",
	}
}

func TestValidate_BalancedPair(t *testing.T) {
	debit, credit, fault := Validate([]domain.LedgerEntry{
		persistedEntry("dr-0001", domain.DebitRecord, 100),
		persistedEntry("cr-0001", domain.CreditRecord, 100),
	})

	require.Nil(t, fault)
	assert.Equal(t, "dr-0001", debit.PublicID)
	assert.Equal(t, "cr-0001", credit.PublicID)
}

func TestValidate_MissingLegs(t *testing.T) {
	_, _, fault := Validate([]domain.LedgerEntry{
		persistedEntry("cr-0001", domain.CreditRecord, 100),
	})
	require.NotNil(t, fault)
	assert.Equal(t, NoDebitRecord, fault.Code)

	_, _, fault = Validate([]domain.LedgerEntry{
		persistedEntry("dr-0001", domain.DebitRecord, 100),
	})
	require.NotNil(t, fault)
	assert.Equal(t, NoCreditRecord, fault.Code)
}

func TestValidate_ExcessLegs(t *testing.T) {
	_, _, fault := Validate([]domain.LedgerEntry{
		persistedEntry("dr-0001", domain.DebitRecord, 100),
		persistedEntry("dr-0002", domain.DebitRecord, 100),
		persistedEntry("cr-0001", domain.CreditRecord, 100),
	})
	require.NotNil(t, fault)
	assert.Equal(t, ExcessDebitRecords, fault.Code)

	_, _, fault = Validate([]domain.LedgerEntry{
		persistedEntry("dr-0001", domain.DebitRecord, 100),
		persistedEntry("cr-0001", domain.CreditRecord, 100),
		persistedEntry("cr-0002", domain.CreditRecord, 100),
	})
	require.NotNil(t, fault)
	assert.Equal(t, ExcessCreditRecords, fault.Code)
}

func TestValidate_NotZeroSum(t *testing.T) {
	_, _, fault := Validate([]domain.LedgerEntry{
		persistedEntry("dr-0001", domain.DebitRecord, 100),
		persistedEntry("cr-0001", domain.CreditRecord, 101),
	})
	require.NotNil(t, fault)
	assert.Equal(t, NotZeroSum, fault.Code)
}

func TestValidate_VoidedLegsDoNotCount(t *testing.T) {
	voided := persistedEntry("dr-0001", domain.DebitRecord, 100)
	voided.RecordStatus = domain.StatusVoid

	debit, credit, fault := Validate([]domain.LedgerEntry{
		voided,
		persistedEntry("dv-0001", domain.DebitRecordVoid, 100),
		persistedEntry("dc-0001", domain.DebitRecordCorrection, 100),
		persistedEntry("cr-0001", domain.CreditRecord, 100),
	})

	require.Nil(t, fault)
	assert.Equal(t, "dc-0001", debit.PublicID)
	assert.Equal(t, "cr-0001", credit.PublicID)
}
