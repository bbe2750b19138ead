package reconcile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/events"
)

func recordedEntry(publicID string, entryType domain.EntryType, amount int64) events.LedgerEntryRecorded {
	return events.LedgerEntryRecorded{
		PublicID:            publicID,
		PublicAccountID:     "ac0000001",
		Amount:              amount,
		EntryType:           string(entryType),
		IsPending:           string(domain.PendingNo),
		RecordStatus:        string(domain.StatusStaged),
		ExternalReferenceID: "ext-ref-id",
		Description:         string(entryType),
		EventDetail:         events.NewEventDetail("test"),
	}
}

func foldAll(t *testing.T, entries ...events.LedgerEntryRecorded) Record {
	t.Helper()
	record := NewRecord()
	for _, entry := range entries {
		record, _ = Apply(record, entry)
	}
	return record
}

func TestApply_EqualPairBalances(t *testing.T) {
	record := foldAll(t,
		recordedEntry("dr-0001", domain.DebitRecord, 100),
		recordedEntry("cr-0001", domain.CreditRecord, 100),
	)

	assert.Equal(t, string(domain.StatusBalanced), record.ReconciliationStatus)
	require.NotNil(t, record.DebitEntry)
	require.NotNil(t, record.CreditEntry)
	assert.Equal(t, string(domain.StatusBalanced), record.DebitEntry.RecordStatus)
	assert.Equal(t, string(domain.StatusBalanced), record.CreditEntry.RecordStatus)
	assert.Len(t, record.LedgerEntries, 2)
	assert.True(t, RoutesPrimary(record))
}

func TestApply_SingleLegWaitsForPair(t *testing.T) {
	record, outcome := Apply(NewRecord(), recordedEntry("dr-0001", domain.DebitRecord, 100))

	assert.False(t, outcome.Failed())
	assert.Equal(t, string(domain.StatusWaitingForPair), record.ReconciliationStatus)
	require.NotNil(t, record.DebitEntry)
	assert.Nil(t, record.CreditEntry)
	assert.True(t, RoutesPrimary(record))
}

func TestApply_UnequalPairUnbalanced(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("dr-0001", domain.DebitRecord, 100))
	record, outcome := Apply(record, recordedEntry("cr-0001", domain.CreditRecord, 101))

	assert.Equal(t, NotZeroSum, outcome.Code)
	assert.Equal(t, "cr-0001", outcome.OffendingEntry)
	assert.Equal(t, string(domain.StatusUnbalanced), record.ReconciliationStatus)
	assert.Equal(t, string(domain.StatusUnbalanced), record.DebitEntry.RecordStatus)
	assert.Equal(t, string(domain.StatusUnbalanced), record.CreditEntry.RecordStatus)

	// The error annotation lands on the second-arriving entry.
	credit := record.LedgerEntries[1]
	assert.Equal(t, string(NotZeroSum), credit.EventDetail.Metadata[events.MetadataErrorKey])
	assert.False(t, RoutesPrimary(record))
}

func TestApply_SecondDebitIsExcess(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("dr-0001", domain.DebitRecord, 100))
	record, outcome := Apply(record, recordedEntry("dr-0002", domain.DebitRecord, 100))

	assert.Equal(t, ExcessDebitRecords, outcome.Code)
	assert.Equal(t, string(domain.StatusExcess), record.ReconciliationStatus)
	// The occupied slot is never overwritten.
	require.NotNil(t, record.DebitEntry)
	assert.Equal(t, "dr-0001", record.DebitEntry.PublicID)

	rejected := record.LedgerEntries[1]
	assert.Equal(t, string(ExcessDebitRecords), rejected.EventDetail.Metadata[events.MetadataErrorKey])
	assert.Equal(t, string(domain.StatusExcess), rejected.EventDetail.Metadata[events.MetadataRecordStatusKey])
	assert.False(t, RoutesPrimary(record))
}

func TestApply_SecondCreditIsExcess(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("cr-0001", domain.CreditRecord, 100))
	record, outcome := Apply(record, recordedEntry("cr-0002", domain.CreditRecord, 100))

	assert.Equal(t, ExcessCreditRecords, outcome.Code)
	assert.Equal(t, "cr-0001", record.CreditEntry.PublicID)
}

func TestApply_RedeliveryIsIdempotent(t *testing.T) {
	entry := recordedEntry("dr-0001", domain.DebitRecord, 100)
	record := NewRecord()
	record, _ = Apply(record, entry)
	record, outcome := Apply(record, entry)

	assert.False(t, outcome.Failed())
	assert.Equal(t, string(domain.StatusWaitingForPair), record.ReconciliationStatus)
	assert.Equal(t, "dr-0001", record.DebitEntry.PublicID)
	// Redeliveries still land in the audit trail.
	assert.Len(t, record.LedgerEntries, 2)
}

func TestApply_VoidFreesCreditSlot(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("dr-0001", domain.DebitRecord, 100))
	record, _ = Apply(record, recordedEntry("cr-0001", domain.CreditRecord, 101))
	require.Equal(t, string(domain.StatusUnbalanced), record.ReconciliationStatus)

	record, outcome := Apply(record, recordedEntry("cv-0001", domain.CreditRecordVoid, 101))

	assert.False(t, outcome.Failed())
	assert.Equal(t, string(domain.StatusWaitingForPair), record.ReconciliationStatus)
	assert.Nil(t, record.CreditEntry)
	require.NotNil(t, record.DebitEntry)

	// Both the void and the original credit carry Void status in the trail.
	assert.Equal(t, string(domain.StatusVoid), record.LedgerEntries[1].RecordStatus)
	assert.Equal(t, string(domain.StatusVoid), record.LedgerEntries[2].RecordStatus)
	assert.Equal(t, "cr-0001", record.LedgerEntries[2].ParentPublicID)
}

func TestApply_VoidOfLastSlotReturnsToInitialState(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("dr-0001", domain.DebitRecord, 100))
	record, _ = Apply(record, recordedEntry("dv-0001", domain.DebitRecordVoid, 100))

	assert.Nil(t, record.DebitEntry)
	assert.Nil(t, record.CreditEntry)
	assert.Equal(t, string(domain.StatusStaged), record.ReconciliationStatus)
	assert.Len(t, record.LedgerEntries, 2)
}

func TestApply_VoidWithoutOccupantRejected(t *testing.T) {
	record, outcome := Apply(NewRecord(), recordedEntry("cv-0001", domain.CreditRecordVoid, 100))

	assert.Equal(t, NoCreditRecord, outcome.Code)
	assert.Equal(t, string(domain.StatusError), record.ReconciliationStatus)
	assert.False(t, RoutesPrimary(record))
}

func TestApply_CorrectionRefillsVoidedSlot(t *testing.T) {
	record := foldAll(t,
		recordedEntry("dr-0001", domain.DebitRecord, 100),
		recordedEntry("cr-0001", domain.CreditRecord, 101),
		recordedEntry("cv-0001", domain.CreditRecordVoid, 101),
		recordedEntry("cc-0001", domain.CreditRecordCorrection, 100),
	)

	assert.Equal(t, string(domain.StatusBalanced), record.ReconciliationStatus)
	require.NotNil(t, record.CreditEntry)
	assert.Equal(t, "cc-0001", record.CreditEntry.PublicID)
	assert.Len(t, record.LedgerEntries, 4)
}

func TestApply_UnknownEntryTypePassesThrough(t *testing.T) {
	record := NewRecord()
	record, _ = Apply(record, recordedEntry("dr-0001", domain.DebitRecord, 100))

	unknown := recordedEntry("xx-0001", domain.EntryType("SettlementRecord"), 100)
	record, outcome := Apply(record, unknown)

	assert.False(t, outcome.Failed())
	assert.Equal(t, string(domain.StatusWaitingForPair), record.ReconciliationStatus)
	assert.Nil(t, record.CreditEntry)
	// Unknown types are still audited.
	assert.Len(t, record.LedgerEntries, 2)
}

func TestApply_AuditTrailNeverShrinks(t *testing.T) {
	record := NewRecord()
	for i := 0; i < 10; i++ {
		entry := recordedEntry(fmt.Sprintf("dr-%04d", i), domain.DebitRecord, 100)
		prevLen := len(record.LedgerEntries)
		record, _ = Apply(record, entry)
		assert.Equal(t, prevLen+1, len(record.LedgerEntries))
	}
}

func TestErrorCode_BatchStatus(t *testing.T) {
	assert.Equal(t, domain.StatusUnbalanced, NoDebitRecord.BatchStatus())
	assert.Equal(t, domain.StatusUnbalanced, NoCreditRecord.BatchStatus())
	assert.Equal(t, domain.StatusError, ExcessDebitRecords.BatchStatus())
	assert.Equal(t, domain.StatusError, ExcessCreditRecords.BatchStatus())
	assert.Equal(t, domain.StatusError, NotZeroSum.BatchStatus())
	assert.Equal(t, domain.StatusError, UnknownError.BatchStatus())
}
