// Package reconcile implements the per-key reconciliation fold over the
// ledger entry stream: pairing debit and credit legs under a shared external
// reference id, voiding, and zero-sum evaluation.
package reconcile

import (
	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/events"
)

// ErrorCode classifies a reconciliation failure. These are business
// outcomes, not faults: they are recorded on the aggregate and routed to the
// dead-letter path, never raised as errors.
type ErrorCode string

const (
	NoDebitRecord       ErrorCode = "NO_DEBIT_RECORD"
	NoCreditRecord      ErrorCode = "NO_CREDIT_RECORD"
	ExcessDebitRecords  ErrorCode = "EXCESS_DEBIT_RECORDS"
	ExcessCreditRecords ErrorCode = "EXCESS_CREDIT_RECORDS"
	NotZeroSum          ErrorCode = "NOT_ZERO_SUM"
	UnknownError        ErrorCode = "UNKNOWN"
)

// BatchStatus maps an error code onto the record status persisted by the
// batch reconciler. Missing-leg outcomes stay Unbalanced (the pair may still
// arrive); everything else needs operator remediation.
func (c ErrorCode) BatchStatus() domain.RecordStatus {
	switch c {
	case NoDebitRecord, NoCreditRecord:
		return domain.StatusUnbalanced
	default:
		return domain.StatusError
	}
}

// Record is the per-key aggregate the fold maintains.
type Record = events.LedgerEntriesReconciled

// Outcome is the explicit classification result of one fold step. A zero
// Code means the step completed cleanly.
type Outcome struct {
	Code            ErrorCode
	OffendingEntry  string
	ResultingStatus domain.RecordStatus
}

// Failed reports whether the step produced a classified failure.
func (o Outcome) Failed() bool { return o.Code != "" }

// NewRecord returns the initial pre-pairing aggregate for a key.
func NewRecord() Record {
	return Record{
		LedgerEntries:        []events.LedgerEntryRecorded{},
		ReconciliationStatus: string(domain.StatusStaged),
	}
}

// Apply folds one entry into the aggregate for its key. It must be called
// exactly once per event, in strict per-key arrival order; it mutates
// nothing outside the record it is given and always produces a record.
func Apply(record Record, entry events.LedgerEntryRecorded) (Record, Outcome) {
	if entry.EventDetail.Metadata == nil {
		entry.EventDetail.Metadata = map[string]string{}
	}

	// The audit trail is never lossy: every entry is appended, whatever
	// happens to it below.
	record.LedgerEntries = append(record.LedgerEntries, entry)

	entryType, err := domain.ParseEntryType(entry.EntryType)
	if err != nil {
		// Unknown types pass through untouched for forward compatibility.
		zap.L().Info("ignoring unknown entry type",
			zap.String("entryType", entry.EntryType),
			zap.String("publicId", entry.PublicID),
			zap.String("externalReferenceId", entry.ExternalReferenceID))
		return record, Outcome{ResultingStatus: domain.RecordStatus(record.ReconciliationStatus)}
	}

	var outcome Outcome
	switch {
	case entryType.IsVoid():
		outcome = applyVoid(&record, entry, entryType)
	case entryType.IsDebitLeg():
		outcome = applyLegFill(&record, entry, debitSlot, ExcessDebitRecords)
	default:
		outcome = applyLegFill(&record, entry, creditSlot, ExcessCreditRecords)
	}
	return record, outcome
}

func debitSlot(rec *Record) **events.LedgerEntryRecorded  { return &rec.DebitEntry }
func creditSlot(rec *Record) **events.LedgerEntryRecorded { return &rec.CreditEntry }

func applyLegFill(rec *Record, entry events.LedgerEntryRecorded, slotOf func(*Record) **events.LedgerEntryRecorded, excessCode ErrorCode) Outcome {
	slot := slotOf(rec)
	if *slot != nil {
		if (*slot).PublicID == entry.PublicID {
			// Redelivery of the occupant: idempotent no-op.
			return Outcome{ResultingStatus: domain.RecordStatus(rec.ReconciliationStatus)}
		}
		return rejectEntry(rec, entry, excessCode)
	}

	occupant := entry
	*slot = &occupant
	return evaluateBalance(rec)
}

// evaluateBalance re-derives the record status after a slot mutation. The
// zero-sum comparison runs whenever both slots are simultaneously occupied.
func evaluateBalance(rec *Record) Outcome {
	if rec.DebitEntry == nil || rec.CreditEntry == nil {
		rec.ReconciliationStatus = string(domain.StatusWaitingForPair)
		return Outcome{ResultingStatus: domain.StatusWaitingForPair}
	}

	if rec.DebitEntry.Amount != rec.CreditEntry.Amount {
		trigger := &rec.LedgerEntries[len(rec.LedgerEntries)-1]
		trigger.EventDetail.Metadata[events.MetadataErrorKey] = string(NotZeroSum)
		rec.DebitEntry.RecordStatus = string(domain.StatusUnbalanced)
		rec.CreditEntry.RecordStatus = string(domain.StatusUnbalanced)
		rec.ReconciliationStatus = string(domain.StatusUnbalanced)
		return Outcome{
			Code:            NotZeroSum,
			OffendingEntry:  trigger.PublicID,
			ResultingStatus: domain.StatusUnbalanced,
		}
	}

	rec.DebitEntry.RecordStatus = string(domain.StatusBalanced)
	rec.CreditEntry.RecordStatus = string(domain.StatusBalanced)
	rec.ReconciliationStatus = string(domain.StatusBalanced)
	return Outcome{ResultingStatus: domain.StatusBalanced}
}

func applyVoid(rec *Record, entry events.LedgerEntryRecorded, entryType domain.EntryType) Outcome {
	slot := creditSlot(rec)
	missingCode := NoCreditRecord
	if entryType.IsDebitLeg() {
		slot = debitSlot(rec)
		missingCode = NoDebitRecord
	}

	if *slot == nil {
		return rejectEntry(rec, entry, missingCode)
	}

	// Flip both the void and the occupant to Void, then free the slot. The
	// occupant keeps its place in the audit trail with its status flipped.
	voidedID := (*slot).PublicID
	for i := len(rec.LedgerEntries) - 2; i >= 0; i-- {
		if rec.LedgerEntries[i].PublicID == voidedID {
			rec.LedgerEntries[i].RecordStatus = string(domain.StatusVoid)
			break
		}
	}
	last := &rec.LedgerEntries[len(rec.LedgerEntries)-1]
	last.RecordStatus = string(domain.StatusVoid)
	if last.ParentPublicID == "" {
		last.ParentPublicID = voidedID
	}
	*slot = nil

	if rec.DebitEntry == nil && rec.CreditEntry == nil {
		// Both legs gone: the key is back to its pre-pairing state.
		rec.ReconciliationStatus = string(domain.StatusStaged)
		return Outcome{ResultingStatus: domain.StatusStaged}
	}
	rec.ReconciliationStatus = string(domain.StatusWaitingForPair)
	return Outcome{ResultingStatus: domain.StatusWaitingForPair}
}

// rejectEntry annotates the offending entry in the audit trail and degrades
// the record status. Occupied slots are never overwritten.
func rejectEntry(rec *Record, entry events.LedgerEntryRecorded, code ErrorCode) Outcome {
	status := domain.StatusError
	if code == ExcessDebitRecords || code == ExcessCreditRecords {
		status = domain.StatusExcess
	}

	last := &rec.LedgerEntries[len(rec.LedgerEntries)-1]
	last.EventDetail.Metadata[events.MetadataErrorKey] = string(code)
	last.EventDetail.Metadata[events.MetadataRecordStatusKey] = string(status)
	rec.ReconciliationStatus = string(status)

	return Outcome{
		Code:            code,
		OffendingEntry:  entry.PublicID,
		ResultingStatus: status,
	}
}

// RoutesPrimary reports whether the record belongs on the primary downstream
// path; everything else goes to the dead-letter path. The decision is
// re-evaluated after every mutation.
func RoutesPrimary(record Record) bool {
	switch domain.RecordStatus(record.ReconciliationStatus) {
	case domain.StatusBalanced, domain.StatusWaitingForPair:
		return true
	default:
		return false
	}
}
