package domain

import (
	"fmt"
	"strings"
	"time"
)

// EntryType identifies the leg and role of a posted ledger movement.
type EntryType string

const (
	DebitRecord            EntryType = "DebitRecord"
	CreditRecord           EntryType = "CreditRecord"
	DebitRecordVoid        EntryType = "DebitRecordVoid"
	CreditRecordVoid       EntryType = "CreditRecordVoid"
	DebitRecordCorrection  EntryType = "DebitRecordCorrection"
	CreditRecordCorrection EntryType = "CreditRecordCorrection"
)

// ParseEntryType maps an external string onto an EntryType, case-insensitively.
func ParseEntryType(value string) (EntryType, error) {
	for _, et := range []EntryType{
		DebitRecord, CreditRecord,
		DebitRecordVoid, CreditRecordVoid,
		DebitRecordCorrection, CreditRecordCorrection,
	} {
		if strings.EqualFold(string(et), value) {
			return et, nil
		}
	}
	return "", fmt.Errorf("unknown entry type: %q", value)
}

// Sign returns the signed direction applied to balances: debit legs are -1,
// credit legs are +1, and a void inverts the sign of the leg it cancels.
func (et EntryType) Sign() int64 {
	switch et {
	case DebitRecord, DebitRecordCorrection, CreditRecordVoid:
		return -1
	case CreditRecord, CreditRecordCorrection, DebitRecordVoid:
		return 1
	default:
		return 0
	}
}

// IsDebitLeg reports whether the entry occupies (or targets) the debit slot.
func (et EntryType) IsDebitLeg() bool {
	return et == DebitRecord || et == DebitRecordVoid || et == DebitRecordCorrection
}

// IsCreditLeg reports whether the entry occupies (or targets) the credit slot.
func (et EntryType) IsCreditLeg() bool {
	return et == CreditRecord || et == CreditRecordVoid || et == CreditRecordCorrection
}

// IsVoid reports whether the entry cancels a previously posted entry.
func (et EntryType) IsVoid() bool {
	return et == DebitRecordVoid || et == CreditRecordVoid
}

// IsCorrection reports whether the entry replaces a voided leg.
func (et EntryType) IsCorrection() bool {
	return et == DebitRecordCorrection || et == CreditRecordCorrection
}

// VoidType returns the entry type that cancels this leg.
func (et EntryType) VoidType() EntryType {
	if et.IsDebitLeg() {
		return DebitRecordVoid
	}
	return CreditRecordVoid
}

// CorrectionType returns the entry type that replaces this leg after a void.
func (et EntryType) CorrectionType() EntryType {
	if et.IsDebitLeg() {
		return DebitRecordCorrection
	}
	return CreditRecordCorrection
}

// RecordStatus tracks an entry (and aggregate record) through its lifecycle.
type RecordStatus string

const (
	StatusStaged         RecordStatus = "Staged"
	StatusWaitingForPair RecordStatus = "WaitingForPair"
	StatusBalanced       RecordStatus = "Balanced"
	StatusUnbalanced     RecordStatus = "Unbalanced"
	StatusExcess         RecordStatus = "Excess"
	StatusError          RecordStatus = "Error"
	StatusVoid           RecordStatus = "Void"
	StatusForDeletion    RecordStatus = "ForDeletion"
	StatusHotArchive     RecordStatus = "HotArchive"
	StatusColdArchive    RecordStatus = "ColdArchive"
)

// IsPending flags whether the movement applies to the pending balance bucket.
type IsPending string

const (
	PendingNo  IsPending = "No"
	PendingYes IsPending = "Yes"
)

func PendingFromBool(pending bool) IsPending {
	if pending {
		return PendingYes
	}
	return PendingNo
}

func (p IsPending) Bool() bool { return p == PendingYes }

// LedgerEntry is one posted movement. Entries are never physically deleted;
// remediation and archival happen through recordStatus transitions.
type LedgerEntry struct {
	ID                  int64
	PublicID            string
	ParentPublicID      string
	AccountID           int64
	PublicAccountID     string
	Amount              int64 // minor currency units, non-negative
	EntryType           EntryType
	IsPending           IsPending
	RecordStatus        RecordStatus
	ExternalReferenceID string
	EntryReferenceID    string
	Description         string
	TransactionOn       time.Time
	CreatedOn           time.Time
	CreatedBy           string
	ReconciledOn        *time.Time
	ReconciledBy        string
}

// BalanceType distinguishes the two balance rows kept per account.
type BalanceType string

const (
	BalanceActual    BalanceType = "Actual"
	BalanceProjected BalanceType = "Projected"
)

// VirtualAccount is the balance-bearing entity. Every account owns exactly
// one Actual and one Projected balance row, versioned independently.
type VirtualAccount struct {
	ID          int64
	PublicID    string
	AccountID   string
	ProductCode string
	Currency    string
	CreatedOn   time.Time
	CreatedBy   string
}

// VirtualAccountBalance is one versioned balance row. Version is the
// optimistic-lock token: writes succeed only when the stored version still
// matches the version read.
type VirtualAccountBalance struct {
	ID               int64
	VirtualAccountID int64
	BalanceType      BalanceType
	AvailableBalance int64
	PendingBalance   int64
	LastUpdated      time.Time
	Version          int64
}

// SequenceRange is a half-open id range [Start, End) reserved from the shared
// backing counter. Owned exclusively by one allocator instance per prefix.
type SequenceRange struct {
	Start int64
	End   int64
}
