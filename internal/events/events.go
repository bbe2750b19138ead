// Package events defines the wire payloads exchanged over the ledger stream.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zr01/ledgee/internal/domain"
)

// MetadataErrorKey carries the classification code attached to an entry that
// triggered a reconciliation failure.
const MetadataErrorKey = "error"

// MetadataRecordStatusKey carries a status override attached to an entry
// rejected during aggregation (e.g. Excess).
const MetadataRecordStatusKey = "recordStatus"

// EventDetail describes the provenance of a single stream event.
type EventDetail struct {
	EventID  string            `json:"eventId"`
	EventBy  string            `json:"eventBy"`
	EventOn  int64             `json:"eventOn"`
	Metadata map[string]string `json:"metadata"`
}

// ReconciliationInfo records who resolved an entry and when.
type ReconciliationInfo struct {
	ReconciledBy string `json:"reconciledBy"`
	ReconciledOn int64  `json:"reconciledOn"`
}

// LedgerEntryRecorded is published after an entry commits, keyed by
// externalReferenceId.
type LedgerEntryRecorded struct {
	PublicID            string              `json:"publicId"`
	ParentPublicID      string              `json:"parentPublicId,omitempty"`
	PublicAccountID     string              `json:"publicAccountId"`
	Amount              int64               `json:"amount"`
	EntryType           string              `json:"entryType"`
	IsPending           string              `json:"isPending"`
	RecordStatus        string              `json:"recordStatus"`
	ExternalReferenceID string              `json:"externalReferenceId"`
	EntryReferenceID    string              `json:"entryReferenceId,omitempty"`
	Description         string              `json:"description"`
	TransactionOn       int64               `json:"transactionOn"`
	Reconciliation      *ReconciliationInfo `json:"reconciliation,omitempty"`
	EventDetail         EventDetail         `json:"eventDetail"`
}

// LedgerEntriesReconciled is the per-key aggregate state: the current active
// legs plus the append-only audit trail of every entry ever seen for the key.
type LedgerEntriesReconciled struct {
	DebitEntry           *LedgerEntryRecorded  `json:"debitEntry,omitempty"`
	CreditEntry          *LedgerEntryRecorded  `json:"creditEntry,omitempty"`
	LedgerEntries        []LedgerEntryRecorded `json:"ledgerEntries"`
	ReconciliationStatus string                `json:"reconciliationStatus"`
}

// NewEventDetail stamps provenance for an event raised by actor.
func NewEventDetail(actor string) EventDetail {
	return EventDetail{
		EventID:  uuid.NewString(),
		EventBy:  actor,
		EventOn:  time.Now().UnixMilli(),
		Metadata: map[string]string{},
	}
}

// FromLedgerEntry maps a persisted entry onto its recorded event.
func FromLedgerEntry(entry domain.LedgerEntry, eventBy string) LedgerEntryRecorded {
	evt := LedgerEntryRecorded{
		PublicID:            entry.PublicID,
		ParentPublicID:      entry.ParentPublicID,
		PublicAccountID:     entry.PublicAccountID,
		Amount:              entry.Amount,
		EntryType:           string(entry.EntryType),
		IsPending:           string(entry.IsPending),
		RecordStatus:        string(entry.RecordStatus),
		ExternalReferenceID: entry.ExternalReferenceID,
		EntryReferenceID:    entry.EntryReferenceID,
		Description:         entry.Description,
		TransactionOn:       entry.TransactionOn.UnixMilli(),
		EventDetail:         NewEventDetail(eventBy),
	}
	if entry.ReconciledOn != nil {
		evt.Reconciliation = &ReconciliationInfo{
			ReconciledBy: entry.ReconciledBy,
			ReconciledOn: entry.ReconciledOn.UnixMilli(),
		}
	}
	return evt
}

// Marshal encodes an event payload for the stream.
func Marshal(v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return payload, nil
}

// UnmarshalEntryRecorded decodes a recorded-entry event.
func UnmarshalEntryRecorded(payload []byte) (LedgerEntryRecorded, error) {
	var evt LedgerEntryRecorded
	if err := json.Unmarshal(payload, &evt); err != nil {
		return LedgerEntryRecorded{}, fmt.Errorf("unmarshal ledger entry event: %w", err)
	}
	if evt.EventDetail.Metadata == nil {
		evt.EventDetail.Metadata = map[string]string{}
	}
	return evt, nil
}
