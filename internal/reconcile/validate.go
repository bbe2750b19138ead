package reconcile

import "github.com/zr01/ledgee/internal/domain"

// Fault is the explicit classification returned when a group of persisted
// entries fails validation. It is a value, not an error: callers branch on
// it instead of unwinding.
type Fault struct {
	Code    ErrorCode
	Message string
}

// Validate applies the pairing and zero-sum rule to every entry persisted
// for one external reference id. It returns the single active debit and
// credit leg when the group balances, or a Fault classifying why it does
// not. Voided entries do not count as active legs.
func Validate(entries []domain.LedgerEntry) (debit, credit *domain.LedgerEntry, fault *Fault) {
	var debits, credits []*domain.LedgerEntry
	for i := range entries {
		entry := &entries[i]
		if entry.RecordStatus == domain.StatusVoid || entry.EntryType.IsVoid() {
			continue
		}
		switch {
		case entry.EntryType.IsDebitLeg():
			debits = append(debits, entry)
		case entry.EntryType.IsCreditLeg():
			credits = append(credits, entry)
		}
	}

	switch {
	case len(debits) == 0:
		return nil, nil, &Fault{Code: NoDebitRecord, Message: "no active debit leg"}
	case len(credits) == 0:
		return nil, nil, &Fault{Code: NoCreditRecord, Message: "no active credit leg"}
	case len(debits) > 1:
		return nil, nil, &Fault{Code: ExcessDebitRecords, Message: "more than one active debit leg"}
	case len(credits) > 1:
		return nil, nil, &Fault{Code: ExcessCreditRecords, Message: "more than one active credit leg"}
	}

	if debits[0].Amount != credits[0].Amount {
		return nil, nil, &Fault{Code: NotZeroSum, Message: "debit and credit amounts differ"}
	}
	return debits[0], credits[0], nil
}
