package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/domain"
	"github.com/zr01/ledgee/internal/events"
	"github.com/zr01/ledgee/internal/observability"
)

// Publisher emits an aggregate to a downstream topic.
type Publisher interface {
	PublishReconciled(ctx context.Context, key string, record Record) error
}

// Processor binds the pure fold to a durable record store and the two
// downstream paths. One Process call handles one stream event; the caller
// guarantees per-key ordering.
type Processor struct {
	store      RecordStore
	primary    Publisher
	deadLetter Publisher
}

func NewProcessor(store RecordStore, primary, deadLetter Publisher) *Processor {
	return &Processor{store: store, primary: primary, deadLetter: deadLetter}
}

// Process folds one recorded entry into its key's aggregate, persists the
// result, and routes it. The aggregator never stalls the stream: classified
// failures still produce a persisted, routed record.
func (p *Processor) Process(ctx context.Context, key string, entry events.LedgerEntryRecorded) error {
	record, found, err := p.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load record for %s: %w", key, err)
	}
	if !found {
		record = NewRecord()
	}

	record, outcome := Apply(record, entry)
	if err := p.store.Put(ctx, key, record); err != nil {
		return fmt.Errorf("persist record for %s: %w", key, err)
	}

	observability.IncrementReconciliation(string(outcome.ResultingStatus))
	if outcome.Failed() {
		logFn := zap.L().Warn
		if outcome.ResultingStatus == domain.StatusError {
			logFn = zap.L().Error
		}
		logFn("reconciliation entry rejected",
			zap.String("externalReferenceId", key),
			zap.String("publicId", outcome.OffendingEntry),
			zap.String("ledgerError", string(outcome.Code)),
			zap.String("reconciliationStatus", string(outcome.ResultingStatus)))
	}

	target := p.deadLetter
	if RoutesPrimary(record) {
		target = p.primary
	}
	if target == nil {
		return nil
	}
	if err := target.PublishReconciled(ctx, key, record); err != nil {
		return fmt.Errorf("publish record for %s: %w", key, err)
	}
	return nil
}
