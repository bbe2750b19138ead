package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zr01/ledgee/internal/observability"
	"github.com/zr01/ledgee/internal/service"
)

// ReconcileWorker periodically sweeps stale staged entries through the batch
// reconciler.
type ReconcileWorker struct {
	reconciler *service.BatchReconciler
	interval   time.Duration
	runTimeout time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewReconcileWorker constructs a worker with a default fifteen minute
// interval. Each run is bounded so a stuck sweep cannot block the next tick
// forever.
func NewReconcileWorker(reconciler *service.BatchReconciler) *ReconcileWorker {
	return &ReconcileWorker{
		reconciler: reconciler,
		interval:   15 * time.Minute,
		runTimeout: 5 * time.Minute,
		stopCh:     make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ReconcileWorker) WithInterval(interval time.Duration) *ReconcileWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ReconcileWorker) Start(ctx context.Context) {
	zap.L().Info("batch reconcile worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("batch reconcile worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("batch reconcile worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *ReconcileWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconcileWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconcileWorker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	defer cancel()

	if err := w.reconciler.Run(runCtx); err != nil {
		observability.IncrementWorkerRun("batch_reconcile", "failed")
		zap.L().Error("batch reconcile run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("batch_reconcile", "success")
}
