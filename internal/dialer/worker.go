package dialer

import (
	"context"
	"log/slog"
	"time"

	"github.com/propertyhub/leadvoice/internal/observability"
	"github.com/propertyhub/leadvoice/internal/scheduler"
	"github.com/propertyhub/leadvoice/internal/store"
)

const tickBatchLimit = 10

// Worker polls for due scheduled calls and hands them to the executor.
type Worker struct {
	scheduler *scheduler.Scheduler
	executor  *Executor
	store     store.Store
	metrics   *observability.Metrics
	logger    *slog.Logger
	interval  time.Duration
}

func NewWorker(sch *scheduler.Scheduler, ex *Executor, st store.Store,
	metrics *observability.Metrics, logger *slog.Logger, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Worker{
		scheduler: sch,
		executor:  ex,
		store:     st,
		metrics:   metrics,
		logger:    logger,
		interval:  interval,
	}
}

// Run ticks until ctx is cancelled. Per-call failures are logged and do
// not stop the batch or the loop.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("dial worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("dial worker stopped")
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick runs one dispatch round with a short-lived deadline.
func (w *Worker) Tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, 25*time.Second)
	defer cancel()

	if queued, err := w.store.CountByStatus(tickCtx, store.CallPending); err == nil {
		w.metrics.QueuedCalls.Set(float64(queued))
	}

	due, err := w.scheduler.GetPendingCalls(tickCtx, tickBatchLimit)
	if err != nil {
		w.logger.Error("pending call query failed", "error", err)
		return
	}
	for _, sc := range due {
		if err := w.executor.Execute(tickCtx, sc); err != nil {
			w.logger.Warn("call execution failed", "scheduled_call_id", sc.ID, "error", err)
		}
	}
}
