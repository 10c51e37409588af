package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/metrics"
	"github.com/polkiloo/jobber/internal/usecase"
)

// Reconciliation exposes the subset of order functionality required by the sweep.
type Reconciliation interface {
	StaleOrders(ctx context.Context, threshold time.Duration, limit int) ([]model.Order, error)
	Reconcile(ctx context.Context, orderID string) (usecase.ReconcileResult, error)
}

// Reconciler periodically compares stuck crypto orders with the escrow gateway.
type Reconciler struct {
	source    Reconciliation
	interval  time.Duration
	threshold time.Duration
	batchSize int
	workers   int
	metrics   *metrics.Metrics
	logger    *slog.Logger

	jobs   chan string
	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewReconciler constructs the reconciliation worker pool.
func NewReconciler(
	source Reconciliation,
	interval, threshold time.Duration,
	batchSize, workers int,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Reconciler {
	if workers <= 0 {
		workers = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{
		source:    source,
		interval:  interval,
		threshold: threshold,
		batchSize: batchSize,
		workers:   workers,
		metrics:   m,
		logger:    logger,
		jobs:      make(chan string, batchSize),
	}
}

// Start launches the sweep. Calling Start on a running reconciler is a no-op.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx)
	}

	r.wg.Add(1)
	go r.dispatch(runCtx)
}

// Stop cancels the sweep and waits for in-flight orders to finish.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Reconciler) dispatch(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

// sweep enqueues one batch. Orders still queued from the previous tick are
// picked up again and skipped by the per-order lock.
func (r *Reconciler) sweep(ctx context.Context) {
	orders, err := r.source.StaleOrders(ctx, r.threshold, r.batchSize)
	if err != nil {
		r.logger.Error("list stale orders failed", slog.String("error", err.Error()))
		return
	}
	if len(orders) > 0 {
		r.logger.Debug("reconciling stale orders", slog.Int("count", len(orders)))
	}
	for _, order := range orders {
		select {
		case <-ctx.Done():
			return
		case r.jobs <- order.ID:
		}
	}
}

func (r *Reconciler) worker(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case orderID := <-r.jobs:
			r.reconcile(ctx, orderID)
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context, orderID string) {
	result, err := r.source.Reconcile(ctx, orderID)
	r.metrics.ReconciledOrders.WithLabelValues(string(result)).Inc()
	if err != nil {
		r.logger.Error("reconcile order failed",
			slog.String("order_id", orderID),
			slog.String("result", string(result)),
			slog.String("error", err.Error()),
		)
		return
	}
	if result != usecase.ReconcileInSync && result != usecase.ReconcileSkipped {
		r.logger.Info("order reconciled", slog.String("order_id", orderID), slog.String("result", string(result)))
	}
}
