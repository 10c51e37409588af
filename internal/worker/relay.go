package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Outbox publishes order messages the broker has not accepted yet.
type Outbox interface {
	RelayOutbox(ctx context.Context, age time.Duration, limit int) (int, error)
}

// Relay periodically drains the order outbox.
type Relay struct {
	source    Outbox
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	mu     sync.Mutex
}

// NewRelay constructs the outbox relay. Messages younger than interval are
// left to the request that stored them.
func NewRelay(source Outbox, interval time.Duration, batchSize int, logger *slog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 1
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Relay{
		source:    source,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Start launches the relay loop. Calling Start on a running relay is a no-op.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(runCtx)
}

// Stop cancels the loop and waits for the current batch.
func (r *Relay) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain relays full batches until the backlog is empty or publishing fails.
func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		relayed, err := r.source.RelayOutbox(ctx, r.interval, r.batchSize)
		if relayed > 0 {
			r.logger.Info("outbox messages relayed", slog.Int("count", relayed))
		}
		if err != nil {
			r.logger.Warn("outbox relay interrupted", slog.String("error", err.Error()))
			return
		}
		if relayed < r.batchSize {
			return
		}
	}
}
