// Package consumer binds broker queues to use case handlers and runs them
// for the lifetime of a service.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/textproto"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/polkiloo/jobber/internal/broker"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/messaging"
)

// Binding attaches a handler to a queue.
type Binding struct {
	Queue   string
	Handler broker.Handler
}

// Subscriber consumes a queue until ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, queue string, handler broker.Handler) error
}

// Runner subscribes every binding concurrently.
type Runner struct {
	subscriber Subscriber
	bindings   []Binding
	logger     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRunner constructs Runner.
func NewRunner(subscriber Subscriber, bindings []Binding, logger *slog.Logger) *Runner {
	return &Runner{subscriber: subscriber, bindings: bindings, logger: logger}
}

// Start launches one subscription per binding.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	r.cancel = cancel
	r.group = group

	for _, b := range r.bindings {
		group.Go(func() error {
			if err := r.subscriber.Subscribe(groupCtx, b.Queue, b.Handler); err != nil {
				return fmt.Errorf("subscribe %s: %w", b.Queue, err)
			}
			return nil
		})
	}
	r.logger.Info("consumers started", slog.Int("queues", len(r.bindings)))
}

// Stop cancels all subscriptions and waits for in-flight messages.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, group := r.cancel, r.group
	r.cancel, r.group = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	return group.Wait()
}

// Decoded adapts a typed handler to a broker handler. Payloads that cannot be
// decoded and handler errors that redelivery cannot fix are marked permanent.
func Decoded[T any](decode func([]byte) (T, error), handle func(context.Context, T) error) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		value, err := decode(msg.Body)
		if err != nil {
			return broker.Permanent(err)
		}
		if err := handle(ctx, value); err != nil {
			if undeliverable(err) {
				return broker.Permanent(err)
			}
			return err
		}
		return nil
	}
}

// RetryOnce drops a message whose redelivery fails again instead of
// requeueing it indefinitely at the head of the queue.
func RetryOnce(handler broker.Handler) broker.Handler {
	return func(ctx context.Context, msg broker.Message) error {
		err := handler(ctx, msg)
		if err != nil && msg.Redelivered && !broker.IsPermanent(err) {
			return broker.Permanent(fmt.Errorf("redelivered message failed again: %w", err))
		}
		return err
	}
}

func undeliverable(err error) bool {
	if messaging.IsUndeliverable(err) || errors.Is(err, domainErrors.ErrInvalidOrder) {
		return true
	}
	var reply *textproto.Error
	return errors.As(err, &reply) && reply.Code >= 500 && reply.Code < 600
}
