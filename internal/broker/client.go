package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/polkiloo/jobber/internal/metrics"
)

// Options tune connection retries and consumer prefetch.
type Options struct {
	MaxRetries    int
	RetryInterval time.Duration
	Prefetch      int
}

// Message is a delivery handed to subscribers.
type Message struct {
	ID          string
	Exchange    string
	RoutingKey  string
	Body        []byte
	Redelivered bool
	Timestamp   time.Time
}

// Handler processes one message. A nil error acknowledges it.
type Handler func(ctx context.Context, msg Message) error

// Client owns a single broker connection shared by publishers and subscribers.
type Client struct {
	url     string
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Metrics
	dial    func(url string) (connection, error)
	fatal   func(error)

	mu       sync.RWMutex
	conn     connection
	ch       channel
	ready    chan struct{}
	topology []Topology
	closed   bool
	done     chan struct{}

	pubMu sync.Mutex
}

// NewClient creates a disconnected client.
func NewClient(url string, opts Options, logger *slog.Logger, m *metrics.Metrics) *Client {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 5
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = time.Second
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	return &Client{
		url:     url,
		opts:    opts,
		logger:  logger,
		metrics: m,
		dial:    dialAMQP,
		fatal:   func(error) {},
		ready:   make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// OnFatal registers the hook invoked when reconnection gives up.
func (c *Client) OnFatal(fn func(error)) {
	c.mu.Lock()
	c.fatal = fn
	c.mu.Unlock()
}

// Connect dials the broker with bounded backoff and starts the reconnect watcher.
func (c *Client) Connect(ctx context.Context) error {
	conn, ch, err := c.openWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("connect broker: %w", err)
	}
	c.install(conn, ch)
	c.logger.Info("broker connected")

	go c.watch(conn)
	return nil
}

// DeclareTopology asserts the exchange, queue and binding. It is recorded
// and replayed after every reconnect.
func (c *Client) DeclareTopology(t Topology) error {
	if t.Kind != KindDirect && t.Kind != KindFanout {
		return fmt.Errorf("unsupported exchange kind %q", t.Kind)
	}

	c.mu.Lock()
	known := false
	for _, existing := range c.topology {
		if existing == t {
			known = true
			break
		}
	}
	if !known {
		c.topology = append(c.topology, t)
	}
	ch := c.ch
	c.mu.Unlock()

	if ch == nil {
		return nil
	}
	if err := declare(ch, t); err != nil {
		return fmt.Errorf("declare %s/%s: %w", t.Exchange, t.Queue, err)
	}
	return nil
}

// Publish sends payload as a persistent JSON message.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	c.mu.RLock()
	ch := c.ch
	c.mu.RUnlock()
	if ch == nil {
		c.metrics.BrokerPublished.WithLabelValues(exchange, "unavailable").Inc()
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	c.pubMu.Lock()
	err = ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
	c.pubMu.Unlock()
	if err != nil {
		c.metrics.BrokerPublished.WithLabelValues(exchange, "error").Inc()
		return fmt.Errorf("publish to %s: %w", exchange, err)
	}
	c.metrics.BrokerPublished.WithLabelValues(exchange, "ok").Inc()
	return nil
}

// Subscribe consumes queue until ctx is cancelled, resuming after reconnects.
func (c *Client) Subscribe(ctx context.Context, queue string, handler Handler) error {
	for {
		conn, err := c.waitReady(ctx)
		if err != nil {
			return nil
		}

		deliveries, ch, err := c.consumeChannel(conn, queue)
		if err != nil {
			c.logger.Warn("subscribe failed, retrying", slog.String("queue", queue), slog.Any("error", err))
			if !c.pause(ctx, c.opts.RetryInterval) {
				return nil
			}
			continue
		}

		c.logger.Info("consuming", slog.String("queue", queue))
		c.drain(ctx, queue, deliveries, handler)
		_ = ch.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("delivery channel closed, waiting for reconnect", slog.String("queue", queue))
	}
}

// Close stops the watcher and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn, ch := c.conn, c.ch
	c.conn, c.ch = nil, nil
	c.mu.Unlock()

	var errs []error
	if ch != nil {
		errs = append(errs, ch.Close())
	}
	if conn != nil {
		errs = append(errs, conn.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) consumeChannel(conn connection, queue string) (<-chan amqp.Delivery, channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	if err := ch.Qos(c.opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, nil, err
	}
	return deliveries, ch, nil
}

func (c *Client) drain(ctx context.Context, queue string, deliveries <-chan amqp.Delivery, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.settle(ctx, queue, d, handler)
		}
	}
}

func (c *Client) settle(ctx context.Context, queue string, d amqp.Delivery, handler Handler) {
	msg := Message{
		ID:          d.MessageId,
		Exchange:    d.Exchange,
		RoutingKey:  d.RoutingKey,
		Body:        d.Body,
		Redelivered: d.Redelivered,
		Timestamp:   d.Timestamp,
	}

	err := handler(ctx, msg)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			c.logger.Error("ack failed", slog.String("queue", queue), slog.Any("error", ackErr))
		}
		c.metrics.BrokerConsumed.WithLabelValues(queue, "ack").Inc()
	case IsPermanent(err):
		c.logger.Error("dropping message", slog.String("queue", queue), slog.String("message_id", msg.ID), slog.Any("error", err))
		if nackErr := d.Nack(false, false); nackErr != nil {
			c.logger.Error("nack failed", slog.String("queue", queue), slog.Any("error", nackErr))
		}
		c.metrics.BrokerConsumed.WithLabelValues(queue, "reject").Inc()
	default:
		c.logger.Warn("message handling failed, requeueing", slog.String("queue", queue), slog.String("message_id", msg.ID), slog.Any("error", err))
		c.pause(ctx, c.opts.RetryInterval)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", slog.String("queue", queue), slog.Any("error", nackErr))
		}
		c.metrics.BrokerConsumed.WithLabelValues(queue, "requeue").Inc()
	}
}

func (c *Client) watch(conn connection) {
	for {
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))
		select {
		case <-c.done:
			return
		case amqpErr := <-notify:
			if c.isClosed() {
				return
			}
			c.markDisconnected()
			c.logger.Warn("broker connection lost", slog.Any("error", amqpErr))
		}

		ctx, cancel := c.doneContext()
		next, ch, err := c.openWithRetry(ctx)
		cancel()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logger.Error("broker reconnect failed", slog.Any("error", err))
			c.mu.RLock()
			fatal := c.fatal
			c.mu.RUnlock()
			fatal(fmt.Errorf("reconnect broker: %w", err))
			return
		}
		c.install(next, ch)
		c.logger.Info("broker reconnected")
		conn = next
	}
}

func (c *Client) openWithRetry(ctx context.Context) (connection, channel, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.RetryInterval
	policy.MaxElapsedTime = 0

	var (
		conn connection
		ch   channel
	)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		conn, ch, err = c.open()
		if err != nil {
			c.logger.Warn("broker dial failed", slog.Int("attempt", attempt), slog.Any("error", err))
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxRetries)), ctx))
	if err != nil {
		return nil, nil, err
	}
	return conn, ch, nil
}

func (c *Client) open() (connection, channel, error) {
	conn, err := c.dial(c.url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	c.mu.RLock()
	topology := append([]Topology(nil), c.topology...)
	c.mu.RUnlock()
	for _, t := range topology {
		if err := declare(ch, t); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("redeclare %s: %w", t.Exchange, err)
		}
	}
	return conn, ch, nil
}

func (c *Client) install(conn connection, ch channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		_ = ch.Close()
		_ = conn.Close()
		return
	}
	c.conn, c.ch = conn, ch
	close(c.ready)
}

func (c *Client) markDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn, c.ch = nil, nil
	c.ready = make(chan struct{})
}

func (c *Client) waitReady(ctx context.Context) (connection, error) {
	for {
		c.mu.RLock()
		ready, conn, closed := c.ready, c.conn, c.closed
		c.mu.RUnlock()
		if closed {
			return nil, ErrNotConnected
		}

		select {
		case <-ready:
			if conn != nil {
				return conn, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.done:
			return nil, ErrNotConnected
		}
	}
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) doneContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (c *Client) pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.done:
		return false
	}
}
