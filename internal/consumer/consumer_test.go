package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polkiloo/jobber/internal/broker"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/messaging"
	"github.com/polkiloo/jobber/internal/metrics"
	testhelpers "github.com/polkiloo/jobber/internal/test"
	"github.com/polkiloo/jobber/internal/usecase"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type subscriberStub struct {
	mu     sync.Mutex
	queues []string
	errFor map[string]error
	ready  chan string
}

func (s *subscriberStub) Subscribe(ctx context.Context, queue string, _ broker.Handler) error {
	s.mu.Lock()
	s.queues = append(s.queues, queue)
	err := s.errFor[queue]
	s.mu.Unlock()
	if s.ready != nil {
		s.ready <- queue
	}
	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func decodeText(body []byte) (string, error) {
	if len(body) == 0 {
		return "", messaging.ErrMalformed
	}
	return string(body), nil
}

func TestDecodedClassifiesErrors(t *testing.T) {
	var got string
	handler := Decoded(decodeText, func(_ context.Context, v string) error {
		got = v
		switch v {
		case "unknown":
			return domainErrors.ErrUnknownMessageType
		case "invalid":
			return domainErrors.ErrInvalidOrder
		case "transient":
			return errors.New("database unavailable")
		}
		return nil
	})
	ctx := context.Background()

	require.NoError(t, handler(ctx, broker.Message{Body: []byte("ok")}))
	require.Equal(t, "ok", got)

	err := handler(ctx, broker.Message{})
	require.True(t, broker.IsPermanent(err))
	require.ErrorIs(t, err, messaging.ErrMalformed)

	require.True(t, broker.IsPermanent(handler(ctx, broker.Message{Body: []byte("unknown")})))
	require.True(t, broker.IsPermanent(handler(ctx, broker.Message{Body: []byte("invalid")})))

	err = handler(ctx, broker.Message{Body: []byte("transient")})
	require.Error(t, err)
	require.False(t, broker.IsPermanent(err))
}

func TestDecodedTreatsSMTPRejectionAsPermanent(t *testing.T) {
	handler := Decoded(messaging.DecodeEmailJob, func(context.Context, messaging.EmailJob) error {
		return &textproto.Error{Code: 550, Msg: "mailbox unavailable"}
	})
	body := []byte(`{"template":"orderPlaced","receiverEmail":"gone@example.com"}`)

	err := handler(context.Background(), broker.Message{Body: body})
	require.True(t, broker.IsPermanent(err))

	transient := Decoded(messaging.DecodeEmailJob, func(context.Context, messaging.EmailJob) error {
		return &textproto.Error{Code: 451, Msg: "try again later"}
	})
	require.False(t, broker.IsPermanent(transient(context.Background(), broker.Message{Body: body})))
}

func TestRetryOnceDropsFailedRedelivery(t *testing.T) {
	failure := errors.New("relay down")
	calls := 0
	handler := RetryOnce(func(context.Context, broker.Message) error {
		calls++
		return failure
	})
	ctx := context.Background()

	err := handler(ctx, broker.Message{ID: "m1"})
	require.ErrorIs(t, err, failure)
	require.False(t, broker.IsPermanent(err))

	err = handler(ctx, broker.Message{ID: "m1", Redelivered: true})
	require.ErrorIs(t, err, failure)
	require.True(t, broker.IsPermanent(err))
	require.Equal(t, 2, calls)

	ok := RetryOnce(func(context.Context, broker.Message) error { return nil })
	require.NoError(t, ok(ctx, broker.Message{Redelivered: true}))
}

func TestNotificationBindingsDropEmailAfterOneRetry(t *testing.T) {
	mailer := &testhelpers.MailerStub{Err: errors.New("relay down")}
	repo := &testhelpers.NotificationRepositoryStub{
		CreateFn: func(context.Context, model.Notification) (*model.Notification, error) {
			return nil, errors.New("database unavailable")
		},
	}
	svc := usecase.NewNotificationService(repo, pushDiscard{}, mailer, metrics.New(), discardLogger())
	bindings := NotificationBindings(svc)
	body := []byte(`{"template":"orderPlaced","receiverEmail":"bob@example.com"}`)

	for _, b := range bindings[1:] {
		err := b.Handler(context.Background(), broker.Message{Body: body})
		require.Error(t, err, b.Queue)
		require.False(t, broker.IsPermanent(err), b.Queue)

		err = b.Handler(context.Background(), broker.Message{Body: body, Redelivered: true})
		require.True(t, broker.IsPermanent(err), b.Queue)
	}

	event := []byte(`{"id":"e1","type":"order.delivered","orderId":"o1","occurredAt":"2024-01-02T03:04:05Z","order":{"orderId":"o1","buyerId":"b1","sellerId":"s1"}}`)
	err := bindings[0].Handler(context.Background(), broker.Message{Body: event, Redelivered: true})
	require.Error(t, err)
	require.False(t, broker.IsPermanent(err))
}

func TestRunnerSubscribesEveryBinding(t *testing.T) {
	sub := &subscriberStub{ready: make(chan string, 3)}
	runner := NewRunner(sub, []Binding{{Queue: "a"}, {Queue: "b"}, {Queue: "c"}}, discardLogger())

	runner.Start(context.Background())
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case q := <-sub.ready:
			seen[q] = true
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for subscriptions")
		}
	}
	require.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)

	require.NoError(t, runner.Stop())
	require.NoError(t, runner.Stop())
}

func TestRunnerStopReportsSubscribeFailure(t *testing.T) {
	sub := &subscriberStub{errFor: map[string]error{"bad": errors.New("no such queue")}}
	runner := NewRunner(sub, []Binding{{Queue: "good"}, {Queue: "bad"}}, discardLogger())

	runner.Start(context.Background())
	err := runner.Stop()
	require.Error(t, err)
	require.Contains(t, err.Error(), "subscribe bad")
}

func TestNotificationBindingsDeliverOrderEvents(t *testing.T) {
	repo := &testhelpers.NotificationRepositoryStub{}
	svc := usecase.NewNotificationService(repo, pushDiscard{}, &testhelpers.MailerStub{}, metrics.New(), discardLogger())

	bindings := NotificationBindings(svc)
	queues := make([]string, 0, len(bindings))
	for _, b := range bindings {
		queues = append(queues, b.Queue)
	}
	require.Equal(t, []string{broker.OrderNotificationQueue, broker.AuthEmailQueue, broker.OrderEmailQueue}, queues)

	body := []byte(`{"id":"e1","type":"order.delivered","orderId":"o1","occurredAt":"2024-01-02T03:04:05Z","order":{"orderId":"o1","buyerId":"b1","sellerId":"s1"}}`)
	require.NoError(t, bindings[0].Handler(context.Background(), broker.Message{Body: body}))
	require.Len(t, repo.Items, 1)
	require.Equal(t, "b1", repo.Items[0].UserTo)

	err := bindings[0].Handler(context.Background(), broker.Message{Body: []byte(`{"type":"order.teleported"}`)})
	require.True(t, broker.IsPermanent(err))
}

func TestUsersBindingsRejectUnknownSellerMessages(t *testing.T) {
	sellers := testhelpers.NewSellerRepositoryStub()
	svc := usecase.NewUsersService(sellers, testhelpers.NewBuyerRepositoryStub(), discardLogger())
	bindings := UsersBindings(svc)

	handlers := map[string]broker.Handler{}
	for _, b := range bindings {
		handlers[b.Queue] = b.Handler
	}
	require.Len(t, handlers, 4)

	seller := handlers[broker.SellerQueue]
	require.NoError(t, seller(context.Background(), broker.Message{Body: []byte(`{"type":"update-gig-count","gigSellerId":"s1","count":3}`)}))
	require.Equal(t, 3, sellers.Sellers["s1"].TotalGigs)

	err := seller(context.Background(), broker.Message{Body: []byte(`{"type":"promote"}`)})
	require.True(t, broker.IsPermanent(err))
	require.ErrorIs(t, err, domainErrors.ErrUnknownMessageType)

	sellers.Err = errors.New("database unavailable")
	err = seller(context.Background(), broker.Message{Body: []byte(`{"type":"update-gig-count","gigSellerId":"s1","count":4}`)})
	require.Error(t, err)
	require.False(t, broker.IsPermanent(err))
}

type pushDiscard struct{}

func (pushDiscard) Push(model.Notification) {}
