package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/polkiloo/jobber/internal/adapter/mail"
	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/domain/repository"
	"github.com/polkiloo/jobber/internal/messaging"
	"github.com/polkiloo/jobber/internal/metrics"
)

// LivePusher forwards a stored notification to open client connections.
type LivePusher interface {
	Push(n model.Notification)
}

// notificationNamespace derives stable notification ids from event keys.
var notificationNamespace = uuid.MustParse("6f1c54a2-8f0e-4e3b-9d55-3f1a1f4b7c21")

// NotificationService turns order events into user notifications and sends email jobs.
type NotificationService struct {
	notifications repository.NotificationRepository
	live          LivePusher
	mailer        mail.Mailer
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(
	notifications repository.NotificationRepository,
	live LivePusher,
	mailer mail.Mailer,
	m *metrics.Metrics,
	logger *slog.Logger,
) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		live:          live,
		mailer:        mailer,
		metrics:       m,
		logger:        logger,
	}
}

// HandleOrderEvent stores and pushes the notifications an event produces.
// Redelivered events map to the same ids and are not pushed twice.
func (s *NotificationService) HandleOrderEvent(ctx context.Context, ev model.DomainEvent) error {
	for _, n := range notificationsFor(ev) {
		if n.UserTo == "" {
			s.logger.Warn("order event without recipient", slog.String("order_id", ev.OrderID), slog.String("type", string(ev.Type)))
			continue
		}
		n.ID = uuid.NewSHA1(notificationNamespace, []byte(ev.IdempotencyKey()+":"+n.UserTo)).String()

		stored, err := s.notifications.Create(ctx, n)
		if err != nil {
			if errors.Is(err, domainErrors.ErrAlreadyProcessed) {
				s.logger.Debug("notification already stored", slog.String("notification_id", n.ID))
				continue
			}
			return fmt.Errorf("store notification for %s: %w", n.UserTo, err)
		}
		s.live.Push(*stored)
		s.metrics.NotificationsSent.WithLabelValues("live").Inc()
	}
	return nil
}

// HandleEmail delegates an email job to the mailer.
func (s *NotificationService) HandleEmail(ctx context.Context, job messaging.EmailJob) error {
	if err := s.mailer.Send(ctx, job); err != nil {
		return err
	}
	s.metrics.NotificationsSent.WithLabelValues("email").Inc()
	return nil
}

// List returns the notifications of a recipient.
func (s *NotificationService) List(ctx context.Context, userTo string) ([]model.Notification, error) {
	return s.notifications.ListByRecipient(ctx, userTo)
}

// MarkAsRead sets the read flag and pushes the updated notification.
func (s *NotificationService) MarkAsRead(ctx context.Context, notificationID string) (*model.Notification, error) {
	n, err := s.notifications.MarkAsRead(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	s.live.Push(*n)
	return n, nil
}

func notificationsFor(ev model.DomainEvent) []model.Notification {
	o := ev.Order
	toSeller := func(message string) model.Notification {
		return model.Notification{
			UserTo:           o.SellerID,
			SenderUsername:   o.BuyerUsername,
			SenderPicture:    o.BuyerPicture,
			ReceiverUsername: o.SellerUsername,
			ReceiverPicture:  o.SellerPicture,
			Message:          message,
			OrderID:          o.OrderID,
		}
	}
	toBuyer := func(message string) model.Notification {
		return model.Notification{
			UserTo:           o.BuyerID,
			SenderUsername:   o.SellerUsername,
			SenderPicture:    o.SellerPicture,
			ReceiverUsername: o.BuyerUsername,
			ReceiverPicture:  o.BuyerPicture,
			Message:          message,
			OrderID:          o.OrderID,
		}
	}

	switch ev.Type {
	case model.EventPaymentConfirmed:
		return []model.Notification{toSeller(fmt.Sprintf("%s placed an order for %q.", o.BuyerUsername, o.GigTitle))}
	case model.EventDelivered:
		return []model.Notification{toBuyer(fmt.Sprintf("%s delivered your order.", o.SellerUsername))}
	case model.EventCompleted:
		return []model.Notification{toSeller(fmt.Sprintf("%s approved your delivery.", o.BuyerUsername))}
	case model.EventCancelled:
		return []model.Notification{
			toSeller("Order was cancelled."),
			toBuyer("Order was cancelled."),
		}
	case model.EventDisputed:
		return []model.Notification{toSeller(fmt.Sprintf("%s opened a dispute on your delivery.", o.BuyerUsername))}
	case model.EventRefunded:
		return []model.Notification{toBuyer("Your payment was refunded.")}
	default:
		return nil
	}
}
