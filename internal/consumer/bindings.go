package consumer

import (
	"github.com/polkiloo/jobber/internal/broker"
	"github.com/polkiloo/jobber/internal/messaging"
	"github.com/polkiloo/jobber/internal/usecase"
)

// NotificationBindings routes order events and email jobs to the notification
// service. Email jobs get a single redelivery so a failing message does not
// block the queue.
func NotificationBindings(svc *usecase.NotificationService) []Binding {
	email := RetryOnce(Decoded(messaging.DecodeEmailJob, svc.HandleEmail))
	return []Binding{
		{Queue: broker.OrderNotificationQueue, Handler: Decoded(messaging.DecodeEvent, svc.HandleOrderEvent)},
		{Queue: broker.AuthEmailQueue, Handler: email},
		{Queue: broker.OrderEmailQueue, Handler: email},
	}
}

// UsersBindings routes order events, buyer, seller and review messages to the users service.
func UsersBindings(svc *usecase.UsersService) []Binding {
	return []Binding{
		{Queue: broker.UsersOrderEventsQueue, Handler: Decoded(messaging.DecodeEvent, svc.HandleOrderEvent)},
		{Queue: broker.BuyerQueue, Handler: Decoded(messaging.DecodeBuyer, svc.HandleBuyer)},
		{Queue: broker.SellerQueue, Handler: Decoded(messaging.DecodeSeller, svc.HandleSeller)},
		{Queue: broker.SellerReviewQueue, Handler: Decoded(messaging.DecodeReview, svc.HandleReview)},
	}
}
