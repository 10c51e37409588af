package broker

// Exchange kinds supported by the topology.
const (
	KindDirect = "direct"
	KindFanout = "fanout"
)

// Exchanges, queues and routing keys shared by the services.
const (
	OrderEventsExchange = "jobber-order-events"
	OrderEmailExchange  = "jobber-order-notification"
	AuthEmailExchange   = "jobber-email-notification"
	BuyerExchange       = "jobber-buyer-update"
	SellerExchange      = "jobber-seller-update"
	ReviewExchange      = "jobber-review"

	OrderNotificationQueue = "order-notification-queue"
	UsersOrderEventsQueue  = "users-order-events-queue"
	BuyerQueue             = "user-buyer-queue"
	SellerQueue            = "user-seller-queue"
	AuthEmailQueue         = "auth-email-queue"
	OrderEmailQueue        = "order-email-queue"
	SellerReviewQueue      = "seller-review-queue"

	OrderEmailKey = "order-email"
	AuthEmailKey  = "auth-email"
	BuyerKey      = "user-buyer"
	SellerKey     = "user-seller"
)

// Topology declares an exchange and optionally one queue bound to it.
type Topology struct {
	Exchange   string
	Kind       string
	Queue      string
	RoutingKey string
}

// OrdersTopology is what the orders service publishes to.
func OrdersTopology() []Topology {
	return []Topology{
		{Exchange: OrderEventsExchange, Kind: KindFanout},
		{Exchange: OrderEmailExchange, Kind: KindDirect},
	}
}

// NotificationsTopology is what the notification service consumes.
func NotificationsTopology() []Topology {
	return []Topology{
		{Exchange: OrderEventsExchange, Kind: KindFanout, Queue: OrderNotificationQueue},
		{Exchange: AuthEmailExchange, Kind: KindDirect, Queue: AuthEmailQueue, RoutingKey: AuthEmailKey},
		{Exchange: OrderEmailExchange, Kind: KindDirect, Queue: OrderEmailQueue, RoutingKey: OrderEmailKey},
	}
}

// UsersTopology is what the users service consumes.
func UsersTopology() []Topology {
	return []Topology{
		{Exchange: OrderEventsExchange, Kind: KindFanout, Queue: UsersOrderEventsQueue},
		{Exchange: BuyerExchange, Kind: KindDirect, Queue: BuyerQueue, RoutingKey: BuyerKey},
		{Exchange: SellerExchange, Kind: KindDirect, Queue: SellerQueue, RoutingKey: SellerKey},
		{Exchange: ReviewExchange, Kind: KindFanout, Queue: SellerReviewQueue},
	}
}
