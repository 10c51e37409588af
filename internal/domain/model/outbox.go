package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// OutboxMessage is a broker message stored in the same write as the order
// change that produced it. It stays pending until the broker accepted it.
type OutboxMessage struct {
	ID          string
	OrderID     string
	Exchange    string
	RoutingKey  string
	Payload     json.RawMessage
	CreatedAt   time.Time
	PublishedAt *time.Time
}

// NewOutboxMessage encodes payload for later publication.
func NewOutboxMessage(id, orderID, exchange, routingKey string, payload any, at time.Time) (OutboxMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("encode outbox payload: %w", err)
	}
	return OutboxMessage{
		ID:         id,
		OrderID:    orderID,
		Exchange:   exchange,
		RoutingKey: routingKey,
		Payload:    body,
		CreatedAt:  at.UTC(),
	}, nil
}
