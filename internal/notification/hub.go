// Package notification keeps the live connections of notification recipients.
package notification

import (
	"log/slog"
	"sync"

	"github.com/polkiloo/jobber/internal/domain/model"
)

const subscriberBuffer = 16

// Hub fans notifications out to the open streams of their recipient.
type Hub struct {
	mu     sync.RWMutex
	next   uint64
	subs   map[string]map[uint64]chan model.Notification
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[uint64]chan model.Notification),
		logger: logger,
	}
}

// Subscribe registers a stream for userTo. The returned cancel func closes the channel.
func (h *Hub) Subscribe(userTo string) (<-chan model.Notification, func()) {
	ch := make(chan model.Notification, subscriberBuffer)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[userTo] == nil {
		h.subs[userTo] = make(map[uint64]chan model.Notification)
	}
	h.subs[userTo][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[userTo], id)
			if len(h.subs[userTo]) == 0 {
				delete(h.subs, userTo)
			}
			close(ch)
		})
	}
}

// Push delivers n to every stream of its recipient. Slow streams drop the message.
func (h *Hub) Push(n model.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[n.UserTo] {
		select {
		case ch <- n:
		default:
			h.logger.Warn("live notification dropped", slog.String("user_to", n.UserTo), slog.String("notification_id", n.ID))
		}
	}
}

// Subscribers returns the number of open streams for userTo.
func (h *Hub) Subscribers(userTo string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userTo])
}
