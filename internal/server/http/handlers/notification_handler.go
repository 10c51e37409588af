package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/jobber/internal/domain/model"
	"github.com/polkiloo/jobber/internal/server/http/dto"
)

// NotificationHandler serves stored and live notifications.
type NotificationHandler struct {
	notifications NotificationService
	stream        NotificationStream
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications NotificationService, stream NotificationStream) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, stream: stream}
}

// List handles GET /api/v1/notifications/:userTo.
func (h *NotificationHandler) List(c *gin.Context) {
	items, err := h.notifications.List(c.Request.Context(), c.Param("userTo"))
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	c.JSON(http.StatusOK, dto.NotificationsEnvelope{Message: "Notifications.", Notifications: items})
}

// MarkAsRead handles PUT /api/v1/notifications/mark-as-read.
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	var req dto.MarkAsReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.NotificationID) == "" {
		badRequest(c, "notificationId is required")
		return
	}
	n, err := h.notifications.MarkAsRead(c.Request.Context(), req.NotificationID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NotificationEnvelope{Message: "Notification updated.", Notification: *n})
}

// Stream handles GET /api/v1/notifications/:userTo/stream as server-sent events.
func (h *NotificationHandler) Stream(c *gin.Context) {
	updates, cancel := h.stream.Subscribe(c.Param("userTo"))
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-done:
			return false
		case n, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("notification", n)
			return true
		}
	})
}
