package dto

import "github.com/polkiloo/jobber/internal/domain/model"

// MarkAsReadRequest selects the notification to mark.
type MarkAsReadRequest struct {
	NotificationID string `json:"notificationId"`
}

// NotificationsEnvelope wraps a recipient's notifications.
type NotificationsEnvelope struct {
	Message       string               `json:"message"`
	Notifications []model.Notification `json:"notifications"`
}

// NotificationEnvelope wraps one notification.
type NotificationEnvelope struct {
	Message      string             `json:"message"`
	Notification model.Notification `json:"notification"`
}
