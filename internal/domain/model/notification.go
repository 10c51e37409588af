package model

import "time"

// Notification is a user-facing message about an order.
type Notification struct {
	ID               string    `json:"id"`
	UserTo           string    `json:"userTo"`
	SenderUsername   string    `json:"senderUsername"`
	SenderPicture    string    `json:"senderPicture"`
	ReceiverUsername string    `json:"receiverUsername"`
	ReceiverPicture  string    `json:"receiverPicture"`
	Message          string    `json:"message"`
	OrderID          string    `json:"orderId"`
	IsRead           bool      `json:"isRead"`
	CreatedAt        time.Time `json:"createdAt"`
}
