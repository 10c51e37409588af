package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
	"github.com/polkiloo/jobber/internal/domain/model"
)

type notificationRepository struct {
	storage *Storage
}

const notificationColumns = `id, user_to, sender_username, sender_picture, receiver_username, receiver_picture,
        message, order_id, is_read, created_at`

func scanNotification(row rowScanner) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.UserTo, &n.SenderUsername, &n.SenderPicture, &n.ReceiverUsername, &n.ReceiverPicture,
		&n.Message, &n.OrderID, &n.IsRead, &n.CreatedAt)
	return n, err
}

// Create inserts n; an id that already exists returns ErrAlreadyProcessed.
func (r *notificationRepository) Create(ctx context.Context, n model.Notification) (*model.Notification, error) {
	const query = `INSERT INTO notifications (id, user_to, sender_username, sender_picture, receiver_username,
                   receiver_picture, message, order_id, is_read)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE)
                   ON CONFLICT (id) DO NOTHING
                   RETURNING created_at`

	created := n
	created.IsRead = false
	err := r.storage.pool.QueryRow(ctx, query, n.ID, n.UserTo, n.SenderUsername, n.SenderPicture,
		n.ReceiverUsername, n.ReceiverPicture, n.Message, n.OrderID).Scan(&created.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAlreadyProcessed
		}
		return nil, err
	}
	return &created, nil
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, userTo string) ([]model.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_to=$1 ORDER BY created_at DESC`
	rows, err := r.storage.pool.Query(ctx, query, userTo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *notificationRepository) MarkAsRead(ctx context.Context, notificationID string) (*model.Notification, error) {
	query := `UPDATE notifications SET is_read=TRUE WHERE id=$1 RETURNING ` + notificationColumns
	n, err := scanNotification(r.storage.pool.QueryRow(ctx, query, notificationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}
