package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eduspace/enrollment-api/internal/models"
)

// NotificationRepository handles persistence of in-app notification records.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create persists a notification record.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications (id, user_email, type, title, body, ref_id, read, created_at)
        VALUES (:id, :user_email, :type, :title, :body, :ref_id, :read, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ListByEmail returns notifications for a user, newest first.
func (r *NotificationRepository) ListByEmail(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	base := `FROM notifications WHERE LOWER(user_email) = LOWER($1)`
	args := []interface{}{filter.UserEmail}
	if filter.UnreadOnly {
		base += ` AND read = FALSE`
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_email, type, title, body, ref_id, read, created_at %s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	return notifications, total, nil
}

// MarkRead flags a notification as read for its owner. Zero rows affected
// means the id does not exist or belongs to another user.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userEmail string) error {
	const query = `UPDATE notifications SET read = TRUE WHERE id = $1 AND LOWER(user_email) = LOWER($2)`
	result, err := r.db.ExecContext(ctx, query, id, userEmail)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
