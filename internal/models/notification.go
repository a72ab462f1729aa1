package models

import "time"

// NotificationType classifies in-app notification records.
type NotificationType string

// Notification types emitted by the invitation workflow.
const (
	NotificationInvitationReceived  NotificationType = "INVITATION_RECEIVED"
	NotificationInvitationDismissed NotificationType = "INVITATION_DISMISSED"
	NotificationInvitationDecided   NotificationType = "INVITATION_DECIDED"
)

// Notification is a best-effort, user-visible record. Creation failures never
// affect workflow correctness.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserEmail string           `db:"user_email" json:"user_email"`
	Type      NotificationType `db:"type" json:"type"`
	Title     string           `db:"title" json:"title"`
	Body      string           `db:"body" json:"body"`
	RefID     *string          `db:"ref_id" json:"ref_id,omitempty"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter selects notifications for listing.
type NotificationFilter struct {
	UserEmail  string
	UnreadOnly bool
	Page       int
	PageSize   int
}
