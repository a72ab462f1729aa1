package realtime

import (
	"time"

	"github.com/eduspace/enrollment-api/internal/models"
)

// EventType identifies a change on the access-request store.
type EventType string

// Event types. Consumers treat all of them as idempotent set operations on
// their pending view: created is insert-if-absent, decided and deleted are
// remove-if-present.
const (
	EventInvitationCreated EventType = "invitation.created"
	EventInvitationDecided EventType = "invitation.decided"
	EventInvitationDeleted EventType = "invitation.deleted"
)

// InvitationEvent is a change notification scoped to a student email.
// OldStatus carries the previous row image's status on updates; it is empty
// for created events.
type InvitationEvent struct {
	Type         EventType                  `json:"type"`
	RequestID    string                     `json:"request_id"`
	StudentEmail string                     `json:"student_email"`
	Status       models.AccessRequestStatus `json:"status"`
	OldStatus    models.AccessRequestStatus `json:"old_status,omitempty"`
	Invitation   *models.PendingInvitation  `json:"invitation,omitempty"`
	EmittedAt    time.Time                  `json:"emitted_at"`
}

// Removes reports whether the event evicts the row from a pending view.
// Decisions and deletions always evict, regardless of dismissal state.
func (e InvitationEvent) Removes() bool {
	switch e.Type {
	case EventInvitationDeleted:
		return true
	case EventInvitationDecided:
		return e.Status != models.AccessRequestStatusPending
	default:
		return false
	}
}
