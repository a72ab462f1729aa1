package models

import "time"

// AccessRequestStatus tracks the lifecycle of a class invitation.
type AccessRequestStatus string

// Invitation statuses. ACCEPTED and REJECTED are terminal.
const (
	AccessRequestStatusPending  AccessRequestStatus = "PENDING"
	AccessRequestStatusAccepted AccessRequestStatus = "ACCEPTED"
	AccessRequestStatusRejected AccessRequestStatus = "REJECTED"
)

// AccessRequest is an invitation from a lecturer's class to a student email.
// StudentID stays nil until the owning email authenticates and is linked.
type AccessRequest struct {
	ID           string              `db:"id" json:"id"`
	ClassID      string              `db:"class_id" json:"class_id"`
	LecturerID   string              `db:"lecturer_id" json:"lecturer_id"`
	StudentID    *string             `db:"student_id" json:"student_id,omitempty"`
	StudentEmail string              `db:"student_email" json:"student_email"`
	Status       AccessRequestStatus `db:"status" json:"status"`
	SentAt       time.Time           `db:"sent_at" json:"sent_at"`
	RespondedAt  *time.Time          `db:"responded_at" json:"responded_at,omitempty"`
}

// PendingInvitation joins an access request with class metadata for display.
// The join is a lookup by class_id, not a referential guarantee: a missing
// class leaves the name fields empty rather than dropping the row.
type PendingInvitation struct {
	AccessRequest
	ClassName    string `db:"class_name" json:"class_name"`
	ClassSubject string `db:"class_subject" json:"class_subject"`
	LecturerName string `db:"lecturer_name" json:"lecturer_name"`
}

// AccessRequestFilter selects invitations for listing.
type AccessRequestFilter struct {
	ClassID      string
	StudentEmail string
	Status       AccessRequestStatus
	Page         int
	PageSize     int
}
