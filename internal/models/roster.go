package models

import "time"

// RosterEnrollmentStatus tracks a roster entry's membership lifecycle.
type RosterEnrollmentStatus string

// Roster enrollment statuses.
const (
	RosterStatusPending  RosterEnrollmentStatus = "PENDING"
	RosterStatusEnrolled RosterEnrollmentStatus = "ENROLLED"
	RosterStatusRejected RosterEnrollmentStatus = "REJECTED"
)

// Roster import sources.
const (
	ImportSourceInvitation = "INVITATION"
	ImportSourceBulk       = "BULK_IMPORT"
)

// RosterEntry is a student's participation record in a class, keyed
// independently of platform identity. StudentID is nil for rows that were
// imported before the owning email ever authenticated; the claim step links
// them exactly once.
type RosterEntry struct {
	ID             string                 `db:"id" json:"id"`
	ClassID        string                 `db:"class_id" json:"class_id"`
	StudentID      *string                `db:"student_id" json:"student_id,omitempty"`
	RegisterNumber string                 `db:"register_number" json:"register_number"`
	StudentName    string                 `db:"student_name" json:"student_name"`
	Email          string                 `db:"email" json:"email"`
	Status         RosterEnrollmentStatus `db:"enrollment_status" json:"enrollment_status"`
	ImportSource   string                 `db:"import_source" json:"import_source"`
	AddedAt        time.Time              `db:"added_at" json:"added_at"`
	EnrolledAt     *time.Time             `db:"enrolled_at" json:"enrolled_at,omitempty"`
}

// RosterFilter selects roster entries for listing.
type RosterFilter struct {
	ClassID   string
	Email     string
	Status    RosterEnrollmentStatus
	Unclaimed *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
