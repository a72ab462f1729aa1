package models

import "time"

// Class represents a lecturer-owned class room.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Subject     string    `db:"subject" json:"subject"`
	Description string    `db:"description" json:"description"`
	LecturerID  string    `db:"lecturer_id" json:"lecturer_id"`
	Archived    bool      `db:"archived" json:"archived"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// ClassDetail extends Class with the owning lecturer's display name.
type ClassDetail struct {
	Class
	LecturerName string `db:"lecturer_name" json:"lecturer_name"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	LecturerID string
	Search     string
	Archived   *bool
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
