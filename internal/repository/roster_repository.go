package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eduspace/enrollment-api/internal/models"
)

// RosterRepository handles persistence of class-student roster entries.
type RosterRepository struct {
	db *sqlx.DB
}

// NewRosterRepository constructs the repository.
func NewRosterRepository(db *sqlx.DB) *RosterRepository {
	return &RosterRepository{db: db}
}

// ClaimByEmail links every unclaimed roster entry for the email to the given
// account. The student_id IS NULL guard makes the claim idempotent: re-running
// with the same identity changes nothing, and rows already claimed by a
// different account are never touched. Returns the number of rows claimed.
func (r *RosterRepository) ClaimByEmail(ctx context.Context, email, studentID string) (int64, error) {
	const query = `UPDATE class_students SET student_id = $2 WHERE LOWER(email) = LOWER($1) AND student_id IS NULL`
	result, err := r.db.ExecContext(ctx, query, email, studentID)
	if err != nil {
		return 0, fmt.Errorf("claim roster entries: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("claim roster entries rows: %w", err)
	}
	return affected, nil
}

// MarkEnrolled advances the entry correlated by (class_id, email) to ENROLLED.
// Runs when the matching invitation is accepted; the correlation is by email,
// not by a foreign key, so a missing entry is not an error here.
func (r *RosterRepository) MarkEnrolled(ctx context.Context, classID, email, studentID string, enrolledAt time.Time) error {
	const query = `UPDATE class_students SET enrollment_status = $3, student_id = COALESCE(student_id, $4), enrolled_at = $5
        WHERE class_id = $1 AND LOWER(email) = LOWER($2) AND enrollment_status = $6`
	if _, err := r.db.ExecContext(ctx, query, classID, email, models.RosterStatusEnrolled, studentID, enrolledAt, models.RosterStatusPending); err != nil {
		return fmt.Errorf("mark roster enrolled: %w", err)
	}
	return nil
}

// MarkRejected advances the entry correlated by (class_id, email) to REJECTED.
func (r *RosterRepository) MarkRejected(ctx context.Context, classID, email string) error {
	const query = `UPDATE class_students SET enrollment_status = $3 WHERE class_id = $1 AND LOWER(email) = LOWER($2) AND enrollment_status = $4`
	if _, err := r.db.ExecContext(ctx, query, classID, email, models.RosterStatusRejected, models.RosterStatusPending); err != nil {
		return fmt.Errorf("mark roster rejected: %w", err)
	}
	return nil
}

// ExistsByClassAndEmail reports whether the class already carries an entry
// for the email.
func (r *RosterRepository) ExistsByClassAndEmail(ctx context.Context, classID, email string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM class_students WHERE class_id = $1 AND LOWER(email) = LOWER($2))`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, classID, email); err != nil {
		return false, fmt.Errorf("check roster entry: %w", err)
	}
	return exists, nil
}

// Create persists a new roster entry.
func (r *RosterRepository) Create(ctx context.Context, entry *models.RosterEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now().UTC()
	}
	if entry.Status == "" {
		entry.Status = models.RosterStatusPending
	}
	const query = `INSERT INTO class_students (id, class_id, student_id, register_number, student_name, email, enrollment_status, import_source, added_at, enrolled_at)
        VALUES (:id, :class_id, :student_id, :register_number, :student_name, :email, :enrollment_status, :import_source, :added_at, :enrolled_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create roster entry: %w", err)
	}
	return nil
}

// List returns roster entries filtered by the provided criteria.
func (r *RosterRepository) List(ctx context.Context, filter models.RosterFilter) ([]models.RosterEntry, int, error) {
	base := `FROM class_students`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Email != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(email) = LOWER($%d)", len(args)+1))
		args = append(args, filter.Email)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Unclaimed != nil {
		if *filter.Unclaimed {
			conditions = append(conditions, "student_id IS NULL")
		} else {
			conditions = append(conditions, "student_id IS NOT NULL")
		}
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"added_at":        "added_at",
		"student_name":    "student_name",
		"register_number": "register_number",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "added_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, class_id, student_id, register_number, student_name, email, enrollment_status, import_source, added_at, enrolled_at
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list roster entries: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count roster entries: %w", err)
	}
	return entries, total, nil
}

// ListByClass returns every roster entry for a class ordered by name.
func (r *RosterRepository) ListByClass(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	const query = `SELECT id, class_id, student_id, register_number, student_name, email, enrollment_status, import_source, added_at, enrolled_at
        FROM class_students WHERE class_id = $1 ORDER BY student_name ASC`
	var entries []models.RosterEntry
	if err := r.db.SelectContext(ctx, &entries, query, classID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return entries, nil
}
