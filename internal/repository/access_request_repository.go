package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/eduspace/enrollment-api/internal/models"
)

// AccessRequestRepository handles persistence of class invitations.
type AccessRequestRepository struct {
	db *sqlx.DB
}

// NewAccessRequestRepository constructs the repository.
func NewAccessRequestRepository(db *sqlx.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

// CountPending returns the number of pending invitations for an email.
func (r *AccessRequestRepository) CountPending(ctx context.Context, studentEmail string) (int, error) {
	const query = `SELECT COUNT(*) FROM access_requests WHERE LOWER(student_email) = LOWER($1) AND status = $2`
	var count int
	if err := r.db.GetContext(ctx, &count, query, studentEmail, models.AccessRequestStatusPending); err != nil {
		return 0, fmt.Errorf("count pending invitations: %w", err)
	}
	return count, nil
}

// ListPendingByEmail returns pending invitations joined to class metadata.
// The join is a LEFT JOIN on class_id: the two stores are correlated by
// email/class at runtime, so a missing class never hides an invitation.
func (r *AccessRequestRepository) ListPendingByEmail(ctx context.Context, studentEmail string) ([]models.PendingInvitation, error) {
	const query = `SELECT ar.id, ar.class_id, ar.lecturer_id, ar.student_id, ar.student_email, ar.status, ar.sent_at, ar.responded_at,
        COALESCE(c.name, '') AS class_name, COALESCE(c.subject, '') AS class_subject, COALESCE(u.full_name, '') AS lecturer_name
        FROM access_requests ar
        LEFT JOIN classes c ON c.id = ar.class_id
        LEFT JOIN users u ON u.id = ar.lecturer_id
        WHERE LOWER(ar.student_email) = LOWER($1) AND ar.status = $2
        ORDER BY ar.sent_at ASC`
	var invitations []models.PendingInvitation
	if err := r.db.SelectContext(ctx, &invitations, query, studentEmail, models.AccessRequestStatusPending); err != nil {
		return nil, fmt.Errorf("list pending invitations: %w", err)
	}
	return invitations, nil
}

// FindByID returns an access request by its ID.
func (r *AccessRequestRepository) FindByID(ctx context.Context, id string) (*models.AccessRequest, error) {
	const query = `SELECT id, class_id, lecturer_id, student_id, student_email, status, sent_at, responded_at FROM access_requests WHERE id = $1`
	var request models.AccessRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns invitations filtered by the provided criteria.
func (r *AccessRequestRepository) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.PendingInvitation, int, error) {
	base := `FROM access_requests ar
LEFT JOIN classes c ON c.id = ar.class_id
LEFT JOIN users u ON u.id = ar.lecturer_id`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("ar.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentEmail != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(ar.student_email) = LOWER($%d)", len(args)+1))
		args = append(args, filter.StudentEmail)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
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

	query := fmt.Sprintf(`SELECT ar.id, ar.class_id, ar.lecturer_id, ar.student_id, ar.student_email, ar.status, ar.sent_at, ar.responded_at,
        COALESCE(c.name, '') AS class_name, COALESCE(c.subject, '') AS class_subject, COALESCE(u.full_name, '') AS lecturer_name
        %s ORDER BY ar.sent_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var invitations []models.PendingInvitation
	if err := r.db.SelectContext(ctx, &invitations, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list invitations: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count invitations: %w", err)
	}
	return invitations, total, nil
}

// Create persists a new invitation.
func (r *AccessRequestRepository) Create(ctx context.Context, request *models.AccessRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.SentAt.IsZero() {
		request.SentAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.AccessRequestStatusPending
	}
	const query = `INSERT INTO access_requests (id, class_id, lecturer_id, student_id, student_email, status, sent_at, responded_at)
        VALUES (:id, :class_id, :lecturer_id, :student_id, :student_email, :status, :sent_at, :responded_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create access request: %w", err)
	}
	return nil
}

// Decide transitions a pending invitation to a terminal status. The UPDATE is
// guarded on status = PENDING so the transition runs exactly once; zero rows
// affected means another decision already landed.
func (r *AccessRequestRepository) Decide(ctx context.Context, id string, status models.AccessRequestStatus, studentID string, respondedAt time.Time) (bool, error) {
	const query = `UPDATE access_requests SET status = $2, student_id = $3, responded_at = $4 WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, status, studentID, respondedAt, models.AccessRequestStatusPending)
	if err != nil {
		return false, fmt.Errorf("decide access request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decide access request rows: %w", err)
	}
	return affected == 1, nil
}

// Delete removes a pending invitation (lecturer withdrawal). Like Decide,
// the statement is guarded on status = PENDING so a concurrently landed
// decision keeps its terminal row; zero rows affected means the invitation
// is gone or no longer pending.
func (r *AccessRequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM access_requests WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, models.AccessRequestStatusPending)
	if err != nil {
		return fmt.Errorf("delete access request: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
