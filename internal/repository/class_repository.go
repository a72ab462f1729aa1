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

// ClassRepository handles persistence of classes.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by identifier.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, subject, description, lecturer_id, archived, created_at, updated_at FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a new class.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, subject, description, lecturer_id, archived, created_at, updated_at)
        VALUES (:id, :name, :subject, :description, :lecturer_id, :archived, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	base := `FROM classes c LEFT JOIN users u ON u.id = c.lecturer_id`
	var conditions []string
	var args []interface{}

	if filter.LecturerID != "" {
		conditions = append(conditions, fmt.Sprintf("c.lecturer_id = $%d", len(args)+1))
		args = append(args, filter.LecturerID)
	}
	if filter.Archived != nil {
		conditions = append(conditions, fmt.Sprintf("c.archived = $%d", len(args)+1))
		args = append(args, *filter.Archived)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.name) LIKE $%d OR LOWER(c.subject) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"name":       "c.name",
		"subject":    "c.subject",
		"created_at": "c.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "c.created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT c.id, c.name, c.subject, c.description, c.lecturer_id, c.archived, c.created_at, c.updated_at,
        COALESCE(u.full_name, '') AS lecturer_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var classes []models.ClassDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}
