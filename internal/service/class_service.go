package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
)

type classRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
}

// CreateClassRequest is the payload for creating a class.
type CreateClassRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Subject     string `json:"subject" validate:"required,min=2,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

// ClassService manages class lifecycle for lecturers.
type ClassService struct {
	repo      classRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(repo classRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new class owned by the calling lecturer.
func (s *ClassService) Create(ctx context.Context, lecturer *models.JWTClaims, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class := &models.Class{
		Name:        req.Name,
		Subject:     req.Subject,
		Description: req.Description,
		LecturerID:  lecturer.UserID,
	}
	if err := s.repo.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("lecturer_id", lecturer.UserID))
	return class, nil
}

// Get returns one class, restricted to its owner unless the caller is admin.
func (s *ClassService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if claims.Role != models.RoleAdmin && class.LecturerID != claims.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another lecturer")
	}
	return class, nil
}

// List returns classes visible to the caller. Lecturers see only their own;
// admins see everything.
func (s *ClassService) List(ctx context.Context, claims *models.JWTClaims, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	if claims.Role != models.RoleAdmin {
		filter.LecturerID = claims.UserID
	}
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	if classes == nil {
		classes = []models.ClassDetail{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
