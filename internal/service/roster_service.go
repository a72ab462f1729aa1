package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/export"
	"github.com/eduspace/enrollment-api/pkg/storage"
)

type rosterRepository interface {
	Create(ctx context.Context, entry *models.RosterEntry) error
	ExistsByClassAndEmail(ctx context.Context, classID, email string) (bool, error)
	List(ctx context.Context, filter models.RosterFilter) ([]models.RosterEntry, int, error)
	ListByClass(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

// RosterImportRow is one student line in a bulk import request.
type RosterImportRow struct {
	RegisterNumber string `json:"register_number" validate:"required"`
	StudentName    string `json:"student_name" validate:"required"`
	Email          string `json:"email" validate:"required,email"`
}

// RosterImportResult summarises a bulk import.
type RosterImportResult struct {
	Created int      `json:"created"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// RosterExport is a rendered roster file plus its signed download token.
type RosterExport struct {
	ExportID  string    `json:"export_id"`
	Filename  string    `json:"filename"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RosterService manages class rosters: bulk imports, listing, and CSV/PDF
// exports served through signed URLs.
type RosterService struct {
	roster    rosterRepository
	classes   classReader
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRosterService constructs RosterService. store and signer may be nil when
// exports are disabled.
func NewRosterService(roster rosterRepository, classes classReader, store *storage.LocalStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{
		roster:    roster,
		classes:   classes,
		store:     store,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// BulkImport inserts roster rows for a class in one pass. Rows whose email
// already has an entry in the class are skipped, not overwritten; invalid
// rows are reported without aborting the batch. Imported rows start PENDING
// and unclaimed so a later login can pick them up.
func (s *RosterService) BulkImport(ctx context.Context, lecturer *models.JWTClaims, classID string, rows []RosterImportRow) (*RosterImportResult, error) {
	class, err := s.authorizeClass(ctx, lecturer, classID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import requires at least one row")
	}

	result := &RosterImportResult{}
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		if err := s.validator.Struct(row); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		key := strings.ToLower(row.Email)
		if _, dup := seen[key]; dup {
			result.Skipped++
			continue
		}
		seen[key] = struct{}{}

		exists, err := s.roster.ExistsByClassAndEmail(ctx, class.ID, row.Email)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check roster entry")
		}
		if exists {
			result.Skipped++
			continue
		}

		entry := &models.RosterEntry{
			ClassID:        class.ID,
			RegisterNumber: row.RegisterNumber,
			StudentName:    row.StudentName,
			Email:          row.Email,
			Status:         models.RosterStatusPending,
			ImportSource:   models.ImportSourceBulk,
		}
		if err := s.roster.Create(ctx, entry); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create roster entry")
		}
		result.Created++
	}
	s.logger.Info("roster import finished",
		zap.String("class_id", class.ID), zap.Int("created", result.Created), zap.Int("skipped", result.Skipped))
	return result, nil
}

// List returns roster entries matching the filter, scoped to classes the
// caller may see.
func (s *RosterService) List(ctx context.Context, lecturer *models.JWTClaims, filter models.RosterFilter) ([]models.RosterEntry, *models.Pagination, error) {
	if _, err := s.authorizeClass(ctx, lecturer, filter.ClassID); err != nil {
		return nil, nil, err
	}
	entries, total, err := s.roster.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list roster")
	}
	if entries == nil {
		entries = []models.RosterEntry{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Export renders the class roster as csv or pdf, stores the file, and
// returns a signed, expiring download token.
func (s *RosterService) Export(ctx context.Context, lecturer *models.JWTClaims, classID, format string) (*RosterExport, error) {
	if s.store == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled")
	}
	class, err := s.authorizeClass(ctx, lecturer, classID)
	if err != nil {
		return nil, err
	}

	entries, err := s.roster.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	dataset := rosterDataset(entries)
	exportID := uuid.New().String()

	var payload []byte
	var filename string
	switch strings.ToLower(format) {
	case "csv", "":
		payload, err = s.csv.Render(dataset)
		filename = fmt.Sprintf("roster-%s-%s.csv", classID, exportID[:8])
	case "pdf":
		payload, err = s.pdf.Render(dataset, fmt.Sprintf("Roster: %s", class.Name))
		filename = fmt.Sprintf("roster-%s-%s.pdf", classID, exportID[:8])
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	if _, err := s.store.Save(filename, payload); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(exportID, filename)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
	}

	s.logger.Info("roster export generated",
		zap.String("class_id", classID), zap.String("export_id", exportID), zap.String("format", format))
	return &RosterExport{
		ExportID:  exportID,
		Filename:  filename,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenExport validates a signed token and opens the referenced file.
func (s *RosterService) OpenExport(token string) (*os.File, string, error) {
	if s.store == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrPreconditionFailed, "exports are disabled")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	f, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found or expired")
	}
	return f, relPath, nil
}

// StartCleanup removes expired export files on the given interval until the
// context is cancelled.
func (s *RosterService) StartCleanup(ctx context.Context, interval, ttl time.Duration) {
	if s.store == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.store.CleanupOlderThan(ttl)
				if err != nil {
					s.logger.Warn("export cleanup failed", zap.Error(err))
					continue
				}
				if len(removed) > 0 {
					s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
				}
			}
		}
	}()
}

func (s *RosterService) authorizeClass(ctx context.Context, claims *models.JWTClaims, classID string) (*models.Class, error) {
	if classID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id is required")
	}
	class, err := s.classes.FindByID(ctx, classID)
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

func rosterDataset(entries []models.RosterEntry) export.Dataset {
	headers := []string{"Register Number", "Name", "Email", "Status", "Source", "Enrolled At"}
	rows := make([]map[string]string, 0, len(entries))
	for _, e := range entries {
		enrolledAt := ""
		if e.EnrolledAt != nil {
			enrolledAt = e.EnrolledAt.Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"Register Number": e.RegisterNumber,
			"Name":            e.StudentName,
			"Email":           e.Email,
			"Status":          string(e.Status),
			"Source":          e.ImportSource,
			"Enrolled At":     enrolledAt,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
