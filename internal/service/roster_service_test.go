package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/storage"
)

type mockRosterRepo struct {
	existing map[string]bool
	created  []*models.RosterEntry
	entries  []models.RosterEntry
}

func (m *mockRosterRepo) Create(ctx context.Context, entry *models.RosterEntry) error {
	m.created = append(m.created, entry)
	return nil
}

func (m *mockRosterRepo) ExistsByClassAndEmail(ctx context.Context, classID, email string) (bool, error) {
	return m.existing[strings.ToLower(email)], nil
}

func (m *mockRosterRepo) List(ctx context.Context, filter models.RosterFilter) ([]models.RosterEntry, int, error) {
	return m.entries, len(m.entries), nil
}

func (m *mockRosterRepo) ListByClass(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	return m.entries, nil
}

func newRosterFixture(t *testing.T) (*RosterService, *mockRosterRepo) {
	t.Helper()
	repo := &mockRosterRepo{existing: map[string]bool{}}
	classes := &mockClassReader{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", Name: "Algebra", Subject: "MATH101", LecturerID: "lect-1"},
	}}
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewRosterService(repo, classes, store, signer, nil, zap.NewNop())
	return svc, repo
}

func TestBulkImportCreatesPendingUnclaimedRows(t *testing.T) {
	svc, repo := newRosterFixture(t)

	result, err := svc.BulkImport(context.Background(), lecturerClaims(), "class-1", []RosterImportRow{
		{RegisterNumber: "2024001", StudentName: "Sam Doe", Email: "sam@uni.edu"},
		{RegisterNumber: "2024002", StudentName: "Ana Roe", Email: "ana@uni.edu"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Skipped)
	assert.Empty(t, result.Errors)

	require.Len(t, repo.created, 2)
	for _, entry := range repo.created {
		assert.Equal(t, models.RosterStatusPending, entry.Status)
		assert.Equal(t, models.ImportSourceBulk, entry.ImportSource)
		assert.Nil(t, entry.StudentID)
	}
}

func TestBulkImportSkipsDuplicatesAndExisting(t *testing.T) {
	svc, repo := newRosterFixture(t)
	repo.existing["old@uni.edu"] = true

	result, err := svc.BulkImport(context.Background(), lecturerClaims(), "class-1", []RosterImportRow{
		{RegisterNumber: "2024001", StudentName: "Sam Doe", Email: "sam@uni.edu"},
		{RegisterNumber: "2024001", StudentName: "Sam Doe", Email: "SAM@uni.edu"},
		{RegisterNumber: "2024003", StudentName: "Old Hand", Email: "old@uni.edu"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
}

func TestBulkImportReportsInvalidRows(t *testing.T) {
	svc, _ := newRosterFixture(t)

	result, err := svc.BulkImport(context.Background(), lecturerClaims(), "class-1", []RosterImportRow{
		{RegisterNumber: "2024001", StudentName: "Sam Doe", Email: "not-an-email"},
		{RegisterNumber: "2024002", StudentName: "Ana Roe", Email: "ana@uni.edu"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "row 1")
}

func TestBulkImportForeignClassForbidden(t *testing.T) {
	svc, _ := newRosterFixture(t)
	other := &models.JWTClaims{UserID: "lect-2", Role: models.RoleLecturer}

	_, err := svc.BulkImport(context.Background(), other, "class-1", []RosterImportRow{
		{RegisterNumber: "2024001", StudentName: "Sam Doe", Email: "sam@uni.edu"},
	})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestExportCSVRoundTrip(t *testing.T) {
	svc, repo := newRosterFixture(t)
	enrolledAt := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	studentID := "stud-1"
	repo.entries = []models.RosterEntry{
		{
			ClassID:        "class-1",
			RegisterNumber: "2024001",
			StudentName:    "Sam Doe",
			Email:          "sam@uni.edu",
			StudentID:      &studentID,
			Status:         models.RosterStatusEnrolled,
			ImportSource:   models.ImportSourceInvitation,
			EnrolledAt:     &enrolledAt,
		},
	}

	result, err := svc.Export(context.Background(), lecturerClaims(), "class-1", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Filename, ".csv"))
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	f, name, err := svc.OpenExport(result.Token)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, result.Filename, name)

	payload, err := io.ReadAll(f)
	require.NoError(t, err)
	content := string(payload)
	assert.Contains(t, content, "Register Number")
	assert.Contains(t, content, "sam@uni.edu")
	assert.Contains(t, content, "ENROLLED")
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newRosterFixture(t)

	_, err := svc.Export(context.Background(), lecturerClaims(), "class-1", "xlsx")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestOpenExportRejectsTamperedToken(t *testing.T) {
	svc, _ := newRosterFixture(t)

	result, err := svc.Export(context.Background(), lecturerClaims(), "class-1", "csv")
	require.NoError(t, err)

	_, _, err = svc.OpenExport(result.Token + "x")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}
