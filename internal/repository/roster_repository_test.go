package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/eduspace/enrollment-api/internal/models"
)

func TestRosterRepositoryClaimByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE class_students SET student_id = $2 WHERE LOWER(email) = LOWER($1) AND student_id IS NULL")).
		WithArgs("a@x.com", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	claimed, err := repo.ClaimByEmail(context.Background(), "a@x.com", "stu-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryClaimByEmailNoUnclaimedRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	// Second run with the same identity matches zero rows: already claimed.
	mock.ExpectExec("UPDATE class_students SET student_id").
		WithArgs("a@x.com", "stu-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := repo.ClaimByEmail(context.Background(), "a@x.com", "stu-1")
	require.NoError(t, err)
	require.Zero(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryMarkEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	enrolledAt := time.Now().UTC()
	mock.ExpectExec("UPDATE class_students SET enrollment_status").
		WithArgs("class-1", "a@x.com", models.RosterStatusEnrolled, "stu-1", enrolledAt, models.RosterStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkEnrolled(context.Background(), "class-1", "a@x.com", "stu-1", enrolledAt)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	mock.ExpectExec("INSERT INTO class_students").
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.RosterEntry{ClassID: "class-1", StudentName: "Ada", Email: "a@x.com", ImportSource: models.ImportSourceBulk}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)
	require.Equal(t, models.RosterStatusPending, entry.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRosterRepositoryListByClass(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewRosterRepository(db)

	rows := sqlmock.NewRows([]string{"id", "class_id", "student_id", "register_number", "student_name", "email", "enrollment_status", "import_source", "added_at", "enrolled_at"}).
		AddRow("ros-1", "class-1", nil, "2024001", "Ada", "a@x.com", models.RosterStatusPending, models.ImportSourceBulk, time.Now(), nil)
	mock.ExpectQuery("SELECT id, class_id, student_id, register_number").
		WithArgs("class-1").
		WillReturnRows(rows)

	entries, err := repo.ListByClass(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Nil(t, entries[0].StudentID)
	require.NoError(t, mock.ExpectationsWereMet())
}
