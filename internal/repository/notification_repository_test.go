package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = TRUE WHERE id = $1 AND LOWER(user_email) = LOWER($2)")).
		WithArgs("notif-1", "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkRead(context.Background(), "notif-1", "a@x.com")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewNotificationRepository(db)

	mock.ExpectExec("UPDATE notifications SET read = TRUE").
		WithArgs("missing", "a@x.com").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkRead(context.Background(), "missing", "a@x.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
