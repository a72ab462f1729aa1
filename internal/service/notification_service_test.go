package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/jobs"
)

type mockNotificationRepo struct {
	mu       sync.Mutex
	created  []models.Notification
	createCh chan struct{}
	failNext bool
	marked   []string
	markErr  error
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{createCh: make(chan struct{}, 16)}
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("db down")
	}
	m.created = append(m.created, *n)
	m.createCh <- struct{}{}
	return nil
}

func (m *mockNotificationRepo) ListByEmail(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Notification(nil), m.created...)
	return out, len(out), nil
}

func (m *mockNotificationRepo) MarkRead(ctx context.Context, id, userEmail string) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.marked = append(m.marked, id)
	return nil
}

func (m *mockNotificationRepo) waitForCreate(t *testing.T) models.Notification {
	t.Helper()
	select {
	case <-m.createCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification write")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created[len(m.created)-1]
}

func startNotificationService(t *testing.T, repo *mockNotificationRepo) *NotificationService {
	t.Helper()
	svc := NewNotificationService(repo, nil, zap.NewNop(), jobs.QueueConfig{
		Workers:    1,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func TestNotificationInvitationReceived(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := startNotificationService(t, repo)

	svc.InvitationReceived(models.PendingInvitation{
		AccessRequest: models.AccessRequest{ID: "req-1", StudentEmail: "s@uni.edu"},
		ClassName:     "Algebra",
		ClassSubject:  "MATH101",
	})

	n := repo.waitForCreate(t)
	assert.Equal(t, models.NotificationInvitationReceived, n.Type)
	assert.Equal(t, "s@uni.edu", n.UserEmail)
	require.NotNil(t, n.RefID)
	assert.Equal(t, "req-1", *n.RefID)
	assert.Contains(t, n.Body, "Algebra")
}

func TestNotificationDecidedAcceptAndReject(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := startNotificationService(t, repo)

	svc.InvitationDecided(models.AccessRequest{
		ID: "req-1", StudentEmail: "s@uni.edu", Status: models.AccessRequestStatusAccepted,
	})
	accepted := repo.waitForCreate(t)
	assert.Contains(t, accepted.Title, "accepted")

	svc.InvitationDecided(models.AccessRequest{
		ID: "req-2", StudentEmail: "s@uni.edu", Status: models.AccessRequestStatusRejected,
	})
	rejected := repo.waitForCreate(t)
	assert.Contains(t, rejected.Title, "declined")
}

func TestNotificationWriteRetriesOnFailure(t *testing.T) {
	repo := newMockNotificationRepo()
	repo.failNext = true
	svc := startNotificationService(t, repo)

	svc.InvitationDismissed(models.PendingInvitation{
		AccessRequest: models.AccessRequest{ID: "req-1", StudentEmail: "s@uni.edu"},
	})

	// First attempt fails; the queue retries and the second succeeds.
	n := repo.waitForCreate(t)
	assert.Equal(t, models.NotificationInvitationDismissed, n.Type)
}

func TestNotificationListAndMarkRead(t *testing.T) {
	repo := newMockNotificationRepo()
	svc := startNotificationService(t, repo)

	svc.InvitationReceived(models.PendingInvitation{
		AccessRequest: models.AccessRequest{ID: "req-1", StudentEmail: "s@uni.edu"},
	})
	repo.waitForCreate(t)

	list, page, err := svc.List(context.Background(), models.NotificationFilter{UserEmail: "s@uni.edu"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, page.TotalCount)

	require.NoError(t, svc.MarkRead(context.Background(), list[0].ID, "s@uni.edu"))
	assert.Equal(t, []string{list[0].ID}, repo.marked)
}

func TestNotificationMarkReadMissingNotFound(t *testing.T) {
	// The repository reports zero affected rows as sql.ErrNoRows, covering
	// both unknown ids and notifications owned by someone else.
	repo := newMockNotificationRepo()
	repo.markErr = sql.ErrNoRows
	svc := startNotificationService(t, repo)

	err := svc.MarkRead(context.Background(), "missing-id", "s@uni.edu")
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
	assert.Empty(t, repo.marked)
}
