package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
)

type mockReconcileRepo struct {
	pendingCount    int
	countErr        error
	invitations     []models.PendingInvitation
	listErr         error
	claimedRows     int64
	claimErr        error
	claimCalls      int
	claimedEmails   []string
	claimedIdentity string
}

func (m *mockReconcileRepo) CountPending(ctx context.Context, email string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return m.pendingCount, nil
}

func (m *mockReconcileRepo) ListPendingByEmail(ctx context.Context, email string) ([]models.PendingInvitation, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.invitations, nil
}

func (m *mockReconcileRepo) ClaimByEmail(ctx context.Context, email, identity string) (int64, error) {
	m.claimCalls++
	m.claimedEmails = append(m.claimedEmails, email)
	m.claimedIdentity = identity
	if m.claimErr != nil {
		return 0, m.claimErr
	}
	return m.claimedRows, nil
}

func newOnboardingService(repo *mockReconcileRepo) *OnboardingService {
	return NewOnboardingService(repo, repo, nil, zap.NewNop())
}

func TestReconcileHappyPath(t *testing.T) {
	repo := &mockReconcileRepo{
		pendingCount: 2,
		claimedRows:  3,
		invitations: []models.PendingInvitation{
			{AccessRequest: models.AccessRequest{ID: "req-1", StudentEmail: "s@uni.edu"}, ClassName: "Algebra"},
			{AccessRequest: models.AccessRequest{ID: "req-2", StudentEmail: "s@uni.edu"}, ClassName: "Physics"},
		},
	}
	svc := newOnboardingService(repo)

	result, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.PendingCount)
	assert.Equal(t, int64(3), result.ClaimedRows)
	assert.Len(t, result.Invitations, 2)
	assert.Empty(t, result.StepsFailed)
	assert.Equal(t, "user-1", repo.claimedIdentity)
}

func TestReconcileIsIdempotent(t *testing.T) {
	repo := &mockReconcileRepo{pendingCount: 1, claimedRows: 2}
	svc := newOnboardingService(repo)

	first, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.ClaimedRows)

	// A second pass finds nothing left to claim and changes nothing else.
	repo.claimedRows = 0
	second, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.ClaimedRows)
	assert.Equal(t, first.PendingCount, second.PendingCount)
	assert.Equal(t, 2, repo.claimCalls)
}

func TestReconcileStepsFailIndependently(t *testing.T) {
	t.Run("claim failure does not block load", func(t *testing.T) {
		repo := &mockReconcileRepo{
			pendingCount: 1,
			claimErr:     errors.New("db down"),
			invitations: []models.PendingInvitation{
				{AccessRequest: models.AccessRequest{ID: "req-1"}},
			},
		}
		svc := newOnboardingService(repo)

		result, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"claim"}, result.StepsFailed)
		assert.Len(t, result.Invitations, 1)
		assert.Equal(t, 1, result.PendingCount)
	})

	t.Run("pending check failure does not block claim", func(t *testing.T) {
		repo := &mockReconcileRepo{
			countErr:    errors.New("timeout"),
			claimedRows: 1,
		}
		svc := newOnboardingService(repo)

		result, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"pending_check"}, result.StepsFailed)
		assert.Equal(t, int64(1), result.ClaimedRows)
		assert.Equal(t, 1, repo.claimCalls)
	})

	t.Run("load failure leaves claim result intact", func(t *testing.T) {
		repo := &mockReconcileRepo{
			pendingCount: 1,
			claimedRows:  1,
			listErr:      errors.New("db down"),
		}
		svc := newOnboardingService(repo)

		result, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
		require.NoError(t, err)
		assert.Equal(t, []string{"load"}, result.StepsFailed)
		assert.Equal(t, int64(1), result.ClaimedRows)
		assert.NotNil(t, result.Invitations)
		assert.Empty(t, result.Invitations)
	})
}

func TestReconcileAllStepsFailing(t *testing.T) {
	repo := &mockReconcileRepo{
		countErr: errors.New("down"),
		claimErr: errors.New("down"),
		listErr:  errors.New("down"),
	}
	svc := newOnboardingService(repo)

	result, err := svc.Reconcile(context.Background(), "s@uni.edu", "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"pending_check", "claim", "load"}, result.StepsFailed)
	assert.Zero(t, result.PendingCount)
	assert.Zero(t, result.ClaimedRows)
	assert.Empty(t, result.Invitations)
}

func TestReconcileCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := &mockReconcileRepo{countErr: context.Canceled}
	svc := newOnboardingService(repo)

	_, err := svc.Reconcile(ctx, "s@uni.edu", "user-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
