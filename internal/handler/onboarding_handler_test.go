package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/service"
)

type reconcileRepoStub struct {
	pendingCount int
	claimed      int64
	invitations  []models.PendingInvitation
	claimedFor   string
}

func (s *reconcileRepoStub) CountPending(ctx context.Context, email string) (int, error) {
	return s.pendingCount, nil
}

func (s *reconcileRepoStub) ListPendingByEmail(ctx context.Context, email string) ([]models.PendingInvitation, error) {
	return s.invitations, nil
}

func (s *reconcileRepoStub) ClaimByEmail(ctx context.Context, email, studentID string) (int64, error) {
	s.claimedFor = studentID
	return s.claimed, nil
}

func TestOnboardingHandlerReconcile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &reconcileRepoStub{
		pendingCount: 1,
		claimed:      2,
		invitations: []models.PendingInvitation{
			{AccessRequest: models.AccessRequest{ID: "req-1", StudentEmail: "s@uni.edu"}},
		},
	}
	svc := service.NewOnboardingService(repo, repo, nil, zap.NewNop())
	handler := NewOnboardingHandler(svc)

	c, w := testContext(t, http.MethodPost, "/me/reconcile", nil, studentJWT())
	handler.Reconcile(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data service.ReconcileResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 1, envelope.Data.PendingCount)
	assert.Equal(t, int64(2), envelope.Data.ClaimedRows)
	assert.Len(t, envelope.Data.Invitations, 1)
	assert.Equal(t, "stud-1", repo.claimedFor)
}

func TestOnboardingHandlerUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewOnboardingService(&reconcileRepoStub{}, &reconcileRepoStub{}, nil, zap.NewNop())
	handler := NewOnboardingHandler(svc)

	c, w := testContext(t, http.MethodPost, "/me/reconcile", nil, nil)
	handler.Reconcile(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
