package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
)

type pendingCounter interface {
	CountPending(ctx context.Context, studentEmail string) (int, error)
}

type pendingLoader interface {
	ListPendingByEmail(ctx context.Context, studentEmail string) ([]models.PendingInvitation, error)
}

type rosterClaimer interface {
	ClaimByEmail(ctx context.Context, email, studentID string) (int64, error)
}

type accessRequestReader interface {
	pendingCounter
	pendingLoader
}

// ReconcileResult reports what a reconciliation pass observed and did.
type ReconcileResult struct {
	PendingCount int                        `json:"pending_count"`
	ClaimedRows  int64                      `json:"claimed_rows"`
	Invitations  []models.PendingInvitation `json:"invitations"`
	StepsFailed  []string                   `json:"steps_failed,omitempty"`
}

// OnboardingService reconciles a newly authenticated email against pending
// invitations and unclaimed roster entries.
type OnboardingService struct {
	requests accessRequestReader
	roster   rosterClaimer
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewOnboardingService constructs OnboardingService.
func NewOnboardingService(requests accessRequestReader, roster rosterClaimer, metrics *MetricsService, logger *zap.Logger) *OnboardingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnboardingService{requests: requests, roster: roster, metrics: metrics, logger: logger}
}

// Reconcile runs the pending-check, claim and load steps sequentially. The
// steps are not atomic as a unit and each one fails independently: a claim
// failure never blocks loading invitations and vice versa. There is no
// rollback; partial completion is visible and self-heals on the next pass.
// Only a context cancellation is returned as an error.
func (s *OnboardingService) Reconcile(ctx context.Context, email, identity string) (*ReconcileResult, error) {
	result := &ReconcileResult{Invitations: []models.PendingInvitation{}}

	// Step 1: advisory pending check. Drives nothing transactionally; a
	// failure here just means the count is unknown.
	count, err := s.requests.CountPending(ctx, email)
	s.metrics.ObserveReconcileStep("pending_check", err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("reconcile pending check failed",
			zap.String("email", email), zap.Error(err))
		result.StepsFailed = append(result.StepsFailed, "pending_check")
	} else {
		result.PendingCount = count
	}

	// Step 2: claim unclaimed roster rows for this email. Idempotent; never
	// touches rows claimed by another account and never touches invitation
	// status.
	claimed, err := s.roster.ClaimByEmail(ctx, email, identity)
	s.metrics.ObserveReconcileStep("claim", err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("reconcile claim failed",
			zap.String("email", email), zap.String("identity", identity), zap.Error(err))
		result.StepsFailed = append(result.StepsFailed, "claim")
	} else {
		result.ClaimedRows = claimed
		s.metrics.AddRosterClaims(claimed)
	}

	// Step 3: load pending invitations for presentation. No locking: a
	// request created after this read surfaces on the next pass.
	invitations, err := s.requests.ListPendingByEmail(ctx, email)
	s.metrics.ObserveReconcileStep("load", err)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("reconcile load failed",
			zap.String("email", email), zap.Error(err))
		result.StepsFailed = append(result.StepsFailed, "load")
	} else if invitations != nil {
		result.Invitations = invitations
	}

	return result, nil
}
