package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/jobs"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByEmail(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, userEmail string) error
}

// NotificationService writes user-visible notification records off the hot
// path. Writes are funnelled through a worker queue and are best-effort: a
// failure is counted and logged but never reaches the caller, since the
// workflow's correctness lives in the access-request and roster stores.
type NotificationService struct {
	repo    notificationRepository
	queue   *jobs.Queue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationService constructs NotificationService. Call Start before
// enqueueing and Stop on shutdown.
func NewNotificationService(repo notificationRepository, metrics *MetricsService, logger *zap.Logger, cfg jobs.QueueConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		repo:    repo,
		metrics: metrics,
		logger:  logger,
	}
	cfg.Logger = logger
	s.queue = jobs.NewQueue("notifications", s.handle, cfg)
	return s
}

// Start launches the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// InvitationReceived records "you have been invited" for the student email.
func (s *NotificationService) InvitationReceived(invitation models.PendingInvitation) {
	title := "New class invitation"
	body := fmt.Sprintf("You have been invited to join %s.", displayClassName(invitation))
	s.enqueue(invitation.StudentEmail, models.NotificationInvitationReceived, title, body, invitation.ID)
}

// InvitationDismissed records a pointer to the invitation the session hid,
// so it stays discoverable outside the prompt.
func (s *NotificationService) InvitationDismissed(invitation models.PendingInvitation) {
	title := "Invitation still pending"
	body := fmt.Sprintf("You dismissed the invitation to %s. It is still waiting for your decision.", displayClassName(invitation))
	s.enqueue(invitation.StudentEmail, models.NotificationInvitationDismissed, title, body, invitation.ID)
}

// InvitationDecided records the terminal outcome for the student email.
func (s *NotificationService) InvitationDecided(request models.AccessRequest) {
	title := "Invitation declined"
	body := "You declined a class invitation."
	if request.Status == models.AccessRequestStatusAccepted {
		title = "Invitation accepted"
		body = "You accepted a class invitation and were enrolled."
	}
	s.enqueue(request.StudentEmail, models.NotificationInvitationDecided, title, body, request.ID)
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, *models.Pagination, error) {
	notifications, total, err := s.repo.ListByEmail(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return notifications, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, id, userEmail string) error {
	if err := s.repo.MarkRead(ctx, id, userEmail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

func (s *NotificationService) enqueue(email string, kind models.NotificationType, title, body, refID string) {
	notification := models.Notification{
		ID:        uuid.New().String(),
		UserEmail: email,
		Type:      kind,
		Title:     title,
		Body:      body,
	}
	if refID != "" {
		notification.RefID = &refID
	}
	err := s.queue.Enqueue(jobs.Job{
		ID:      notification.ID,
		Type:    string(kind),
		Payload: notification,
	})
	if err != nil {
		s.metrics.ObserveNotificationError()
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", string(kind)), zap.String("user_email", email), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.metrics.ObserveNotificationError()
		s.logger.Error("notification job carried unexpected payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.repo.Create(ctx, &notification); err != nil {
		s.metrics.ObserveNotificationError()
		return fmt.Errorf("create notification %s: %w", notification.ID, err)
	}
	return nil
}

func displayClassName(invitation models.PendingInvitation) string {
	if invitation.ClassName == "" {
		return "a class"
	}
	if invitation.ClassSubject == "" {
		return invitation.ClassName
	}
	return fmt.Sprintf("%s (%s)", invitation.ClassName, invitation.ClassSubject)
}
