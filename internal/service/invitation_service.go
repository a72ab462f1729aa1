package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/realtime"
	"github.com/eduspace/enrollment-api/internal/session"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
)

type accessRequestRepository interface {
	FindByID(ctx context.Context, id string) (*models.AccessRequest, error)
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.PendingInvitation, int, error)
	ListPendingByEmail(ctx context.Context, studentEmail string) ([]models.PendingInvitation, error)
	Create(ctx context.Context, request *models.AccessRequest) error
	Decide(ctx context.Context, id string, status models.AccessRequestStatus, studentID string, respondedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

type rosterWriter interface {
	ExistsByClassAndEmail(ctx context.Context, classID, email string) (bool, error)
	Create(ctx context.Context, entry *models.RosterEntry) error
	MarkEnrolled(ctx context.Context, classID, email, studentID string, enrolledAt time.Time) error
	MarkRejected(ctx context.Context, classID, email string) error
	ClaimByEmail(ctx context.Context, email, studentID string) (int64, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type notifier interface {
	InvitationReceived(invitation models.PendingInvitation)
	InvitationDismissed(invitation models.PendingInvitation)
	InvitationDecided(request models.AccessRequest)
}

// InviteStudentRequest describes a lecturer inviting a student email.
type InviteStudentRequest struct {
	ClassID        string `json:"class_id" validate:"required"`
	StudentEmail   string `json:"student_email" validate:"required,email"`
	StudentName    string `json:"student_name"`
	RegisterNumber string `json:"register_number"`
}

// InvitationService owns the invitation lifecycle: issuance by lecturers,
// terminal decisions by students, and the session-local dismiss/reopen state.
type InvitationService struct {
	requests   accessRequestRepository
	roster     rosterWriter
	classes    classReader
	dismissals session.DismissalStore
	broker     realtime.Broker
	notify     notifier
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewInvitationService constructs InvitationService.
func NewInvitationService(requests accessRequestRepository, roster rosterWriter, classes classReader, dismissals session.DismissalStore, broker realtime.Broker, notify notifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *InvitationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvitationService{
		requests:   requests,
		roster:     roster,
		classes:    classes,
		dismissals: dismissals,
		broker:     broker,
		notify:     notify,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
	}
}

// Invite creates a pending access request for the class and email, upserts
// the correlated roster entry, and fans the created event out. Duplicate
// pending invitations for the same (class, email) are tolerated; only the
// roster entry is deduplicated.
func (s *InvitationService) Invite(ctx context.Context, lecturer *models.JWTClaims, req InviteStudentRequest) (*models.PendingInvitation, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid invitation payload")
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if lecturer.Role != models.RoleAdmin && class.LecturerID != lecturer.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another lecturer")
	}

	request := &models.AccessRequest{
		ClassID:      req.ClassID,
		LecturerID:   class.LecturerID,
		StudentEmail: req.StudentEmail,
		Status:       models.AccessRequestStatusPending,
		SentAt:       time.Now().UTC(),
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create invitation")
	}

	exists, err := s.roster.ExistsByClassAndEmail(ctx, req.ClassID, req.StudentEmail)
	if err != nil {
		s.logger.Warn("roster lookup failed during invite", zap.String("class_id", req.ClassID), zap.Error(err))
	} else if !exists {
		entry := &models.RosterEntry{
			ClassID:        req.ClassID,
			RegisterNumber: req.RegisterNumber,
			StudentName:    req.StudentName,
			Email:          req.StudentEmail,
			Status:         models.RosterStatusPending,
			ImportSource:   models.ImportSourceInvitation,
		}
		if err := s.roster.Create(ctx, entry); err != nil {
			s.logger.Warn("roster entry creation failed during invite", zap.String("class_id", req.ClassID), zap.Error(err))
		}
	}

	invitation := models.PendingInvitation{
		AccessRequest: *request,
		ClassName:     class.Name,
		ClassSubject:  class.Subject,
	}

	s.publish(ctx, realtime.InvitationEvent{
		Type:         realtime.EventInvitationCreated,
		RequestID:    request.ID,
		StudentEmail: request.StudentEmail,
		Status:       request.Status,
		Invitation:   &invitation,
		EmittedAt:    time.Now().UTC(),
	})
	if s.notify != nil {
		s.notify.InvitationReceived(invitation)
	}

	return &invitation, nil
}

// Decide applies a terminal accept/reject decision for the authenticated
// student. The transition is exactly-once: a second decision, from this or
// any other session, yields a conflict. On accept the correlated roster
// entry is claimed and marked enrolled.
func (s *InvitationService) Decide(ctx context.Context, student *models.JWTClaims, requestID string, accept bool) (*models.AccessRequest, error) {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if !emailsEqual(request.StudentEmail, student.Email) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invitation addressed to another email")
	}

	status := models.AccessRequestStatusRejected
	if accept {
		status = models.AccessRequestStatusAccepted
	}
	respondedAt := time.Now().UTC()

	transitioned, err := s.requests.Decide(ctx, requestID, status, student.UserID, respondedAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
	}
	if !transitioned {
		return nil, appErrors.Clone(appErrors.ErrAlreadyDecided, "")
	}

	request.Status = status
	request.StudentID = &student.UserID
	request.RespondedAt = &respondedAt

	// Roster advancement follows the decision; a failure here is logged and
	// left for the next reconciliation rather than rolling back the decision.
	if accept {
		if _, err := s.roster.ClaimByEmail(ctx, request.StudentEmail, student.UserID); err != nil {
			s.logger.Warn("roster claim failed after accept", zap.String("request_id", requestID), zap.Error(err))
		}
		if err := s.roster.MarkEnrolled(ctx, request.ClassID, request.StudentEmail, student.UserID, respondedAt); err != nil {
			s.logger.Warn("roster enroll failed after accept", zap.String("request_id", requestID), zap.Error(err))
		}
	} else {
		if err := s.roster.MarkRejected(ctx, request.ClassID, request.StudentEmail); err != nil {
			s.logger.Warn("roster reject failed after reject", zap.String("request_id", requestID), zap.Error(err))
		}
	}

	s.publish(ctx, realtime.InvitationEvent{
		Type:         realtime.EventInvitationDecided,
		RequestID:    request.ID,
		StudentEmail: request.StudentEmail,
		Status:       status,
		OldStatus:    models.AccessRequestStatusPending,
		EmittedAt:    respondedAt,
	})
	if s.notify != nil {
		s.notify.InvitationDecided(*request)
	}

	return request, nil
}

// Withdraw removes a pending invitation (lecturer action) and emits a deleted
// event so open prompts drop it immediately.
func (s *InvitationService) Withdraw(ctx context.Context, lecturer *models.JWTClaims, requestID string) error {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if lecturer.Role != models.RoleAdmin && request.LecturerID != lecturer.UserID {
		return appErrors.Clone(appErrors.ErrForbidden, "invitation belongs to another lecturer")
	}
	if request.Status != models.AccessRequestStatusPending {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "invitation already decided")
	}

	if err := s.requests.Delete(ctx, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The delete is guarded on PENDING, so zero rows here means a
			// decision raced past the check above or the row is already gone.
			if _, findErr := s.requests.FindByID(ctx, requestID); findErr == nil {
				return appErrors.Clone(appErrors.ErrPreconditionFailed, "invitation already decided")
			}
			return appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw invitation")
	}

	s.publish(ctx, realtime.InvitationEvent{
		Type:         realtime.EventInvitationDeleted,
		RequestID:    request.ID,
		StudentEmail: request.StudentEmail,
		OldStatus:    request.Status,
		EmittedAt:    time.Now().UTC(),
	})
	return nil
}

// ListPending returns the authoritative pending set for the student. Unlike
// the prompt view this always includes dismissed invitations.
func (s *InvitationService) ListPending(ctx context.Context, student *models.JWTClaims) ([]models.PendingInvitation, error) {
	invitations, err := s.requests.ListPendingByEmail(ctx, student.Email)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}
	if invitations == nil {
		invitations = []models.PendingInvitation{}
	}
	return invitations, nil
}

// ListForClass returns invitations for a lecturer's class.
func (s *InvitationService) ListForClass(ctx context.Context, lecturer *models.JWTClaims, filter models.AccessRequestFilter) ([]models.PendingInvitation, *models.Pagination, error) {
	class, err := s.classes.FindByID(ctx, filter.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if lecturer.Role != models.RoleAdmin && class.LecturerID != lecturer.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "class belongs to another lecturer")
	}

	invitations, total, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list invitations")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return invitations, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Dismiss records the invitation id in the session's dismissal set so the
// prompt does not reopen this session. Server-side the invitation stays
// pending; a best-effort notification keeps it discoverable.
func (s *InvitationService) Dismiss(ctx context.Context, student *models.JWTClaims, requestID string) error {
	request, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "invitation not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load invitation")
	}
	if !emailsEqual(request.StudentEmail, student.Email) {
		return appErrors.Clone(appErrors.ErrForbidden, "invitation addressed to another email")
	}

	if err := s.dismissals.Dismiss(ctx, sessionKey(student), requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dismiss invitation")
	}
	if s.notify != nil {
		invitation := models.PendingInvitation{AccessRequest: *request}
		// The reminder should name the class; without it the body falls back
		// to a generic phrase.
		if class, err := s.classes.FindByID(ctx, request.ClassID); err != nil {
			s.logger.Warn("class lookup failed during dismiss", zap.String("request_id", requestID), zap.Error(err))
		} else {
			invitation.ClassName = class.Name
			invitation.ClassSubject = class.Subject
		}
		s.notify.InvitationDismissed(invitation)
	}
	return nil
}

// Reopen removes the id from the session's dismissal set. Client-local: no
// store rows change and no events are emitted.
func (s *InvitationService) Reopen(ctx context.Context, student *models.JWTClaims, requestID string) error {
	if err := s.dismissals.Reopen(ctx, sessionKey(student), requestID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reopen invitation")
	}
	return nil
}

// Dismissed returns the session's dismissal set.
func (s *InvitationService) Dismissed(ctx context.Context, student *models.JWTClaims) (map[string]struct{}, error) {
	set, err := s.dismissals.Dismissed(ctx, sessionKey(student))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load dismissals")
	}
	return set, nil
}

func (s *InvitationService) publish(ctx context.Context, event realtime.InvitationEvent) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, event); err != nil {
		// Realtime delivery is best-effort; the authoritative stores already
		// hold the change and the next reconciliation converges.
		s.logger.Warn("failed to publish invitation event",
			zap.String("request_id", event.RequestID), zap.String("type", string(event.Type)), zap.Error(err))
		return
	}
	s.metrics.ObserveEventPublished(string(event.Type))
}

func sessionKey(claims *models.JWTClaims) string {
	return claims.UserID
}

// emailsEqual compares addresses the way the stores match them.
func emailsEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
