package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/realtime"
	"github.com/eduspace/enrollment-api/internal/service"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/response"
)

const streamHeartbeat = 25 * time.Second

// InvitationHandler wires HTTP endpoints to the invitation service.
type InvitationHandler struct {
	service *service.InvitationService
	broker  realtime.Broker
	metrics *service.MetricsService
}

// NewInvitationHandler creates a new handler.
func NewInvitationHandler(svc *service.InvitationService, broker realtime.Broker, metrics *service.MetricsService) *InvitationHandler {
	return &InvitationHandler{service: svc, broker: broker, metrics: metrics}
}

// Invite godoc
// @Summary Invite a student to a class
// @Description Creates a pending invitation for the email and seeds the class roster.
// @Tags Invitations
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.InviteStudentRequest true "Invitation payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/invitations [post]
func (h *InvitationHandler) Invite(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.InviteStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid invitation payload"))
		return
	}
	req.ClassID = c.Param("id")

	invitation, err := h.service.Invite(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, invitation)
}

// ListForClass godoc
// @Summary List a class's invitations
// @Tags Invitations
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/invitations [get]
func (h *InvitationHandler) ListForClass(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.AccessRequestFilter{
		ClassID:  c.Param("id"),
		Status:   models.AccessRequestStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}

	invitations, pagination, err := h.service.ListForClass(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invitations, pagination)
}

// Withdraw godoc
// @Summary Withdraw a pending invitation
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /invitations/{id} [delete]
func (h *InvitationHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Withdraw(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// ListMine godoc
// @Summary List my pending invitations
// @Description Authoritative pending set for the caller's email, dismissed ones included.
// @Tags Invitations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations [get]
func (h *InvitationHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	invitations, err := h.service.ListPending(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, invitations, nil)
}

// Prompts godoc
// @Summary List my invitation prompts
// @Description Pending invitations minus the ones this session dismissed.
// @Tags Invitations
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/prompts [get]
func (h *InvitationHandler) Prompts(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	invitations, err := h.service.ListPending(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	dismissed, err := h.service.Dismissed(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	feed := service.NewInvitationFeed()
	feed.Seed(invitations, dismissed)
	response.JSON(c, http.StatusOK, feed.Prompts(), nil)
}

// Accept godoc
// @Summary Accept an invitation
// @Description Terminal and exactly-once; a second decision returns 409.
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/{id}/accept [post]
func (h *InvitationHandler) Accept(c *gin.Context) {
	h.decide(c, true)
}

// Reject godoc
// @Summary Reject an invitation
// @Description Terminal and exactly-once; a second decision returns 409.
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/{id}/reject [post]
func (h *InvitationHandler) Reject(c *gin.Context) {
	h.decide(c, false)
}

func (h *InvitationHandler) decide(c *gin.Context, accept bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	request, err := h.service.Decide(c.Request.Context(), claims, c.Param("id"), accept)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, request, nil)
}

// Dismiss godoc
// @Summary Dismiss an invitation prompt for this session
// @Description Hides the prompt until the session expires. The invitation stays pending.
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/{id}/dismiss [post]
func (h *InvitationHandler) Dismiss(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Dismiss(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Reopen godoc
// @Summary Reopen a dismissed invitation prompt
// @Tags Invitations
// @Produce json
// @Param id path string true "Invitation ID"
// @Success 204 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/{id}/reopen [post]
func (h *InvitationHandler) Reopen(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Reopen(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Stream godoc
// @Summary Stream invitation events
// @Description Server-sent events scoped to the caller's email. Consumers apply each event as an idempotent set operation on their pending view.
// @Tags Invitations
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /me/invitations/stream [get]
func (h *InvitationHandler) Stream(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	events, cancel, err := h.broker.Subscribe(c.Request.Context(), claims.Email)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe"))
		return
	}
	defer cancel()

	h.metrics.StreamSubscribed(1)
	defer h.metrics.StreamSubscribed(-1)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent("invitation", event)
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().UTC().Unix())
			return true
		}
	})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
