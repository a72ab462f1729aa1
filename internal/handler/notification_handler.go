package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/service"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/response"
)

// NotificationHandler wires HTTP endpoints to the notification service.
type NotificationHandler struct {
	service *service.NotificationService
}

// NewNotificationHandler creates a new handler.
func NewNotificationHandler(svc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// List godoc
// @Summary List my notifications
// @Tags Notifications
// @Produce json
// @Param unread query bool false "Only unread"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /me/notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.NotificationFilter{
		UserEmail:  claims.Email,
		UnreadOnly: c.Query("unread") == "true",
		Page:       queryInt(c, "page", 1),
		PageSize:   queryInt(c, "page_size", 20),
	}

	notifications, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, notifications, pagination)
}

// MarkRead godoc
// @Summary Mark a notification read
// @Tags Notifications
// @Produce json
// @Param id path string true "Notification ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /me/notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("id"), claims.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}
