package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduspace/enrollment-api/internal/service"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/response"
)

// OnboardingHandler exposes the post-login reconciliation endpoint.
type OnboardingHandler struct {
	service *service.OnboardingService
}

// NewOnboardingHandler creates a new handler.
func NewOnboardingHandler(svc *service.OnboardingService) *OnboardingHandler {
	return &OnboardingHandler{service: svc}
}

// Reconcile godoc
// @Summary Reconcile pending invitations and roster entries
// @Description Links unclaimed roster entries to the caller and returns pending invitations. Idempotent; safe to call on every login.
// @Tags Onboarding
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Security BearerAuth
// @Router /me/reconcile [post]
func (h *OnboardingHandler) Reconcile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.service.Reconcile(c.Request.Context(), claims.Email, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}
