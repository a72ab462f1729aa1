package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eduspace/enrollment-api/internal/models"
	"github.com/eduspace/enrollment-api/internal/service"
	appErrors "github.com/eduspace/enrollment-api/pkg/errors"
	"github.com/eduspace/enrollment-api/pkg/response"
)

// ClassHandler wires HTTP endpoints to the class and roster services.
type ClassHandler struct {
	classes *service.ClassService
	roster  *service.RosterService
}

// NewClassHandler creates a new handler.
func NewClassHandler(classes *service.ClassService, roster *service.RosterService) *ClassHandler {
	return &ClassHandler{classes: classes, roster: roster}
}

// Create godoc
// @Summary Create a class
// @Tags Classes
// @Accept json
// @Produce json
// @Param payload body service.CreateClassRequest true "Class payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [post]
func (h *ClassHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid class payload"))
		return
	}

	class, err := h.classes.Create(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, class)
}

// List godoc
// @Summary List classes
// @Tags Classes
// @Produce json
// @Param search query string false "Search by name or subject"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /classes [get]
func (h *ClassHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.ClassFilter{
		Search:    c.Query("search"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	classes, pagination, err := h.classes.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get godoc
// @Summary Get a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	class, err := h.classes.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, class, nil)
}

// Roster godoc
// @Summary List a class roster
// @Tags Roster
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "Filter by enrollment status"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/roster [get]
func (h *ClassHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.RosterFilter{
		ClassID:  c.Param("id"),
		Status:   models.RosterEnrollmentStatus(c.Query("status")),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if raw := c.Query("unclaimed"); raw != "" {
		unclaimed := raw == "true"
		filter.Unclaimed = &unclaimed
	}

	entries, pagination, err := h.roster.List(c.Request.Context(), claims, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, entries, pagination)
}

type rosterImportPayload struct {
	Rows []service.RosterImportRow `json:"rows"`
}

// ImportRoster godoc
// @Summary Bulk import roster rows
// @Description Inserts pending, unclaimed entries; rows whose email already has an entry are skipped.
// @Tags Roster
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body rosterImportPayload true "Import rows"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/roster/import [post]
func (h *ClassHandler) ImportRoster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload rosterImportPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	result, err := h.roster.BulkImport(c.Request.Context(), claims, c.Param("id"), payload.Rows)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// ExportRoster godoc
// @Summary Export a class roster
// @Description Renders the roster as csv or pdf and returns a signed, expiring download token.
// @Tags Roster
// @Produce json
// @Param id path string true "Class ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/roster/export [post]
func (h *ClassHandler) ExportRoster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.roster.Export(c.Request.Context(), claims, c.Param("id"), c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadExport godoc
// @Summary Download a roster export
// @Description Serves the file referenced by a signed token. No session required; the token is the credential.
// @Tags Roster
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *ClassHandler) DownloadExport(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	f, filename, err := h.roster.OpenExport(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer f.Close()

	c.FileAttachment(f.Name(), filename)
}
