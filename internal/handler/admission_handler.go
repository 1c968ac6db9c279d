package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admission-api/internal/dto"
	"github.com/noah-isme/sma-admission-api/internal/models"
	"github.com/noah-isme/sma-admission-api/internal/service"
	appErrors "github.com/noah-isme/sma-admission-api/pkg/errors"
	"github.com/noah-isme/sma-admission-api/pkg/response"
)

// AdmissionHandler exposes admission application endpoints.
type AdmissionHandler struct {
	admissions *service.AdmissionService
	exports    *service.ExportService
}

// NewAdmissionHandler constructs handler.
func NewAdmissionHandler(admissions *service.AdmissionService, exports *service.ExportService) *AdmissionHandler {
	return &AdmissionHandler{admissions: admissions, exports: exports}
}

// Submit godoc
// @Summary Submit an admission application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /admissions [post]
func (h *AdmissionHandler) Submit(c *gin.Context) {
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, err := h.admissions.Submit(c.Request.Context(), req, c.ClientIP(), c.Request.UserAgent())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// List godoc
// @Summary List admission applications
// @Tags Admissions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param academicYear query string false "Filter by academic year"
// @Param grade query int false "Filter by applied grade"
// @Param search query string false "Search by name or email"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	filter := models.ApplicationFilter{
		AcademicYear: c.Query("academicYear"),
		Search:       c.Query("search"),
		SortBy:       c.Query("sortBy"),
		SortOrder:    c.Query("sortOrder"),
	}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	filter.GradeApplied, _ = strconv.Atoi(c.Query("grade"))
	filter.Page, _ = strconv.Atoi(c.Query("page"))
	filter.PageSize, _ = strconv.Atoi(c.Query("pageSize"))

	apps, pagination, err := h.admissions.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get an admission application
// @Tags Admissions
// @Produce json
// @Param id path int true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	app, err := h.admissions.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Review godoc
// @Summary Move an application through review states
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path int true "Application ID"
// @Param payload body dto.ReviewApplicationRequest true "Review payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id}/review [post]
func (h *AdmissionHandler) Review(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	var req dto.ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, err := h.admissions.Review(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Approve godoc
// @Summary Approve an application and provision the student account
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path int true "Application ID"
// @Param payload body dto.ApproveApplicationRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id}/approve [post]
func (h *AdmissionHandler) Approve(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	var req dto.ApproveApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.admissions.Approve(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject an application
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path int true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id}/reject [post]
func (h *AdmissionHandler) Reject(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	var req dto.RejectApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	app, err := h.admissions.Reject(c.Request.Context(), id, claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// PreviewUID godoc
// @Summary Preview the next student UID without consuming it
// @Tags Admissions
// @Produce json
// @Param id path int true "Application ID"
// @Param section query string true "Section letter"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id}/uid-preview [get]
func (h *AdmissionHandler) PreviewUID(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	preview, err := h.admissions.PreviewNextUID(c.Request.Context(), id, c.Query("section"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, preview, nil)
}

// Documents godoc
// @Summary List documents attached to an application
// @Tags Admissions
// @Produce json
// @Param id path int true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admissions/{id}/documents [get]
func (h *AdmissionHandler) Documents(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	docs, err := h.admissions.Documents(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// ExportCSV godoc
// @Summary Export applications as CSV
// @Tags Admissions
// @Produce text/csv
// @Param status query string false "Comma separated statuses"
// @Param academicYear query string false "Filter by academic year"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /admissions/export [get]
func (h *AdmissionHandler) ExportCSV(c *gin.Context) {
	filter := models.ApplicationFilter{AcademicYear: c.Query("academicYear")}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			filter.Status = append(filter.Status, models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	filter.GradeApplied, _ = strconv.Atoi(c.Query("grade"))

	payload, filename, err := h.exports.ApplicationsCSV(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "text/csv", payload)
}

// DecisionLetter godoc
// @Summary Download the decision letter for a decided application
// @Tags Admissions
// @Produce application/pdf
// @Param id path int true "Application ID"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /admissions/{id}/letter [get]
func (h *AdmissionHandler) DecisionLetter(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application id"))
		return
	}
	payload, filename, err := h.exports.DecisionLetter(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/pdf", payload)
}
