package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/guidancehub/referral-api/internal/service"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
	"github.com/guidancehub/referral-api/pkg/export"
	"github.com/guidancehub/referral-api/pkg/response"
)

// ReferralHandler handles referral endpoints.
type ReferralHandler struct {
	service *service.ReferralService
	csv     *export.CSVExporter
	pdf     *export.PDFExporter
}

// NewReferralHandler constructs a referral handler.
func NewReferralHandler(svc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{
		service: svc,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
	}
}

func listRequestFromQuery(c *gin.Context) service.ReferralListRequest {
	return service.ReferralListRequest{
		Search:   strings.TrimSpace(c.Query("search")),
		Level:    c.Query("level"),
		Severity: c.Query("severity"),
		Status:   c.Query("status"),
		Grade:    c.Query("grade"),
	}
}

// Create godoc
// @Summary Create a referral
// @Tags Referrals
// @Accept json
// @Produce json
// @Param payload body service.CreateReferralRequest true "Referral payload"
// @Success 201 {object} response.Envelope
// @Router /referrals [post]
func (h *ReferralHandler) Create(c *gin.Context) {
	var req service.CreateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	referral, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, referral)
}

// ListMine godoc
// @Summary List the caller's own referrals
// @Tags Referrals
// @Produce json
// @Param search query string false "Student name search"
// @Param level query string false "Level filter"
// @Param severity query string false "Severity filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /referrals/my-referrals [get]
func (h *ReferralHandler) ListMine(c *gin.Context) {
	referrals, err := h.service.ListMine(c.Request.Context(), claimsFromContext(c), listRequestFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, referrals)
}

// ListAll godoc
// @Summary List all referrals
// @Tags Referrals
// @Produce json
// @Param search query string false "Student name search"
// @Param level query string false "Level filter"
// @Param severity query string false "Severity filter"
// @Param status query string false "Status filter"
// @Success 200 {object} response.Envelope
// @Router /referrals [get]
func (h *ReferralHandler) ListAll(c *gin.Context) {
	referrals, err := h.service.ListAll(c.Request.Context(), claimsFromContext(c), listRequestFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, referrals)
}

// Recent godoc
// @Summary Latest referrals, scoped by role
// @Tags Referrals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /referrals/recent [get]
func (h *ReferralHandler) Recent(c *gin.Context) {
	referrals, err := h.service.Recent(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, referrals)
}

// Stats godoc
// @Summary Referral counts by level, status and severity
// @Tags Referrals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /referrals/stats [get]
func (h *ReferralHandler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// Export godoc
// @Summary Export the filtered referral list
// @Tags Referrals
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /referrals/export [get]
func (h *ReferralHandler) Export(c *gin.Context) {
	dataset, err := h.service.ExportDataset(c.Request.Context(), claimsFromContext(c), listRequestFromQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("referrals-%s", time.Now().UTC().Format("20060102"))
	switch c.DefaultQuery("format", "csv") {
	case "pdf":
		payload, err := h.pdf.Render(dataset, "Referral Report")
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", filename))
		c.Data(http.StatusOK, "application/pdf", payload)
	case "csv":
		payload, err := h.csv.Render(dataset)
		if err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv"))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
		c.Data(http.StatusOK, "text/csv", payload)
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
	}
}

// Get godoc
// @Summary Get a referral by id
// @Tags Referrals
// @Produce json
// @Param id path string true "Referral ID"
// @Success 200 {object} response.Envelope
// @Router /referrals/{id} [get]
func (h *ReferralHandler) Get(c *gin.Context) {
	referral, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, referral)
}

// Update godoc
// @Summary Update a referral; editable fields depend on role
// @Tags Referrals
// @Accept json
// @Produce json
// @Param id path string true "Referral ID"
// @Param payload body service.UpdateReferralRequest true "Referral payload"
// @Success 200 {object} response.Envelope
// @Router /referrals/{id} [put]
func (h *ReferralHandler) Update(c *gin.Context) {
	var req service.UpdateReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	referral, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, referral)
}

// Delete godoc
// @Summary Delete a referral
// @Tags Referrals
// @Produce json
// @Param id path string true "Referral ID"
// @Success 200 {object} response.Envelope
// @Router /referrals/{id} [delete]
func (h *ReferralHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"message": "referral deleted successfully"})
}
