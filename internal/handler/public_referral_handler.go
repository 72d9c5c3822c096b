package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guidancehub/referral-api/internal/service"
	appErrors "github.com/guidancehub/referral-api/pkg/errors"
	"github.com/guidancehub/referral-api/pkg/response"
)

// PublicReferralHandler accepts unauthenticated student submissions.
type PublicReferralHandler struct {
	service *service.IntakeService
}

// NewPublicReferralHandler constructs the handler.
func NewPublicReferralHandler(svc *service.IntakeService) *PublicReferralHandler {
	return &PublicReferralHandler{service: svc}
}

// Submit godoc
// @Summary Submit a student concern without authentication
// @Tags Public
// @Accept json
// @Produce json
// @Param payload body service.SubmitConcernRequest true "Concern payload"
// @Success 201 {object} response.Envelope
// @Router /public-referrals [post]
func (h *PublicReferralHandler) Submit(c *gin.Context) {
	var req service.SubmitConcernRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}
