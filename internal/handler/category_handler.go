package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/guidancehub/referral-api/internal/service"
	"github.com/guidancehub/referral-api/pkg/response"
)

// CategoryHandler serves the active category list.
type CategoryHandler struct {
	service *service.CategoryService
}

// NewCategoryHandler constructs the handler.
func NewCategoryHandler(svc *service.CategoryService) *CategoryHandler {
	return &CategoryHandler{service: svc}
}

// List godoc
// @Summary List active referral categories
// @Tags Categories
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /categories [get]
func (h *CategoryHandler) List(c *gin.Context) {
	categories, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, categories)
}
