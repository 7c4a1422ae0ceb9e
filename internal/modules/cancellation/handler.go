package cancellation

import (
	"net/http"

	"eventreg/internal/middleware"
	"eventreg/internal/pkg/response"
	"eventreg/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/registrations/:id/cancel", h.Cancel)
}

// Cancel godoc
// @Summary      Cancel a confirmed registration
// @Description  Applies the registration's cancellation policy and refunds the payment
// @Tags         Registrations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id path string true "Registration ID"
// @Param        body body Request true "Cancellation reason"
// @Success      200 {object} Result
// @Failure      400 {object} map[string]any
// @Failure      403 {object} map[string]any
// @Failure      409 {object} map[string]any
// @Failure      500 {object} map[string]any
// @Router       /registrations/{id}/cancel [post]
func (h *Handler) Cancel(c *gin.Context) {
	user, tenant, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", validator.FieldErrors(err))
		return
	}

	res, err := h.service.CancelRegistration(c.Request.Context(), tenant, user, c.Param("id"), req)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}
