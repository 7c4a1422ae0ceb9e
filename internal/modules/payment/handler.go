package payment

import (
	"log/slog"
	"net/http"

	"eventreg/internal/middleware"
	"eventreg/internal/pkg/authz"
	"eventreg/internal/pkg/response"
	"eventreg/internal/pkg/validator"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/events/:eventId/registrations", h.Register)
	rg.GET("/events/:eventId/registration-status", h.Status)
	rg.POST("/registrations/:id/cancel-pending", h.CancelPending)
	rg.POST("/registrations/:id/check-in", middleware.RequirePermission(authz.PermCheckIn), h.CheckIn)
}

// Register godoc
// @Summary      Register for an event
// @Description  Reserves a seat; paid options return a checkout URL
// @Tags         Registrations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        eventId path string true "Event ID"
// @Param        body body RegisterRequest true "Registration option"
// @Success      201 {object} RegisterResult
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      500 {object} ErrorResponse
// @Router       /events/{eventId}/registrations [post]
func (h *Handler) Register(c *gin.Context) {
	user, tenant, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", validator.FieldErrors(err))
		return
	}

	res, err := h.service.RegisterForEvent(c.Request.Context(), tenant, user, c.Param("eventId"), req.RegistrationOptionID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, res)
}

// CancelPending godoc
// @Summary      Cancel an unpaid registration
// @Tags         Registrations
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Registration ID"
// @Success      200 {object} domain.Registration
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /registrations/{id}/cancel-pending [post]
func (h *Handler) CancelPending(c *gin.Context) {
	user, tenant, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	reg, err := h.service.CancelPendingRegistration(c.Request.Context(), tenant, user, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, reg)
}

// Status godoc
// @Summary      Caller's registrations for an event
// @Tags         Registrations
// @Security     BearerAuth
// @Produce      json
// @Param        eventId path string true "Event ID"
// @Success      200 {object} registration.StatusView
// @Router       /events/{eventId}/registration-status [get]
func (h *Handler) Status(c *gin.Context) {
	user, _, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	view, err := h.service.RegistrationStatus(c.Request.Context(), user, c.Param("eventId"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// CheckIn godoc
// @Summary      Check a participant in
// @Tags         Registrations
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Registration ID"
// @Success      200 {object} domain.Registration
// @Failure      403 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /registrations/{id}/check-in [post]
func (h *Handler) CheckIn(c *gin.Context) {
	user, tenant, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	reg, err := h.service.CheckIn(c.Request.Context(), tenant, user, c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.logger.Info("participant checked in", "registration_id", reg.ID, "by", user.ID)
	response.Success(c, http.StatusOK, reg)
}
