package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"eventreg/internal/gateway"

	"github.com/gin-gonic/gin"
)

const (
	signatureHeader = "Stripe-Signature"
	maxPayloadBytes = 1 << 20
)

type Handler struct {
	service *Service
	gateway gateway.Gateway
	logger  *slog.Logger
}

func NewHandler(service *Service, gw gateway.Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, gateway: gw, logger: logger}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/payment", h.Payment)
}

// Payment godoc
// @Summary      Payment gateway webhook
// @Description  Verifies the signature and reconciles the event (idempotent)
// @Tags         Webhooks
// @Accept       json
// @Produce      json
// @Success      200 {object} map[string]any
// @Failure      400 {object} map[string]any
// @Failure      500 {object} map[string]any
// @Router       /webhooks/payment [post]
func (h *Handler) Payment(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxPayloadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable payload"})
		return
	}

	ev, err := h.gateway.ParseEvent(payload, c.GetHeader(signatureHeader))
	if err != nil {
		if !errors.Is(err, gateway.ErrInvalidSignature) {
			h.logger.Warn("malformed webhook payload", "err", err)
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook"})
		return
	}

	outcome, err := h.service.Handle(c.Request.Context(), ev, payload)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed, retry"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
