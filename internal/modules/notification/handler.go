package notification

import (
	"log/slog"
	"net/http"
	"slices"

	"eventreg/internal/middleware"
	"eventreg/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler accepts upgrades from allowedOrigins; an empty list allows any
// origin (local development).
func NewHandler(hub *Hub, allowedOrigins []string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				return slices.Contains(allowedOrigins, r.Header.Get("Origin"))
			},
		},
		logger: logger,
	}
}

// RegisterRoutes expects rg to authenticate with middleware.QueryTokenAuth.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws/registrations", h.Stream)
}

// Stream godoc
// @Summary      Registration status stream
// @Description  Websocket pushing {registrationId, eventId, status} for the caller's registrations
// @Tags         Registrations
// @Param        token query string true "Access token"
// @Router       /ws/registrations [get]
func (h *Handler) Stream(c *gin.Context) {
	user, _, ok := middleware.Actor(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", user.ID, "err", err)
		return
	}
	h.hub.Serve(conn, user.ID)
}
