package handlers

import (
	"net/http"

	"bridge-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocketHandler upgrades /ws and hands the connection to the push service
type WebSocketHandler struct {
	pushService *services.ViewPushService
	upgrader    websocket.Upgrader
	logger      *logrus.Entry
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(pushService *services.ViewPushService, logger *logrus.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		pushService: pushService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.WithField("component", "websocket"),
	}
}

// HandleWebSocket GET /ws?chainId=97,5611
// Without chainId the client receives every chain until it subscribes.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	chains, err := parseChainList(c.Query("chainId"))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, "invalid_chain_id", "chainId must be a comma separated list of chain ids", c.Query("chainId"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("❌ WebSocket upgrade failed")
		return
	}

	h.pushService.Serve(services.NewPushConnection(conn, chains...))
}
