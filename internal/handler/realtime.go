package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dedicated/internal/middleware"
	"dedicated/internal/realtime"
)

// RealtimeHandler upgrades authenticated callers onto the location channel.
type RealtimeHandler struct {
	hub *realtime.Hub
	log logrus.FieldLogger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, log logrus.FieldLogger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, log: log}
}

// Connect handles GET /v1/ws
func (h *RealtimeHandler) Connect(c *gin.Context) {
	conn, err := realtime.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.hub.Serve(conn, middleware.CallerID(c), middleware.CallerRole(c))
}
