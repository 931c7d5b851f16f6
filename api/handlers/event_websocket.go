package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/yourusername/hotsync-go/internal/app"
)

// EventWebSocketHandler streams task and update events to WebSocket clients
type EventWebSocketHandler struct {
	hub    *app.EventBus
	logger *zap.Logger
}

// NewEventWebSocketHandler creates a handler streaming events of hub
func NewEventWebSocketHandler(hub *app.EventBus, logger *zap.Logger) *EventWebSocketHandler {
	return &EventWebSocketHandler{hub: hub, logger: logger}
}

// HandleWebSocket handles GET /api/v1/events?package=...&task=...
func (h *EventWebSocketHandler) HandleWebSocket(c *gin.Context) {
	pkg := c.Query("package")
	taskID := c.Query("task")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := contextWithClose(c, conn)
	defer cancel()

	// events are dropped while the client is behind
	events := make(chan app.Event, 256)
	unsubscribe := h.hub.Subscribe(func(e app.Event) {
		if pkg != "" && e.Package != pkg {
			return
		}
		if taskID != "" && e.TaskID != taskID {
			return
		}
		select {
		case events <- e:
		default:
		}
	})
	defer unsubscribe()

	h.logger.Info("Event stream client connected",
		zap.String("package", pkg),
		zap.String("task_id", taskID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-events:
			if err := writeJSON(conn, e); err != nil {
				h.logger.Debug("Event stream client gone", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// contextWithClose returns a context cancelled when the request ends or the client closes the socket
func contextWithClose(c *gin.Context, conn *websocket.Conn) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return ctx, cancel
}
