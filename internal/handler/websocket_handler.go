// internal/handler/websocket_handler.go
package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hardware-service/internal/event"
	"hardware-service/internal/model"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WebSocketHandler streams hardware events to connected clients.
type WebSocketHandler struct {
	bus      *event.Bus
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler creates a websocket handler over the event bus.
func NewWebSocketHandler(bus *event.Bus, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// CORS policy is enforced at the HTTP layer
				return true
			},
		},
		logger: logger.With(zap.String("handler", "websocket")),
	}
}

// HandleEvents upgrades the connection and streams bus events until the
// client goes away. The optional kinds query narrows the subscription,
// e.g. ?kinds=SCAN_COMPLETE,PRINT_FAILED.
func (h *WebSocketHandler) HandleEvents(c *gin.Context) {
	var kinds []model.EventKind
	if raw := c.Query("kinds"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				kinds = append(kinds, model.EventKind(k))
			}
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	events, subID := h.bus.Subscribe(kinds...)
	h.logger.Info("Event stream client connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("kind_filters", len(kinds)),
	)

	done := make(chan struct{})
	go h.readLoop(conn, done)
	h.writeLoop(conn, events, done)

	h.bus.Unsubscribe(subID)
	conn.Close()
	h.logger.Info("Event stream client disconnected",
		zap.String("remote", conn.RemoteAddr().String()),
	)
}

// readLoop drains client frames so pongs are processed, and signals close.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writeLoop pushes events and pings until the subscription or client closes.
func (h *WebSocketHandler) writeLoop(conn *websocket.Conn, events <-chan model.HardwareEvent, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
