package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proctor/internal/config"
	"proctor/pkg/interfaces"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The proctoring client is served from campus origins that vary
		// by deployment; origin enforcement belongs to the fronting
		// proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// EndpointFactory builds a fresh protocol handler for each accepted
// connection.
type EndpointFactory func() interfaces.EventHandler

// Handler upgrades HTTP requests to WebSocket connections and pumps each
// connection's frames through its own endpoint. One goroutine per
// connection reads frames in arrival order, so the endpoint never sees
// two messages concurrently.
type Handler struct {
	newEndpoint EndpointFactory
	wsConfig    *config.WebSocketConfig
	logger      *zap.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(newEndpoint EndpointFactory, wsConfig *config.WebSocketConfig, logger *zap.Logger) *Handler {
	return &Handler{
		newEndpoint: newEndpoint,
		wsConfig:    wsConfig,
		logger:      logger,
	}
}

// HandleWebSocket accepts one proctoring connection.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	wsConn := NewConnection(conn, h.wsConfig.BufferSize, h.wsConfig.WriteTimeout)
	endpoint := h.newEndpoint()
	endpoint.OnOpen(wsConn)

	go h.handleConnection(wsConn, endpoint)
}

// handleConnection owns the read side of one connection: deadline and
// pong bookkeeping, the transport ping ticker, and the frame loop.
func (h *Handler) handleConnection(conn *Connection, endpoint interfaces.EventHandler) {
	defer func() {
		endpoint.OnClose()
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout)); err != nil {
		h.logger.Warn("failed to set read deadline", zap.Error(err))
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout))
	})

	ticker := time.NewTicker(h.wsConfig.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, time.Now().Add(h.wsConfig.WriteTimeout)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	ctx := context.Background()
	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				endpoint.OnError(err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			// Inbound frames also reset the read deadline; proctoring
			// clients that stream messages without pongs stay alive.
			_ = conn.conn.SetReadDeadline(time.Now().Add(h.wsConfig.ReadTimeout))
			endpoint.OnMessage(ctx, string(data))
		}
	}
}
