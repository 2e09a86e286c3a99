package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rtc-coordinator/internal/middleware"
	"rtc-coordinator/internal/service/call"
	"rtc-coordinator/pkg/constants"
	"rtc-coordinator/pkg/logger"
	"rtc-coordinator/pkg/metrics"
	"rtc-coordinator/pkg/response"
)

var (
	errChannelClosed = errors.New("signaling channel closed")
	errSendQueueFull = errors.New("signaling send queue full")
)

// SignalingConfig holds WebSocket transport settings
type SignalingConfig struct {
	MaxConnections int
	SendBufferSize int
	AllowedOrigins []string
}

// SignalingServer accepts one WebSocket per user and feeds its frames to
// the call service. Each socket is registered as the user's channel.
type SignalingServer struct {
	service  *call.Service
	registry *call.Registry
	upgrader websocket.Upgrader

	// Concurrency limit: maxConnections is the maximum number of concurrent WebSocket connections
	maxConnections int
	semaphore      chan struct{}
	sendBufferSize int
}

// NewSignalingServer creates a new signaling server
func NewSignalingServer(service *call.Service, registry *call.Registry, cfg SignalingConfig) *SignalingServer {
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = constants.DefaultMaxSignalingConnections
	}
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = constants.DefaultSendBufferSize
	}

	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	allowAny := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			allowAny = true
		}
		allowed[origin] = true
	}

	return &SignalingServer{
		service:  service,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					// Reject empty origins - require explicit origin
					return false
				}
				return allowAny || allowed[origin]
			},
		},
		maxConnections: maxConns,
		semaphore:      make(chan struct{}, maxConns),
		sendBufferSize: bufSize,
	}
}

// ServeWS upgrades the request and serves the socket until it closes.
// The caller identity must already be set by the gateway identity middleware.
func (s *SignalingServer) ServeWS(c *gin.Context) {
	// Acquire semaphore to limit concurrent connections
	select {
	case s.semaphore <- struct{}{}:
		defer func() { <-s.semaphore }()
	default:
		metrics.SignalingConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", s.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		metrics.SignalingConnectionsRejectedTotal.WithLabelValues("upgrade").Inc()
		logger.Warn("WebSocket upgrade failed", logger.UserID(userID), zap.Error(err))
		return
	}

	// Keep request-scoped values such as the request ID, but not its cancellation
	ctx := context.WithoutCancel(c.Request.Context())

	ch := newWSChannel(conn, s.sendBufferSize)
	if displaced := s.registry.Register(ctx, userID, ch); displaced != nil {
		if old, ok := displaced.(*wsChannel); ok {
			old.Close()
		}
	}
	logger.FromContext(ctx).Info("Signaling connection opened", logger.UserID(userID))

	go ch.writePump()
	s.readPump(ctx, userID, ch)
}

// readPump reads frames until the socket fails, then runs disconnect handling
func (s *SignalingServer) readPump(ctx context.Context, userID int64, ch *wsChannel) {
	defer func() {
		ch.Close()
		ch.conn.Close()
		// A displaced socket must not tear down its replacement's rooms
		if s.registry.UnregisterIf(ctx, userID, ch) {
			s.service.HandleDisconnect(ctx, userID)
		}
		logger.FromContext(ctx).Info("Signaling connection closed", logger.UserID(userID))
	}()

	ch.conn.SetReadLimit(constants.MaxSignalingMessageSize)
	ch.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	ch.conn.SetPongHandler(func(string) error {
		s.registry.Touch(ctx, userID)
		return ch.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
	})

	for {
		_, message, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed unexpectedly",
					logger.UserID(userID),
					zap.Error(err))
			}
			return
		}

		// Any inbound frame proves liveness
		ch.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPongWait))
		s.service.HandleRawMessage(ctx, userID, message)
	}
}

// wsChannel adapts a WebSocket to call.Channel
type wsChannel struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu     sync.RWMutex
	closed bool
}

func newWSChannel(conn *websocket.Conn, bufferSize int) *wsChannel {
	return &wsChannel{
		conn: conn,
		send: make(chan []byte, bufferSize),
		done: make(chan struct{}),
	}
}

// Send queues a frame without blocking; a full queue drops the frame
func (w *wsChannel) Send(data []byte) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return errChannelClosed
	}
	select {
	case w.send <- data:
		return nil
	default:
		return errSendQueueFull
	}
}

// IsOpen reports whether the socket is still usable
func (w *wsChannel) IsOpen() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return !w.closed
}

// Close stops the write pump; safe to call more than once
func (w *wsChannel) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
}

// writePump writes queued frames and keepalive pings
func (w *wsChannel) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		w.Close()
		w.conn.Close()
	}()

	for {
		select {
		case message := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-w.done:
			w.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			w.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
