package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Resanso/minerva-ericsson/apps/scadasim/internal/telemetry"
)

const closeWait = time.Second

// WebSocket sends each message as one JSON text frame over a client connection.
type WebSocket struct {
	url          string
	writeTimeout time.Duration
	dialer       *websocket.Dialer
	logger       *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewWebSocket builds an unconnected WebSocket transport.
func NewWebSocket(cfg Config, logger *zap.Logger) *WebSocket {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	return &WebSocket{
		url:          cfg.URL,
		writeTimeout: cfg.WriteTimeout,
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: logger,
	}
}

// Connect dials the listener, replacing any existing connection.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}

	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", w.url, err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	w.conn = conn
	go w.readPump(conn)

	w.logger.Info("connected to listener", zap.String("url", w.url))
	return nil
}

// readPump drains inbound frames so control messages (ping/close) are processed.
func (w *WebSocket) readPump(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				w.logger.Warn("listener connection read error", zap.Error(err))
			}
			return
		}
	}
}

// Send writes msg as a single text frame.
func (w *WebSocket) Send(ctx context.Context, msg telemetry.Message) error {
	payload, err := telemetry.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(w.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := w.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := w.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("write %s: %w", msg.MessageType(), err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Closing twice is a no-op.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	conn := w.conn
	w.conn = nil

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation stopped"),
		time.Now().Add(closeWait))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close websocket: %w", err)
	}
	w.logger.Info("listener connection closed", zap.String("url", w.url))
	return nil
}
