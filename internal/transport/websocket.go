package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"batchrpc/internal/jsonrpc"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 10 * 1024 * 1024 // 10MB
	sendBufferSize = 256
)

// WebSocket is a transport over one WebSocket connection.
// Every response is written as its own text frame.
type WebSocket struct {
	conn    *websocket.Conn
	handler MessageHandler
	logger  zerolog.Logger

	sendChan  chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
}

// NewWebSocket creates a new WebSocket transport
func NewWebSocket(conn *websocket.Conn, logger zerolog.Logger) *WebSocket {
	return &WebSocket{
		conn:      conn,
		logger:    logger,
		sendChan:  make(chan []byte, sendBufferSize),
		closeChan: make(chan struct{}),
	}
}

// OnMessage implements Transport
func (w *WebSocket) OnMessage(h MessageHandler) {
	w.handler = h
}

// Run starts the write loop and reads until the connection closes
func (w *WebSocket) Run(ctx context.Context) error {
	w.conn.SetReadLimit(maxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.writePump(ctx)

	return w.readPump(ctx)
}

// readPump reads messages from the WebSocket connection
func (w *WebSocket) readPump(ctx context.Context) error {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.closeChan:
			return nil
		default:
		}

		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				w.logger.Debug().Err(err).Msg("read error")
				return err
			}
			return nil
		}

		if w.handler != nil {
			w.handler(ctx, data)
		}
	}
}

// writePump writes queued messages and keeps the connection alive
func (w *WebSocket) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.closeChan:
			return
		case data := <-w.sendChan:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				w.logger.Debug().Err(err).Msg("write error")
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send implements Transport
func (w *WebSocket) Send(_ context.Context, resp *jsonrpc.Response) error {
	data, err := resp.Bytes()
	if err != nil {
		return err
	}

	select {
	case <-w.closeChan:
		return ErrClosed
	default:
	}

	select {
	case w.sendChan <- data:
		return nil
	case <-w.closeChan:
		return ErrClosed
	default:
		// Channel full, drop message
		w.logger.Warn().Msg("send channel full, dropping message")
		return nil
	}
}

// Close closes the connection
func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.closeChan)
		err = w.conn.Close()
		w.logger.Debug().Msg("client closed")
	})
	return err
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// WebSocketHandler upgrades HTTP connections and serves each one through the adapter
type WebSocketHandler struct {
	adapter *Adapter
	logger  zerolog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(adapter *Adapter, logger zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		adapter: adapter,
		logger:  logger.With().Str("component", "ws").Logger(),
	}
}

// ServeHTTP handles WebSocket upgrade requests
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	h.logger.Info().
		Str("remoteAddr", r.RemoteAddr).
		Msg("new WebSocket connection")

	t := NewWebSocket(conn, h.logger.With().Str("remoteAddr", r.RemoteAddr).Logger())
	h.adapter.Attach(t)
	if err := t.Run(r.Context()); err != nil {
		h.logger.Debug().Err(err).Msg("connection ended")
	}
}
