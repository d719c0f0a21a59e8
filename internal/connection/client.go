package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSDialer dials WebSocket transports.
type WSDialer struct {
	cfg    DialerConfig
	logger *slog.Logger
}

// NewWSDialer creates a new WebSocket dialer.
func NewWSDialer(cfg DialerConfig, logger *slog.Logger) *WSDialer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSDialer{cfg: cfg, logger: logger}
}

// Dial performs the opening handshake and starts the read loop.
func (d *WSDialer) Dial(ctx context.Context, url string, h TransportHandlers) (Transport, error) {
	header := http.Header{}
	if d.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+d.cfg.Token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: d.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	t := &wsTransport{
		cfg:      d.cfg,
		logger:   d.logger,
		conn:     conn,
		handlers: h,
		done:     make(chan struct{}),
	}

	go t.readLoop()

	d.logger.Debug("websocket connected", "url", url)

	return t, nil
}

// wsTransport implements Transport over a gorilla connection.
type wsTransport struct {
	cfg      DialerConfig
	logger   *slog.Logger
	conn     *websocket.Conn
	handlers TransportHandlers

	// Write serialization
	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Send writes a text frame.
func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrNotConnected
	}
	t.mu.Unlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.cfg.WriteTimeout > 0 {
		t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (t *wsTransport) Close(code int, reason string) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	// Signal the read loop to stop reporting
	close(t.done)

	t.writeMu.Lock()
	t.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)
	t.writeMu.Unlock()

	return t.conn.Close()
}

// readLoop delivers text frames until the connection fails or is closed.
func (t *wsTransport) readLoop() {
	for {
		msgType, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-t.done:
				return
			default:
			}

			t.mu.Lock()
			t.closed = true
			t.mu.Unlock()
			t.conn.Close()

			if t.handlers.OnClose != nil {
				t.handlers.OnClose(closeCode(err), err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		if t.handlers.OnMessage != nil {
			t.handlers.OnMessage(data, receivedAt)
		}
	}
}

// closeCode extracts the peer's close code, defaulting to abnormal closure.
func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CloseAbnormalClosure
}
