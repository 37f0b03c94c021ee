package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a single WebSocket connection to the realtime gateway.
type Transport interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close sends a close frame and tears down the connection. The gateway
	// counts sessions per approval key, so an abrupt drop leaves a ghost
	// session holding the slot until it times out server-side.
	Close() error

	// Send writes a raw text frame to the connection.
	Send(data []byte) error

	// Messages returns a channel of ALL raw frames (data, control and
	// heartbeats). Each message carries a local receive timestamp.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel of transport errors.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// Dialer creates a Transport. The production dialer returns a gorilla
// websocket client; tests substitute a fake.
type Dialer func(cfg ClientConfig, logger *slog.Logger) Transport

// transport implements the Transport interface.
type transport struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu          sync.RWMutex
	connected   bool
	lastFrameAt time.Time
	closed      bool
}

// NewTransport creates a new WebSocket transport.
func NewTransport(cfg ClientConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &transport{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (t *transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrAlreadyClosed
	}
	t.mu.Unlock()

	// The gateway authenticates via the approval key inside subscription
	// commands, not via handshake headers.
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.lastFrameAt = time.Now()
	t.mu.Unlock()

	// Respond to protocol-level pings if the gateway ever sends them. Its
	// primary keepalive is the in-band PINGPONG text frame, which arrives
	// through the normal read loop.
	conn.SetPingHandler(func(data string) error {
		t.mu.Lock()
		t.lastFrameAt = time.Now()
		t.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})

	go t.readLoop()
	go t.staleLoop()

	t.logger.Debug("websocket connected", "url", t.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (t *transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	// Signal goroutines to stop
	close(t.done)

	if t.conn != nil {
		// Send close message so the gateway releases the session slot
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return t.conn.Close()
	}

	return nil
}

// Send writes a raw text frame to the connection.
func (t *transport) Send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the messages channel.
func (t *transport) Messages() <-chan TimestampedMessage {
	return t.messages
}

// Errors returns the errors channel.
func (t *transport) Errors() <-chan error {
	return t.errors
}

// IsConnected returns the current connection state.
func (t *transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// readLoop reads frames from the WebSocket and sends them to the messages channel.
func (t *transport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-t.done:
				return
			default:
				select {
				case t.errors <- err:
				default:
				}
				return
			}
		}

		t.mu.Lock()
		t.lastFrameAt = receivedAt
		t.mu.Unlock()

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case t.messages <- msg:
		case <-t.done:
			return
		default:
			t.logger.Warn("message buffer full, dropping frame")
		}
	}
}

// staleLoop watches for total inbound silence. The gateway heartbeats
// every few seconds while a session is healthy, so a long quiet stretch
// means the connection is dead even if TCP has not noticed.
func (t *transport) staleLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.mu.RLock()
			lastFrame := t.lastFrameAt
			t.mu.RUnlock()

			if time.Since(lastFrame) > t.cfg.StaleTimeout {
				t.logger.Warn("no frames received, connection stale",
					"last_frame", lastFrame,
					"timeout", t.cfg.StaleTimeout,
				)
				select {
				case t.errors <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
