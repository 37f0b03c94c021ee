package session

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no inbound frames)")
	ErrAlreadyClosed   = errors.New("already closed")
)

// TimestampedMessage wraps a raw text frame with its receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw frame bytes from the WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket transport client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g. ws://ops.koreainvestment.com:21000)
	StaleTimeout time.Duration // Max time without any inbound frame before the connection is declared stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults. The gateway heartbeats
// every few seconds, so a minute of silence means the connection is dead.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		StaleTimeout: 60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1024,
	}
}

// ManagerConfig configures the Session Manager.
type ManagerConfig struct {
	WSURL string // Realtime gateway URL

	// Outbound pacing: the gateway rate-limits subscription commands.
	ConnectGrace   time.Duration // Wait after the handshake before the first command
	CommandSpacing time.Duration // Minimum spacing between successive commands

	// Recovery delays.
	ReconnectDelay     time.Duration // After a transport error or close
	StaleKeyDelay      time.Duration // After a stale-approval-key rejection (revoke still propagating)
	MinConnectInterval time.Duration // Minimum spacing between connect attempts

	// Approval key acquisition retries during Connecting.
	KeyRetries    int
	KeyRetryDelay time.Duration
}

// DefaultManagerConfig returns sensible defaults matching the gateway's
// published connection guidance.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		ConnectGrace:       2 * time.Second,
		CommandSpacing:     100 * time.Millisecond,
		ReconnectDelay:     30 * time.Second,
		StaleKeyDelay:      2 * time.Second,
		MinConnectInterval: time.Second,
		KeyRetries:         3,
		KeyRetryDelay:      10 * time.Second,
	}
}

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// ManagerStats provides session manager counters.
type ManagerStats struct {
	State           State
	ConnectAttempts int64
	Rotations       int64
	FramesReceived  int64
	QuotesPublished int64
}
