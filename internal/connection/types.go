package connection

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrBadEndpoint  = errors.New("bad channel endpoint")
)

// Reserved frames and close codes.
const (
	PingFrame = "ping"
	PongFrame = "pong"

	CloseNormalClosure   = 1000
	CloseAbnormalClosure = 1006
)

// State is the connection state of a Subscription.
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateClosed     State = "closed"
)

// Event types carried in the "type" field of inbound frames.
const (
	EventJobComplete = "job_complete"
	EventJobError    = "job_error"
)

// JobStatusEvent is the wire form of an inbound status frame.
type JobStatusEvent struct {
	Type  string `json:"type"`            // "job_complete" or "job_error"
	Error string `json:"error,omitempty"` // Only for job_error
}

// Status is the outcome of a background processing job.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// JobStatus is delivered to the consumer callback.
type JobStatus struct {
	WorkspaceID string
	Status      Status
	Error       string    // Empty unless Status == StatusFailed
	ReceivedAt  time.Time // Local timestamp when the frame was read
}

// StatusFunc consumes job status updates.
type StatusFunc func(JobStatus)

// TransportHandlers receives transport events. Both callbacks are invoked
// from the transport's single reader goroutine, in delivery order.
type TransportHandlers struct {
	OnMessage func(data []byte, receivedAt time.Time)
	OnClose   func(code int, err error)
}

// Transport is one live bidirectional channel.
type Transport interface {
	// Send writes a text frame.
	Send(data []byte) error

	// Close sends a close frame with the given code and releases the
	// connection. OnClose is not invoked for a locally closed transport.
	Close(code int, reason string) error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, url string, h TransportHandlers) (Transport, error)
}

// DialerConfig configures the WebSocket dialer.
type DialerConfig struct {
	Token            string        // Bearer token for the Authorization header (empty = none)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	WriteTimeout     time.Duration // Write deadline for sends
}

// DefaultDialerConfig returns sensible defaults.
func DefaultDialerConfig() DialerConfig {
	return DialerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Config configures a Subscription.
type Config struct {
	BaseURL           string        // Backend base URL; scheme picks ws or wss
	HeartbeatInterval time.Duration // Interval between "ping" frames
	ReconnectDelay    time.Duration // Fixed delay before a scheduled reconnect
	DialTimeout       time.Duration // Bound on a single dial attempt
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 30 * time.Second,
		ReconnectDelay:    3 * time.Second,
		DialTimeout:       15 * time.Second,
	}
}

// Snapshot is a point-in-time view of a Subscription.
type Snapshot struct {
	WorkspaceID     string    `json:"workspace_id"`
	State           State     `json:"state"`
	RetryCount      int       `json:"retry_count"`
	LastError       string    `json:"last_error,omitempty"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}
