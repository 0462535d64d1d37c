package connection

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("not connected")
	ErrStaleConnection    = errors.New("connection stale (no inbound frames)")
	ErrClosed             = errors.New("connection closed")
	ErrAlreadyClosed      = errors.New("already closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// TransportError is a socket-level failure. It triggers the reconnection
// policy rather than surfacing to subscribers as a hard failure.
type TransportError struct {
	Op  string // "dial", "read", "send" or "reconnect"
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("websocket %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// State is the lifecycle state of a Manager.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

// Heartbeat payloads. OKX exchanges these as bare text frames outside the
// JSON envelope.
var (
	pingFrame = []byte("ping")
	pongFrame = []byte("pong")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // e.g. wss://ws.okx.com:8443/ws/v5/public
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Initial inbound queue capacity; grows on demand
	UserAgent        string
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1024,
	}
}

// ManagerConfig configures a Connection Manager.
type ManagerConfig struct {
	Name                 string        // Connection class, used in logs
	URL                  string        // WebSocket endpoint
	MaxReconnectAttempts int           // Consecutive failed attempts before giving up
	ReconnectBaseWait    time.Duration // First backoff interval
	ReconnectMaxWait     time.Duration // Backoff ceiling
	PingInterval         time.Duration // Idle time before sending "ping"
	StaleTimeout         time.Duration // Grace after PingInterval before flagging stale
	CheckInterval        time.Duration // Liveness check period
	ReconnectOnStale     bool          // Force a reconnect when the connection goes stale
	Client               ClientConfig
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		MaxReconnectAttempts: 5,
		ReconnectBaseWait:    1 * time.Second,
		ReconnectMaxWait:     30 * time.Second,
		PingInterval:         25 * time.Second,
		StaleTimeout:         10 * time.Second,
		CheckInterval:        5 * time.Second,
		Client:               DefaultClientConfig(),
	}
}

// Hooks are the callbacks a Manager reports to. They are invoked without any
// Manager lock held and may call back into the Manager. OnMessage is called
// from a single goroutine per session, in receive order.
type Hooks struct {
	OnOpen    func()
	OnClose   func(err error)
	OnMessage func(data []byte, receivedAt time.Time)
	OnError   func(err error)
}

// Stats provides statistics about a Manager.
type Stats struct {
	State            State
	Attempts         int
	Reconnects       int64
	MessagesReceived int64
	MessagesSent     int64
	LastMessageAt    time.Time
	Stale            bool
}
