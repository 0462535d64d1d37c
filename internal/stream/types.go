package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/connection"
	"github.com/rickgao/okx-stream/internal/model"
	"github.com/rickgao/okx-stream/internal/router"
)

// Default OKX endpoints.
const (
	DefaultPublicURL   = "wss://ws.okx.com:8443/ws/v5/public"
	DefaultBusinessURL = "wss://ws.okx.com:8443/ws/v5/business"
)

// Config configures a Client.
type Config struct {
	PublicURL   string
	BusinessURL string

	// Connection is the template for both managers; Name and URL are set per class.
	Connection connection.ManagerConfig

	ConnectTimeout     time.Duration // Bound on background connects triggered by Subscribe
	SubscribeBatchSize int           // Max args per subscribe frame when resubscribing
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PublicURL:          DefaultPublicURL,
		BusinessURL:        DefaultBusinessURL,
		Connection:         connection.DefaultManagerConfig(),
		ConnectTimeout:     30 * time.Second,
		SubscribeBatchSize: 50,
	}
}

// Errors
var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrNilHandler          = errors.New("nil handler")
)

// ProtocolError is a subscribe or unsubscribe rejection from the exchange.
// The connection stays open.
type ProtocolError struct {
	Class channel.Class
	Code  string
	Msg   string
	Arg   *channel.Arg
}

func (e *ProtocolError) Error() string {
	if e.Arg != nil {
		return fmt.Sprintf("okx %s rejected %s/%s: %s (code %s)", e.Class, e.Arg.Channel, e.Arg.InstID, e.Msg, e.Code)
	}
	return fmt.Sprintf("okx %s error: %s (code %s)", e.Class, e.Msg, e.Code)
}

// DispatchError reports a subscriber callback that panicked. Sibling
// callbacks still receive the message.
type DispatchError struct {
	Key   channel.Key
	Value any
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("subscriber for %s panicked: %v", e.Key, e.Value)
}

// MessageType discriminates what a Message carries.
type MessageType int

const (
	MessageData MessageType = iota + 1
	MessageSubscribed
	MessageUnsubscribed
	MessageNotice
)

// String returns the message type name.
func (t MessageType) String() string {
	switch t {
	case MessageData:
		return "data"
	case MessageSubscribed:
		return "subscribed"
	case MessageUnsubscribed:
		return "unsubscribed"
	case MessageNotice:
		return "notice"
	}
	return "unknown"
}

// Message is what a subscriber callback receives.
type Message struct {
	Type       MessageType
	Channel    string
	Key        channel.Key
	Events     []model.Event // MessageData only
	IsSnapshot bool
	Notice     *router.Notice // MessageNotice only
	ReceivedAt time.Time
}

// Handler receives messages for one subscription. Handlers run on the
// connection's read goroutine and must not block for long.
type Handler func(Message)

// Stats aggregates client and per-connection statistics.
type Stats struct {
	Connections map[channel.Class]ConnStats
	Normalizer  router.Stats
	Dispatched  int64 // callback invocations
	Dropped     int64 // data frames with no subscriber
	Panics      int64
}

// ConnStats describes one connection class.
type ConnStats struct {
	connection.Stats
	Keys        int
	Subscribers int
}

// request is an outbound control frame.
type request struct {
	Op   string        `json:"op"`
	Args []channel.Arg `json:"args"`
}

const (
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
)
