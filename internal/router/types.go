package router

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/okx-stream/internal/channel"
)

// FrameKind discriminates inbound frame variants.
type FrameKind int

const (
	KindAck FrameKind = iota + 1
	KindError
	KindNotice
	KindData
)

// String returns the frame kind name used in logs.
func (k FrameKind) String() string {
	switch k {
	case KindAck:
		return "ack"
	case KindError:
		return "error"
	case KindNotice:
		return "notice"
	case KindData:
		return "data"
	}
	return "unknown"
}

// Frame is a classified inbound message. Implemented by Ack, ErrorFrame,
// Notice and Data.
type Frame interface {
	Kind() FrameKind
	frame()
}

// Ack confirms a subscribe or unsubscribe request.
type Ack struct {
	Event  string // "subscribe" or "unsubscribe"
	Arg    channel.Arg
	ConnID string
}

// ErrorFrame is a wire-level rejection of a request.
type ErrorFrame struct {
	Code   string
	Msg    string
	Arg    *channel.Arg // set when the exchange echoes the rejected arg
	ConnID string
}

// Notice is an out-of-band informational event, such as a pending service upgrade.
type Notice struct {
	Event  string
	Code   string
	Msg    string
	ConnID string
}

// Data is a market-data push whose payload is not yet normalized.
type Data struct {
	Arg    channel.Arg
	Action string // "snapshot", "update" or empty
	Data   json.RawMessage
}

func (Ack) Kind() FrameKind        { return KindAck }
func (ErrorFrame) Kind() FrameKind { return KindError }
func (Notice) Kind() FrameKind     { return KindNotice }
func (Data) Kind() FrameKind       { return KindData }

func (Ack) frame()        {}
func (ErrorFrame) frame() {}
func (Notice) frame()     {}
func (Data) frame()       {}

// Event names carried in control frames.
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventError       = "error"
	EventNotice      = "notice"
)

// Book actions.
const (
	ActionSnapshot = "snapshot"
	ActionUpdate   = "update"
)

// ErrUnclassified is returned for JSON frames that carry neither an event nor
// a channel push.
var ErrUnclassified = errors.New("frame has neither event nor data")

// ParseError reports a frame that could not be classified or normalized.
type ParseError struct {
	Channel string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("parse frame: %v", e.Err)
	}
	return fmt.Sprintf("parse %s frame: %v", e.Channel, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Stats contains normalizer counters.
type Stats struct {
	FramesClassified int64
	EventsNormalized int64
	ParseErrors      int64
	UnknownChannels  int64
}

// Wire types for JSON parsing

// envelope is the union of every inbound JSON frame shape.
type envelope struct {
	Event  string          `json:"event"`
	Arg    *channel.Arg    `json:"arg"`
	Action string          `json:"action"`
	Code   string          `json:"code"`
	Msg    string          `json:"msg"`
	ConnID string          `json:"connId"`
	Data   json.RawMessage `json:"data"`
}

// tradeWire is the object form of a trade record.
type tradeWire struct {
	InstID  string    `json:"instId"`
	TradeID numString `json:"tradeId"`
	Px      numString `json:"px"`
	Sz      numString `json:"sz"`
	Side    string    `json:"side"`
	Ts      numString `json:"ts"`
}

// bookWire is the object form of a book record. Levels are
// [price, size, deprecated, orderCount].
type bookWire struct {
	Bids [][]numString `json:"bids"`
	Asks [][]numString `json:"asks"`
	Ts   numString     `json:"ts"`
}

// tickerWire covers both tickers and index-tickers records.
type tickerWire struct {
	InstID  string    `json:"instId"`
	Last    numString `json:"last"`
	IdxPx   numString `json:"idxPx"`
	BidPx   numString `json:"bidPx"`
	AskPx   numString `json:"askPx"`
	Open24h numString `json:"open24h"`
	High24h numString `json:"high24h"`
	Low24h  numString `json:"low24h"`
	Vol24h  numString `json:"vol24h"`
	Ts      numString `json:"ts"`
}

// numString holds a JSON value sent either quoted or as a bare number.
type numString string

func (n *numString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = numString(s)
		return nil
	}
	*n = numString(b)
	return nil
}
