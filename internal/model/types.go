package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// Family is the logical kind of a market-data stream.
type Family int

const (
	FamilyCandle Family = iota + 1
	FamilyTrade
	FamilyBook
	FamilyTicker
)

// String returns the lowercase family name.
func (f Family) String() string {
	switch f {
	case FamilyCandle:
		return "candle"
	case FamilyTrade:
		return "trade"
	case FamilyBook:
		return "book"
	case FamilyTicker:
		return "ticker"
	}
	return "unknown"
}

// ParseFamily maps a config/user spelling to a Family.
func ParseFamily(s string) (Family, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "candle", "candles", "kline":
		return FamilyCandle, true
	case "trade", "trades":
		return FamilyTrade, true
	case "book", "books", "orderbook":
		return FamilyBook, true
	case "ticker", "tickers":
		return FamilyTicker, true
	}
	return 0, false
}

// Subscription is a caller's declared interest in a data stream, independent
// of wire encoding. Values are immutable; copy to modify.
type Subscription struct {
	Family         Family
	InstrumentID   string // e.g. "BTC-USDT"; empty for ticker wildcards
	Interval       string // candles only, e.g. "1m", "1H"
	Depth          int    // books only; unsupported depths fall back to the full book
	InstrumentType string // SPOT, SWAP, FUTURES, OPTION, or INDEX/MARK for derived candles
}

// -----------------------------------------------------------------------------
// Canonical events
// -----------------------------------------------------------------------------

// EventKind discriminates Event variants.
type EventKind int

const (
	KindCandle EventKind = iota + 1
	KindTrade
	KindBook
	KindTicker
)

// Event is a normalized, vendor-independent market-data update.
// Implemented only by Candle, Trade, BookSnapshot and Ticker.
type Event interface {
	Kind() EventKind
	event()
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   int64           `json:"time"` // bar open, unix seconds
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"` // zero for channels that do not report volume
}

// Side is the aggressor side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Trade is a single public execution.
type Trade struct {
	ID    string          `json:"id"`
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
	Side  Side            `json:"side"`
	Time  int64           `json:"time"` // unix seconds
}

// PriceLevel is one aggregated order book level.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// BookSnapshot is a set of book levels; full book or incremental update
// depending on the message's snapshot flag.
type BookSnapshot struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
	Time int64        `json:"time"` // unix seconds
}

// Ticker is a top-of-book and 24h statistics update.
type Ticker struct {
	InstrumentID string          `json:"instrumentId"`
	Last         decimal.Decimal `json:"last"`
	Bid          decimal.Decimal `json:"bid"`
	Ask          decimal.Decimal `json:"ask"`
	Open24h      decimal.Decimal `json:"open24h"`
	High24h      decimal.Decimal `json:"high24h"`
	Low24h       decimal.Decimal `json:"low24h"`
	Volume24h    decimal.Decimal `json:"volume24h"`
	Time         int64           `json:"time"` // unix seconds
}

func (Candle) Kind() EventKind       { return KindCandle }
func (Trade) Kind() EventKind        { return KindTrade }
func (BookSnapshot) Kind() EventKind { return KindBook }
func (Ticker) Kind() EventKind       { return KindTicker }

func (Candle) event()       {}
func (Trade) event()        {}
func (BookSnapshot) event() {}
func (Ticker) event()       {}
