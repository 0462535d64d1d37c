package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/model"
)

// Normalizer classifies raw frames and converts data pushes into canonical events.
// It holds no per-subscription state and is safe for concurrent use.
type Normalizer struct {
	logger *slog.Logger

	mu          sync.RWMutex
	classified  int64
	normalized  int64
	parseErrors int64
	unknown     int64
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{logger: logger}
}

// Stats returns current counters.
func (n *Normalizer) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return Stats{
		FramesClassified: n.classified,
		EventsNormalized: n.normalized,
		ParseErrors:      n.parseErrors,
		UnknownChannels:  n.unknown,
	}
}

// Classify decodes the envelope of a JSON frame and returns its typed variant.
func (n *Normalizer) Classify(raw []byte) (Frame, error) {
	f, err := Classify(raw)
	n.mu.Lock()
	if err != nil {
		n.parseErrors++
	} else {
		n.classified++
	}
	n.mu.Unlock()
	return f, err
}

// Normalize converts a data push into canonical events. isSnapshot reports
// whether the events replace prior state (full book) rather than amend it.
func (n *Normalizer) Normalize(d Data) (events []model.Event, isSnapshot bool, err error) {
	events, isSnapshot, err = Normalize(d)

	n.mu.Lock()
	defer n.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrUnknownChannel) {
			n.unknown++
		} else {
			n.parseErrors++
		}
		return nil, false, err
	}
	n.normalized += int64(len(events))
	return events, isSnapshot, nil
}

// ErrUnknownChannel is returned for data pushes on channels with no normalizer.
var ErrUnknownChannel = errors.New("unknown channel")

// Classify decodes the envelope of a JSON frame and returns its typed variant.
func Classify(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &ParseError{Err: err}
	}

	switch env.Event {
	case "":
		if env.Arg == nil || len(env.Data) == 0 {
			return nil, &ParseError{Err: ErrUnclassified}
		}
		return Data{Arg: *env.Arg, Action: env.Action, Data: env.Data}, nil
	case EventSubscribe, EventUnsubscribe:
		ack := Ack{Event: env.Event, ConnID: env.ConnID}
		if env.Arg != nil {
			ack.Arg = *env.Arg
		}
		return ack, nil
	case EventError:
		return ErrorFrame{Code: env.Code, Msg: env.Msg, Arg: env.Arg, ConnID: env.ConnID}, nil
	default:
		// notice, channel-conn-count and anything the exchange adds later.
		return Notice{Event: env.Event, Code: env.Code, Msg: env.Msg, ConnID: env.ConnID}, nil
	}
}

// Normalize converts a data push into canonical events.
func Normalize(d Data) ([]model.Event, bool, error) {
	ch := d.Arg.Channel
	family, ok := channel.FamilyOf(ch)
	if !ok {
		return nil, false, &ParseError{Channel: ch, Err: ErrUnknownChannel}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(d.Data, &rows); err != nil {
		return nil, false, &ParseError{Channel: ch, Err: fmt.Errorf("data is not an array: %w", err)}
	}

	events := make([]model.Event, 0, len(rows))
	for i, row := range rows {
		var (
			ev  model.Event
			err error
		)
		switch family {
		case model.FamilyCandle:
			ev, err = parseCandle(row, channel.ReportsVolume(ch))
		case model.FamilyTrade:
			ev, err = parseTrade(row)
		case model.FamilyBook:
			ev, err = parseBook(row)
		case model.FamilyTicker:
			ev, err = parseTicker(row, d.Arg.InstID)
		}
		if err != nil {
			return nil, false, &ParseError{Channel: ch, Err: fmt.Errorf("record %d: %w", i, err)}
		}
		events = append(events, ev)
	}

	return events, isSnapshot(family, ch, d.Action), nil
}

// isSnapshot: books5 and bbo-tbt push full state without an action field;
// the full book sends "snapshot" then "update". Other families are point
// updates.
func isSnapshot(family model.Family, ch, action string) bool {
	if family != model.FamilyBook {
		return false
	}
	switch action {
	case ActionSnapshot:
		return true
	case ActionUpdate:
		return false
	}
	return ch == channel.ChannelBooks5 || ch == channel.ChannelBBO
}

// parseCandle parses [ts, o, h, l, c, vol, ...]. Channels without volume
// put a confirm flag in the sixth column, so it is ignored for them.
func parseCandle(raw json.RawMessage, withVolume bool) (model.Candle, error) {
	var cols []numString
	if err := json.Unmarshal(raw, &cols); err != nil {
		return model.Candle{}, err
	}
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = string(c)
	}
	return ParseCandleRow(row, withVolume)
}

// ParseCandleRow converts one positional candle row as returned by both the
// socket and the REST candle endpoints.
func ParseCandleRow(row []string, withVolume bool) (model.Candle, error) {
	if len(row) < 5 {
		return model.Candle{}, fmt.Errorf("candle row has %d columns, want at least 5", len(row))
	}

	ts, err := millisToSeconds(row[0])
	if err != nil {
		return model.Candle{}, err
	}

	var c model.Candle
	c.Time = ts
	fields := []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close}
	for i, dst := range fields {
		if *dst, err = parseDecimal(row[i+1]); err != nil {
			return model.Candle{}, err
		}
	}

	c.Volume = decimal.Zero
	if withVolume && len(row) > 5 {
		if c.Volume, err = parseDecimal(row[5]); err != nil {
			return model.Candle{}, err
		}
	}
	return c, nil
}

// parseTrade accepts {tradeId, px, sz, side, ts} or [tradeId, px, sz, side, ts].
func parseTrade(raw json.RawMessage) (model.Trade, error) {
	var w tradeWire
	switch firstByte(raw) {
	case '{':
		if err := json.Unmarshal(raw, &w); err != nil {
			return model.Trade{}, err
		}
	case '[':
		var cols []numString
		if err := json.Unmarshal(raw, &cols); err != nil {
			return model.Trade{}, err
		}
		if len(cols) < 5 {
			return model.Trade{}, fmt.Errorf("trade row has %d columns, want 5", len(cols))
		}
		w = tradeWire{TradeID: cols[0], Px: cols[1], Sz: cols[2], Side: string(cols[3]), Ts: cols[4]}
	default:
		return model.Trade{}, errors.New("trade record is neither object nor array")
	}

	side, err := ParseSide(w.Side)
	if err != nil {
		return model.Trade{}, err
	}
	px, err := parseDecimal(string(w.Px))
	if err != nil {
		return model.Trade{}, err
	}
	sz, err := parseDecimal(string(w.Sz))
	if err != nil {
		return model.Trade{}, err
	}
	ts, err := millisToSeconds(string(w.Ts))
	if err != nil {
		return model.Trade{}, err
	}

	return model.Trade{
		ID:    string(w.TradeID),
		Price: px,
		Size:  sz,
		Side:  side,
		Time:  ts,
	}, nil
}

// ParseSide maps any buyer/seller spelling to a Side.
func ParseSide(s string) (model.Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b", "bid":
		return model.SideBuy, nil
	case "sell", "s", "ask":
		return model.SideSell, nil
	}
	return "", fmt.Errorf("unknown trade side %q", s)
}

// parseBook accepts {bids, asks, ts} or [bids, asks, ts].
func parseBook(raw json.RawMessage) (model.BookSnapshot, error) {
	var w bookWire
	switch firstByte(raw) {
	case '{':
		if err := json.Unmarshal(raw, &w); err != nil {
			return model.BookSnapshot{}, err
		}
	case '[':
		var cols []json.RawMessage
		if err := json.Unmarshal(raw, &cols); err != nil {
			return model.BookSnapshot{}, err
		}
		if len(cols) < 3 {
			return model.BookSnapshot{}, fmt.Errorf("book row has %d columns, want 3", len(cols))
		}
		if err := json.Unmarshal(cols[0], &w.Bids); err != nil {
			return model.BookSnapshot{}, fmt.Errorf("bids: %w", err)
		}
		if err := json.Unmarshal(cols[1], &w.Asks); err != nil {
			return model.BookSnapshot{}, fmt.Errorf("asks: %w", err)
		}
		if err := json.Unmarshal(cols[2], &w.Ts); err != nil {
			return model.BookSnapshot{}, fmt.Errorf("ts: %w", err)
		}
	default:
		return model.BookSnapshot{}, errors.New("book record is neither object nor array")
	}

	bids, err := parseLevels(w.Bids)
	if err != nil {
		return model.BookSnapshot{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseLevels(w.Asks)
	if err != nil {
		return model.BookSnapshot{}, fmt.Errorf("asks: %w", err)
	}
	ts, err := millisToSeconds(string(w.Ts))
	if err != nil {
		return model.BookSnapshot{}, err
	}

	return model.BookSnapshot{Bids: bids, Asks: asks, Time: ts}, nil
}

// parseLevels keeps price and size and drops order-count columns.
func parseLevels(levels [][]numString) ([]model.PriceLevel, error) {
	result := make([]model.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if len(level) < 2 {
			return nil, fmt.Errorf("level has %d columns, want at least 2", len(level))
		}
		px, err := parseDecimal(string(level[0]))
		if err != nil {
			return nil, err
		}
		sz, err := parseDecimal(string(level[1]))
		if err != nil {
			return nil, err
		}
		result = append(result, model.PriceLevel{Price: px, Size: sz})
	}
	return result, nil
}

// parseTicker handles tickers and index-tickers. Index tickers carry idxPx
// in place of last and no book prices.
func parseTicker(raw json.RawMessage, argInstID string) (model.Ticker, error) {
	var w tickerWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Ticker{}, err
	}

	last := w.Last
	if last == "" {
		last = w.IdxPx
	}

	var (
		t   model.Ticker
		err error
	)
	t.InstrumentID = w.InstID
	if t.InstrumentID == "" {
		t.InstrumentID = argInstID
	}

	fields := []struct {
		src numString
		dst *decimal.Decimal
	}{
		{last, &t.Last},
		{w.BidPx, &t.Bid},
		{w.AskPx, &t.Ask},
		{w.Open24h, &t.Open24h},
		{w.High24h, &t.High24h},
		{w.Low24h, &t.Low24h},
		{w.Vol24h, &t.Volume24h},
	}
	for _, f := range fields {
		if *f.dst, err = parseDecimal(string(f.src)); err != nil {
			return model.Ticker{}, err
		}
	}

	if t.Time, err = millisToSeconds(string(w.Ts)); err != nil {
		return model.Ticker{}, err
	}
	return t, nil
}

// parseDecimal treats an empty field as zero; OKX sends "" for absent prices.
func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	return d, nil
}

// millisToSeconds floors a millisecond timestamp to unix seconds.
func millisToSeconds(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("missing timestamp")
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	sec := ms / 1000
	if ms < 0 && ms%1000 != 0 {
		sec--
	}
	return sec, nil
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}
