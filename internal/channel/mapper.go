package channel

import (
	"strings"

	"github.com/rickgao/okx-stream/internal/model"
)

// Class identifies which physical connection a channel is routed over.
type Class string

const (
	ClassPublic   Class = "public"
	ClassBusiness Class = "business"
)

// Wire channel names and prefixes.
const (
	ChannelTrades       = "trades"
	ChannelBooks        = "books"
	ChannelBooks5       = "books5"
	ChannelBBO          = "bbo-tbt"
	ChannelTickers      = "tickers"
	ChannelIndexTickers = "index-tickers"

	prefixCandle      = "candle"
	prefixIndexCandle = "index-candle"
	prefixMarkCandle  = "mark-price-candle"
)

// Instrument types with special channel routing.
const (
	InstTypeSpot  = "SPOT"
	InstTypeIndex = "INDEX"
	InstTypeMark  = "MARK"
)

// DefaultInterval is used when a candle subscription omits its interval.
const DefaultInterval = "1m"

// Arg is the channel argument object used in subscribe/unsubscribe requests
// and echoed back in acknowledgements and data pushes.
type Arg struct {
	Channel    string `json:"channel"`
	InstID     string `json:"instId,omitempty"`
	InstType   string `json:"instType,omitempty"`
	InstFamily string `json:"instFamily,omitempty"`
}

// WireChannel returns the OKX channel name for a subscription.
func WireChannel(sub model.Subscription) string {
	switch sub.Family {
	case model.FamilyCandle:
		bar := NormalizeInterval(sub.Interval)
		switch strings.ToUpper(sub.InstrumentType) {
		case InstTypeIndex:
			return prefixIndexCandle + bar
		case InstTypeMark:
			return prefixMarkCandle + bar
		}
		return prefixCandle + bar
	case model.FamilyTrade:
		return ChannelTrades
	case model.FamilyBook:
		return bookChannel(sub.Depth)
	case model.FamilyTicker:
		if strings.ToUpper(sub.InstrumentType) == InstTypeIndex {
			return ChannelIndexTickers
		}
		return ChannelTickers
	}
	return ChannelTickers
}

// bookChannel picks the depth variant. Only 1 and 5 levels have dedicated
// channels without login; any other depth gets the full 400-level book.
func bookChannel(depth int) string {
	switch depth {
	case 1:
		return ChannelBBO
	case 5:
		return ChannelBooks5
	}
	return ChannelBooks
}

// RegistryKey returns the canonical key of a subscription's wire identity.
func RegistryKey(sub model.Subscription) Key {
	ch := WireChannel(sub)
	if sub.Family == model.FamilyTicker && strings.TrimSpace(sub.InstrumentID) == "" {
		instType := strings.ToUpper(strings.TrimSpace(sub.InstrumentType))
		if instType == "" || instType == InstTypeIndex {
			instType = InstTypeSpot
		}
		return Key{Channel: ch, InstType: instType}
	}
	return Key{Channel: ch, InstID: NormalizeInstID(sub.InstrumentID, ch)}
}

// KeyFromArg reduces an echoed arg object to a Key, applying the same
// instrument normalization as RegistryKey.
func KeyFromArg(arg Arg) Key {
	if arg.InstID == "" {
		return Key{Channel: arg.Channel, InstType: strings.ToUpper(arg.InstType)}
	}
	return Key{Channel: arg.Channel, InstID: NormalizeInstID(arg.InstID, arg.Channel)}
}

// ClassOf returns the connection class a channel must be requested on.
func ClassOf(channel string) Class {
	if isCandleChannel(channel) {
		return ClassBusiness
	}
	return ClassPublic
}

// FamilyOf returns the logical family of a wire channel.
func FamilyOf(channel string) (model.Family, bool) {
	switch {
	case isCandleChannel(channel):
		return model.FamilyCandle, true
	case channel == ChannelTrades || channel == "trades-all":
		return model.FamilyTrade, true
	case channel == ChannelBBO || strings.HasPrefix(channel, ChannelBooks):
		return model.FamilyBook, true
	case channel == ChannelTickers || channel == ChannelIndexTickers:
		return model.FamilyTicker, true
	}
	return 0, false
}

// CandleInterval returns the bar suffix of a candle channel ("1H" for "candle1H").
func CandleInterval(channel string) string {
	for _, p := range []string{prefixMarkCandle, prefixIndexCandle, prefixCandle} {
		if strings.HasPrefix(channel, p) {
			return strings.TrimPrefix(channel, p)
		}
	}
	return ""
}

// ReportsVolume reports whether a candle channel carries a volume column.
func ReportsVolume(channel string) bool {
	return !strings.HasPrefix(channel, prefixIndexCandle) && !strings.HasPrefix(channel, prefixMarkCandle)
}

// USDIndexOnly reports whether a channel only accepts USD-quoted instruments.
func USDIndexOnly(channel string) bool {
	return channel == ChannelIndexTickers || strings.HasPrefix(channel, prefixIndexCandle)
}

func isCandleChannel(channel string) bool {
	return strings.HasPrefix(channel, prefixCandle) ||
		strings.HasPrefix(channel, prefixIndexCandle) ||
		strings.HasPrefix(channel, prefixMarkCandle)
}

// NormalizeInterval converts loose bar spellings to OKX form. Hours, days and
// weeks are upper-case on OKX; "m" stays minutes and "M" stays months.
func NormalizeInterval(interval string) string {
	bar := strings.TrimSpace(interval)
	if bar == "" {
		return DefaultInterval
	}
	utc := ""
	if strings.HasSuffix(strings.ToLower(bar), "utc") {
		utc = "utc"
		bar = bar[:len(bar)-3]
	}
	if bar == "" {
		return DefaultInterval
	}
	last := bar[len(bar)-1]
	switch last {
	case 'h', 'd', 'w':
		bar = bar[:len(bar)-1] + strings.ToUpper(string(last))
	}
	return bar + utc
}
