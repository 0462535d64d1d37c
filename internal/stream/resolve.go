package stream

import (
	"strings"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/model"
)

// Match records which resolution pass found the subscribers of a frame.
type Match int

const (
	MatchNone Match = iota
	MatchExact
	MatchWildcard
	MatchAlias
)

// String returns the match name used in logs.
func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchWildcard:
		return "wildcard"
	case MatchAlias:
		return "alias"
	}
	return "none"
}

// keySet is the registry view resolution needs.
type keySet interface {
	Has(channel.Key) bool
	Keys() []channel.Key
}

// resolve maps an echoed arg to the registry keys whose subscribers should
// receive the frame. Passes run in order and the first that matches wins:
//  1. exact key
//  2. instrument-type wildcard (ticker subscribed by type, frame names an id)
//  3. alias: same family and parameters, same instrument (USD and USDT quotes
//     are interchangeable only on USD-only index channels)
func resolve(arg channel.Arg, keys keySet) ([]channel.Key, Match) {
	exact := channel.KeyFromArg(arg)
	if keys.Has(exact) {
		return []channel.Key{exact}, MatchExact
	}

	if arg.InstID == "" {
		return nil, MatchNone
	}

	if wk, ok := wildcardKey(arg); ok && keys.Has(wk) {
		return []channel.Key{wk}, MatchWildcard
	}

	if aliased := aliasKeys(arg, keys.Keys()); len(aliased) > 0 {
		return aliased, MatchAlias
	}
	return nil, MatchNone
}

// wildcardKey builds the instrument-type key a frame for a concrete
// instrument would match.
func wildcardKey(arg channel.Arg) (channel.Key, bool) {
	family, ok := channel.FamilyOf(arg.Channel)
	if !ok || family != model.FamilyTicker {
		return channel.Key{}, false
	}

	instType := strings.ToUpper(arg.InstType)
	if instType == "" {
		instType = channel.InferInstType(arg.InstID)
	}
	return channel.Key{Channel: arg.Channel, InstType: instType}, true
}

// aliasKeys scans for keys naming an equivalent target on a compatible channel.
func aliasKeys(arg channel.Arg, keys []channel.Key) []channel.Key {
	family, ok := channel.FamilyOf(arg.Channel)
	if !ok {
		return nil
	}

	var out []channel.Key
	for _, k := range sortedKeys(keys) {
		if k.IsWildcard() {
			continue
		}
		kf, ok := channel.FamilyOf(k.Channel)
		if !ok || kf != family {
			continue
		}
		if !compatibleChannels(family, k.Channel, arg.Channel) {
			continue
		}
		if channel.Equivalent(k.InstID, arg.InstID, channel.USDIndexOnly(arg.Channel)) {
			out = append(out, k)
		}
	}
	return out
}

// compatibleChannels: candles must agree on interval and price source and
// tickers on index versus market; book depth variants of one instrument are
// interchangeable.
func compatibleChannels(family model.Family, a, b string) bool {
	if family != model.FamilyCandle {
		return channel.USDIndexOnly(a) == channel.USDIndexOnly(b)
	}
	if channel.CandleInterval(a) != channel.CandleInterval(b) {
		return false
	}
	return strings.TrimSuffix(a, channel.CandleInterval(a)) == strings.TrimSuffix(b, channel.CandleInterval(b))
}
