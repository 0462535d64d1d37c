package stream

import (
	"testing"

	"github.com/rickgao/okx-stream/internal/channel"
)

type staticKeys map[channel.Key]bool

func (s staticKeys) Has(k channel.Key) bool { return s[k] }

func (s staticKeys) Keys() []channel.Key {
	out := make([]channel.Key, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

func keysOf(ks ...channel.Key) staticKeys {
	s := make(staticKeys, len(ks))
	for _, k := range ks {
		s[k] = true
	}
	return s
}

func TestResolve(t *testing.T) {
	candle := channel.Key{Channel: "candle1H", InstID: "BTC-USDT"}
	spotTickers := channel.Key{Channel: "tickers", InstType: "SPOT"}
	swapTickers := channel.Key{Channel: "tickers", InstType: "SWAP"}
	btcTicker := channel.Key{Channel: "tickers", InstID: "BTC-USDT"}
	books5 := channel.Key{Channel: "books5", InstID: "ETH-USDT"}
	swapTrades := channel.Key{Channel: "trades", InstID: "BTC-USDT-SWAP"}
	indexTicker := channel.Key{Channel: "index-tickers", InstID: "BTC-USDT"}

	tests := []struct {
		name  string
		arg   channel.Arg
		keys  staticKeys
		want  []channel.Key
		match Match
	}{
		{
			name:  "exact",
			arg:   channel.Arg{Channel: "candle1H", InstID: "BTC-USDT"},
			keys:  keysOf(candle),
			want:  []channel.Key{candle},
			match: MatchExact,
		},
		{
			name:  "exact after id normalization",
			arg:   channel.Arg{Channel: "candle1H", InstID: "btc-usdt"},
			keys:  keysOf(candle),
			want:  []channel.Key{candle},
			match: MatchExact,
		},
		{
			name:  "exact beats wildcard",
			arg:   channel.Arg{Channel: "tickers", InstID: "BTC-USDT"},
			keys:  keysOf(btcTicker, spotTickers),
			want:  []channel.Key{btcTicker},
			match: MatchExact,
		},
		{
			name:  "wildcard by inferred type",
			arg:   channel.Arg{Channel: "tickers", InstID: "ETH-USDT"},
			keys:  keysOf(spotTickers, swapTickers),
			want:  []channel.Key{spotTickers},
			match: MatchWildcard,
		},
		{
			name:  "wildcard by echoed type",
			arg:   channel.Arg{Channel: "tickers", InstID: "ETH-USDT-SWAP", InstType: "swap"},
			keys:  keysOf(spotTickers, swapTickers),
			want:  []channel.Key{swapTickers},
			match: MatchWildcard,
		},
		{
			name:  "wildcard ack",
			arg:   channel.Arg{Channel: "tickers", InstType: "SPOT"},
			keys:  keysOf(spotTickers),
			want:  []channel.Key{spotTickers},
			match: MatchExact,
		},
		{
			name:  "alias across quote currency on index channel",
			arg:   channel.Arg{Channel: "index-tickers", InstID: "BTC-USD"},
			keys:  keysOf(indexTicker),
			want:  []channel.Key{indexTicker},
			match: MatchAlias,
		},
		{
			name:  "quote currency differs on market candle",
			arg:   channel.Arg{Channel: "candle1H", InstID: "BTC-USD"},
			keys:  keysOf(candle),
			match: MatchNone,
		},
		{
			name:  "coin-margined swap is not a USDT swap",
			arg:   channel.Arg{Channel: "trades", InstID: "BTC-USD-SWAP"},
			keys:  keysOf(swapTrades),
			match: MatchNone,
		},
		{
			name:  "market ticker is not an index ticker",
			arg:   channel.Arg{Channel: "tickers", InstID: "BTC-USD"},
			keys:  keysOf(indexTicker),
			match: MatchNone,
		},
		{
			name:  "alias across book depth",
			arg:   channel.Arg{Channel: "books", InstID: "ETH-USDT"},
			keys:  keysOf(books5),
			want:  []channel.Key{books5},
			match: MatchAlias,
		},
		{
			name:  "alias requires same interval",
			arg:   channel.Arg{Channel: "candle4H", InstID: "BTC-USDT"},
			keys:  keysOf(candle),
			match: MatchNone,
		},
		{
			name:  "alias requires same price source",
			arg:   channel.Arg{Channel: "mark-price-candle1H", InstID: "BTC-USDT"},
			keys:  keysOf(candle),
			match: MatchNone,
		},
		{
			name:  "different instrument",
			arg:   channel.Arg{Channel: "candle1H", InstID: "ETH-USDT"},
			keys:  keysOf(candle),
			match: MatchNone,
		},
		{
			name:  "no subscribers",
			arg:   channel.Arg{Channel: "trades", InstID: "BTC-USDT"},
			keys:  keysOf(),
			match: MatchNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, match := resolve(tt.arg, tt.keys)
			if match != tt.match {
				t.Errorf("match = %s, want %s", match, tt.match)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("keys = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("keys[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}
