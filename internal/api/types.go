package api

// Candle history paths.
const (
	pathHistoryCandles          = "/api/v5/market/history-candles"
	pathHistoryIndexCandles     = "/api/v5/market/history-index-candles"
	pathHistoryMarkPriceCandles = "/api/v5/market/history-mark-price-candles"
)

// maxCandlePage is the largest page the history endpoints return.
const maxCandlePage = 100

// candleRow is one [ts, o, h, l, c, vol, ...] row, newest first.
type candleRow []string

// CandlesOptions configures a GetCandles request.
type CandlesOptions struct {
	InstID string // e.g. BTC-USDT; bare bases are expanded
	Bar    string // 1m, 1H, 1D, ...; normalized to OKX spelling
	// Limit is the number of candles wanted. Pages of up to 100 are fetched
	// until it is met or history runs out.
	Limit int
	// Before restricts results to candles opening strictly before this unix
	// second. Zero means most recent.
	Before int64
	// InstType selects the price source: empty for trades, INDEX or MARK.
	InstType string
}
