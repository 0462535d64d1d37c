// Package channel maps logical subscriptions onto OKX v5 websocket channels.
//
// Every function here is pure. The same normalization runs on both sides of the
// wire: a caller's Subscription and the exchange's echoed "arg" object reduce to
// the same Key, even when their instrument spellings differ (BTC, BTC-USDT and
// BTC-USD on a USD-only index channel).
//
// Channel classes:
//   - public:   trades, books*, bbo-tbt, tickers, index-tickers
//   - business: candle*, index-candle*, mark-price-candle*
package channel
