// Package api provides the OKX REST client used to seed candle history before
// streaming takes over.
//
// REST endpoints:
//   - Production: https://www.okx.com
//   - AWS region: https://aws.okx.com
//
// Candle history endpoints, newest first, paginated with the "after" cursor:
//   - /api/v5/market/history-candles
//   - /api/v5/market/history-index-candles
//   - /api/v5/market/history-mark-price-candles
package api
