// Package model defines shared data types used across the OKX market-data client.
//
// Conventions:
//   - Prices and sizes: shopspring decimal.Decimal, parsed from the exchange's string fields
//   - Timestamps: int64 seconds since Unix epoch (floor of the exchange's milliseconds)
//   - Instrument ids: OKX form, e.g. "BTC-USDT", "BTC-USDT-SWAP", "BTC-USD" for indices
package model
