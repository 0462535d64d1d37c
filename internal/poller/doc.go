// Package poller implements the candle backfill poller.
//
// The poller:
//   - Fetches recent candle history over REST for every candle subscription
//   - Runs once on start, on every Trigger and optionally on an interval
//   - Covers the gap a reconnect leaves in a streamed chart
//   - Uses bounded concurrent requests on top of the REST client's rate limit
package poller
