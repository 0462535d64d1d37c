// Package connection implements the Connection Manager component.
//
// A Manager owns one logical socket to an OKX endpoint class (public or
// business):
//   - State machine Closed -> Connecting -> Open -> Closed, with Closing for
//     caller-initiated shutdown
//   - Idempotent Connect; concurrent callers share one dial
//   - Exponential backoff reconnection, capped at MaxReconnectAttempts
//   - Text "ping"/"pong" liveness check and staleness flag
//   - Ordered delivery of inbound frames to the OnMessage hook
package connection
