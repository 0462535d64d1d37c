// Package database provides PostgreSQL connection pool management for the
// journal store. Streamed market data is never persisted; only the user
// journal (entries, topics, trades, sessions) lives here.
package database
