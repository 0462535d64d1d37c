package journal

import (
	"context"
	"fmt"
)

// schema is applied by Migrate. Statements are idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS journal_topics (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS journal_topics_user_idx ON journal_topics (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS journal_entries (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL,
		topic_id   UUID REFERENCES journal_topics (id) ON DELETE SET NULL,
		inst_id    TEXT NOT NULL DEFAULT '',
		title      TEXT NOT NULL DEFAULT '',
		body       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS journal_entries_user_idx ON journal_entries (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS journal_trades (
		id          UUID PRIMARY KEY,
		user_id     UUID NOT NULL,
		inst_id     TEXT NOT NULL,
		side        TEXT NOT NULL,
		price       TEXT NOT NULL,
		size        TEXT NOT NULL,
		executed_at TIMESTAMPTZ NOT NULL,
		note        TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS journal_trades_user_idx ON journal_trades (user_id, executed_at DESC)`,
	`CREATE TABLE IF NOT EXISTS journal_sessions (
		id         UUID PRIMARY KEY,
		user_id    UUID NOT NULL,
		label      TEXT NOT NULL DEFAULT '',
		channels   TEXT[] NOT NULL DEFAULT '{}',
		started_at TIMESTAMPTZ NOT NULL,
		ended_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS journal_sessions_user_idx ON journal_sessions (user_id, started_at DESC)`,
}

// Migrate creates the journal tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	return nil
}
