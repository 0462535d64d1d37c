package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/rickgao/okx-stream/internal/model"
)

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the journal persistence layer.
type Store struct {
	db     DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store over db.
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "journal"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// CreateTopic inserts t, assigning ID and CreatedAt when unset.
func (s *Store) CreateTopic(ctx context.Context, t Topic) (Topic, error) {
	if err := t.Validate(); err != nil {
		return Topic{}, err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO journal_topics (id, user_id, name, description, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.UserID, t.Name, t.Description, t.CreatedAt)
	if err != nil {
		return Topic{}, fmt.Errorf("create topic: %w", err)
	}
	return t, nil
}

// GetTopic returns a topic owned by userID.
func (s *Store) GetTopic(ctx context.Context, userID, id uuid.UUID) (Topic, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, name, description, created_at
		FROM journal_topics WHERE user_id = $1 AND id = $2
	`, userID, id)
	t, err := scanTopic(row)
	if err != nil {
		return Topic{}, notFound("get topic", err)
	}
	return t, nil
}

// ListTopics returns a user's topics, newest first.
func (s *Store) ListTopics(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Topic, error) {
	opts = opts.normalized()
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, name, description, created_at
		FROM journal_topics WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return collect(rows, scanTopic, "list topics")
}

// UpdateTopic replaces a topic's name and description.
func (s *Store) UpdateTopic(ctx context.Context, t Topic) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE journal_topics SET name = $3, description = $4
		WHERE user_id = $1 AND id = $2
	`, t.UserID, t.ID, t.Name, t.Description)
	return affected("update topic", tag, err)
}

// DeleteTopic removes a topic. Entries filed under it are kept unfiled.
func (s *Store) DeleteTopic(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM journal_topics WHERE user_id = $1 AND id = $2`, userID, id)
	return affected("delete topic", tag, err)
}

func scanTopic(row pgx.Row) (Topic, error) {
	var t Topic
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.CreatedAt)
	return t, err
}

// -----------------------------------------------------------------------------
// Entries
// -----------------------------------------------------------------------------

// CreateEntry inserts e, assigning ID and timestamps when unset.
func (s *Store) CreateEntry(ctx context.Context, e Entry) (Entry, error) {
	if err := e.Validate(); err != nil {
		return Entry{}, err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.UpdatedAt = e.CreatedAt

	_, err := s.db.Exec(ctx, `
		INSERT INTO journal_entries (id, user_id, topic_id, inst_id, title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.UserID, e.TopicID, e.InstID, e.Title, e.Body, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("create entry: %w", err)
	}
	return e, nil
}

// GetEntry returns an entry owned by userID.
func (s *Store) GetEntry(ctx context.Context, userID, id uuid.UUID) (Entry, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, topic_id, inst_id, title, body, created_at, updated_at
		FROM journal_entries WHERE user_id = $1 AND id = $2
	`, userID, id)
	e, err := scanEntry(row)
	if err != nil {
		return Entry{}, notFound("get entry", err)
	}
	return e, nil
}

// ListEntries returns a user's entries, newest first. A non-nil topicID
// restricts the result to that topic.
func (s *Store) ListEntries(ctx context.Context, userID uuid.UUID, topicID *uuid.UUID, opts ListOptions) ([]Entry, error) {
	opts = opts.normalized()
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, topic_id, inst_id, title, body, created_at, updated_at
		FROM journal_entries
		WHERE user_id = $1 AND ($2::uuid IS NULL OR topic_id = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, userID, topicID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return collect(rows, scanEntry, "list entries")
}

// UpdateEntry replaces an entry's content and bumps UpdatedAt.
func (s *Store) UpdateEntry(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE journal_entries
		SET topic_id = $3, inst_id = $4, title = $5, body = $6, updated_at = $7
		WHERE user_id = $1 AND id = $2
	`, e.UserID, e.ID, e.TopicID, e.InstID, e.Title, e.Body, s.now())
	return affected("update entry", tag, err)
}

// DeleteEntry removes an entry.
func (s *Store) DeleteEntry(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM journal_entries WHERE user_id = $1 AND id = $2`, userID, id)
	return affected("delete entry", tag, err)
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.TopicID, &e.InstID, &e.Title, &e.Body, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// -----------------------------------------------------------------------------
// Trades
// -----------------------------------------------------------------------------

// CreateTrade inserts t, assigning ID and CreatedAt when unset.
func (s *Store) CreateTrade(ctx context.Context, t Trade) (Trade, error) {
	if err := t.Validate(); err != nil {
		return Trade{}, err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO journal_trades (id, user_id, inst_id, side, price, size, executed_at, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.UserID, t.InstID, string(t.Side), t.Price.String(), t.Size.String(), t.ExecutedAt, t.Note, t.CreatedAt)
	if err != nil {
		return Trade{}, fmt.Errorf("create trade: %w", err)
	}
	return t, nil
}

// GetTrade returns a trade owned by userID.
func (s *Store) GetTrade(ctx context.Context, userID, id uuid.UUID) (Trade, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, inst_id, side, price, size, executed_at, note, created_at
		FROM journal_trades WHERE user_id = $1 AND id = $2
	`, userID, id)
	t, err := scanTrade(row)
	if err != nil {
		return Trade{}, notFound("get trade", err)
	}
	return t, nil
}

// ListTrades returns a user's trades, most recently executed first. A
// non-empty instID restricts the result to that instrument.
func (s *Store) ListTrades(ctx context.Context, userID uuid.UUID, instID string, opts ListOptions) ([]Trade, error) {
	opts = opts.normalized()
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, inst_id, side, price, size, executed_at, note, created_at
		FROM journal_trades
		WHERE user_id = $1 AND ($2 = '' OR inst_id = $2)
		ORDER BY executed_at DESC LIMIT $3 OFFSET $4
	`, userID, instID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list trades: %w", err)
	}
	return collect(rows, scanTrade, "list trades")
}

// UpdateTrade replaces a trade's fields.
func (s *Store) UpdateTrade(ctx context.Context, t Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE journal_trades
		SET inst_id = $3, side = $4, price = $5, size = $6, executed_at = $7, note = $8
		WHERE user_id = $1 AND id = $2
	`, t.UserID, t.ID, t.InstID, string(t.Side), t.Price.String(), t.Size.String(), t.ExecutedAt, t.Note)
	return affected("update trade", tag, err)
}

// DeleteTrade removes a trade.
func (s *Store) DeleteTrade(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM journal_trades WHERE user_id = $1 AND id = $2`, userID, id)
	return affected("delete trade", tag, err)
}

func scanTrade(row pgx.Row) (Trade, error) {
	var (
		t           Trade
		side        string
		price, size string
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.InstID, &side, &price, &size, &t.ExecutedAt, &t.Note, &t.CreatedAt); err != nil {
		return Trade{}, err
	}
	t.Side = model.Side(side)

	var err error
	if t.Price, err = decimal.NewFromString(price); err != nil {
		return Trade{}, fmt.Errorf("trade %s price: %w", t.ID, err)
	}
	if t.Size, err = decimal.NewFromString(size); err != nil {
		return Trade{}, fmt.Errorf("trade %s size: %w", t.ID, err)
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Sessions
// -----------------------------------------------------------------------------

// CreateSession inserts sess, assigning ID and StartedAt when unset.
func (s *Store) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if sess.ID == uuid.Nil {
		sess.ID = uuid.New()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = s.now()
	}
	if sess.Channels == nil {
		sess.Channels = []string{}
	}
	if err := sess.Validate(); err != nil {
		return Session{}, err
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO journal_sessions (id, user_id, label, channels, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sess.ID, sess.UserID, sess.Label, sess.Channels, sess.StartedAt, sess.EndedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// GetSession returns a session owned by userID.
func (s *Store) GetSession(ctx context.Context, userID, id uuid.UUID) (Session, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, label, channels, started_at, ended_at
		FROM journal_sessions WHERE user_id = $1 AND id = $2
	`, userID, id)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, notFound("get session", err)
	}
	return sess, nil
}

// ListSessions returns a user's sessions, most recently started first.
func (s *Store) ListSessions(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]Session, error) {
	opts = opts.normalized()
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, label, channels, started_at, ended_at
		FROM journal_sessions WHERE user_id = $1
		ORDER BY started_at DESC LIMIT $2 OFFSET $3
	`, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return collect(rows, scanSession, "list sessions")
}

// UpdateSession replaces a session's label and channel list.
func (s *Store) UpdateSession(ctx context.Context, sess Session) error {
	if sess.Channels == nil {
		sess.Channels = []string{}
	}
	if err := sess.Validate(); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE journal_sessions SET label = $3, channels = $4, ended_at = $5
		WHERE user_id = $1 AND id = $2
	`, sess.UserID, sess.ID, sess.Label, sess.Channels, sess.EndedAt)
	return affected("update session", tag, err)
}

// EndSession stamps ended_at on an active session. Ending an already ended
// session is a no-op.
func (s *Store) EndSession(ctx context.Context, userID, id uuid.UUID, at time.Time) error {
	if at.IsZero() {
		at = s.now()
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE journal_sessions SET ended_at = COALESCE(ended_at, $3)
		WHERE user_id = $1 AND id = $2
	`, userID, id, at)
	return affected("end session", tag, err)
}

// DeleteSession removes a session.
func (s *Store) DeleteSession(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM journal_sessions WHERE user_id = $1 AND id = $2`, userID, id)
	return affected("delete session", tag, err)
}

func scanSession(row pgx.Row) (Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Label, &sess.Channels, &sess.StartedAt, &sess.EndedAt)
	return sess, err
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error), op string) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func notFound(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func affected(op string, tag pgconn.CommandTag, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
