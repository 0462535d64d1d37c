package journal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/okx-stream/internal/model"
)

// ErrNotFound is returned when a row does not exist for the given user.
var ErrNotFound = errors.New("journal: not found")

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("journal: %s %s", e.Field, e.Reason)
}

// Topic groups entries.
type Topic struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// Entry is a journal note, optionally filed under a topic and pinned to an
// instrument.
type Entry struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TopicID   *uuid.UUID
	InstID    string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trade is a manually recorded fill. Price and size keep full precision.
type Trade struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	InstID     string
	Side       model.Side
	Price      decimal.Decimal
	Size       decimal.Decimal
	ExecutedAt time.Time
	Note       string
	CreatedAt  time.Time
}

// Notional returns price times size.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Size)
}

// Session records a period spent watching a set of channels.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Label     string
	Channels  []string // registry keys, e.g. candle1H:BTC-USDT
	StartedAt time.Time
	EndedAt   *time.Time
}

// Active reports whether the session has not ended.
func (s Session) Active() bool {
	return s.EndedAt == nil
}

// ListOptions pages list queries, newest first.
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (o ListOptions) normalized() ListOptions {
	if o.Limit <= 0 {
		o.Limit = defaultListLimit
	}
	if o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// Validate checks required topic fields.
func (t Topic) Validate() error {
	if t.UserID == uuid.Nil {
		return &ValidationError{"user_id", "is required"}
	}
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{"name", "is required"}
	}
	if len(t.Name) > 200 {
		return &ValidationError{"name", "exceeds 200 characters"}
	}
	return nil
}

// Validate checks required entry fields.
func (e Entry) Validate() error {
	if e.UserID == uuid.Nil {
		return &ValidationError{"user_id", "is required"}
	}
	if strings.TrimSpace(e.Title) == "" && strings.TrimSpace(e.Body) == "" {
		return &ValidationError{"title", "or body is required"}
	}
	if e.TopicID != nil && *e.TopicID == uuid.Nil {
		return &ValidationError{"topic_id", "is the nil uuid"}
	}
	return nil
}

// Validate checks required trade fields.
func (t Trade) Validate() error {
	if t.UserID == uuid.Nil {
		return &ValidationError{"user_id", "is required"}
	}
	if strings.TrimSpace(t.InstID) == "" {
		return &ValidationError{"inst_id", "is required"}
	}
	if t.Side != model.SideBuy && t.Side != model.SideSell {
		return &ValidationError{"side", fmt.Sprintf("must be buy or sell, got %q", t.Side)}
	}
	if !t.Price.IsPositive() {
		return &ValidationError{"price", "must be positive"}
	}
	if !t.Size.IsPositive() {
		return &ValidationError{"size", "must be positive"}
	}
	if t.ExecutedAt.IsZero() {
		return &ValidationError{"executed_at", "is required"}
	}
	return nil
}

// Validate checks required session fields.
func (s Session) Validate() error {
	if s.UserID == uuid.Nil {
		return &ValidationError{"user_id", "is required"}
	}
	if s.StartedAt.IsZero() {
		return &ValidationError{"started_at", "is required"}
	}
	if s.EndedAt != nil && s.EndedAt.Before(s.StartedAt) {
		return &ValidationError{"ended_at", "is before started_at"}
	}
	return nil
}
