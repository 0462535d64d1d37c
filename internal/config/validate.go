package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if err := validateURL("okx.public_url", c.OKX.PublicURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("okx.business_url", c.OKX.BusinessURL, "ws", "wss"); err != nil {
		return err
	}
	if err := validateURL("okx.rest_url", c.OKX.RestURL, "http", "https"); err != nil {
		return err
	}

	if c.Connections.MaxReconnectAttempts < 0 {
		return errors.New("connections.max_reconnect_attempts must be >= 0")
	}
	if c.Connections.ReconnectMaxDelay < c.Connections.ReconnectBaseDelay {
		return fmt.Errorf("connections.reconnect_max_delay (%s) cannot be less than reconnect_base_delay (%s)",
			c.Connections.ReconnectMaxDelay, c.Connections.ReconnectBaseDelay)
	}
	if c.Connections.PingInterval <= 0 {
		return errors.New("connections.ping_interval must be > 0")
	}
	if c.Connections.SubscribeBatchSize < 1 {
		return errors.New("connections.subscribe_batch_size must be >= 1")
	}

	if c.REST.MaxRetries < 0 {
		return errors.New("rest.max_retries must be >= 0")
	}
	if c.REST.RateLimit < 1 {
		return errors.New("rest.rate_limit must be >= 1")
	}
	if c.REST.SeedCandles < 0 || c.REST.SeedCandles > 300 {
		return fmt.Errorf("rest.seed_candles must be between 0 and 300, got %d", c.REST.SeedCandles)
	}

	if c.REST.PollInterval < 0 {
		return errors.New("rest.poll_interval must be >= 0")
	}

	if c.Database.Enabled() {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	for i, s := range c.Subscriptions {
		if _, err := s.Subscription(); err != nil {
			return fmt.Errorf("subscriptions[%d]: %w", i, err)
		}
	}

	return nil
}

func validateURL(field, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s must use scheme %s, got %q", field, strings.Join(schemes, " or "), u.Scheme)
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
