package config

import "time"

// Config is the root configuration for a streamer instance.
type Config struct {
	Instance      InstanceConfig       `yaml:"instance"`
	OKX           OKXConfig            `yaml:"okx"`
	Connections   ConnectionsConfig    `yaml:"connections"`
	REST          RESTConfig           `yaml:"rest"`
	Database      DatabaseConfig       `yaml:"database"`
	Logging       LoggingConfig        `yaml:"logging"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

// InstanceConfig identifies this streamer.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// OKXConfig holds exchange endpoints.
type OKXConfig struct {
	PublicURL   string `yaml:"public_url"`
	BusinessURL string `yaml:"business_url"`
	RestURL     string `yaml:"rest_url"`
}

// ConnectionsConfig holds WebSocket connection manager settings.
type ConnectionsConfig struct {
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	StaleTimeout         time.Duration `yaml:"stale_timeout"`
	ReconnectOnStale     bool          `yaml:"reconnect_on_stale"`
	ConnectTimeout       time.Duration `yaml:"connect_timeout"`
	SubscribeBatchSize   int           `yaml:"subscribe_batch_size"`
}

// RESTConfig holds settings for the historical candle client.
type RESTConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	// Requests allowed per RateWindow.
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
	// Candles fetched per candle subscription on startup and after each
	// business reconnect. Zero disables backfill.
	SeedCandles int `yaml:"seed_candles"`
	// Periodic backfill interval; zero polls only on start and reconnect.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DatabaseConfig holds the optional journal database. An empty host disables it.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// Enabled reports whether a journal database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.Postgres.Host != ""
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json or text
	Output     string `yaml:"output"` // stdout, stderr or a file path
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxAgeDays int    `yaml:"max_age_days"`
	MaxBackups int    `yaml:"max_backups"`
}

// SubscriptionConfig is one subscription requested at startup.
type SubscriptionConfig struct {
	Family   string `yaml:"family"` // candles, trades, book, ticker
	InstID   string `yaml:"inst_id"`
	Interval string `yaml:"interval"`
	Depth    int    `yaml:"depth"`
	InstType string `yaml:"inst_type"`
}
