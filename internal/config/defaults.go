package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPublicURL            = "wss://ws.okx.com:8443/ws/v5/public"
	DefaultBusinessURL          = "wss://ws.okx.com:8443/ws/v5/business"
	DefaultRestURL              = "https://www.okx.com"
	DefaultMaxReconnectAttempts = 5
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 30 * time.Second
	DefaultPingInterval         = 25 * time.Second
	DefaultStaleTimeout         = 10 * time.Second
	DefaultConnectTimeout       = 30 * time.Second
	DefaultSubscribeBatchSize   = 50
	DefaultRESTTimeout          = 10 * time.Second
	DefaultMaxRetries           = 3
	DefaultRateLimit            = 20
	DefaultRateWindow           = 2 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultLogOutput            = "stdout"
	DefaultLogMaxSizeMB         = 100
	DefaultLogMaxAgeDays        = 7
)

func (c *Config) applyDefaults() {
	// Endpoint defaults
	if c.OKX.PublicURL == "" {
		c.OKX.PublicURL = DefaultPublicURL
	}
	if c.OKX.BusinessURL == "" {
		c.OKX.BusinessURL = DefaultBusinessURL
	}
	if c.OKX.RestURL == "" {
		c.OKX.RestURL = DefaultRestURL
	}

	// Connections defaults
	if c.Connections.MaxReconnectAttempts == 0 {
		c.Connections.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Connections.ReconnectBaseDelay == 0 {
		c.Connections.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Connections.ReconnectMaxDelay == 0 {
		c.Connections.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Connections.PingInterval == 0 {
		c.Connections.PingInterval = DefaultPingInterval
	}
	if c.Connections.StaleTimeout == 0 {
		c.Connections.StaleTimeout = DefaultStaleTimeout
	}
	if c.Connections.ConnectTimeout == 0 {
		c.Connections.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Connections.SubscribeBatchSize == 0 {
		c.Connections.SubscribeBatchSize = DefaultSubscribeBatchSize
	}

	// REST defaults
	if c.REST.Timeout == 0 {
		c.REST.Timeout = DefaultRESTTimeout
	}
	if c.REST.MaxRetries == 0 {
		c.REST.MaxRetries = DefaultMaxRetries
	}
	if c.REST.RateLimit == 0 {
		c.REST.RateLimit = DefaultRateLimit
	}
	if c.REST.RateWindow == 0 {
		c.REST.RateWindow = DefaultRateWindow
	}

	// Database defaults only matter when a database is configured
	if c.Database.Enabled() {
		applyDBDefaults(&c.Database.Postgres)
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = DefaultLogOutput
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = DefaultLogMaxAgeDays
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
