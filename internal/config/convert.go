package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rickgao/okx-stream/internal/connection"
	"github.com/rickgao/okx-stream/internal/model"
	"github.com/rickgao/okx-stream/internal/stream"
)

// Subscription converts a configured entry to a model.Subscription.
func (s SubscriptionConfig) Subscription() (model.Subscription, error) {
	family, ok := model.ParseFamily(s.Family)
	if !ok {
		return model.Subscription{}, fmt.Errorf("unknown family %q", s.Family)
	}
	sub := model.Subscription{
		Family:         family,
		InstrumentID:   strings.TrimSpace(s.InstID),
		Interval:       strings.TrimSpace(s.Interval),
		Depth:          s.Depth,
		InstrumentType: strings.ToUpper(strings.TrimSpace(s.InstType)),
	}
	switch family {
	case model.FamilyCandle:
		if sub.Interval == "" {
			return model.Subscription{}, errors.New("interval is required for candles")
		}
		fallthrough
	case model.FamilyTrade, model.FamilyBook:
		if sub.InstrumentID == "" {
			return model.Subscription{}, fmt.Errorf("inst_id is required for %s", family)
		}
	}
	if sub.Depth < 0 {
		return model.Subscription{}, fmt.Errorf("depth must be >= 0, got %d", sub.Depth)
	}
	return sub, nil
}

// StreamConfig builds the stream client configuration.
func (c *Config) StreamConfig(userAgent string) stream.Config {
	cfg := stream.DefaultConfig()
	cfg.PublicURL = c.OKX.PublicURL
	cfg.BusinessURL = c.OKX.BusinessURL
	cfg.ConnectTimeout = c.Connections.ConnectTimeout
	cfg.SubscribeBatchSize = c.Connections.SubscribeBatchSize

	cfg.Connection = connection.ManagerConfig{
		MaxReconnectAttempts: c.Connections.MaxReconnectAttempts,
		ReconnectBaseWait:    c.Connections.ReconnectBaseDelay,
		ReconnectMaxWait:     c.Connections.ReconnectMaxDelay,
		PingInterval:         c.Connections.PingInterval,
		StaleTimeout:         c.Connections.StaleTimeout,
		CheckInterval:        cfg.Connection.CheckInterval,
		ReconnectOnStale:     c.Connections.ReconnectOnStale,
		Client:               cfg.Connection.Client,
	}
	cfg.Connection.Client.UserAgent = userAgent
	return cfg
}
