package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/okx-stream/internal/api"
	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/model"
)

// SubscriptionSource provides the subscriptions to backfill. Non-candle
// subscriptions are ignored.
type SubscriptionSource interface {
	Subscriptions() []model.Subscription
}

// StaticSource is a fixed subscription list.
type StaticSource []model.Subscription

// Subscriptions returns the list.
func (s StaticSource) Subscriptions() []model.Subscription { return s }

// CandleFetcher is the subset of *api.Client the poller uses.
type CandleFetcher interface {
	GetCandles(ctx context.Context, opts api.CandlesOptions) ([]model.Candle, error)
}

// CandleHandler receives fetched candles, oldest first.
type CandleHandler interface {
	HandleCandles(key channel.Key, candles []model.Candle) error
}

// CandleHandlerFunc is a function adapter for CandleHandler.
type CandleHandlerFunc func(channel.Key, []model.Candle) error

func (f CandleHandlerFunc) HandleCandles(key channel.Key, candles []model.Candle) error {
	return f(key, candles)
}

// Config holds poller configuration.
type Config struct {
	Limit       int           // Candles per subscription
	Interval    time.Duration // Periodic poll interval; 0 polls only on start and Trigger
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-subscription timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Limit:       100,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

// Stats counts poll outcomes.
type Stats struct {
	Cycles  int64
	Fetched int64
	Errors  int64
}

// Poller fetches candle history via REST API.
type Poller struct {
	cfg     Config
	client  CandleFetcher
	source  SubscriptionSource
	handler CandleHandler
	logger  *slog.Logger

	trigger chan struct{}

	cycles, fetched, errors atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client CandleFetcher, source SubscriptionSource, handler CandleHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		source:  source,
		handler: handler,
		logger:  logger.With("component", "poller"),
		trigger: make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("candle poller started",
		"limit", p.cfg.Limit,
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Trigger requests a poll cycle. Requests made while one is pending coalesce.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("candle poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns poll counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:  p.cycles.Load(),
		Fetched: p.fetched.Load(),
		Errors:  p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	var tick <-chan time.Time
	if p.cfg.Interval > 0 {
		ticker := time.NewTicker(p.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-tick:
			p.pollAll()
		case <-p.trigger:
			p.pollAll()
		}
	}
}

// pollAll fetches candles for all candle subscriptions concurrently.
func (p *Poller) pollAll() {
	start := time.Now()
	p.cycles.Add(1)

	var subs []model.Subscription
	for _, sub := range p.source.Subscriptions() {
		if sub.Family == model.FamilyCandle {
			subs = append(subs, sub)
		}
	}
	if len(subs) == 0 {
		p.logger.Debug("no candle subscriptions to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var fetched, failed atomic.Int64

	for _, sub := range subs {
		wg.Add(1)
		go func(sub model.Subscription) {
			defer wg.Done()

			// Acquire semaphore slot.
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			key := channel.RegistryKey(sub)
			if err := p.poll(key, sub); err != nil {
				p.logger.Warn("failed to poll candles",
					"key", key,
					"err", err,
				)
				failed.Add(1)
				return
			}

			fetched.Add(1)
		}(sub)
	}

	wg.Wait()
	p.fetched.Add(fetched.Load())
	p.errors.Add(failed.Load())

	p.logger.Info("poll cycle complete",
		"subscriptions", len(subs),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// poll fetches and handles one subscription's candles.
func (p *Poller) poll(key channel.Key, sub model.Subscription) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	candles, err := p.client.GetCandles(ctx, api.CandlesOptions{
		InstID:   sub.InstrumentID,
		Bar:      sub.Interval,
		Limit:    p.cfg.Limit,
		InstType: sub.InstrumentType,
	})
	if err != nil {
		return err
	}

	if p.handler != nil {
		return p.handler.HandleCandles(key, candles)
	}
	return nil
}
