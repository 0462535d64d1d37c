// streamer subscribes to OKX market data and prints normalized events to stdout.
// Usage: go run ./cmd/streamer --config configs/streamer.example.yaml
//
// Optional environment variables (also read from .env):
//
//	LOG_LEVEL                 - Overrides logging.level
//	OKX_STREAM_USER_ID        - Journal user id for session records
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/rickgao/okx-stream/internal/api"
	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/config"
	"github.com/rickgao/okx-stream/internal/database"
	"github.com/rickgao/okx-stream/internal/journal"
	"github.com/rickgao/okx-stream/internal/logging"
	"github.com/rickgao/okx-stream/internal/model"
	"github.com/rickgao/okx-stream/internal/poller"
	"github.com/rickgao/okx-stream/internal/stream"
	"github.com/rickgao/okx-stream/internal/version"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print acks and notices as well as data")
	statsEvery := flag.Duration("stats", 30*time.Second, "stats log interval (0 disables)")
	userFlag := flag.String("user", os.Getenv("OKX_STREAM_USER_ID"), "journal user id")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"instance", cfg.Instance.ID,
		"version", version.String(),
		"subscriptions", len(cfg.Subscriptions),
	)

	if err := run(cfg, *verbose, *statsEvery, *userFlag, logger); err != nil {
		logger.Error("streamer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, verbose bool, statsEvery time.Duration, userFlag string, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	subs := make([]model.Subscription, 0, len(cfg.Subscriptions))
	for _, sc := range cfg.Subscriptions {
		sub, err := sc.Subscription()
		if err != nil {
			return err
		}
		subs = append(subs, sub)
	}

	out := newPrinter(os.Stdout, verbose)

	client := stream.New(cfg.StreamConfig(version.UserAgent()), logger)
	client.OnError(func(err error) {
		var perr *stream.ProtocolError
		if errors.As(err, &perr) {
			logger.Warn("subscription rejected", "code", perr.Code, "msg", perr.Msg)
			return
		}
		logger.Error("stream error", "error", err)
	})
	backfill := newBackfill(cfg, subs, out, logger)
	connected := map[channel.Class]bool{}
	var connectedMu sync.Mutex
	client.OnConnect(func(class channel.Class) {
		logger.Info("connected", "conn", class)
		connectedMu.Lock()
		reconnect := connected[class]
		connected[class] = true
		connectedMu.Unlock()
		// Candles live on the business socket; refill what the outage missed.
		if reconnect && class == channel.ClassBusiness && backfill != nil {
			backfill.Trigger()
		}
	})
	client.OnDisconnect(func(class channel.Class, err error) {
		logger.Warn("disconnected", "conn", class, "error", err)
	})

	handles := make([]*stream.Handle, 0, len(subs))
	for _, sub := range subs {
		h, err := client.Subscribe(sub, out.handle)
		if err != nil {
			return fmt.Errorf("subscribe %s %s: %w", sub.Family, sub.InstrumentID, err)
		}
		handles = append(handles, h)
	}

	if backfill != nil {
		if err := backfill.Start(ctx); err != nil {
			return fmt.Errorf("start backfill: %w", err)
		}
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	stopSession := startSession(ctx, cfg, userFlag, handles, logger)

	if statsEvery > 0 {
		go logStats(ctx, client, statsEvery, logger)
	}

	logger.Info("streaming started - press Ctrl+C to stop")
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	for _, h := range handles {
		h.Unsubscribe()
	}
	if err := client.Disconnect(shutdownCtx); err != nil {
		logger.Warn("disconnect", "error", err)
	}
	if backfill != nil {
		if err := backfill.Stop(shutdownCtx); err != nil {
			logger.Warn("stop backfill", "error", err)
		}
	}
	stopSession(shutdownCtx)
	return nil
}

// newBackfill returns a candle poller when seeding is enabled.
func newBackfill(cfg *config.Config, subs []model.Subscription, out *printer, logger *slog.Logger) *poller.Poller {
	if cfg.REST.SeedCandles <= 0 {
		return nil
	}
	restClient := api.NewClient(cfg.OKX.RestURL,
		api.WithTimeout(cfg.REST.Timeout),
		api.WithRetries(cfg.REST.MaxRetries, time.Second),
		api.WithRateLimit(cfg.REST.RateLimit, cfg.REST.RateWindow),
		api.WithUserAgent(version.UserAgent()),
		api.WithLogger(logger),
	)

	pcfg := poller.DefaultConfig()
	pcfg.Limit = cfg.REST.SeedCandles
	pcfg.Interval = cfg.REST.PollInterval

	handler := poller.CandleHandlerFunc(func(key channel.Key, candles []model.Candle) error {
		events := make([]model.Event, len(candles))
		for i, candle := range candles {
			events[i] = candle
		}
		out.print("backfill", key.String(), true, events)
		return nil
	})
	return poller.New(pcfg, restClient, poller.StaticSource(subs), handler, logger)
}

// startSession records the run in the journal when a database is configured
// and returns a func that ends it.
func startSession(ctx context.Context, cfg *config.Config, userFlag string, handles []*stream.Handle, logger *slog.Logger) func(context.Context) {
	noop := func(context.Context) {}
	if !cfg.Database.Enabled() {
		return noop
	}

	userID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(cfg.Instance.ID))
	if userFlag != "" {
		parsed, err := uuid.Parse(userFlag)
		if err != nil {
			logger.Warn("invalid journal user id, using instance id", "user", userFlag, "error", err)
		} else {
			userID = parsed
		}
	}

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Warn("journal disabled", "error", err)
		return noop
	}

	store := journal.NewStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		logger.Warn("journal disabled", "error", err)
		pool.Close()
		return noop
	}

	keys := make([]string, 0, len(handles))
	for _, h := range handles {
		keys = append(keys, h.Key().String())
	}
	sess, err := store.CreateSession(ctx, journal.Session{
		UserID:   userID,
		Label:    cfg.Instance.ID,
		Channels: keys,
	})
	if err != nil {
		logger.Warn("journal session not recorded", "error", err)
		pool.Close()
		return noop
	}
	logger.Info("journal session started", "session", sess.ID, "user", userID)

	return func(ctx context.Context) {
		defer pool.Close()
		if err := store.EndSession(ctx, userID, sess.ID, time.Time{}); err != nil {
			logger.Warn("journal session not ended", "session", sess.ID, "error", err)
		}
	}
}

func logStats(ctx context.Context, client *stream.Client, every time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := client.Stats()
			for class, cs := range s.Connections {
				logger.Info("conn stats",
					"conn", class,
					"state", cs.State,
					"keys", cs.Keys,
					"subscribers", cs.Subscribers,
					"received", cs.MessagesReceived,
					"reconnects", cs.Reconnects,
					"stale", cs.Stale,
				)
			}
			logger.Info("stream stats",
				"classified", s.Normalizer.FramesClassified,
				"normalized", s.Normalizer.EventsNormalized,
				"parse_errors", s.Normalizer.ParseErrors,
				"dispatched", s.Dispatched,
				"dropped", s.Dropped,
				"panics", s.Panics,
			)
		}
	}
}

// printer writes one JSON line per delivered message.
type printer struct {
	mu      sync.Mutex
	enc     *json.Encoder
	verbose bool
}

type line struct {
	Type     string        `json:"type"`
	Key      string        `json:"key"`
	Snapshot bool          `json:"snapshot,omitempty"`
	Events   []model.Event `json:"events,omitempty"`
	Code     string        `json:"code,omitempty"`
	Msg      string        `json:"msg,omitempty"`
}

func newPrinter(w io.Writer, verbose bool) *printer {
	return &printer{enc: json.NewEncoder(w), verbose: verbose}
}

func (p *printer) handle(msg stream.Message) {
	switch msg.Type {
	case stream.MessageData:
		p.print(msg.Type.String(), msg.Key.String(), msg.IsSnapshot, msg.Events)
	case stream.MessageNotice:
		if msg.Notice != nil {
			p.write(line{Type: msg.Type.String(), Key: msg.Key.String(), Code: msg.Notice.Code, Msg: msg.Notice.Msg})
		}
	default:
		if p.verbose {
			p.write(line{Type: msg.Type.String(), Key: msg.Key.String()})
		}
	}
}

func (p *printer) print(typ, key string, snapshot bool, events []model.Event) {
	p.write(line{Type: typ, Key: key, Snapshot: snapshot, Events: events})
}

func (p *printer) write(l line) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.enc.Encode(l)
}
