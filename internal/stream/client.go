package stream

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/okx-stream/internal/channel"
	"github.com/rickgao/okx-stream/internal/connection"
	"github.com/rickgao/okx-stream/internal/registry"
	"github.com/rickgao/okx-stream/internal/router"
)

// Client is the market-data subscription client. Construct with New; the zero
// value is not usable.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	normalizer *router.Normalizer

	conns map[channel.Class]*conn

	hooksMu      sync.RWMutex
	onError      []func(error)
	onConnect    []func(channel.Class)
	onDisconnect []func(channel.Class, error)

	dispatched atomic.Int64
	dropped    atomic.Int64
	panics     atomic.Int64
}

// conn pairs a Manager with the registry of channels routed over it.
type conn struct {
	class  channel.Class
	mgr    connection.Manager
	reg    *registry.Registry[channel.Key, Handler]
	logger *slog.Logger

	// mu serializes registry transitions with the wire frames they emit.
	mu   sync.Mutex
	live map[channel.Key]struct{} // keys subscribed on the current socket
}

// New creates a Client with one Connection Manager per channel class.
// No socket is opened until Connect or the first Subscribe.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubscribeBatchSize <= 0 {
		cfg.SubscribeBatchSize = 50
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}

	c := &Client{
		cfg:        cfg,
		logger:     logger,
		normalizer: router.NewNormalizer(logger),
		conns:      make(map[channel.Class]*conn, 2),
	}

	urls := map[channel.Class]string{
		channel.ClassPublic:   cfg.PublicURL,
		channel.ClassBusiness: cfg.BusinessURL,
	}
	for class, url := range urls {
		c.conns[class] = c.newConn(class, url)
	}
	return c
}

func (c *Client) newConn(class channel.Class, url string) *conn {
	cn := &conn{
		class:  class,
		reg:    registry.New[channel.Key, Handler](),
		logger: c.logger.With("class", class),
		live:   make(map[channel.Key]struct{}),
	}

	mcfg := c.cfg.Connection
	mcfg.Name = string(class)
	mcfg.URL = url
	mcfg.Client.URL = url

	cn.mgr = connection.NewManager(mcfg, connection.Hooks{
		OnOpen:    func() { c.handleOpen(cn) },
		OnClose:   func(err error) { c.handleClose(cn, err) },
		OnMessage: func(data []byte, at time.Time) { c.dispatch(cn, data, at) },
		OnError:   c.emitError,
	}, c.logger)
	return cn
}

// Connect opens every connection class concurrently.
func (c *Client) Connect(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, cn := range c.conns {
		g.Go(func() error { return cn.mgr.Connect(ctx) })
	}
	return g.Wait()
}

// Disconnect closes every connection and disables reconnection. Registered
// subscriptions are kept and re-sent on the next Connect.
func (c *Client) Disconnect(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, cn := range c.conns {
		g.Go(func() error { return cn.mgr.Close(ctx) })
	}
	return g.Wait()
}

// IsConnected reports whether any connection is open.
func (c *Client) IsConnected() bool {
	for _, cn := range c.conns {
		if cn.mgr.State() == connection.StateOpen {
			return true
		}
	}
	return false
}

// State returns the lifecycle state of one connection class.
func (c *Client) State(class channel.Class) connection.State {
	cn, ok := c.conns[class]
	if !ok {
		return connection.StateClosed
	}
	return cn.mgr.State()
}

// OnError registers fn to receive protocol, dispatch, staleness and
// exhausted-reconnect errors.
func (c *Client) OnError(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onError = append(c.onError, fn)
}

// OnConnect registers fn to run each time a connection class opens, after its
// subscriptions have been re-sent.
func (c *Client) OnConnect(fn func(channel.Class)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

// OnDisconnect registers fn to run each time a connection class closes.
func (c *Client) OnDisconnect(fn func(channel.Class, error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	s := Stats{
		Connections: make(map[channel.Class]ConnStats, len(c.conns)),
		Normalizer:  c.normalizer.Stats(),
		Dispatched:  c.dispatched.Load(),
		Dropped:     c.dropped.Load(),
		Panics:      c.panics.Load(),
	}
	for class, cn := range c.conns {
		s.Connections[class] = ConnStats{
			Stats:       cn.mgr.Stats(),
			Keys:        cn.reg.Len(),
			Subscribers: cn.reg.Count(),
		}
	}
	return s
}

// Keys returns the active registry keys of a connection class, sorted.
func (c *Client) Keys(class channel.Class) []channel.Key {
	cn, ok := c.conns[class]
	if !ok {
		return nil
	}
	return sortedKeys(cn.reg.Keys())
}

// handleOpen re-issues a subscribe frame for every registered key not already
// live on the new socket.
func (c *Client) handleOpen(cn *conn) {
	cn.mu.Lock()
	var pending []channel.Key
	for _, k := range sortedKeys(cn.reg.Keys()) {
		if _, ok := cn.live[k]; !ok {
			pending = append(pending, k)
		}
	}
	for start := 0; start < len(pending); start += c.cfg.SubscribeBatchSize {
		end := min(start+c.cfg.SubscribeBatchSize, len(pending))
		batch := pending[start:end]
		if err := cn.send(opSubscribe, batch); err != nil {
			break
		}
		for _, k := range batch {
			cn.live[k] = struct{}{}
		}
	}
	cn.mu.Unlock()

	if len(pending) > 0 {
		cn.logger.Info("resubscribed channels", "count", len(pending))
	}

	c.hooksMu.RLock()
	hooks := slices.Clone(c.onConnect)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(cn.class)
	}
}

// handleClose forgets which keys were live; they are re-sent on the next open.
func (c *Client) handleClose(cn *conn, err error) {
	cn.mu.Lock()
	clear(cn.live)
	cn.mu.Unlock()

	c.hooksMu.RLock()
	hooks := slices.Clone(c.onDisconnect)
	c.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(cn.class, err)
	}
}

func (c *Client) emitError(err error) {
	c.hooksMu.RLock()
	hooks := slices.Clone(c.onError)
	c.hooksMu.RUnlock()

	for _, fn := range hooks {
		fn(err)
	}
}

// connect opens cn in the background on behalf of Subscribe.
func (c *Client) connect(cn *conn) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()

	if err := cn.mgr.Connect(ctx); err != nil {
		// The manager's reconnect policy retries; pending keys are sent on open.
		cn.logger.Debug("background connect failed", "error", err)
	}
}

// send writes one control frame for keys. Must be called with cn.mu held.
func (cn *conn) send(op string, keys []channel.Key) error {
	args := make([]channel.Arg, len(keys))
	for i, k := range keys {
		args[i] = k.Arg()
	}
	return cn.mgr.SendJSON(request{Op: op, Args: args})
}

func sortedKeys(keys []channel.Key) []channel.Key {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
