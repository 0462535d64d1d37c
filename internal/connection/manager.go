package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Manager owns one physical socket, its lifecycle state machine, heartbeat
// and reconnection policy.
type Manager interface {
	// Connect opens the socket if it is not already open or opening and
	// blocks until the attempt resolves or ctx is done. Concurrent and
	// redundant calls share a single dial.
	Connect(ctx context.Context) error

	// Close shuts the socket down and disables reconnection. It waits for the
	// session to end or ctx to be done.
	Close(ctx context.Context) error

	// Send writes a text frame. It is a no-op returning ErrNotConnected
	// unless the state is Open.
	Send(data []byte) error

	// SendJSON marshals v and sends it.
	SendJSON(v any) error

	// State returns the current lifecycle state.
	State() State

	// Stats returns current connection statistics.
	Stats() Stats
}

// manager implements the Manager interface.
type manager struct {
	cfg    ManagerConfig
	hooks  Hooks
	logger *slog.Logger

	newClient func(ClientConfig, *slog.Logger) Client

	mu               sync.Mutex
	state            State
	client           Client
	session          uint64
	sessionDone      chan struct{}
	dialCancel       context.CancelFunc
	attempts         int
	desiredReconnect bool
	waiters          []chan error
	backoff          *backoff.ExponentialBackOff
	reconnectTimer   *time.Timer

	lastMessage atomic.Int64 // unix nanos
	pingSentAt  atomic.Int64 // unix nanos, 0 when no ping outstanding
	stale       atomic.Bool
	received    atomic.Int64
	sent        atomic.Int64
	reconnects  atomic.Int64
}

// NewManager creates a new Connection Manager in the Closed state.
func NewManager(cfg ManagerConfig, hooks Hooks, logger *slog.Logger) Manager {
	return newManager(cfg, hooks, logger)
}

func newManager(cfg ManagerConfig, hooks Hooks, logger *slog.Logger) *manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Client.URL == "" {
		cfg.Client.URL = cfg.URL
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.ReconnectBaseWait > 0 {
		bo.InitialInterval = cfg.ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait > 0 {
		bo.MaxInterval = cfg.ReconnectMaxWait
	}
	bo.Reset()

	return &manager{
		cfg:       cfg,
		hooks:     hooks,
		logger:    logger.With("conn", cfg.Name),
		newClient: NewClient,
		state:     StateClosed,
		backoff:   bo,
	}
}

// Connect opens the socket.
func (m *manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateOpen:
		m.mu.Unlock()
		return nil
	case StateClosing:
		m.mu.Unlock()
		return ErrClosed
	case StateConnecting:
		ch := m.addWaiterLocked()
		m.mu.Unlock()
		return waitFor(ctx, ch)
	}

	// Closed: a caller-driven connect starts a fresh attempt cycle and
	// preempts any pending backoff timer.
	m.desiredReconnect = true
	m.attempts = 0
	m.backoff.Reset()
	m.stopReconnectTimerLocked()
	m.state = StateConnecting
	ch := m.addWaiterLocked()
	m.mu.Unlock()

	go m.dial()
	return waitFor(ctx, ch)
}

// Close shuts the socket down and disables reconnection.
func (m *manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.desiredReconnect = false
	m.stopReconnectTimerLocked()

	switch m.state {
	case StateClosed:
		waiters := m.takeWaitersLocked()
		m.mu.Unlock()
		resolve(waiters, ErrClosed)
		return nil

	case StateConnecting:
		// Invalidate the in-flight dial; it closes its own client on return.
		m.session++
		if m.dialCancel != nil {
			m.dialCancel()
		}
		m.state = StateClosed
		waiters := m.takeWaitersLocked()
		m.mu.Unlock()
		resolve(waiters, ErrClosed)
		m.logger.Info("websocket connect cancelled")
		return nil
	}

	// Open or already Closing.
	client := m.client
	done := m.sessionDone
	if m.state == StateOpen {
		m.state = StateClosing
	}
	m.mu.Unlock()

	m.logger.Info("closing websocket")
	if client != nil {
		client.Close()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		m.logger.Warn("websocket close timed out")
		return ctx.Err()
	}
}

// Send writes a text frame.
func (m *manager) Send(data []byte) error {
	m.mu.Lock()
	state, client := m.state, m.client
	m.mu.Unlock()

	if state != StateOpen || client == nil {
		m.logger.Warn("send while not connected, dropping frame",
			"state", state,
			"bytes", len(data),
		)
		return ErrNotConnected
	}

	if err := client.Send(data); err != nil {
		m.logger.Warn("send failed", "error", err)
		return &TransportError{Op: "send", URL: m.cfg.URL, Err: err}
	}
	m.sent.Add(1)
	return nil
}

// SendJSON marshals v and sends it.
func (m *manager) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return m.Send(data)
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns current statistics.
func (m *manager) Stats() Stats {
	m.mu.Lock()
	state, attempts := m.state, m.attempts
	m.mu.Unlock()

	var last time.Time
	if ns := m.lastMessage.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Stats{
		State:            state,
		Attempts:         attempts,
		Reconnects:       m.reconnects.Load(),
		MessagesReceived: m.received.Load(),
		MessagesSent:     m.sent.Load(),
		LastMessageAt:    last,
		Stale:            m.stale.Load(),
	}
}

// dial performs one connection attempt for the current Connecting state.
func (m *manager) dial() {
	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.session++
	session := m.session
	timeout := m.cfg.Client.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	m.dialCancel = cancel
	m.mu.Unlock()

	client := m.newClient(m.cfg.Client, m.logger)
	err := client.Connect(ctx)
	cancel()

	m.mu.Lock()
	if session != m.session || m.state != StateConnecting {
		// Close() won the race.
		m.mu.Unlock()
		client.Close()
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.state = StateClosed
		waiters := m.takeWaitersLocked()
		attempt := m.attempts
		m.mu.Unlock()

		terr := &TransportError{Op: "dial", URL: m.cfg.URL, Err: err}
		m.logger.Warn("websocket dial failed",
			"attempt", attempt,
			"error", err,
		)
		resolve(waiters, terr)
		m.scheduleReconnect()
		return
	}

	done := make(chan struct{})
	m.state = StateOpen
	m.client = client
	m.sessionDone = done
	m.attempts = 0
	m.backoff.Reset()
	waiters := m.takeWaitersLocked()
	m.mu.Unlock()

	m.lastMessage.Store(time.Now().UnixNano())
	m.pingSentAt.Store(0)
	m.stale.Store(false)

	go m.readLoop(session, client)
	go m.heartbeatLoop(session, done)

	m.logger.Info("websocket connected", "url", m.cfg.URL)

	if m.hooks.OnOpen != nil {
		m.hooks.OnOpen()
	}
	resolve(waiters, nil)
}

// readLoop delivers inbound frames in order until the client's queue drains.
func (m *manager) readLoop(session uint64, client Client) {
	for {
		msg, ok := client.Receive()
		if !ok {
			break
		}

		m.lastMessage.Store(msg.ReceivedAt.UnixNano())
		m.pingSentAt.Store(0)
		if m.stale.Swap(false) {
			m.logger.Info("websocket traffic resumed")
		}
		m.received.Add(1)

		if bytes.Equal(msg.Data, pongFrame) {
			continue
		}
		if m.hooks.OnMessage != nil {
			m.hooks.OnMessage(msg.Data, msg.ReceivedAt)
		}
	}

	var err error
	select {
	case err = <-client.Errors():
	default:
	}
	m.handleClose(session, client, err)
}

// handleClose transitions a finished session to Closed and applies the
// reconnection policy.
func (m *manager) handleClose(session uint64, client Client, err error) {
	m.mu.Lock()
	if session != m.session || (m.state != StateOpen && m.state != StateClosing) {
		m.mu.Unlock()
		client.Close()
		return
	}

	requested := m.state == StateClosing
	m.state = StateClosed
	m.client = nil
	done := m.sessionDone
	m.sessionDone = nil
	retry := m.desiredReconnect && !requested
	m.mu.Unlock()

	client.Close()

	if requested {
		m.logger.Info("websocket closed")
	} else {
		m.logger.Warn("websocket disconnected", "error", err)
	}

	if m.hooks.OnClose != nil {
		m.hooks.OnClose(err)
	}
	if done != nil {
		close(done)
	}
	if retry {
		m.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer for the next attempt, or gives up
// once MaxReconnectAttempts consecutive attempts have failed.
func (m *manager) scheduleReconnect() {
	m.mu.Lock()
	if !m.desiredReconnect || m.state != StateClosed || m.reconnectTimer != nil {
		m.mu.Unlock()
		return
	}

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		attempts := m.attempts
		m.desiredReconnect = false
		m.mu.Unlock()

		m.logger.Error("giving up reconnecting", "attempts", attempts)
		if m.hooks.OnError != nil {
			m.hooks.OnError(&TransportError{Op: "reconnect", URL: m.cfg.URL, Err: ErrReconnectExhausted})
		}
		return
	}

	m.attempts++
	attempt := m.attempts
	delay := m.backoff.NextBackOff()
	m.reconnectTimer = time.AfterFunc(delay, m.reconnect)
	m.mu.Unlock()

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
}

// reconnect is the backoff timer callback.
func (m *manager) reconnect() {
	m.mu.Lock()
	m.reconnectTimer = nil
	if m.state != StateClosed || !m.desiredReconnect {
		m.mu.Unlock()
		return
	}
	m.state = StateConnecting
	m.mu.Unlock()

	m.reconnects.Add(1)
	m.dial()
}

// heartbeatLoop pings an idle connection and flags staleness.
func (m *manager) heartbeatLoop(session uint64, done <-chan struct{}) {
	interval := m.cfg.CheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			m.checkLiveness(session, now)
		}
	}
}

func (m *manager) checkLiveness(session uint64, now time.Time) {
	last := time.Unix(0, m.lastMessage.Load())
	idle := now.Sub(last)

	if idle >= m.cfg.PingInterval && m.pingSentAt.Load() == 0 {
		if err := m.Send(pingFrame); err == nil {
			m.pingSentAt.Store(now.UnixNano())
			m.logger.Debug("sent ping", "idle", idle)
		}
	}

	if idle < m.cfg.PingInterval+m.cfg.StaleTimeout || m.stale.Swap(true) {
		return
	}

	m.logger.Warn("websocket stale, no inbound frames",
		"idle", idle,
		"last_message", last,
	)
	if m.hooks.OnError != nil {
		m.hooks.OnError(ErrStaleConnection)
	}

	if m.cfg.ReconnectOnStale {
		m.mu.Lock()
		var client Client
		if session == m.session && m.state == StateOpen {
			client = m.client
		}
		m.mu.Unlock()
		if client != nil {
			m.logger.Info("forcing reconnect of stale websocket")
			client.Close()
		}
	}
}

func (m *manager) addWaiterLocked() chan error {
	ch := make(chan error, 1)
	m.waiters = append(m.waiters, ch)
	return ch
}

func (m *manager) takeWaitersLocked() []chan error {
	w := m.waiters
	m.waiters = nil
	return w
}

func (m *manager) stopReconnectTimerLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func resolve(waiters []chan error, err error) {
	for _, ch := range waiters {
		ch <- err
	}
}

func waitFor(ctx context.Context, ch <-chan error) error {
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
