package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// eventually polls cond until it holds or the timeout elapses.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

func testManagerConfig(url string) ManagerConfig {
	cfg := DefaultManagerConfig()
	cfg.Name = "test"
	cfg.URL = url
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 50 * time.Millisecond
	cfg.Client = testClientConfig(url)
	return cfg
}

// hookRecorder counts hook invocations.
type hookRecorder struct {
	opens  atomic.Int32
	closes atomic.Int32

	mu       sync.Mutex
	messages []string
	errs     []error
}

func (h *hookRecorder) hooks() Hooks {
	return Hooks{
		OnOpen:  func() { h.opens.Add(1) },
		OnClose: func(error) { h.closes.Add(1) },
		OnMessage: func(data []byte, _ time.Time) {
			h.mu.Lock()
			h.messages = append(h.messages, string(data))
			h.mu.Unlock()
		},
		OnError: func(err error) {
			h.mu.Lock()
			h.errs = append(h.errs, err)
			h.mu.Unlock()
		},
	}
}

func (h *hookRecorder) hasError(target error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, err := range h.errs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (h *hookRecorder) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// countingServer counts accepted upgrades and runs handler per connection.
func countingServer(t *testing.T, handler func(n int32, conn *websocket.Conn)) (*httptest.Server, *atomic.Int32) {
	var count atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		handler(count.Add(1), conn)
	})
	return server, &count
}

func TestManager_ConnectIdempotent(t *testing.T) {
	server, count := countingServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	rec := &hookRecorder{}
	m := NewManager(testManagerConfig(wsURL(server)), rec.hooks(), nil)
	defer m.Close(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Connect(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Connect failed: %v", err)
		}
	}

	// A further call on an open socket returns immediately.
	if err := m.Connect(ctx); err != nil {
		t.Errorf("Connect on open manager: %v", err)
	}

	if m.State() != StateOpen {
		t.Errorf("State() = %s, want open", m.State())
	}
	if got := count.Load(); got != 1 {
		t.Errorf("server accepted %d connections, want 1", got)
	}
	if got := rec.opens.Load(); got != 1 {
		t.Errorf("OnOpen called %d times, want 1", got)
	}
}

func TestManager_SendWhenClosed(t *testing.T) {
	m := NewManager(testManagerConfig("ws://127.0.0.1:1"), Hooks{}, nil)

	if err := m.Send([]byte("ping")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
	if m.State() != StateClosed {
		t.Errorf("State() = %s, want closed", m.State())
	}
}

func TestManager_DeliversInOrderAndSwallowsPong(t *testing.T) {
	frames := []string{`{"n":1}`, "pong", `{"n":2}`, `{"n":3}`}
	server, _ := countingServer(t, func(_ int32, conn *websocket.Conn) {
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		drain(conn)
	})
	defer server.Close()

	rec := &hookRecorder{}
	m := NewManager(testManagerConfig(wsURL(server)), rec.hooks(), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	eventually(t, time.Second, func() bool { return rec.messageCount() == 3 }, "three data frames")

	rec.mu.Lock()
	got := append([]string(nil), rec.messages...)
	rec.mu.Unlock()
	want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
	if s := m.Stats(); s.MessagesReceived != 4 {
		t.Errorf("MessagesReceived = %d, want 4 (pong counts as traffic)", s.MessagesReceived)
	}
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	server, count := countingServer(t, func(n int32, conn *websocket.Conn) {
		if n == 1 {
			// Drop the first session abruptly.
			return
		}
		drain(conn)
	})
	defer server.Close()

	rec := &hookRecorder{}
	m := NewManager(testManagerConfig(wsURL(server)), rec.hooks(), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return rec.opens.Load() == 2 && m.State() == StateOpen }, "reconnect")

	if rec.closes.Load() != 1 {
		t.Errorf("OnClose called %d times, want 1", rec.closes.Load())
	}
	if count.Load() != 2 {
		t.Errorf("server accepted %d connections, want 2", count.Load())
	}
	s := m.Stats()
	if s.Reconnects != 1 {
		t.Errorf("Reconnects = %d, want 1", s.Reconnects)
	}
	if s.Attempts != 0 {
		t.Errorf("Attempts = %d, want reset to 0 after open", s.Attempts)
	}
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	server := httptest.NewServer(nil)
	url := wsURL(server)
	server.Close()

	rec := &hookRecorder{}
	cfg := testManagerConfig(url)
	cfg.MaxReconnectAttempts = 2
	cfg.ReconnectBaseWait = 5 * time.Millisecond
	m := NewManager(cfg, rec.hooks(), nil)

	err := m.Connect(context.Background())
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "dial" {
		t.Fatalf("Connect error = %v, want dial TransportError", err)
	}

	eventually(t, 2*time.Second, func() bool { return rec.hasError(ErrReconnectExhausted) }, "exhausted error")

	if m.State() != StateClosed {
		t.Errorf("State() = %s, want closed", m.State())
	}
	if s := m.Stats(); s.Reconnects != 2 {
		t.Errorf("Reconnects = %d, want 2", s.Reconnects)
	}
}

func TestManager_CloseDisablesReconnect(t *testing.T) {
	server, count := countingServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	rec := &hookRecorder{}
	m := NewManager(testManagerConfig(wsURL(server)), rec.hooks(), nil)

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if m.State() != StateClosed {
		t.Errorf("State() = %s, want closed", m.State())
	}
	if rec.closes.Load() != 1 {
		t.Errorf("OnClose called %d times, want 1", rec.closes.Load())
	}

	time.Sleep(100 * time.Millisecond)
	if count.Load() != 1 {
		t.Errorf("server accepted %d connections after Close, want 1", count.Load())
	}
	if err := m.Send([]byte("x")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after Close = %v, want ErrNotConnected", err)
	}

	// Closed is not terminal: a fresh Connect opens a new session.
	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("reconnect after Close failed: %v", err)
	}
	if count.Load() != 2 {
		t.Errorf("server accepted %d connections, want 2", count.Load())
	}
	m.Close(ctx)
}

func TestManager_SendsPingWhenIdle(t *testing.T) {
	pings := make(chan struct{}, 4)
	server, _ := countingServer(t, func(_ int32, conn *websocket.Conn) {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if string(data) == "ping" {
				pings <- struct{}{}
				conn.WriteMessage(websocket.TextMessage, []byte("pong"))
			}
		}
	})
	defer server.Close()

	rec := &hookRecorder{}
	cfg := testManagerConfig(wsURL(server))
	cfg.PingInterval = 40 * time.Millisecond
	cfg.StaleTimeout = time.Second
	cfg.CheckInterval = 10 * time.Millisecond
	m := NewManager(cfg, rec.hooks(), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	select {
	case <-pings:
	case <-time.After(time.Second):
		t.Fatal("expected ping after idle interval")
	}

	eventually(t, time.Second, func() bool { return m.Stats().MessagesReceived >= 1 }, "pong received")

	if rec.messageCount() != 0 {
		t.Errorf("pong must not reach OnMessage, got %d messages", rec.messageCount())
	}
	if m.Stats().Stale {
		t.Error("connection answering pings should not be stale")
	}
}

func TestManager_FlagsStaleWithoutClosing(t *testing.T) {
	server, count := countingServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	rec := &hookRecorder{}
	cfg := testManagerConfig(wsURL(server))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.StaleTimeout = 20 * time.Millisecond
	cfg.CheckInterval = 5 * time.Millisecond
	m := NewManager(cfg, rec.hooks(), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	eventually(t, time.Second, func() bool { return rec.hasError(ErrStaleConnection) }, "stale error")

	if !m.Stats().Stale {
		t.Error("Stats().Stale should be set")
	}
	time.Sleep(50 * time.Millisecond)
	if m.State() != StateOpen {
		t.Errorf("State() = %s, stale socket should stay open by default", m.State())
	}
	if count.Load() != 1 {
		t.Errorf("server accepted %d connections, want 1", count.Load())
	}
}

func TestManager_ReconnectOnStale(t *testing.T) {
	server, _ := countingServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	rec := &hookRecorder{}
	cfg := testManagerConfig(wsURL(server))
	cfg.PingInterval = 20 * time.Millisecond
	cfg.StaleTimeout = 20 * time.Millisecond
	cfg.CheckInterval = 5 * time.Millisecond
	cfg.ReconnectOnStale = true
	m := NewManager(cfg, rec.hooks(), nil)
	defer m.Close(context.Background())

	if err := m.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	eventually(t, 2*time.Second, func() bool { return rec.opens.Load() >= 2 }, "reconnect after stale")
}

func TestManager_CloseWhileConnecting(t *testing.T) {
	release := make(chan struct{})
	server, _ := countingServer(t, func(_ int32, conn *websocket.Conn) { drain(conn) })
	defer server.Close()

	m := newManager(testManagerConfig(wsURL(server)), Hooks{}, nil)
	m.newClient = func(cfg ClientConfig, logger *slog.Logger) Client {
		return &blockingClient{Client: NewClient(cfg, logger), release: release}
	}

	errc := make(chan error, 1)
	go func() { errc <- m.Connect(context.Background()) }()

	eventually(t, time.Second, func() bool { return m.State() == StateConnecting }, "connecting")
	if err := m.Close(context.Background()); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	close(release)

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("Connect error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Connect did not return after Close")
	}

	time.Sleep(50 * time.Millisecond)
	if m.State() != StateClosed {
		t.Errorf("State() = %s, want closed", m.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:     "closed",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosing:    "closing",
		State(99):       "unknown",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}

// blockingClient holds Connect until release is closed.
type blockingClient struct {
	Client
	release chan struct{}
}

func (c *blockingClient) Connect(ctx context.Context) error {
	<-c.release
	return c.Client.Connect(ctx)
}
