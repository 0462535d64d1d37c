package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/okx-stream/internal/channel"
)

// fakeOKX is a minimal OKX socket endpoint. It records control frames per
// class, acknowledges subscriptions and lets tests push frames.
type fakeOKX struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	conns    map[channel.Class][]*fakeConn
	requests []recordedRequest
	accepts  map[channel.Class]int
	noAck    bool
}

// fakeConn serializes writes from the serve loop and test pushes.
type fakeConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *fakeConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

type recordedRequest struct {
	Class channel.Class
	Op    string
	Args  []channel.Arg
}

func newFakeOKX(t *testing.T) *fakeOKX {
	t.Helper()
	f := &fakeOKX{
		t:       t,
		conns:   make(map[channel.Class][]*fakeConn),
		accepts: make(map[channel.Class]int),
	}

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		class := channel.ClassPublic
		if strings.HasSuffix(r.URL.Path, "/business") {
			class = channel.ClassBusiness
		}
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		fc := &fakeConn{ws: ws}
		f.mu.Lock()
		f.conns[class] = append(f.conns[class], fc)
		f.accepts[class]++
		f.mu.Unlock()
		f.serve(class, fc)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeOKX) serve(class channel.Class, fc *fakeConn) {
	defer fc.ws.Close()
	for {
		_, data, err := fc.ws.ReadMessage()
		if err != nil {
			return
		}
		if string(data) == "ping" {
			fc.write([]byte("pong"))
			continue
		}

		var req request
		if err := json.Unmarshal(data, &req); err != nil {
			f.t.Errorf("fake okx: bad request %q: %v", data, err)
			continue
		}
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{Class: class, Op: req.Op, Args: req.Args})
		noAck := f.noAck
		f.mu.Unlock()

		if noAck {
			continue
		}
		for _, arg := range req.Args {
			ack, _ := json.Marshal(map[string]any{"event": req.Op, "arg": arg, "connId": "fake"})
			fc.write(ack)
		}
	}
}

func (f *fakeOKX) url(class channel.Class) string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/v5/" + string(class)
}

// push writes a frame to the newest connection of class.
func (f *fakeOKX) push(class channel.Class, frame string) {
	f.t.Helper()
	f.mu.Lock()
	conns := f.conns[class]
	f.mu.Unlock()
	if len(conns) == 0 {
		f.t.Fatalf("fake okx: no %s connection", class)
	}
	if err := conns[len(conns)-1].write([]byte(frame)); err != nil {
		f.t.Fatalf("fake okx: push: %v", err)
	}
}

// dropAll abruptly closes every live connection.
func (f *fakeOKX) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for class, conns := range f.conns {
		for _, fc := range conns {
			fc.ws.Close()
		}
		f.conns[class] = nil
	}
}

// args returns every arg sent with op on class, in order.
func (f *fakeOKX) args(class channel.Class, op string) []channel.Arg {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []channel.Arg
	for _, r := range f.requests {
		if r.Class == class && r.Op == op {
			out = append(out, r.Args...)
		}
	}
	return out
}

func (f *fakeOKX) frameCount(class channel.Class, op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Class == class && r.Op == op {
			n++
		}
	}
	return n
}

func (f *fakeOKX) resetRequests() {
	f.mu.Lock()
	f.requests = nil
	f.mu.Unlock()
}

func (f *fakeOKX) acceptCount(class channel.Class) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accepts[class]
}

func (f *fakeOKX) config() Config {
	cfg := DefaultConfig()
	cfg.PublicURL = f.url(channel.ClassPublic)
	cfg.BusinessURL = f.url(channel.ClassBusiness)
	cfg.Connection.ReconnectBaseWait = 10 * time.Millisecond
	cfg.Connection.ReconnectMaxWait = 50 * time.Millisecond
	cfg.Connection.Client.HandshakeTimeout = time.Second
	cfg.ConnectTimeout = 2 * time.Second
	return cfg
}

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

// collector is a Handler that records data messages.
type collector struct {
	mu   sync.Mutex
	msgs []Message
}

func (c *collector) handle(m Message) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *collector) ofType(typ MessageType) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, m := range c.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}
