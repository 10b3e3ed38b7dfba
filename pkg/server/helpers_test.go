package server

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/NicolasHaas/linechat/pkg/datastore"
)

// recordConn is a net.Conn that accepts every write and records it.
type recordConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (c *recordConn) Read(_ []byte) (int, error) { return 0, io.EOF }
func (c *recordConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.buf.Write(p)
}
func (c *recordConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
func (c *recordConn) LocalAddr() net.Addr                { return &net.IPAddr{} }
func (c *recordConn) RemoteAddr() net.Addr               { return &net.IPAddr{} }
func (c *recordConn) SetDeadline(_ time.Time) error      { return nil }
func (c *recordConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *recordConn) SetWriteDeadline(_ time.Time) error { return nil }

func (c *recordConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := strings.TrimSuffix(c.buf.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func (c *recordConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// newTestSession builds a session backed by a running writer.
func newTestSession(t *testing.T, id string, conn net.Conn, onFail func(error)) *Session {
	t.Helper()
	out := newOutbound(conn, 16, time.Second, onFail)
	t.Cleanup(out.abort)
	return newSession(id, "test", time.Now(), out)
}

// newStalledSession builds a session whose queue is already full and never
// drains, like a peer whose writer is stuck in a slow write.
func newStalledSession(id string, conn net.Conn) *Session {
	out := &outbound{
		conn:         conn,
		queue:        make(chan string, 1),
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
		writeTimeout: 50 * time.Millisecond,
	}
	out.queue <- "backlog"
	return newSession(id, "test", time.Now(), out)
}

func newTestRouter(t *testing.T) (*Router, *Registry, *datastore.MemoryStore) {
	t.Helper()
	reg := NewRegistry()
	events := datastore.NewMemory()
	audit := &auditLog{store: events, clock: clocktesting.NewFakePassiveClock(time.Now())}
	return newRouter(reg, NewMetrics(reg.Count), audit), reg, events
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.IdleTimeout = 5 * time.Second
	cfg.WriteTimeout = time.Second
	cfg.ShutdownGrace = 2 * time.Second
	return cfg
}

// startServer runs a server on a loopback port until the test ends.
func startServer(t *testing.T, cfg Config, deps Dependencies) *Server {
	t.Helper()
	srv := New(cfg, deps)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Shutdown(context.Background())
		_ = srv.Close()
	})
	return srv
}

// client is a line-oriented test client.
type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, srv *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", srv.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) send(line string) {
	c.t.Helper()
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		c.t.Fatalf("send %q: %v", line, err)
	}
}

func (c *client) read() string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.t.Fatalf("read: %v (partial %q)", err, line)
	}
	return strings.TrimSuffix(line, "\n")
}

func (c *client) expect(want string) {
	c.t.Helper()
	if got := c.read(); got != want {
		c.t.Fatalf("got %q, want %q", got, want)
	}
}

// expectClosed reads until EOF, failing on anything but the given lines.
func (c *client) expectClosed() {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if line, err := c.r.ReadString('\n'); err == nil {
		c.t.Fatalf("expected close, got %q", line)
	}
}

const loginPrompt = "INFO Please login using: LOGIN <username>"

// login completes the login handshake as name.
func (c *client) login(name string) {
	c.t.Helper()
	c.expect(loginPrompt)
	c.send("LOGIN " + name)
	c.expect("OK")
}
