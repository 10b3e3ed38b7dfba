package server

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// gateConn blocks every Write until release is closed.
type gateConn struct {
	recordConn
	release chan struct{}
	entered atomic.Int32
}

func (c *gateConn) Write(p []byte) (int, error) {
	c.entered.Add(1)
	<-c.release
	return c.recordConn.Write(p)
}

func TestSendWaitsForSpace(t *testing.T) {
	conn := &gateConn{release: make(chan struct{})}
	out := newOutbound(conn, 1, 2*time.Second, nil)
	t.Cleanup(out.abort)

	if err := out.send("one"); err != nil {
		t.Fatalf("send one: %v", err)
	}
	// The writer holds "one" in a blocked Write; "two" fills the queue.
	waitFor(t, "writer to block", func() bool { return conn.entered.Load() == 1 })
	if err := out.send("two"); err != nil {
		t.Fatalf("send two: %v", err)
	}

	var wg sync.WaitGroup
	var sendErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		sendErr = out.send("three")
	}()
	time.Sleep(50 * time.Millisecond)
	close(conn.release)
	wg.Wait()

	if sendErr != nil {
		t.Fatalf("send three: %v", sendErr)
	}
	waitFor(t, "all lines", func() bool { return len(conn.lines()) == 3 })
	if diff := cmp.Diff([]string{"one", "two", "three"}, conn.lines()); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestSendQueueFullAfterTimeout(t *testing.T) {
	conn := &gateConn{release: make(chan struct{})}
	out := newOutbound(conn, 1, 50*time.Millisecond, nil)
	t.Cleanup(func() {
		close(conn.release)
		out.abort()
	})

	_ = out.send("one")
	waitFor(t, "writer to block", func() bool { return conn.entered.Load() == 1 })
	_ = out.send("two")

	start := time.Now()
	if err := out.send("three"); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("send three: got %v, want ErrSendQueueFull", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("send gave up after %v, before the write timeout", elapsed)
	}
	if conn.isClosed() {
		t.Fatal("full queue closed the connection")
	}
}

func TestSendAfterClose(t *testing.T) {
	out := newOutbound(&recordConn{}, 4, time.Second, nil)
	out.close()
	if err := out.send("late"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("got %v, want ErrSessionClosed", err)
	}
	if !out.wait(time.Second) {
		t.Fatal("writer did not exit")
	}
}

func TestMultiLineItem(t *testing.T) {
	conn := &recordConn{}
	sess := newTestSession(t, "a", conn, nil)
	want := []string{"INFO Online users (2):", "USER alice (online for 0 minutes)", "USER bob (online for 0 minutes)"}
	if err := sess.Send(want...); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "lines", func() bool { return len(conn.lines()) == len(want) })
	if diff := cmp.Diff(want, conn.lines()); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
	if strings.Contains(strings.Join(conn.lines(), ""), "\n") {
		t.Fatal("unsplit newline in output")
	}
}
