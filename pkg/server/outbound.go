package server

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"time"
)

var (
	// ErrSessionClosed is returned when sending to a closed connection.
	ErrSessionClosed = errors.New("server: session closed")
	// ErrSendQueueFull is returned when a queue stayed full for a whole
	// write timeout. The item is lost; the peer is not considered dead.
	ErrSendQueueFull = errors.New("server: send queue full")
)

// outbound owns the write side of one connection: a bounded FIFO of lines
// drained by a single writer goroutine. Only a failed or timed-out write
// marks the peer dead; a full queue just makes senders wait a bounded time.
type outbound struct {
	conn         net.Conn
	queue        chan string
	done         chan struct{} // closed when no more lines are accepted
	finished     chan struct{} // closed when the writer goroutine exits
	closeOnce    sync.Once
	writeTimeout time.Duration
	onFail       func(error) // called at most once, from the writer goroutine
}

func newOutbound(conn net.Conn, size int, writeTimeout time.Duration, onFail func(error)) *outbound {
	if size <= 0 {
		size = 1
	}
	o := &outbound{
		conn:         conn,
		queue:        make(chan string, size),
		done:         make(chan struct{}),
		finished:     make(chan struct{}),
		writeTimeout: writeTimeout,
		onFail:       onFail,
	}
	go o.writeLoop()
	return o
}

// send queues one item, which may hold several newline-separated lines.
// When the queue is full it waits up to writeTimeout for the writer to make
// room. A peer that is merely slow never fails here; ErrSendQueueFull only
// means this item was not queued.
func (o *outbound) send(item string) error {
	select {
	case <-o.done:
		return ErrSessionClosed
	default:
	}
	select {
	case o.queue <- item:
		return nil
	default:
	}

	t := time.NewTimer(o.writeTimeout)
	defer t.Stop()
	select {
	case o.queue <- item:
		return nil
	case <-o.done:
		return ErrSessionClosed
	case <-t.C:
		return ErrSendQueueFull
	}
}

// close stops accepting lines; already queued lines are still flushed.
func (o *outbound) close() {
	o.closeOnce.Do(func() { close(o.done) })
}

// abort stops accepting lines and closes the connection immediately.
func (o *outbound) abort() {
	o.close()
	_ = o.conn.Close()
}

// wait blocks until the writer has exited or the timeout elapses.
func (o *outbound) wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-o.finished:
		return true
	case <-t.C:
		return false
	}
}

func (o *outbound) writeLoop() {
	defer close(o.finished)
	defer func() { _ = o.conn.Close() }()

	w := bufio.NewWriter(o.conn)
	for {
		select {
		case line := <-o.queue:
			if err := o.write(w, line); err != nil {
				o.close()
				if o.onFail != nil {
					o.onFail(err)
				}
				return
			}
		case <-o.done:
			o.drain(w)
			return
		}
	}
}

// write buffers one line and flushes once the queue is empty.
func (o *outbound) write(w *bufio.Writer, line string) error {
	if err := o.conn.SetWriteDeadline(time.Now().Add(o.writeTimeout)); err != nil {
		return err
	}
	if _, err := w.WriteString(line + "\n"); err != nil {
		return err
	}
	if len(o.queue) == 0 {
		return w.Flush()
	}
	return nil
}

func (o *outbound) drain(w *bufio.Writer) {
	for {
		select {
		case line := <-o.queue:
			if err := o.write(w, line); err != nil {
				return
			}
		default:
			_ = w.Flush()
			return
		}
	}
}
