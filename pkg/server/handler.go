package server

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
)

type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateUnauthenticated:
		return "unauthenticated"
	case stateAuthenticated:
		return "authenticated"
	default:
		return "closed"
	}
}

// connHandler drives one connection through login, command processing and
// cleanup. Mutable fields other than session are owned by the handler
// goroutine.
type connHandler struct {
	srv    *Server
	conn   net.Conn
	id     string
	remote string
	log    *slog.Logger
	reader *protocol.LineReader
	out    *outbound

	state   connState
	session atomic.Pointer[Session] // read by the writer goroutine on failure

	closeOnce sync.Once
}

func newConnHandler(srv *Server, conn net.Conn) *connHandler {
	id := uuid.NewString()
	remote := conn.RemoteAddr().String()
	h := &connHandler{
		srv:    srv,
		conn:   conn,
		id:     id,
		remote: remote,
		log:    slog.With("conn", id, "remote", remote),
		reader: protocol.NewLineReader(conn),
	}
	h.out = newOutbound(conn, srv.cfg.SendQueueSize, srv.cfg.WriteTimeout, h.onWriteFailure)
	return h
}

// handleConn handles a single connection lifecycle.
func (s *Server) handleConn(conn net.Conn) {
	h := newConnHandler(s, conn)
	s.track(h)
	defer s.untrack(h)

	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()
	defer s.metrics.ConnectionsActive.Dec()
	h.log.Debug("new connection")

	reason := h.run()
	h.close(reason)
}

// run executes the state machine and returns why the connection ended.
func (h *connHandler) run() string {
	if reason, ok := h.login(); !ok {
		return reason
	}
	return h.serve()
}

// login handles the Unauthenticated state.
func (h *connHandler) login() (string, bool) {
	for attempts := 0; attempts < h.srv.cfg.LoginAttempts; attempts++ {
		h.reply(protocol.Info(protocol.LoginPrompt))

		line, err := h.readLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				h.reply(protocol.Err(protocol.ErrMessageTooLong))
				continue
			}
			return h.readFailureReason(err), false
		}
		if protocol.TooLong(line) {
			h.reply(protocol.Err(protocol.ErrMessageTooLong))
			continue
		}

		cmd := protocol.Parse(line)
		if cmd.Verb != protocol.VerbLogin {
			h.srv.metrics.Logins.WithLabelValues(loginNotLogin).Inc()
			h.reply(protocol.Err(protocol.ErrPleaseLoginFirst))
			continue
		}

		name := cmd.Args
		if err := model.ValidateUsername(name); err != nil {
			h.srv.metrics.Logins.WithLabelValues(loginInvalid).Inc()
			h.log.Debug("login rejected", "name", name, "err", err)
			h.reply(protocol.Err(protocol.ErrInvalidUsername))
			continue
		}

		sess := newSession(h.id, h.remote, h.srv.clock.Now(), h.out)
		if err := h.srv.registry.Register(name, sess); err != nil {
			h.srv.metrics.Logins.WithLabelValues(loginTaken).Inc()
			h.reply(protocol.Err(protocol.ErrUsernameTaken))
			continue
		}

		h.session.Store(sess)
		h.state = stateAuthenticated
		h.log = h.log.With("user", name)
		h.srv.metrics.Logins.WithLabelValues(loginOK).Inc()
		h.reply(protocol.OK(""))
		h.log.Info("client authenticated")
		h.srv.router.audit.join(sess, name)
		h.srv.router.Broadcast(sess, protocol.Joined(name))
		return "", true
	}

	h.srv.metrics.Logins.WithLabelValues(loginExhausted).Inc()
	h.reply(protocol.Err(protocol.ErrTooManyAttempts))
	h.log.Info("login attempts exhausted")
	return model.ReasonQuit, false
}

// serve handles the Authenticated state until the connection ends.
func (h *connHandler) serve() string {
	for {
		line, err := h.readLine()
		if err != nil {
			if errors.Is(err, protocol.ErrLineTooLong) {
				h.reply(protocol.Err(protocol.ErrMessageTooLong))
				continue
			}
			reason := h.readFailureReason(err)
			if reason == model.ReasonTimeout {
				h.reply(protocol.Err(protocol.ErrConnTimeout))
			}
			return reason
		}
		if protocol.TooLong(line) {
			h.reply(protocol.Err(protocol.ErrMessageTooLong))
			continue
		}

		cmd := protocol.Parse(line)
		h.srv.metrics.Commands.WithLabelValues(cmd.Verb.String()).Inc()
		if cmd.Verb == protocol.VerbQuit {
			h.reply(protocol.Info(protocol.Goodbye))
			return model.ReasonQuit
		}
		h.dispatch(cmd)
	}
}

// readLine reads the next line under the idle deadline. A pending shutdown
// is re-checked after arming the deadline so that an interrupt issued in
// between is never lost.
func (h *connHandler) readLine() (string, error) {
	if err := h.srv.ctx.Err(); err != nil {
		return "", err
	}
	if err := h.conn.SetReadDeadline(time.Now().Add(h.srv.cfg.IdleTimeout)); err != nil {
		return "", err
	}
	if err := h.srv.ctx.Err(); err != nil {
		return "", err
	}
	return h.reader.ReadLine()
}

func (h *connHandler) readFailureReason(err error) string {
	if h.srv.ctx.Err() != nil {
		return model.ReasonShutdown
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		h.log.Info("client timeout", "state", h.state)
		return model.ReasonTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		h.log.Debug("connection closed", "state", h.state)
	} else {
		h.log.Info("read error", "state", h.state, "err", err)
	}
	return model.ReasonDisconnect
}

// reply queues lines for this connection as one unit. A slow reader only
// loses the reply; a closed connection is cleaned up like any dead peer.
func (h *connHandler) reply(lines ...string) {
	err := h.out.send(strings.Join(lines, "\n"))
	if err == nil {
		return
	}
	h.log.Debug("reply failed", "err", err)
	if errors.Is(err, ErrSendQueueFull) {
		h.srv.metrics.SkippedLines.Inc()
		return
	}
	if sess := h.session.Load(); sess != nil {
		h.srv.router.Drop(sess, model.ReasonDeliveryFailed)
	}
}

// onWriteFailure runs on the writer goroutine when a write to the peer fails.
// It must not touch handler-owned fields other than session.
func (h *connHandler) onWriteFailure(err error) {
	slog.Debug("write failed", "conn", h.id, "remote", h.remote, "err", err)
	if sess := h.session.Load(); sess != nil {
		h.srv.router.Drop(sess, model.ReasonDeliveryFailed)
	}
}

// interrupt wakes a handler blocked in a read so it notices shutdown.
func (h *connHandler) interrupt() {
	_ = h.conn.SetReadDeadline(time.Now())
}

// close moves the handler to Closed: departs the session if still
// registered, flushes queued lines and releases the connection. It runs
// exactly once regardless of how many paths reach it.
func (h *connHandler) close(reason string) {
	h.closeOnce.Do(func() {
		h.state = stateClosed
		if sess := h.session.Load(); sess != nil {
			h.srv.router.Depart(sess, reason)
		}
		h.out.close()
		if !h.out.wait(h.srv.cfg.WriteTimeout) {
			h.log.Debug("writer did not finish in time")
		}
		_ = h.conn.Close()
	})
}
