package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/NicolasHaas/linechat/pkg/protocol"
	"github.com/NicolasHaas/linechat/pkg/version"
)

const (
	metricsLogInterval = 60 * time.Second
	forceCloseSettle   = 2 * time.Second
)

// Start binds the listener and begins accepting connections in the
// background.
func (s *Server) Start() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.listener = ln
	slog.Info("linechat server listening", "addr", ln.Addr().String(), "max_connections", s.cfg.MaxConnections)

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// acceptLoop admits at most MaxConnections concurrent handlers. Beyond the
// cap, pending connections wait in the listen backlog until a slot frees.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		if !s.sem.TryAcquire(1) {
			slog.Warn("connection limit reached, queueing", "max", s.cfg.MaxConnections)
			if err := s.sem.Acquire(s.ctx, 1); err != nil {
				return
			}
		}

		conn, err := s.listener.Accept()
		if err != nil {
			s.sem.Release(1)
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept error", "err", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.handleConn(conn)
		}()
	}
}

// Run starts the server and blocks until a shutdown signal.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}
	if err := s.StartMetricsHTTP(); err != nil {
		_ = s.Close()
		return err
	}
	s.metrics.StartPeriodicLog(metricsLogInterval, s.ctx.Done())
	slog.Info("linechat server running", "version", version.String(), "addr", s.Addr().String())

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	slog.Info("shutting down...")
	err := s.Shutdown(context.Background())
	return multierr.Append(err, s.Close())
}

// Shutdown says goodbye to every session, stops accepting, interrupts all
// handlers and waits up to ShutdownGrace (or ctx) for them to finish.
// Handlers still running after that are force-closed. Safe to call more
// than once; later calls return the first result.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.shutdownErr = s.shutdown(ctx)
	})
	return s.shutdownErr
}

func (s *Server) shutdown(ctx context.Context) error {
	s.router.Broadcast(nil, protocol.Info(protocol.ShutdownNotice))

	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	for _, h := range s.handlers() {
		h.interrupt()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	grace := time.NewTimer(s.cfg.ShutdownGrace)
	defer grace.Stop()
	select {
	case <-done:
		slog.Info("all connections closed")
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	remaining := s.handlers()
	slog.Warn("grace period expired, forcing connections closed", "remaining", len(remaining))
	for _, h := range remaining {
		_ = h.conn.Close()
	}

	// Closed sockets unblock every handler; let their cleanup finish so the
	// event store is not closed underneath it.
	settle := time.NewTimer(forceCloseSettle)
	defer settle.Stop()
	select {
	case <-done:
	case <-settle.C:
		slog.Warn("handlers still running after force-close")
	}
	return context.DeadlineExceeded
}

// Close releases the listener, the metrics HTTP server and the event store.
func (s *Server) Close() error {
	s.cancel()
	var err error
	if s.listener != nil {
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	if s.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		err = multierr.Append(err, s.metricsSrv.Shutdown(ctx))
		cancel()
	}
	if s.events != nil {
		err = multierr.Append(err, s.events.Close())
	}
	return err
}
