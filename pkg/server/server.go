// Package server implements the linechat relay: the session registry, the
// per-connection login and command state machine, broadcast and direct
// message routing, and graceful shutdown.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"

	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/NicolasHaas/linechat/pkg/datastore"
)

// Dependencies holds external dependencies for the server. Both are
// optional. Server assumes ownership of Events and will Close() it.
type Dependencies struct {
	Events datastore.EventStore // presence audit log (nil = disabled)
	Clock  clock.PassiveClock   // time source for join times (nil = real clock)
}

// Server is the main linechat server.
type Server struct {
	cfg      Config
	clock    clock.PassiveClock
	registry *Registry
	router   *Router
	metrics  *Metrics
	events   datastore.EventStore
	sem      *semaphore.Weighted

	listener   net.Listener
	metricsSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // accept loop + handlers

	connsMu sync.Mutex
	conns   map[*connHandler]struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	clk := deps.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	reg := NewRegistry()
	metrics := NewMetrics(reg.Count)
	audit := &auditLog{store: deps.Events, clock: clk}
	return &Server{
		cfg:      cfg,
		clock:    clk,
		registry: reg,
		router:   newRouter(reg, metrics, audit),
		metrics:  metrics,
		events:   deps.Events,
		sem:      semaphore.NewWeighted(cfg.MaxConnections),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[*connHandler]struct{}),
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Router returns the message router.
func (s *Server) Router() *Router {
	return s.router
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) track(h *connHandler) {
	s.connsMu.Lock()
	s.conns[h] = struct{}{}
	s.connsMu.Unlock()
}

func (s *Server) untrack(h *connHandler) {
	s.connsMu.Lock()
	delete(s.conns, h)
	s.connsMu.Unlock()
}

// handlers returns a snapshot of the live connection handlers.
func (s *Server) handlers() []*connHandler {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	result := make([]*connHandler, 0, len(s.conns))
	for h := range s.conns {
		result = append(result, h)
	}
	return result
}
