package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/NicolasHaas/linechat/pkg/version"
)

// Login results recorded in linechat_logins_total.
const (
	loginOK        = "ok"
	loginInvalid   = "invalid"
	loginTaken     = "taken"
	loginNotLogin  = "not_login"
	loginExhausted = "exhausted"
)

// Metrics tracks server runtime statistics. Each server owns its own
// Prometheus registry so that several servers can coexist in one process.
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time
	sessions  func() int

	ConnectionsTotal  prometheus.Counter     // lifetime connections accepted
	ConnectionsActive prometheus.Gauge       // connections currently being handled
	Logins            *prometheus.CounterVec // login attempts by result
	Commands          *prometheus.CounterVec // authenticated commands by verb
	Broadcasts        prometheus.Counter     // MSG lines fanned out
	DirectMessages    prometheus.Counter     // DM lines delivered
	DeliveryFailures  prometheus.Counter     // recipients dropped during fan-out
	SkippedLines      prometheus.Counter     // lines not queued for a slow peer
	Disconnects       *prometheus.CounterVec // departures by reason
}

// NewMetrics creates the collectors. sessions reports the live registry size.
func NewMetrics(sessions func() int) *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		sessions:  sessions,
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linechat_connections_total",
			Help: "Lifetime TCP connections accepted.",
		}),
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linechat_connections_active",
			Help: "Connections currently being handled.",
		}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_commands_total",
			Help: "Commands received from authenticated sessions.",
		}, []string{"verb"}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linechat_broadcasts_total",
			Help: "Chat messages broadcast.",
		}),
		DirectMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linechat_direct_messages_total",
			Help: "Direct messages delivered.",
		}),
		DeliveryFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linechat_delivery_failures_total",
			Help: "Recipients dropped because delivery failed.",
		}),
		SkippedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linechat_skipped_lines_total",
			Help: "Lines not delivered because a peer's send queue stayed full.",
		}),
		Disconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linechat_disconnects_total",
			Help: "Session departures by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.ConnectionsTotal,
		m.ConnectionsActive,
		m.Logins,
		m.Commands,
		m.Broadcasts,
		m.DirectMessages,
		m.DeliveryFailures,
		m.SkippedLines,
		m.Disconnects,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "linechat_sessions",
			Help: "Sessions currently registered.",
		}, func() float64 { return float64(sessions()) }),
		buildInfo(version.Get()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// buildInfo is a constant 1 labelled with the running build.
func buildInfo(i version.Info) prometheus.Collector {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "linechat_build_info",
		Help: "Build of the running server; always 1.",
	}, []string{"version", "commit", "goversion"})
	g.WithLabelValues(i.String(), i.Commit, i.GoVersion).Set(1)
	return g
}

// Registry exposes the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// LogSummary writes a metrics summary to the logger.
func (m *Metrics) LogSummary() {
	slog.Info("metrics",
		"uptime", time.Since(m.startTime).Round(time.Second).String(),
		"sessions", m.sessions(),
		"connections", int64(metricValue(m.ConnectionsActive)),
		"total_connections", int64(metricValue(m.ConnectionsTotal)),
		"broadcasts", int64(metricValue(m.Broadcasts)),
		"direct_messages", int64(metricValue(m.DirectMessages)),
		"delivery_failures", int64(metricValue(m.DeliveryFailures)),
		"skipped_lines", int64(metricValue(m.SkippedLines)),
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

// metricValue reads the current value of a counter or gauge.
func metricValue(c prometheus.Metric) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	default:
		return 0
	}
}
