package server

import (
	"errors"
	"log/slog"

	"github.com/NicolasHaas/linechat/pkg/model"
	"github.com/NicolasHaas/linechat/pkg/protocol"
)

// Router delivers broadcasts and direct messages. Fan-out always works on a
// registry snapshot, so no registry lock is held while lines are queued.
type Router struct {
	registry *Registry
	metrics  *Metrics
	audit    *auditLog
}

func newRouter(reg *Registry, m *Metrics, audit *auditLog) *Router {
	return &Router{registry: reg, metrics: m, audit: audit}
}

// Broadcast queues line for every registered session except from (which may
// be nil). A recipient that is already gone is cleaned up afterwards; it
// never stops delivery to the others.
func (r *Router) Broadcast(from *Session, line string) {
	var gone []*Session
	for _, e := range r.registry.Snapshot() {
		if e.Session == from {
			continue
		}
		if !r.deliver(e.Session, e.Name, line) {
			gone = append(gone, e.Session)
		}
	}

	for _, sess := range gone {
		r.Drop(sess, model.ReasonDeliveryFailed)
	}
}

// DirectMessage queues a DM for the session registered as target. A target
// that is already gone is cleaned up and reported as not found.
func (r *Router) DirectMessage(from *Session, target, text string) error {
	sess, ok := r.registry.Get(target)
	if !ok {
		return ErrNotFound
	}
	if !r.deliver(sess, target, protocol.DM(from.Name(), text)) {
		r.Drop(sess, model.ReasonDeliveryFailed)
		return ErrNotFound
	}
	r.metrics.DirectMessages.Inc()
	return nil
}

// deliver queues line for sess and reports false only when the session's
// connection is closed. A line skipped because the peer is too slow is
// counted but leaves the session alone; its writer's deadline decides
// whether it is dead.
func (r *Router) deliver(sess *Session, name, line string) bool {
	err := sess.Send(line)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrSendQueueFull):
		r.metrics.SkippedLines.Inc()
		slog.Warn("slow peer, line skipped", "to", name)
		return true
	default:
		slog.Debug("delivery failed", "to", name, "err", err)
		return false
	}
}

// Depart unregisters sess and announces the departure. Only the first
// caller for a given session gets true; later callers do nothing, so the
// handler's own cleanup and a failed fan-out never both announce.
func (r *Router) Depart(sess *Session, reason string) bool {
	name, ok := r.registry.Remove(sess)
	if !ok {
		return false
	}
	r.metrics.Disconnects.WithLabelValues(reason).Inc()
	slog.Info("client disconnected", "user", name, "conn", sess.ConnID(), "reason", reason)
	r.audit.leave(sess, name, reason)
	r.Broadcast(sess, protocol.Left(name))
	return true
}

// Drop tears down a peer whose delivery failed: it departs and its
// connection is closed without flushing.
func (r *Router) Drop(sess *Session, reason string) {
	if r.Depart(sess, reason) {
		r.metrics.DeliveryFailures.Inc()
	}
	sess.kill()
}
