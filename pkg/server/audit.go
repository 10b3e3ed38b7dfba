package server

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/NicolasHaas/linechat/pkg/datastore"
	"github.com/NicolasHaas/linechat/pkg/model"
)

const auditTimeout = 2 * time.Second

// auditLog writes presence events to the optional event store. Failures are
// logged and otherwise ignored; the chat never depends on the audit log.
type auditLog struct {
	store datastore.EventStore
	clock clock.PassiveClock
}

func (a *auditLog) record(event model.Event) {
	if a == nil || a.store == nil {
		return
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = a.clock.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := a.store.RecordEvent(ctx, &event); err != nil {
		slog.Warn("audit record failed", "kind", event.Kind, "name", event.Name, "err", err)
	}
}

func (a *auditLog) join(sess *Session, name string) {
	a.record(model.Event{Kind: model.EventJoin, Name: name, ConnID: sess.ConnID(), Remote: sess.Remote()})
}

func (a *auditLog) rename(sess *Session, oldName, newName string) {
	a.record(model.Event{Kind: model.EventRename, Name: newName, OldName: oldName, ConnID: sess.ConnID(), Remote: sess.Remote()})
}

func (a *auditLog) leave(sess *Session, name, reason string) {
	a.record(model.Event{Kind: model.EventLeave, Name: name, ConnID: sess.ConnID(), Remote: sess.Remote(), Reason: reason})
}
