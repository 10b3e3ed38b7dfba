package datastore

import (
	"context"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// EventStore persists the presence audit log (logins, renames, departures).
// Implementations include the default SQLite store and an in-memory store
// for tests. Message bodies are never stored.
type EventStore interface {
	EventReadProvider
	EventWriteProvider

	// Close releases the underlying storage.
	Close() error
}

type EventReadProvider interface {
	// ListEvents returns events newest first, filtered and paged.
	ListEvents(ctx context.Context, filters model.EventFilters) ([]model.Event, error)
}

type EventWriteProvider interface {
	// RecordEvent validates and stores an event, assigning its ID and,
	// when zero, its CreatedAt.
	RecordEvent(ctx context.Context, event *model.Event) error
}

// Compile-time checks.
var (
	_ EventStore = (*SQLStore)(nil)
	_ EventStore = (*MemoryStore)(nil)
)

// DefaultPageSize applies when EventFilters.PageSize is nil.
const DefaultPageSize = 100

func validateEvent(event *model.Event) error {
	if !event.Kind.Valid() {
		return model.ErrInvalidEventKind
	}
	if err := model.ValidateUsername(event.Name); err != nil {
		return err
	}
	if event.Kind == model.EventRename {
		if err := model.ValidateUsername(event.OldName); err != nil {
			return err
		}
	}
	return nil
}
