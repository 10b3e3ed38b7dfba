package datastore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NicolasHaas/linechat/pkg/model"
)

// MemoryStore provides an in-memory EventStore implementation for tests.
// It mirrors SQLStore behavior for validation and ordering.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextID int64
	events []model.Event
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:    now,
		nextID: 1,
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

// RecordEvent validates and appends an event.
func (m *MemoryStore) RecordEvent(_ context.Context, event *model.Event) error {
	if err := validateEvent(event); err != nil {
		return fmt.Errorf("datastore: record event: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = m.now()
	}
	event.ID = m.nextID
	m.nextID++
	m.events = append(m.events, *event)
	return nil
}

// ListEvents returns events newest first.
func (m *MemoryStore) ListEvents(_ context.Context, filters model.EventFilters) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := int64(DefaultPageSize)
	if filters.PageSize != nil {
		limit = *filters.PageSize
	}
	var offset int64
	if filters.Offset != nil {
		offset = *filters.Offset
	}

	var result []model.Event
	var skipped int64
	for i := len(m.events) - 1; i >= 0 && int64(len(result)) < limit; i-- {
		e := m.events[i]
		if filters.LimitToName != nil && e.Name != *filters.LimitToName {
			continue
		}
		if filters.LimitToKind != nil && e.Kind != *filters.LimitToKind {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		result = append(result, e)
	}
	return result, nil
}

// Len returns the number of stored events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
