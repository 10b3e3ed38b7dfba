// Package model defines the core domain types for linechat.
package model

import (
	"errors"
	"time"
)

var ErrInvalidEventKind = errors.New("invalid event kind: must be join (0), rename (1), or leave (2)")

// EventKind classifies a presence event in the audit log.
type EventKind int

const (
	EventJoin   EventKind = iota // Session logged in
	EventRename                  // Session changed its display name
	EventLeave                   // Session left (quit, disconnect, timeout, ...)
)

func (k EventKind) String() string {
	switch k {
	case EventJoin:
		return "join"
	case EventRename:
		return "rename"
	case EventLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k >= EventJoin && k <= EventLeave
}

// ParseEventKind converts a string to an EventKind.
func ParseEventKind(s string) (EventKind, bool) {
	switch s {
	case "join":
		return EventJoin, true
	case "rename":
		return EventRename, true
	case "leave":
		return EventLeave, true
	default:
		return 0, false
	}
}

// Leave reasons recorded with EventLeave.
const (
	ReasonQuit           = "quit"
	ReasonDisconnect     = "disconnect"
	ReasonTimeout        = "timeout"
	ReasonDeliveryFailed = "delivery-failed"
	ReasonShutdown       = "shutdown"
)

// Event is one presence record. Message bodies are never part of it.
type Event struct {
	ID        int64     `json:"id"`
	Kind      EventKind `json:"kind"`
	Name      string    `json:"name"`
	OldName   string    `json:"old_name,omitempty"` // set for EventRename
	ConnID    string    `json:"conn_id"`
	Remote    string    `json:"remote"`
	Reason    string    `json:"reason,omitempty"` // set for EventLeave
	CreatedAt time.Time `json:"created_at"`
}

type EventFilters struct {
	LimitToName *string
	LimitToKind *EventKind
	PageSize    *int64
	Offset      *int64
}
