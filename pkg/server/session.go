package server

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNameTaken is returned when a display name is already registered.
	ErrNameTaken = errors.New("server: name taken")
	// ErrNotFound is returned when a display name is not registered.
	ErrNotFound = errors.New("server: name not found")
)

// Session is the server-side state of one authenticated connection. The
// display name is its only mutable field and changes only under the
// registry lock.
type Session struct {
	connID string
	remote string
	joined time.Time
	out    *outbound

	mu   sync.RWMutex
	name string
}

func newSession(connID, remote string, joined time.Time, out *outbound) *Session {
	return &Session{
		connID: connID,
		remote: remote,
		joined: joined,
		out:    out,
	}
}

// Name returns the current display name.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *Session) setName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

// JoinedAt returns the login time.
func (s *Session) JoinedAt() time.Time { return s.joined }

// ConnID returns the id of the connection that owns this session.
func (s *Session) ConnID() string { return s.connID }

// Remote returns the peer address.
func (s *Session) Remote() string { return s.remote }

// Send queues lines for delivery as one unit. It waits at most the write
// timeout for queue space. ErrSessionClosed means the peer is gone;
// ErrSendQueueFull means these lines were skipped.
func (s *Session) Send(lines ...string) error {
	return s.out.send(strings.Join(lines, "\n"))
}

// kill drops the connection without flushing queued lines.
func (s *Session) kill() {
	s.out.abort()
}

// Entry is one row of a registry snapshot.
type Entry struct {
	Name     string
	JoinedAt time.Time
	Session  *Session
}

// Registry maps display names to sessions. Every mutation is atomic with
// respect to every other; at most one session owns a name at any instant.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // display name -> session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Register inserts sess under name if the name is free (case-sensitive).
func (r *Registry) Register(name string, sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[name]; exists {
		return ErrNameTaken
	}
	sess.setName(name)
	r.sessions[name] = sess
	return nil
}

// Unregister removes and returns the session registered under name. It
// reports false when the name is absent, so repeated calls are safe.
func (r *Registry) Unregister(name string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[name]
	if !ok {
		return nil, false
	}
	delete(r.sessions, name)
	return sess, true
}

// Remove unregisters sess only if it still owns its current name, and
// returns that name. Only the first of several concurrent callers gets true.
func (r *Registry) Remove(sess *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := sess.Name()
	if cur, ok := r.sessions[name]; !ok || cur != sess {
		return "", false
	}
	delete(r.sessions, name)
	return name, true
}

// Rename moves the session registered under oldName to newName. The session
// instance is unchanged; only its key and display name change.
func (r *Registry) Rename(oldName, newName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.sessions[oldName]
	if !ok {
		return ErrNotFound
	}
	if _, taken := r.sessions[newName]; taken {
		return ErrNameTaken
	}
	delete(r.sessions, oldName)
	r.sessions[newName] = sess
	sess.setName(newName)
	return nil
}

// Get looks up a session by name.
func (r *Registry) Get(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[name]
	return sess, ok
}

// Count returns the number of registered sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns a point-in-time copy ordered by join time, then name.
// Callers deliver to the copy after the lock is released.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	result := make([]Entry, 0, len(r.sessions))
	for name, s := range r.sessions {
		result = append(result, Entry{Name: name, JoinedAt: s.joined, Session: s})
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].JoinedAt.Equal(result[j].JoinedAt) {
			return result[i].JoinedAt.Before(result[j].JoinedAt)
		}
		return result[i].Name < result[j].Name
	})
	return result
}
