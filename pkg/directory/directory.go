// Package directory implements the shared registry of users and sessions.
// It is the sole source of truth for identity, authentication state, and
// session liveness, and it carries the process-wide shutdown signal.
package directory

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xkonsti/chat-go/pkg/model"
)

var (
	ErrUserExists     = errors.New("directory: user already exists")
	ErrUnknownUser    = errors.New("directory: unknown user")
	ErrUnknownSession = errors.New("directory: unknown session")
	ErrAlreadyBound   = errors.New("directory: user already bound to a session")
)

// Directory is the single shared registry for the whole server process.
// Reads take the shared lock, mutations the exclusive lock; every exported
// operation is individually atomic. Multi-call sequences are not, so
// callers that compose checks with mutations must tolerate (or re-check)
// races.
type Directory struct {
	mu       sync.RWMutex
	users    map[string]*model.User
	sessions map[uuid.UUID]*model.Session

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{
		users:    make(map[string]*model.User),
		sessions: make(map[uuid.UUID]*model.Session),
		shutdown: make(chan struct{}),
	}
}

// AddUser registers a user. Usernames are unique.
func (d *Directory) AddUser(u *model.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.Name]; ok {
		return fmt.Errorf("%w: %s", ErrUserExists, u.Name)
	}
	d.users[u.Name] = u
	return nil
}

// UserSnapshot returns a copy of the named user's record.
func (d *Directory) UserSnapshot(name string) (model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[name]
	if !ok {
		return model.User{}, false
	}
	return *u, true
}

// AddSession registers a freshly accepted session.
func (d *Directory) AddSession(s *model.Session) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sessions[s.ID] = s
}

// RemoveSession removes a session, clearing its bound user's session
// pointer if any. Removing an unknown session is a no-op.
func (d *Directory) RemoveSession(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(id)
}

func (d *Directory) removeLocked(id uuid.UUID) {
	s, ok := d.sessions[id]
	if !ok {
		return
	}
	if s.Username != "" {
		if u, ok := d.users[s.Username]; ok && u.SessionID == id {
			u.SessionID = uuid.Nil
		}
	}
	delete(d.sessions, id)
}

// IsActiveSession reports whether the session exists and is not closed.
func (d *Directory) IsActiveSession(id uuid.UUID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	return ok && !s.Closed
}

// CloseSession marks a session closed and removes it. Idempotent: closing
// an already-closed or already-removed session is a no-op.
func (d *Directory) CloseSession(id uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[id]; ok {
		s.Closed = true
	}
	d.removeLocked(id)
}

// UpdateHeartbeat records a heartbeat for the session. A zero time means
// "now".
func (d *Directory) UpdateHeartbeat(id uuid.UUID, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.sessions[id]; ok {
		s.LastHeartbeat = at
	}
}

// Authenticate binds a session to a user, syncing the session's access
// level from the user record and setting the user's bound-session pointer.
// It fails with ErrAlreadyBound if another live session already holds the
// user. That re-check makes the handler's check-then-authenticate sequence
// safe against concurrent logins.
func (d *Directory) Authenticate(id uuid.UUID, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	u, ok := d.users[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}
	if u.SessionID != uuid.Nil && u.SessionID != id {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, username)
	}
	s.Username = u.Name
	s.Level = u.Level
	u.SessionID = id
	return nil
}

// IsAuthenticated reports whether the session is bound to a user.
func (d *Directory) IsAuthenticated(id uuid.UUID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	return ok && s.Authenticated()
}

// AccessLevel returns the session's current level. Unknown sessions are
// Guests.
func (d *Directory) AccessLevel(id uuid.UUID) model.Level {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.sessions[id]; ok {
		return s.Level
	}
	return model.LevelGuest
}

// UsernameBySession returns the username bound to a session.
func (d *Directory) UsernameBySession(id uuid.UUID) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[id]
	if !ok || !s.Authenticated() {
		return "", false
	}
	return s.Username, true
}

// SessionByUsername returns the live session bound to the named user.
// Used for message routing.
func (d *Directory) SessionByUsername(name string) (*model.Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[name]
	if !ok || u.SessionID == uuid.Nil {
		return nil, false
	}
	s, ok := d.sessions[u.SessionID]
	return s, ok
}

// Sessions returns a snapshot of all live sessions.
func (d *Directory) Sessions() []*model.Session {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*model.Session, 0, len(d.sessions))
	for _, s := range d.sessions {
		out = append(out, s)
	}
	return out
}

// CountSessions returns the number of live sessions.
func (d *Directory) CountSessions() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}

// CountAuthenticated returns the number of live authenticated sessions.
func (d *Directory) CountAuthenticated() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, s := range d.sessions {
		if s.Authenticated() {
			n++
		}
	}
	return n
}

// CountUsers returns the number of registered users.
func (d *Directory) CountUsers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

// StaleSessions returns the ids of sessions whose last heartbeat is older
// than the cutoff. Staleness is recorded and reported but not enforced.
func (d *Directory) StaleSessions(olderThan time.Duration) []uuid.UUID {
	cutoff := time.Now().Add(-olderThan)
	d.mu.RLock()
	defer d.mu.RUnlock()
	var stale []uuid.UUID
	for id, s := range d.sessions {
		if !s.LastHeartbeat.IsZero() && s.LastHeartbeat.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	return stale
}

// DebugString serializes the directory state for the server-side
// diagnostic log. Password material is never included.
func (d *Directory) DebugString() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	fmt.Fprintf(&b, "users=%d sessions=%d\n", len(d.users), len(d.sessions))
	for name, u := range d.users {
		fmt.Fprintf(&b, "user %s level=%s bound=%v\n", name, u.Level, u.SessionID != uuid.Nil)
	}
	for id, s := range d.sessions {
		fmt.Fprintf(&b, "session %s user=%q level=%s last_heartbeat=%s\n",
			id, s.Username, s.Level, s.LastHeartbeat.Format(time.RFC3339))
	}
	return b.String()
}

// ShutdownSignal returns the channel closed when shutdown is triggered.
// The acceptor races it against incoming connections.
func (d *Directory) ShutdownSignal() <-chan struct{} { return d.shutdown }

// TriggerShutdown signals process-wide shutdown. Safe to call more than
// once. Callers must not hold a directory lock when invoking it.
func (d *Directory) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}
