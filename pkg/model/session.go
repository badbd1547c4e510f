package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is the server-side state for one live connection, independent of
// whether it is authenticated. Sessions are owned exclusively by the
// directory; everything else holds a non-owning handle plus the id.
// Mutable fields are written only under the directory's lock. Outbox is
// immutable after creation and internally synchronized, so cross-session
// message routing may push to it directly.
type Session struct {
	ID            uuid.UUID
	Username      string // empty until authenticated
	Level         Level
	Outbox        *Outbox
	LastHeartbeat time.Time
	Closed        bool
}

// NewSession creates an unauthenticated Guest session with a fresh id.
func NewSession(out *Outbox) *Session {
	return &Session{
		ID:     uuid.New(),
		Level:  LevelGuest,
		Outbox: out,
	}
}

// Authenticated reports whether the session is bound to a user.
func (s *Session) Authenticated() bool { return s.Username != "" }
