package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const MaxUsernameLength = 32

var ErrUsernameEmpty = errors.New("username must not be empty")
var ErrUsernameTooLong = fmt.Errorf("username must not exceed %d characters", MaxUsernameLength)
var ErrUsernameInvalidChars = errors.New("username must contain only alphanumeric characters, underscores, or hyphens")

// User represents a registered user. Users persist across sessions;
// SessionID is uuid.Nil unless exactly one live session is currently
// authenticated as this user.
type User struct {
	Name         string
	PasswordHash []byte
	Salt         []byte
	Level        Level
	SessionID    uuid.UUID
	CreatedAt    time.Time
}

// Bound reports whether a live session is currently authenticated as this user.
func (u *User) Bound() bool { return u.SessionID != uuid.Nil }

// ValidateUsername checks that a username is 1-32 ASCII alphanumeric,
// underscore, or hyphen characters. Returns nil on success or a
// descriptive error.
func ValidateUsername(name string) error {
	if len(name) == 0 {
		return ErrUsernameEmpty
	}
	if len(name) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return ErrUsernameInvalidChars
		}
	}
	return nil
}
