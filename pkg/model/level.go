package model

import "fmt"

// Level is a user's access tier. Levels are strictly ordered: every tier
// may do everything the tiers below it may do.
type Level int

const (
	LevelGuest Level = iota // unauthenticated connection
	LevelUser               // authenticated regular user
	LevelAdmin              // authenticated administrator
)

func (l Level) String() string {
	switch l {
	case LevelGuest:
		return "guest"
	case LevelUser:
		return "user"
	case LevelAdmin:
		return "admin"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Valid reports whether l is a defined tier.
func (l Level) Valid() bool { return l >= LevelGuest && l <= LevelAdmin }

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "guest":
		return LevelGuest, nil
	case "user":
		return LevelUser, nil
	case "admin":
		return LevelAdmin, nil
	default:
		return LevelGuest, fmt.Errorf("model: unknown level %q", s)
	}
}
