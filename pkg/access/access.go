// Package access provides tiered access control checks for wire messages.
package access

import (
	"github.com/0xkonsti/chat-go/pkg/model"
	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// extraKinds maps each level to the message kinds it adds on top of the
// levels below it. A level's full allowed set is the union of its own
// extras and everything beneath it. Kinds absent from every set, the
// server-originated replies and the internal Break sentinel, are never
// valid to send and are answered with Nack.
var extraKinds = map[model.Level][]protocol.Kind{
	model.LevelGuest: {
		protocol.KindEmpty,
		protocol.KindAuth,
		protocol.KindAuthCreate,
		protocol.KindHeartbeat,
		protocol.KindDisconnect,
	},
	model.LevelUser: {
		protocol.KindDirectMessageSend,
	},
	model.LevelAdmin: {
		protocol.KindServerDebugLog,
		protocol.KindServerShutdown,
	},
}

// CanAccess reports whether a session at the given level may send the given
// message kind. It is pure and total over the kind enumeration.
func CanAccess(level model.Level, kind protocol.Kind) bool {
	for l := model.LevelGuest; l <= level; l++ {
		for _, k := range extraKinds[l] {
			if k == kind {
				return true
			}
		}
	}
	return false
}

// AllowedKinds returns the full allowed set for a level, lowest tier first.
func AllowedKinds(level model.Level) []protocol.Kind {
	var kinds []protocol.Kind
	for l := model.LevelGuest; l <= level; l++ {
		kinds = append(kinds, extraKinds[l]...)
	}
	return kinds
}
