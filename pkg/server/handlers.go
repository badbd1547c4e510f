package server

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/0xkonsti/chat-go/pkg/access"
	"github.com/0xkonsti/chat-go/pkg/crypto"
	"github.com/0xkonsti/chat-go/pkg/directory"
	"github.com/0xkonsti/chat-go/pkg/model"
	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// Reasons sent back to clients on auth and routing failures. Unknown user
// and wrong password share one string; a user whose account is already
// bound to a live session is reported distinctly.
const (
	reasonInvalidCredentials = "Invalid username or password"
	reasonAlreadyLoggedIn    = "User already logged in"
	reasonUserExists         = "User already exists"
	reasonNotConnectedFmt    = "User %s is not connected"
)

func (s *Server) allow(level model.Level, kind protocol.Kind) bool {
	return access.CanAccess(level, kind)
}

// handleHeartbeat records client liveness. The client's timestamp is taken
// as advisory; an unparseable one still counts as "alive now".
func (s *Server) handleHeartbeat(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	at, err := msg.TimeField(0)
	if err != nil {
		log.Debug("heartbeat with bad timestamp", "error", err)
		at = time.Time{}
	}
	s.dir.UpdateHeartbeat(sess.ID, at)
}

// handleAuth logs a session in against an existing user.
func (s *Server) handleAuth(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	if s.dir.IsAuthenticated(sess.ID) {
		s.push(sess, protocol.Nack(), log)
		return
	}
	username, password := msg.Text(0), msg.Text(1)

	u, ok := s.dir.UserSnapshot(username)
	if !ok {
		s.authFailure(sess, reasonInvalidCredentials, log)
		return
	}
	if u.Bound() {
		s.authFailure(sess, reasonAlreadyLoggedIn, log)
		return
	}
	if !crypto.VerifyPassword(password, u.Salt, u.PasswordHash) {
		s.authFailure(sess, reasonInvalidCredentials, log)
		return
	}

	if err := s.dir.Authenticate(sess.ID, username); err != nil {
		// Lost a race with a concurrent login for the same user.
		if errors.Is(err, directory.ErrAlreadyBound) {
			s.authFailure(sess, reasonAlreadyLoggedIn, log)
			return
		}
		log.Warn("authenticate failed", "user", username, "error", err)
		s.authFailure(sess, reasonInvalidCredentials, log)
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	log.Info("user logged in", "user", username, "level", u.Level)
	s.push(sess, protocol.AuthSuccess(), log)
}

// handleAuthCreate registers a new user and logs the session in as them.
func (s *Server) handleAuthCreate(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	if s.dir.IsAuthenticated(sess.ID) {
		s.push(sess, protocol.Nack(), log)
		return
	}
	username, password := msg.Text(0), msg.Text(1)

	if err := model.ValidateUsername(username); err != nil {
		s.authFailure(sess, err.Error(), log)
		return
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		log.Error("salt generation failed", "error", err)
		s.authFailure(sess, reasonInvalidCredentials, log)
		return
	}
	u := &model.User{
		Name:         username,
		PasswordHash: crypto.HashPassword(password, salt),
		Salt:         salt,
		Level:        model.LevelUser,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.dir.AddUser(u); err != nil {
		s.authFailure(sess, reasonUserExists, log)
		return
	}
	if s.store != nil {
		if err := s.store.SaveUser(u); err != nil {
			log.Error("persist user failed", "user", username, "error", err)
		}
	}

	if err := s.dir.Authenticate(sess.ID, username); err != nil {
		log.Warn("authenticate after create failed", "user", username, "error", err)
		s.authFailure(sess, reasonAlreadyLoggedIn, log)
		return
	}

	s.metrics.SuccessfulAuths.Add(1)
	s.metrics.UsersRegistered.Add(1)
	log.Info("user registered", "user", username)
	s.push(sess, protocol.AuthSuccess(), log)
}

func (s *Server) authFailure(sess *model.Session, reason string, log *slog.Logger) {
	s.metrics.FailedAuths.Add(1)
	log.Info("auth failed", "reason", reason)
	s.push(sess, protocol.AuthFailure(reason), log)
}

// handleDirectMessage routes a message to the recipient's live session,
// rewriting it so the receiver sees the sender's name instead of their own.
func (s *Server) handleDirectMessage(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	sender, ok := s.dir.UsernameBySession(sess.ID)
	if !ok {
		// Level table admits the kind, but an unbound identity has no
		// sender name to stamp on the message.
		s.push(sess, protocol.Nack(), log)
		return
	}

	recipient, body := msg.Text(0), msg.Text(1)
	target, ok := s.dir.SessionByUsername(recipient)
	if !ok {
		s.metrics.RoutingErrors.Add(1)
		s.push(sess, protocol.MessageError(fmt.Sprintf(reasonNotConnectedFmt, recipient)), log)
		return
	}

	if err := target.Outbox.Push(protocol.DirectMessageReceive(sender, body)); err != nil {
		s.metrics.RoutingErrors.Add(1)
		log.Debug("delivery failed", "to", recipient, "error", err)
		s.push(sess, protocol.MessageError(fmt.Sprintf(reasonNotConnectedFmt, recipient)), log)
		return
	}

	s.metrics.MessagesRouted.Add(1)
	log.Debug("message routed", "from", sender, "to", recipient)
	s.push(sess, protocol.Ack(), log)
}
