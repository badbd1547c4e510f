package server

import (
	"log/slog"
	"time"

	"github.com/0xkonsti/chat-go/pkg/model"
	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// handleDebugLog dumps the directory state to the server's own diagnostic
// log. The requesting admin only gets an Ack; the dump never crosses the
// wire.
func (s *Server) handleDebugLog(sess *model.Session, log *slog.Logger) {
	user, _ := s.dir.UsernameBySession(sess.ID)
	log.Info("debug log requested", "user", user)
	slog.Debug("directory state\n" + s.dir.DebugString())
	s.push(sess, protocol.Ack(), log)
}

// handleShutdown runs the admin-initiated shutdown sequence: warn every
// live session, wait out the grace period, disconnect everyone, then stop
// the acceptor.
func (s *Server) handleShutdown(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	secs, err := msg.Uint64Field(0)
	if err != nil {
		log.Debug("shutdown request with bad timeout", "error", err)
		s.push(sess, protocol.Nack(), log)
		return
	}
	user, _ := s.dir.UsernameBySession(sess.ID)
	log.Warn("shutdown requested", "user", user, "grace_seconds", secs)
	s.push(sess, protocol.Ack(), log)

	// The sequence runs off the receive loop so the requesting admin's
	// own trio keeps servicing its outbox until the Disconnect goes out.
	go s.shutdownSequence(secs)
}

func (s *Server) shutdownSequence(secs uint64) {
	warning := protocol.ShutdownWarning(secs)
	for _, t := range s.dir.Sessions() {
		if err := t.Outbox.Push(warning); err != nil {
			s.log.Debug("shutdown warning dropped", "session", t.ID, "error", err)
		}
	}
	s.log.Info("shutdown warnings sent", "sessions", s.dir.CountSessions())

	time.Sleep(time.Duration(secs) * time.Second)

	// Writing Disconnect ends each session's send loop, which tears the
	// connection down.
	for _, t := range s.dir.Sessions() {
		if err := t.Outbox.Push(protocol.Disconnect()); err != nil {
			s.log.Debug("shutdown disconnect dropped", "session", t.ID, "error", err)
		}
	}
	s.log.Info("shutdown disconnects sent")

	s.dir.TriggerShutdown()
}
