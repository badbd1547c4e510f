package server

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/0xkonsti/chat-go/pkg/model"
	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// handleConn owns one TCP connection for its whole lifetime. It registers a
// session, runs the receive/send/heartbeat trio, and tears everything down
// when the first of them exits.
func (s *Server) handleConn(conn net.Conn) {
	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	defer s.metrics.TotalDisconnects.Add(1)

	out := model.NewOutbox(s.cfg.OutboxSize)
	sess := model.NewSession(out)
	s.dir.AddSession(sess)
	s.dir.UpdateHeartbeat(sess.ID, time.Time{})

	log := s.log.With("session", sess.ID, "remote", conn.RemoteAddr())
	log.Info("connection accepted")

	// Teardown is idempotent on every leg, so whichever loop exits first
	// can run it, and the deferred call can run it again.
	teardown := func() {
		s.dir.CloseSession(sess.ID)
		out.Close()
		_ = conn.Close()
	}
	defer teardown()

	g := taskgroup.New(nil)
	g.Go(func() error {
		defer teardown()
		return s.receiveLoop(sess, conn, log)
	})
	g.Go(func() error {
		defer teardown()
		return s.sendLoop(sess, conn, log)
	})
	g.Go(func() error {
		defer teardown()
		return s.heartbeatLoop(sess, log)
	})
	if err := g.Wait(); err != nil && !isClosedErr(err) {
		log.Warn("connection tasks finished with error", "error", err)
	}
	log.Info("connection closed", "user", sess.Username)
}

// receiveLoop reads frames off the wire, enforces the access table, and
// dispatches to the per-kind handlers. It returns when the peer disconnects,
// the connection is closed underneath it, or a Disconnect frame arrives.
func (s *Server) receiveLoop(sess *model.Session, conn net.Conn, log *slog.Logger) error {
	br := bufio.NewReader(conn)
	for {
		if err := protocol.AwaitFrameStart(br); err != nil {
			if errors.Is(err, io.EOF) || isClosedErr(err) {
				return nil
			}
			return err
		}
		msg, err := protocol.Decode(br)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isClosedErr(err) {
				return nil
			}
			// Protocol errors are fatal to the connection, never to the
			// process.
			s.metrics.DecodeErrors.Add(1)
			log.Warn("frame rejected, closing connection", "error", err)
			return nil
		}

		level := s.dir.AccessLevel(sess.ID)
		if !s.allow(level, msg.Kind) {
			s.metrics.AccessDenied.Add(1)
			log.Debug("access denied", "kind", msg.Kind, "level", level)
			s.push(sess, protocol.Nack(), log)
			continue
		}

		if done := s.dispatch(sess, msg, log); done {
			return nil
		}
	}
}

// dispatch routes one accepted frame. It returns true when the receive loop
// should stop.
func (s *Server) dispatch(sess *model.Session, msg *protocol.Message, log *slog.Logger) bool {
	switch msg.Kind {
	case protocol.KindDisconnect:
		log.Info("client disconnect", "user", sess.Username)
		s.push(sess, protocol.Break(), log)
		return true
	case protocol.KindHeartbeat:
		s.handleHeartbeat(sess, msg, log)
	case protocol.KindAuth:
		s.handleAuth(sess, msg, log)
	case protocol.KindAuthCreate:
		s.handleAuthCreate(sess, msg, log)
	case protocol.KindDirectMessageSend:
		s.handleDirectMessage(sess, msg, log)
	case protocol.KindServerDebugLog:
		s.handleDebugLog(sess, log)
	case protocol.KindServerShutdown:
		s.handleShutdown(sess, msg, log)
	case protocol.KindEmpty:
		// Keepalive filler, nothing to do.
	default:
		log.Debug("unhandled kind", "kind", msg.Kind)
		s.push(sess, protocol.Nack(), log)
	}
	return false
}

// sendLoop drains the session's outbox onto the wire in FIFO order. A Break
// sentinel unwinds the loop without writing anything; a Disconnect is
// written and then ends the session.
func (s *Server) sendLoop(sess *model.Session, conn net.Conn, log *slog.Logger) error {
	for msg := range sess.Outbox.C() {
		if msg.Is(protocol.KindBreak) {
			return nil
		}
		if err := protocol.Write(conn, msg); err != nil {
			if isClosedErr(err) {
				return nil
			}
			return err
		}
		if msg.Is(protocol.KindDisconnect) {
			return nil
		}
	}
	return nil
}

// heartbeatLoop pushes a timestamped heartbeat on every tick until the
// outbox closes.
func (s *Server) heartbeatLoop(sess *model.Session, log *slog.Logger) error {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sess.Outbox.Done():
			return nil
		case t := <-ticker.C:
			if err := sess.Outbox.Push(protocol.Heartbeat(t)); err != nil {
				if errors.Is(err, model.ErrOutboxClosed) {
					return nil
				}
				log.Debug("heartbeat dropped", "error", err)
				continue
			}
			s.metrics.HeartbeatsSent.Add(1)
		}
	}
}

// push enqueues a reply on the session's outbox, logging instead of failing
// when the session is already gone or its queue is full.
func (s *Server) push(sess *model.Session, msg *protocol.Message, log *slog.Logger) {
	if err := sess.Outbox.Push(msg); err != nil {
		log.Debug("reply dropped", "kind", msg.Kind, "error", err)
	}
}

// isClosedErr reports whether err is the "use of closed network connection"
// produced by reads and writes racing conn.Close during teardown.
func isClosedErr(err error) bool {
	return err != nil && errors.Is(err, net.ErrClosed)
}
