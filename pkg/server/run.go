package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/0xkonsti/chat-go/pkg/protocol"
)

// Listen binds the TCP listener, seeds registered users from the store, and
// starts the observability endpoint. It does not accept connections yet.
func (s *Server) Listen() error {
	if err := s.seedUsers(); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.log.Info("listening", "addr", ln.Addr())

	if s.cfg.MetricsAddr != "" {
		s.metricsSrv = s.serveMetrics(s.cfg.MetricsAddr)
	}
	return nil
}

// Addr returns the bound listener address. Only valid after Listen.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve accepts connections until shutdown is triggered, then waits for
// every live connection actor to finish. Each accepted connection gets its
// own goroutine tracked in a group so Serve can drain them on the way out.
func (s *Server) Serve() error {
	// Closing the listener is how the shutdown signal reaches the blocking
	// Accept call.
	go func() {
		<-s.dir.ShutdownSignal()
		_ = s.ln.Close()
	}()
	go s.janitor()

	conns := taskgroup.New(nil)
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.dir.ShutdownSignal():
				s.log.Info("acceptor stopped, draining connections")
				// Sessions still live (signal-triggered shutdown rather
				// than the admin sequence) are told to leave.
				for _, t := range s.dir.Sessions() {
					_ = t.Outbox.Push(protocol.Disconnect())
				}
				_ = conns.Wait()
				s.stopMetricsEndpoint()
				s.metrics.LogSummary()
				return nil
			default:
			}
			if isClosedErr(err) {
				_ = conns.Wait()
				s.stopMetricsEndpoint()
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		conns.Go(func() error {
			s.handleConn(conn)
			return nil
		})
	}
}

// Run is Listen followed by Serve.
func (s *Server) Run() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Shutdown triggers process-wide shutdown. Safe to call more than once and
// from any goroutine (the signal handler uses it).
func (s *Server) Shutdown() {
	s.dir.TriggerShutdown()
}

func (s *Server) stopMetricsEndpoint() {
	if s.metricsSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.metricsSrv.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		s.log.Debug("metrics endpoint shutdown", "error", err)
	}
}

// seedUsers loads persisted users into the directory at startup.
func (s *Server) seedUsers() error {
	if s.store == nil {
		return nil
	}
	users, err := s.store.ListUsers()
	if err != nil {
		return fmt.Errorf("server: seed users: %w", err)
	}
	for _, u := range users {
		if err := s.dir.AddUser(u); err != nil {
			s.log.Warn("seed user skipped", "user", u.Name, "error", err)
		}
	}
	s.log.Info("users loaded", "count", len(users))
	return nil
}

// janitor periodically logs a metrics summary and reports sessions whose
// heartbeats have gone stale. Staleness is reported, never enforced.
func (s *Server) janitor() {
	interval := s.cfg.StaleAfter
	if interval <= 0 {
		interval = DefaultConfig().StaleAfter
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.dir.ShutdownSignal():
			return
		case <-ticker.C:
			s.metrics.LogSummary()
			for _, id := range s.dir.StaleSessions(interval) {
				s.log.Warn("session heartbeat stale", "session", id)
			}
		}
	}
}
