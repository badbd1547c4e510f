// Package server implements the chat server: a TCP acceptor that runs one
// actor trio per connection (receive, send, heartbeat), a shared directory
// of users and sessions, and the handlers for every client-sendable message
// kind.
package server

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/0xkonsti/chat-go/pkg/datastore"
	"github.com/0xkonsti/chat-go/pkg/directory"
)

// Dependencies are the external collaborators a Server needs. The store is
// optional; without it registered users live only in memory.
type Dependencies struct {
	Store *datastore.Store
}

// Server is the chat server.
type Server struct {
	cfg     Config
	dir     *directory.Directory
	store   *datastore.Store
	metrics *Metrics
	log     *slog.Logger

	ln         net.Listener
	metricsSrv *http.Server
}

// New creates a server from config and dependencies.
func New(cfg Config, deps Dependencies) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = DefaultConfig().OutboxSize
	}
	return &Server{
		cfg:     cfg,
		dir:     directory.New(),
		store:   deps.Store,
		metrics: NewMetrics(),
		log:     slog.Default().With("component", "server"),
	}
}

// Directory exposes the shared user/session registry.
func (s *Server) Directory() *directory.Directory { return s.dir }

// Metrics exposes the server's runtime counters.
func (s *Server) Metrics() *Metrics { return s.metrics }
