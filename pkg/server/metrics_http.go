package server

import (
	"fmt"
	"net/http"
	"time"
)

// metricsHandler serves counters in the Prometheus text exposition format.
func (s *Server) metricsHandler(w http.ResponseWriter, r *http.Request) {
	snap := s.metrics.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	write := func(name, help string, value int64) {
		fmt.Fprintf(w, "# HELP chat_%s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE chat_%s gauge\n", name)
		fmt.Fprintf(w, "chat_%s %d\n", name, value)
	}

	write("uptime_seconds", "Seconds since server start", snap.UptimeSeconds)
	write("active_connections", "Current live sessions", snap.ActiveConnections)
	write("total_connections", "Lifetime TCP connections accepted", snap.TotalConnections)
	write("total_disconnects", "Total disconnects", snap.TotalDisconnects)
	write("successful_auths", "Successful logins and registrations", snap.SuccessfulAuths)
	write("failed_auths", "Failed authentication attempts", snap.FailedAuths)
	write("users_registered", "Users created during this run", snap.UsersRegistered)
	write("messages_routed", "Direct messages delivered", snap.MessagesRouted)
	write("routing_errors", "Direct messages to absent recipients", snap.RoutingErrors)
	write("decode_errors", "Frames rejected by the codec", snap.DecodeErrors)
	write("access_denied", "Frames rejected by the access table", snap.AccessDenied)
	write("heartbeats_sent", "Server heartbeats enqueued", snap.HeartbeatsSent)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "ok sessions=%d users=%d\n", s.dir.CountSessions(), s.dir.CountUsers())
}

// serveMetrics runs the HTTP observability endpoint until the listener is
// closed. It is best-effort; failures are logged, never fatal.
func (s *Server) serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.metricsHandler)
	mux.HandleFunc("/healthz", s.healthzHandler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.log.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}
