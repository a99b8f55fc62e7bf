// Package server serves internal/monitor's live dashboard (the /ws
// feed and /metrics) to whichever surfaces cmd/ems-server enables: a
// loopback TCP address for a browser or Prometheus scraper, and
// optionally a unix socket alongside the FIFO server pipe for local
// tooling that would rather not open a network port at all. Neither
// listener ever touches the FIFO wire protocol.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
)

// Config names the surfaces to serve Monitor's handler on. Addr is
// required; SocketPath is optional.
type Config struct {
	Addr       string
	SocketPath string
	Handler    http.Handler
}

// Server runs Monitor's handler on a TCP listener and, if configured,
// a unix-socket listener at the same time.
type Server struct {
	cfg     Config
	tcp     *http.Server
	local   *http.Server
	localLn net.Listener
}

// New builds a Server. When cfg.SocketPath is set, the listening
// socket is created up front (and any stale file from a previous run
// removed) so Start cannot fail after the caller has already logged
// the listening addresses.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("monitor server: addr required")
	}
	h := cfg.Handler
	if h == nil {
		h = http.NewServeMux()
	}

	s := &Server{cfg: cfg, tcp: &http.Server{Addr: cfg.Addr, Handler: h}}

	if cfg.SocketPath != "" {
		if err := os.Remove(cfg.SocketPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("monitor server: remove stale socket: %w", err)
		}
		ln, err := net.Listen("unix", cfg.SocketPath)
		if err != nil {
			return nil, fmt.Errorf("monitor server: unix listen: %w", err)
		}
		if err := os.Chmod(cfg.SocketPath, 0o660); err != nil {
			ln.Close()
			return nil, fmt.Errorf("monitor server: chmod socket: %w", err)
		}
		s.localLn = ln
		s.local = &http.Server{Handler: h}
	}

	return s, nil
}

// Start serves the unix-socket listener, if any, in the background
// and then blocks serving the TCP listener until Shutdown.
func (s *Server) Start() error {
	if s.localLn != nil {
		go s.local.Serve(s.localLn)
	}
	return s.tcp.ListenAndServe()
}

// Shutdown gracefully stops both listeners and unlinks the socket file.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error

	if s.local != nil {
		if err := s.local.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.cfg.SocketPath != "" {
		os.Remove(s.cfg.SocketPath)
	}

	if err := s.tcp.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// SocketPath returns the configured unix-socket path, or empty if the
// monitor is only reachable over TCP.
func (s *Server) SocketPath() string {
	return s.cfg.SocketPath
}
