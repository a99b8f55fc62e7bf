// Package embedded provides an embeddable Event Management Service
// session server for in-process use (tests, tooling) without a
// separately-managed binary or a hand-picked FIFO path.
package embedded

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mistakeknot/ems/client"
	"github.com/mistakeknot/ems/internal/ems"
	"github.com/mistakeknot/ems/internal/session"
)

// Config configures the embedded server.
type Config struct {
	// ServerPipe is the well-known FIFO path clients connect through.
	// If empty, a fresh path under os.TempDir() is generated.
	ServerPipe string

	// MaxSessions bounds concurrent client sessions. If 0, defaults to 4.
	MaxSessions int

	// AccessDelay is applied to every Store lookup and seat access
	// (spec.md §5 "Suspension points"). Zero by default, useful for
	// deterministic tests; set non-zero to reproduce contention.
	AccessDelay time.Duration
}

// Server is an embedded Session Server.
type Server struct {
	cfg     Config
	store   *ems.Store
	inner   *session.Server
	started bool
	mu      sync.Mutex
}

// New creates a new embedded Server. It does not start listening until Start.
func New(cfg Config) (*Server, error) {
	if cfg.ServerPipe == "" {
		cfg.ServerPipe = filepath.Join(os.TempDir(), "ems-embedded-"+uuid.NewString()+".sock")
	}
	if cfg.MaxSessions == 0 {
		cfg.MaxSessions = 4
	}

	store := ems.New()
	if err := store.Initialize(cfg.AccessDelay); err != nil {
		return nil, fmt.Errorf("embedded: store init: %w", err)
	}

	inner, err := session.New(session.Config{
		ServerPipe:  cfg.ServerPipe,
		MaxSessions: cfg.MaxSessions,
		Store:       store,
	})
	if err != nil {
		return nil, fmt.Errorf("embedded: session server: %w", err)
	}

	return &Server{cfg: cfg, store: store, inner: inner}, nil
}

// Start starts the embedded session server's accept loop and worker
// pool. internal/session.Server.Start has already created and opened
// the server FIFO when it returns; Start then sleeps 20ms before
// returning.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if err := s.inner.Start(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.started = true
	s.mu.Unlock()

	time.Sleep(20 * time.Millisecond)
	return nil
}

// Stop shuts the embedded server down, unlinking its FIFO and joining
// every session worker.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.inner.Shutdown(ctx)
}

// ServerPipe returns the FIFO path clients connect through.
func (s *Server) ServerPipe() string {
	return s.cfg.ServerPipe
}

// Store returns the underlying Store for direct, non-FIFO access —
// useful for test setup/assertions that don't want to round-trip
// through the wire protocol.
func (s *Server) Store() *ems.Store {
	return s.store
}

// Dial connects a new client.Client to this embedded server.
func (s *Server) Dial(opts ...client.Option) (*client.Client, error) {
	c := client.New(s.cfg.ServerPipe, opts...)
	if err := c.Connect(); err != nil {
		return nil, err
	}
	return c, nil
}
