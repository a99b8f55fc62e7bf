// Package session implements the Session Server (spec.md §4.F): a
// FIFO-based rendezvous protocol that admits up to MaxSessions
// concurrent clients onto a fixed pool of persistent per-slot workers,
// each driving the wire protocol against a shared ems.Store.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mistakeknot/ems/internal/command"
	"github.com/mistakeknot/ems/internal/ems"
	"github.com/mistakeknot/ems/internal/wire"
)

// Recorder observes command outcomes, same shape as
// internal/executor.Recorder. The session server dispatches straight
// to ems.Store rather than through internal/executor (the wire
// protocol needs structured binary responses, not textual output), so
// it notifies its own Recorder directly.
type Recorder interface {
	Record(eventID uint32, hasEvent bool, kind command.Kind, outcome string)
}

// SlotState is the per-session state machine: Free -> Claimed ->
// Active -> Free. There is no separate Closing state; when a session
// ends its slot goes straight from Active back to Free.
type SlotState int

const (
	Free SlotState = iota
	Claimed
	Active
)

func (s SlotState) String() string {
	switch s {
	case Free:
		return "Free"
	case Claimed:
		return "Claimed"
	case Active:
		return "Active"
	default:
		return "Unknown"
	}
}

type slot struct {
	index        int
	state        SlotState
	requestFifo  string
	responseFifo string
}

// opener opens a session's client-owned request/response FIFOs. It is
// overridden in tests to avoid depending on real named pipes.
type opener func(requestPath, responsePath string) (io.ReadCloser, io.WriteCloser, error)

// Config configures a Server.
type Config struct {
	ServerPipe  string
	MaxSessions int
	Store       *ems.Store
	Recorder    Recorder // optional

	// ActiveSessions, if set, is called with the number of
	// non-Free slots every time a slot is claimed or freed (wired to
	// internal/monitor.Monitor.SetActiveSessions by cmd/ems-server).
	ActiveSessions func(n int)
}

// Server is the long-running FIFO session daemon.
type Server struct {
	cfg      Config
	store    *ems.Store
	recorder Recorder
	open     opener

	mu      sync.Mutex
	cond    *sync.Cond
	slots   []*slot
	closing bool
	wg      sync.WaitGroup

	serverFifo *os.File
}

func New(cfg Config) (*Server, error) {
	if cfg.ServerPipe == "" {
		return nil, fmt.Errorf("session: server pipe path required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("session: store required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1
	}
	s := &Server{cfg: cfg, store: cfg.Store, recorder: cfg.Recorder, open: openFIFOPair}
	s.cond = sync.NewCond(&s.mu)
	s.slots = make([]*slot, cfg.MaxSessions)
	for i := range s.slots {
		s.slots[i] = &slot{index: i, state: Free}
	}
	return s, nil
}

func openFIFOPair(requestPath, responsePath string) (io.ReadCloser, io.WriteCloser, error) {
	reqR, err := os.OpenFile(requestPath, os.O_RDONLY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open request fifo: %w", err)
	}
	respW, err := os.OpenFile(responsePath, os.O_WRONLY, 0)
	if err != nil {
		reqR.Close()
		return nil, nil, fmt.Errorf("open response fifo: %w", err)
	}
	return reqR, respW, nil
}

// Start removes any stale server pipe, creates a fresh one, and spawns
// the fixed pool of persistent session workers plus the accept loop.
func (s *Server) Start() error {
	if err := os.Remove(s.cfg.ServerPipe); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale server pipe: %w", err)
	}
	if err := unix.Mkfifo(s.cfg.ServerPipe, 0o666); err != nil {
		return fmt.Errorf("mkfifo server pipe: %w", err)
	}
	// O_RDWR keeps the read end from observing EOF between connecting
	// clients — a standard workaround for a long-lived FIFO reader.
	f, err := os.OpenFile(s.cfg.ServerPipe, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open server pipe: %w", err)
	}
	s.serverFifo = f

	for i := 0; i < len(s.slots); i++ {
		s.wg.Add(1)
		go s.sessionWorker(i)
	}
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	for {
		op, err := wire.ReadOpcode(s.serverFifo)
		if err != nil {
			if s.isClosing() {
				return
			}
			continue
		}
		if op != wire.OpConnect {
			continue
		}
		req, err := wire.ReadConnectRequest(s.serverFifo)
		if err != nil {
			continue
		}
		if !s.claimFreeSlot(req) {
			return // closing
		}
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// claimFreeSlot blocks, mirroring cond_slot_available/free_slot_lock
// (spec.md §4.F "Slot allocation"), until a Free slot exists or the
// server is shutting down.
func (s *Server) claimFreeSlot(req wire.ConnectRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closing {
			return false
		}
		for _, sl := range s.slots {
			if sl.state == Free {
				sl.state = Claimed
				sl.requestFifo = req.RequestFifo
				sl.responseFifo = req.ResponseFifo
				s.cond.Broadcast()
				s.reportActiveSessionsLocked()
				return true
			}
		}
		s.cond.Wait()
	}
}

// reportActiveSessionsLocked calls cfg.ActiveSessions with the current
// count of non-Free slots. Callers must hold s.mu.
func (s *Server) reportActiveSessionsLocked() {
	if s.cfg.ActiveSessions == nil {
		return
	}
	active := 0
	for _, sl := range s.slots {
		if sl.state != Free {
			active++
		}
	}
	s.cfg.ActiveSessions(active)
}

// sessionWorker is a persistent worker bound to one slot for the
// server's lifetime, re-entering its wait for the next Claimed
// notification after each session closes (spec.md §4.F "State machine
// per slot").
func (s *Server) sessionWorker(index int) {
	defer s.wg.Done()
	sl := s.slots[index]
	for {
		s.mu.Lock()
		for sl.state != Claimed && !s.closing {
			s.cond.Wait()
		}
		if s.closing && sl.state != Claimed {
			s.mu.Unlock()
			return
		}
		reqPath, respPath := sl.requestFifo, sl.responseFifo
		s.mu.Unlock()

		reqR, respW, err := s.open(reqPath, respPath)
		if err != nil {
			s.freeSlot(sl)
			continue
		}
		if err := wire.WriteSlot(respW, int32(index)); err != nil {
			reqR.Close()
			respW.Close()
			s.freeSlot(sl)
			continue
		}

		s.mu.Lock()
		sl.state = Active
		s.mu.Unlock()

		s.serveSession(sl, reqR, respW)

		reqR.Close()
		respW.Close()
		s.freeSlot(sl)
	}
}

func (s *Server) freeSlot(sl *slot) {
	s.mu.Lock()
	sl.state = Free
	sl.requestFifo = ""
	sl.responseFifo = ""
	s.cond.Broadcast()
	s.reportActiveSessionsLocked()
	s.mu.Unlock()
}

// serveSession runs the per-session command loop (spec.md §4.F step
// 5). Server shutdown mid-session closes the FIFOs without writing a
// protocol error — the client observes a clean EOF (Open Question,
// resolved in SPEC_FULL.md).
func (s *Server) serveSession(sl *slot, reqR io.Reader, respW io.Writer) {
	for {
		if s.isClosing() {
			return
		}
		op, err := wire.ReadOpcode(reqR)
		if err != nil {
			return
		}
		switch op {
		case wire.OpQuit:
			return
		case wire.OpCreate:
			req, err := wire.ReadCreateRequest(reqR)
			if err != nil {
				return
			}
			err2 := s.store.Create(req.EventID, int(req.Rows), int(req.Cols))
			s.record(req.EventID, true, command.Create, err2)
			if writeErr := wire.WriteResult(respW, resultFor(err2)); writeErr != nil {
				return
			}
		case wire.OpReserve:
			req, err := wire.ReadReserveRequest(reqR)
			if err != nil {
				return
			}
			coords := make([]ems.Coord, len(req.Xs))
			for i := range coords {
				coords[i] = ems.Coord{Row: int(req.Xs[i]), Col: int(req.Ys[i])}
			}
			_, err2 := s.store.Reserve(req.EventID, coords)
			s.record(req.EventID, true, command.Reserve, err2)
			if writeErr := wire.WriteResult(respW, resultFor(err2)); writeErr != nil {
				return
			}
		case wire.OpShow:
			req, err := wire.ReadShowRequest(reqR)
			if err != nil {
				return
			}
			rows, cols, seats, err2 := s.store.Show(req.EventID)
			s.record(req.EventID, true, command.Show, err2)
			if err2 != nil {
				if writeErr := wire.WriteResult(respW, resultFor(err2)); writeErr != nil {
					return
				}
				continue
			}
			if writeErr := wire.WriteResult(respW, wire.Result{OK: true}); writeErr != nil {
				return
			}
			if writeErr := wire.WriteShowResponse(respW, wire.ShowResponse{
				Rows: uint64(rows), Cols: uint64(cols), Seats: seats,
			}); writeErr != nil {
				return
			}
		case wire.OpList:
			ids, err2 := s.store.SnapshotIDs()
			s.record(0, false, command.List, err2)
			if err2 != nil {
				if writeErr := wire.WriteResult(respW, resultFor(err2)); writeErr != nil {
					return
				}
				continue
			}
			if writeErr := wire.WriteResult(respW, wire.Result{OK: true}); writeErr != nil {
				return
			}
			if writeErr := wire.WriteListResponse(respW, wire.ListResponse{IDs: ids}); writeErr != nil {
				return
			}
		default:
			wire.WriteResult(respW, wire.Result{OK: false, ErrText: "unknown opcode"})
		}
	}
}

func (s *Server) record(eventID uint32, hasEvent bool, kind command.Kind, err error) {
	if s.recorder == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		if emsErr, ok := err.(*ems.Error); ok {
			outcome = string(emsErr.Kind)
		} else {
			outcome = err.Error()
		}
	}
	s.recorder.Record(eventID, hasEvent, kind, outcome)
}

func resultFor(err error) wire.Result {
	if err == nil {
		return wire.Result{OK: true}
	}
	return wire.Result{OK: false, ErrText: err.Error()}
}

// Shutdown triggers orderly shutdown (spec.md §4.F "Signal hook"):
// unlinks the server FIFO, wakes every worker, and joins them.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.cond.Broadcast()
	s.mu.Unlock()

	if s.serverFifo != nil {
		s.serverFifo.Close()
	}
	os.Remove(s.cfg.ServerPipe)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dump writes every event's grid to w, in creation order (spec.md
// §4.F "Signal hook": SIGUSR1 prints every event's grid to stdout).
func (s *Server) Dump(w io.Writer) error {
	snaps, err := s.store.Snapshot()
	if err != nil {
		return err
	}
	for _, ev := range snaps {
		fmt.Fprintf(w, "Event %d (%dx%d):\n", ev.ID, ev.Rows, ev.Cols)
		for r := 0; r < ev.Rows; r++ {
			for c := 0; c < ev.Cols; c++ {
				if c > 0 {
					io.WriteString(w, " ")
				}
				fmt.Fprintf(w, "%d", ev.Seats[r*ev.Cols+c])
			}
			io.WriteString(w, "\n")
		}
	}
	return nil
}
