// Package ems implements the Event Store and Reservation Engine: the
// in-memory state of numbered events, each a two-dimensional grid of
// seats, under the multi-reader/single-writer locking discipline of
// spec.md §4.A and §4.B.
//
// The locking order is fixed top-down: initLock -> listLock -> seatLock.
// No operation ever holds two event locks at once, and downgrading a
// write lock to a read lock is never attempted — this is what makes the
// ordering deadlock-free (spec.md §5 "Ordering guarantees").
package ems

import (
	"sync"
	"time"
)

// Event is a single numbered event: a dense row-major grid of seats.
// Grid dimensions are immutable after creation (invariant 4); seatLock
// guards both the grid contents and nextReservationID (invariant 2).
type Event struct {
	ID   uint32
	Rows int
	Cols int

	seatLock          sync.RWMutex
	seats             []uint32 // 0 = free, else reservation id
	nextReservationID uint32
}

func newEvent(id uint32, rows, cols int) *Event {
	return &Event{
		ID:    id,
		Rows:  rows,
		Cols:  cols,
		seats: make([]uint32, rows*cols),
	}
}

func seatIndex(e *Event, row, col int) int {
	return (row-1)*e.Cols + (col - 1)
}

// Store owns the ordered sequence of Events and the store's lifecycle
// flag. listLock guards membership (insertion order, traversal);
// initLock guards the initialized flag itself. Every public operation
// below takes initLock shared except Initialize/Terminate, which take
// it exclusive (spec.md §4.A).
type Store struct {
	initLock    sync.RWMutex
	initialized bool
	accessDelay time.Duration

	listLock sync.RWMutex
	events   []*Event
	byID     map[uint32]*Event
}

// New returns an uninitialized Store. Call Initialize before use.
func New() *Store {
	return &Store{byID: make(map[uint32]*Event)}
}

// Initialize transitions the store to the initialized state with the
// given per-access delay. Idempotent: a second call returns
// ErrAlreadyInitialized and leaves state untouched.
func (s *Store) Initialize(accessDelay time.Duration) error {
	s.initLock.Lock()
	defer s.initLock.Unlock()
	if s.initialized {
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.accessDelay = accessDelay
	s.listLock.Lock()
	s.events = nil
	s.byID = make(map[uint32]*Event)
	s.listLock.Unlock()
	return nil
}

// Terminate releases all events and marks the store uninitialized.
func (s *Store) Terminate() error {
	s.initLock.Lock()
	defer s.initLock.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	s.listLock.Lock()
	s.events = nil
	s.byID = make(map[uint32]*Event)
	s.listLock.Unlock()
	s.initialized = false
	return nil
}

func (s *Store) delay() {
	if s.accessDelay > 0 {
		time.Sleep(s.accessDelay)
	}
}

// Create appends a new event under exclusive listLock. Duplicate ids
// fail with ErrEventAlreadyExists; the duplicate check itself goes
// through the delayed lookup so contention on Create races the same
// way a real lookup would.
func (s *Store) Create(id uint32, rows, cols int) error {
	s.initLock.RLock()
	defer s.initLock.RUnlock()
	if !s.initialized {
		return ErrNotInitialized
	}

	s.listLock.Lock()
	defer s.listLock.Unlock()

	s.delay()
	if _, ok := s.byID[id]; ok {
		return newEventErr(KindEventAlreadyExists, id, "event already exists")
	}

	ev := newEvent(id, rows, cols)
	s.events = append(s.events, ev)
	s.byID[id] = ev
	return nil
}

// Lookup returns the event with the given id under shared listLock,
// subject to the configured access delay.
func (s *Store) Lookup(id uint32) (*Event, error) {
	s.initLock.RLock()
	defer s.initLock.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	s.listLock.RLock()
	defer s.listLock.RUnlock()

	s.delay()
	ev, ok := s.byID[id]
	if !ok {
		return nil, newEventErr(KindEventNotFound, id, "event not found")
	}
	return ev, nil
}

// SnapshotIDs returns every event id in insertion (creation) order.
func (s *Store) SnapshotIDs() ([]uint32, error) {
	s.initLock.RLock()
	defer s.initLock.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	s.listLock.RLock()
	defer s.listLock.RUnlock()

	ids := make([]uint32, len(s.events))
	for i, ev := range s.events {
		ids[i] = ev.ID
	}
	return ids, nil
}

// Snapshot returns a defensive copy of every event's grid, ordered by
// creation. Used by the SIGUSR1 introspection hook (spec.md §4.F).
func (s *Store) Snapshot() ([]EventSnapshot, error) {
	s.initLock.RLock()
	defer s.initLock.RUnlock()
	if !s.initialized {
		return nil, ErrNotInitialized
	}

	s.listLock.RLock()
	evs := append([]*Event(nil), s.events...)
	s.listLock.RUnlock()

	out := make([]EventSnapshot, 0, len(evs))
	for _, ev := range evs {
		ev.seatLock.RLock()
		seats := append([]uint32(nil), ev.seats...)
		ev.seatLock.RUnlock()
		out = append(out, EventSnapshot{ID: ev.ID, Rows: ev.Rows, Cols: ev.Cols, Seats: seats})
	}
	return out, nil
}

// EventSnapshot is a read-only, lock-free copy of one event's grid.
type EventSnapshot struct {
	ID    uint32
	Rows  int
	Cols  int
	Seats []uint32
}

// Show returns a copy of the event's grid under shared seatLock, with
// every seat access paying the configured delay (spec.md §4.A "Access
// delay" — load-bearing, exposes the races the locks must defeat).
func (s *Store) Show(id uint32) (rows, cols int, seats []uint32, err error) {
	ev, err := s.Lookup(id)
	if err != nil {
		return 0, 0, nil, err
	}

	ev.seatLock.RLock()
	defer ev.seatLock.RUnlock()

	out := make([]uint32, ev.Rows*ev.Cols)
	for i := range out {
		s.delay()
		out[i] = ev.seats[i]
	}
	return ev.Rows, ev.Cols, out, nil
}
