package ems

import (
	"errors"
	"testing"
)

func newInitialized(t *testing.T) *Store {
	t.Helper()
	s := New()
	if err := s.Initialize(0); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func TestInitializeIdempotent(t *testing.T) {
	s := New()
	if err := s.Initialize(0); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	err := s.Initialize(0)
	if !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestOperationsRequireInitialization(t *testing.T) {
	s := New()
	if err := s.Create(1, 2, 2); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := s.Lookup(1); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestTerminateRequiresInitialization(t *testing.T) {
	s := New()
	if err := s.Terminate(); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

// L1: CREATE then SHOW on a fresh event yields all zeros.
func TestCreateThenShowIsAllZeros(t *testing.T) {
	s := newInitialized(t)
	if err := s.Create(1, 2, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows, cols, seats, err := s.Show(1)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if rows != 2 || cols != 2 {
		t.Fatalf("expected 2x2, got %dx%d", rows, cols)
	}
	for i, v := range seats {
		if v != 0 {
			t.Fatalf("seat %d not zero: %d", i, v)
		}
	}
}

// L2: SHOW is idempotent and side-effect free.
func TestShowIsIdempotent(t *testing.T) {
	s := newInitialized(t)
	if err := s.Create(1, 1, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Reserve(1, []Coord{{1, 1}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	first, _, seats1, err := s.Show(1)
	if err != nil {
		t.Fatalf("show 1: %v", err)
	}
	_ = first
	_, _, seats2, err := s.Show(1)
	if err != nil {
		t.Fatalf("show 2: %v", err)
	}
	if len(seats1) != len(seats2) {
		t.Fatalf("length mismatch")
	}
	for i := range seats1 {
		if seats1[i] != seats2[i] {
			t.Fatalf("seat %d differs across calls: %d vs %d", i, seats1[i], seats2[i])
		}
	}
}

func TestCreateDuplicateFails(t *testing.T) {
	s := newInitialized(t)
	if err := s.Create(1, 1, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Create(1, 1, 1)
	if !errors.Is(err, ErrEventAlreadyExists) {
		t.Fatalf("expected ErrEventAlreadyExists, got %v", err)
	}
}

func TestLookupMissing(t *testing.T) {
	s := newInitialized(t)
	if _, err := s.Lookup(42); !errors.Is(err, ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

// L3: LIST returns event ids in creation order (scenario 4).
func TestSnapshotIDsPreservesCreationOrder(t *testing.T) {
	s := newInitialized(t)
	for _, id := range []uint32{7, 3, 5} {
		if err := s.Create(id, 1, 1); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	ids, err := s.SnapshotIDs()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	want := []uint32{7, 3, 5}
	if len(ids) != len(want) {
		t.Fatalf("expected %d ids, got %d", len(want), len(ids))
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("position %d: want %d, got %d", i, want[i], ids[i])
		}
	}
}

func TestTerminateClearsEvents(t *testing.T) {
	s := newInitialized(t)
	if err := s.Create(1, 1, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if err := s.Initialize(0); err != nil {
		t.Fatalf("re-initialize: %v", err)
	}
	ids, err := s.SnapshotIDs()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no events after terminate, got %v", ids)
	}
}
