package client

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mistakeknot/ems/internal/ems"
	"github.com/mistakeknot/ems/internal/session"
)

func newTestServer(t *testing.T) (serverPipe string) {
	t.Helper()
	store := ems.New()
	if err := store.Initialize(0); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	pipe := filepath.Join(t.TempDir(), "ems.sock")
	srv, err := session.New(session.Config{ServerPipe: pipe, MaxSessions: 2, Store: store})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return pipe
}

func TestConnectCreateShowQuitRoundTrip(t *testing.T) {
	pipe := newTestServer(t)

	c := New(pipe, WithSessionDir(t.TempDir()))
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if c.Slot < 0 {
		t.Fatalf("expected a valid slot, got %d", c.Slot)
	}

	if err := c.Create(42, 2, 3); err != nil {
		t.Fatalf("create: %v", err)
	}

	rows, cols, seats, err := c.Show(42)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if rows != 2 || cols != 3 {
		t.Fatalf("expected 2x3 grid, got %dx%d", rows, cols)
	}
	for _, v := range seats {
		if v != 0 {
			t.Fatalf("expected a fresh grid of zeros, got %v", seats)
		}
	}

	if err := c.Quit(); err != nil {
		t.Fatalf("quit: %v", err)
	}
}

func TestReserveThenListRoundTrip(t *testing.T) {
	pipe := newTestServer(t)

	c := New(pipe, WithSessionDir(t.TempDir()))
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Quit()

	if err := c.Create(7, 2, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := c.Reserve(7, []Coord{{X: 1, Y: 1}, {X: 1, Y: 2}}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	ids, err := c.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected [7], got %v", ids)
	}
}

func TestShowUnknownEventReturnsError(t *testing.T) {
	pipe := newTestServer(t)

	c := New(pipe, WithSessionDir(t.TempDir()))
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Quit()

	if _, _, _, err := c.Show(999); err == nil {
		t.Fatalf("expected error for unknown event")
	}
}

func TestConnectTimeoutFailsAgainstUnservedPipe(t *testing.T) {
	// A real FIFO with no reader on the other end: opening it for
	// write blocks forever, which is exactly the hang ConnectTimeout
	// exists to bound.
	pipe := filepath.Join(t.TempDir(), "nobody-listening.sock")
	if err := unix.Mkfifo(pipe, 0o600); err != nil {
		t.Fatalf("mkfifo: %v", err)
	}

	c := New(pipe, WithSessionDir(t.TempDir()))
	start := time.Now()
	err := c.ConnectTimeout(50 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("ConnectTimeout took too long to fail: %v", elapsed)
	}
}

func TestSecondClientReusesSlotAfterFirstQuits(t *testing.T) {
	pipe := newTestServer(t)

	c1 := New(pipe, WithSessionDir(t.TempDir()))
	if err := c1.Connect(); err != nil {
		t.Fatalf("connect 1: %v", err)
	}
	slot1 := c1.Slot
	if err := c1.Quit(); err != nil {
		t.Fatalf("quit 1: %v", err)
	}

	// Give the worker a moment to return its slot to Free.
	time.Sleep(50 * time.Millisecond)

	c2 := New(pipe, WithSessionDir(t.TempDir()))
	if err := c2.Connect(); err != nil {
		t.Fatalf("connect 2: %v", err)
	}
	defer c2.Quit()
	if c2.Slot != slot1 {
		t.Fatalf("expected second client to reuse slot %d, got %d", slot1, c2.Slot)
	}
}
