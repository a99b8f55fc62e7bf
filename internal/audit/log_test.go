package audit

import (
	"testing"
	"time"

	"github.com/mistakeknot/ems/internal/command"
)

func TestRecordAppearsInRecent(t *testing.T) {
	l, err := Open(16)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	l.Record(1, true, command.Create, "ok")
	l.Record(2, true, command.Reserve, "ok")

	deadline := time.After(time.Second)
	for {
		if len(l.Recent()) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected 2 recent entries, got %d", len(l.Recent()))
		case <-time.After(5 * time.Millisecond):
		}
	}

	entries := l.Recent()
	if entries[0].Kind != "CREATE" || entries[1].Kind != "RESERVE" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Seq >= entries[1].Seq {
		t.Fatalf("expected increasing sequence numbers: %+v", entries)
	}
}

func TestRingBufferBoundsRecentEntries(t *testing.T) {
	l, err := Open(2)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		l.Record(uint32(i), true, command.Show, "ok")
	}

	if len(l.Recent()) > 2 {
		t.Fatalf("expected ring buffer to bound recent entries to 2, got %d", len(l.Recent()))
	}
}

func TestCloseAfterRecordSucceeds(t *testing.T) {
	l, err := Open(4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	l.Record(1, true, command.List, "ok")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
