package procpool

import (
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestMain lets the test binary re-exec itself as a fake worker child,
// the same pattern os/exec's own tests use to avoid depending on a
// real external binary (see https://pkg.go.dev/os/exec, "Testing" /
// TestHelperProcess convention).
func TestMain(m *testing.M) {
	if os.Getenv("EMS_PROCPOOL_HELPER") == "1" {
		os.Exit(helperMain())
	}
	os.Exit(m.Run())
}

// helperMain stands in for "cmd/ems __worker <file> <threads> <delay>":
// it succeeds unless the file argument is "fail.ems", in which case it
// exits nonzero, letting tests assert exit-code propagation.
func helperMain() int {
	args := os.Args
	for i, a := range args {
		if a == "__worker" && i+1 < len(args) {
			if args[i+1] == "fail.ems" {
				return 7
			}
			return 0
		}
	}
	return 0
}

func selfTestPool(maxProcesses int) *Pool {
	p := New(os.Args[0], "__worker", maxProcesses, 2, 0)
	p.ExtraEnv = []string{"EMS_PROCPOOL_HELPER=1"}
	return p
}

func TestProcessAllReturnsResultPerFile(t *testing.T) {
	p := selfTestPool(2)
	files := []string{"a.ems", "b.ems", "c.ems"}
	results := p.ProcessAll(files)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, r := range results {
		if r.File != files[i] {
			t.Fatalf("result %d: expected file %q, got %q", i, files[i], r.File)
		}
		if r.Err != nil {
			t.Fatalf("result %d: unexpected error: %v", i, r.Err)
		}
		if r.ExitCode != 0 {
			t.Fatalf("result %d: expected exit 0, got %d", i, r.ExitCode)
		}
	}
}

func TestProcessAllPropagatesNonzeroExit(t *testing.T) {
	p := selfTestPool(2)
	results := p.ProcessAll([]string{"ok.ems", "fail.ems"})
	if results[0].ExitCode != 0 {
		t.Fatalf("expected ok.ems to exit 0, got %d", results[0].ExitCode)
	}
	if results[1].ExitCode != 7 {
		t.Fatalf("expected fail.ems to exit 7, got %d", results[1].ExitCode)
	}
}

// Concurrency never exceeds MaxProcesses: each helper child sleeps
// briefly (simulated by reusing the real exec machinery's scheduling
// latency) so an incorrectly unbounded pool would spike well above 2
// simultaneously-started children.
func TestProcessAllBoundsConcurrency(t *testing.T) {
	p := selfTestPool(2)
	var active int32
	var maxObserved int32

	files := make([]string, 8)
	for i := range files {
		files[i] = "a.ems"
	}

	done := make(chan struct{})
	go func() {
		p.ProcessAll(files)
		close(done)
	}()

	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case <-done:
			if maxObserved > 2 {
				t.Fatalf("observed %d concurrent children, want <= 2", maxObserved)
			}
			return
		case <-ticker.C:
			n := int32(len(p.ActiveChildren()))
			if n > atomic.LoadInt32(&maxObserved) {
				atomic.StoreInt32(&maxObserved, n)
			}
			atomic.StoreInt32(&active, n)
		case <-timeout:
			t.Fatalf("ProcessAll did not complete in time")
		}
	}
}
