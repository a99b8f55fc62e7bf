package embedded

import "testing"

func TestEmbeddedServerRoundTrip(t *testing.T) {
	srv, err := New(Config{ServerPipe: t.TempDir() + "/ems.sock"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer srv.Stop()

	c, err := srv.Dial()
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Quit()

	if err := c.Create(1, 2, 2); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows, cols, _, err := c.Show(1)
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if rows != 2 || cols != 2 {
		t.Fatalf("expected 2x2, got %dx%d", rows, cols)
	}
}

func TestEmbeddedServerStoreAccessorBypassesWire(t *testing.T) {
	srv, err := New(Config{ServerPipe: t.TempDir() + "/ems.sock"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := srv.Store().Create(9, 1, 1); err != nil {
		t.Fatalf("direct create: %v", err)
	}
	ids, err := srv.Store().SnapshotIDs()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("expected [9], got %v", ids)
	}
}
