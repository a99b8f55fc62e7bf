package monitor

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/ems/internal/command"
)

func TestRecordBroadcastsToConnectedClient(t *testing.T) {
	m := New()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the connection before
	// broadcasting, since Accept races with the hub registration.
	time.Sleep(20 * time.Millisecond)

	m.Record(7, true, command.Reserve, "ok")

	var evt Event
	readCtx, readCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer readCancel()
	if err := wsjson.Read(readCtx, conn, &evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if evt.Kind != "RESERVE" || evt.EventID != 7 || evt.Outcome != "ok" {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestMetricsEndpointReportsCommandCount(t *testing.T) {
	m := New()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	m.Record(1, true, command.Create, "ok")

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSetActiveSessionsDoesNotPanic(t *testing.T) {
	SetActiveSessions(3)
	SetActiveSessions(0)
}
