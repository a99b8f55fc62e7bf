// Package monitor provides an optional, loopback-only observer of EMS
// command activity: a websocket broadcast hub for live dashboards and
// Prometheus counters for scraping. It never participates in the FIFO
// wire protocol and never affects command outcomes (spec.md's
// no-distribution-across-hosts Non-goal rules out a remote control
// plane, not a same-host, read-only observability surface).
package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mistakeknot/ems/internal/command"
)

const writeTimeout = 5 * time.Second

// Event is one command's outcome, broadcast to every connected monitor.
type Event struct {
	Kind     string    `json:"kind"`
	EventID  uint32    `json:"event_id,omitempty"`
	HasEvent bool      `json:"has_event"`
	Outcome  string    `json:"outcome"`
	At       time.Time `json:"at"`
}

// Hub fans out Events to every connected websocket client.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Handler upgrades a request to a websocket connection and keeps it
// registered until the client disconnects. Inbound messages are read
// and discarded — the hub is broadcast-only.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		h.add(conn)
		defer h.remove(conn)

		ctx := r.Context()
		for {
			var v any
			if err := wsjson.Read(ctx, conn, &v); err != nil {
				return
			}
		}
	}
}

func (h *Hub) Broadcast(e Event) {
	conns := h.snapshot()
	for _, conn := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = wsjson.Write(ctx, conn, e)
		cancel()
	}
}

func (h *Hub) snapshot() []*websocket.Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		out = append(out, conn)
	}
	return out
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Monitor implements internal/executor.Recorder, fanning out each
// command's outcome to the websocket hub and to Prometheus counters.
type Monitor struct {
	hub *Hub
}

func New() *Monitor {
	return &Monitor{hub: NewHub()}
}

func (m *Monitor) Record(eventID uint32, hasEvent bool, kind command.Kind, outcome string) {
	observeCommand(kind.String(), outcome)
	m.hub.Broadcast(Event{
		Kind:     kind.String(),
		EventID:  eventID,
		HasEvent: hasEvent,
		Outcome:  outcome,
		At:       time.Now(),
	})
}

// SetActiveSessions reports the session server's current slot
// occupancy on the ems_active_sessions gauge (wired from
// internal/session.Server's slot claim/free transitions).
func (m *Monitor) SetActiveSessions(n int) {
	SetActiveSessions(n)
}

// Handler returns the combined /ws live-feed and /metrics mux, meant
// to be bound only to a loopback address by the caller.
func (m *Monitor) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", m.hub.Handler())
	mux.Handle("/metrics", metricsHandler())
	return mux
}
