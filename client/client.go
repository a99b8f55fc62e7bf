// Package client is a Go SDK for the Session Server's FIFO wire
// protocol (spec.md §4.F), so the server is exercisable without a
// separate reimplementation of the protocol in tests or by external
// tooling (SPEC_FULL.md "client package and emsctl CLI").
package client

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/mistakeknot/ems/internal/wire"
)

// Client is a connected session: one slot in the server's worker pool,
// communicating over a pair of client-owned FIFOs.
type Client struct {
	serverPipe string
	dir        string
	reqPath    string
	respPath   string

	reqW  *os.File
	respR *os.File

	Slot int32
}

// Option configures a Client before Connect.
type Option func(*Client)

// WithSessionDir overrides where the client's request/response FIFOs
// are created (default os.TempDir()).
func WithSessionDir(dir string) Option {
	return func(c *Client) {
		if dir != "" {
			c.dir = dir
		}
	}
}

// New prepares a Client for the given server pipe without connecting yet.
func New(serverPipe string, opts ...Option) *Client {
	c := &Client{serverPipe: serverPipe, dir: os.TempDir()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect performs the connect handshake (spec.md §4.F "Connect
// handshake") with a deadline of DefaultConnectTimeout: creates this
// session's request/response FIFOs, sends the connect opcode on the
// server FIFO, and reads back the assigned slot on its own response
// FIFO. Every step here blocks on a named pipe open, so a server that
// never shows up (wrong path, not yet started) would otherwise hang a
// caller forever.
func (c *Client) Connect() error {
	return c.ConnectTimeout(DefaultConnectTimeout)
}

// ConnectTimeout is like Connect but with an explicit deadline.
func (c *Client) ConnectTimeout(d time.Duration) error {
	result := make(chan error, 1)
	go func() { result <- c.connect() }()
	select {
	case err := <-result:
		return err
	case <-time.After(d):
		// The handshake goroutine above is left running. It has
		// already recorded its FIFO paths on c (so a later Close
		// removes them), removes the FIFOs itself if a later step
		// fails, and stores its open FIFOs and slot on c only if the
		// handshake eventually succeeds.
		return fmt.Errorf("client: connect timed out after %s", d)
	}
}

func (c *Client) connect() error {
	id := uuid.NewString()
	c.reqPath = filepath.Join(c.dir, "ems-req-"+id)
	c.respPath = filepath.Join(c.dir, "ems-resp-"+id)

	if err := unix.Mkfifo(c.reqPath, 0o600); err != nil {
		return fmt.Errorf("client: mkfifo request: %w", err)
	}
	if err := unix.Mkfifo(c.respPath, 0o600); err != nil {
		os.Remove(c.reqPath)
		return fmt.Errorf("client: mkfifo response: %w", err)
	}

	serverW, err := os.OpenFile(c.serverPipe, os.O_WRONLY, 0)
	if err != nil {
		c.cleanupFifos()
		return fmt.Errorf("client: open server pipe: %w", err)
	}
	defer serverW.Close()

	if err := wire.WriteConnectRequest(serverW, wire.ConnectRequest{
		RequestFifo:  c.reqPath,
		ResponseFifo: c.respPath,
	}); err != nil {
		c.cleanupFifos()
		return fmt.Errorf("client: send connect: %w", err)
	}

	// The worker opens the request FIFO for reading, then the response
	// FIFO for writing (internal/session.openFIFOPair); opening these
	// in the same order here is what lets both sides' blocking opens
	// pair up without either end guessing the other's readiness.
	reqW, err := os.OpenFile(c.reqPath, os.O_WRONLY, 0)
	if err != nil {
		c.cleanupFifos()
		return fmt.Errorf("client: open request fifo: %w", err)
	}
	respR, err := os.OpenFile(c.respPath, os.O_RDONLY, 0)
	if err != nil {
		reqW.Close()
		c.cleanupFifos()
		return fmt.Errorf("client: open response fifo: %w", err)
	}

	slot, err := wire.ReadSlot(respR)
	if err != nil {
		reqW.Close()
		respR.Close()
		c.cleanupFifos()
		return fmt.Errorf("client: read slot: %w", err)
	}
	if slot < 0 {
		reqW.Close()
		respR.Close()
		c.cleanupFifos()
		return fmt.Errorf("client: connect refused")
	}

	c.reqW, c.respR, c.Slot = reqW, respR, slot
	return nil
}

// Create issues opcode 3.
func (c *Client) Create(eventID uint32, rows, cols int) error {
	if err := wire.WriteCreateRequest(c.reqW, wire.CreateRequest{
		EventID: eventID, Rows: uint64(rows), Cols: uint64(cols),
	}); err != nil {
		return err
	}
	return resultErr(wire.ReadResult(c.respR))
}

// Coord is one seat coordinate passed to Reserve.
type Coord struct {
	X, Y int
}

// Reserve issues opcode 4.
func (c *Client) Reserve(eventID uint32, coords []Coord) error {
	xs := make([]uint64, len(coords))
	ys := make([]uint64, len(coords))
	for i, co := range coords {
		xs[i], ys[i] = uint64(co.X), uint64(co.Y)
	}
	if err := wire.WriteReserveRequest(c.reqW, wire.ReserveRequest{
		EventID: eventID, Xs: xs, Ys: ys,
	}); err != nil {
		return err
	}
	return resultErr(wire.ReadResult(c.respR))
}

// Show issues opcode 5.
func (c *Client) Show(eventID uint32) (rows, cols int, seats []uint32, err error) {
	if err := wire.WriteShowRequest(c.reqW, wire.ShowRequest{EventID: eventID}); err != nil {
		return 0, 0, nil, err
	}
	res, err := wire.ReadResult(c.respR)
	if err != nil {
		return 0, 0, nil, err
	}
	if !res.OK {
		return 0, 0, nil, fmt.Errorf("%s", res.ErrText)
	}
	resp, err := wire.ReadShowResponse(c.respR)
	if err != nil {
		return 0, 0, nil, err
	}
	return int(resp.Rows), int(resp.Cols), resp.Seats, nil
}

// List issues opcode 6.
func (c *Client) List() ([]uint32, error) {
	if err := wire.WriteListRequest(c.reqW); err != nil {
		return nil, err
	}
	res, err := wire.ReadResult(c.respR)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, fmt.Errorf("%s", res.ErrText)
	}
	resp, err := wire.ReadListResponse(c.respR)
	if err != nil {
		return nil, err
	}
	return resp.IDs, nil
}

// Quit issues opcode 2 and tears the session down.
func (c *Client) Quit() error {
	err := wire.WriteQuit(c.reqW)
	c.Close()
	return err
}

// Close releases local resources without notifying the server; Quit
// is the orderly path, Close is for error cleanup.
func (c *Client) Close() error {
	var firstErr error
	if c.reqW != nil {
		if err := c.reqW.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.respR != nil {
		if err := c.respR.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.cleanupFifos()
	return firstErr
}

func (c *Client) cleanupFifos() {
	if c.reqPath != "" {
		os.Remove(c.reqPath)
	}
	if c.respPath != "" {
		os.Remove(c.respPath)
	}
}

func resultErr(res wire.Result, err error) error {
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("%s", res.ErrText)
	}
	return nil
}

// DefaultConnectTimeout bounds Connect's handshake so a caller against
// an unreachable or not-yet-started server fails instead of hanging on
// a blocking FIFO open.
const DefaultConnectTimeout = 5 * time.Second
