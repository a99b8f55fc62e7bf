// Package wire implements the session server's FIFO wire protocol
// (spec.md §4.F): fixed-width binary fields in host byte order, with
// pipe-name fields as PipeNameSize null-padded strings. It is
// transport-agnostic — anything implementing io.Reader/io.Writer works,
// which lets the session package drive it over real FIFOs and the test
// suite drive it over in-memory pipes.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// PipeNameSize is the fixed width of a pipe-path field on the wire.
const PipeNameSize = 256

// ErrTextSize is the fixed width of an error-text field on the wire.
const ErrTextSize = 256

// Opcode tags a client request (spec.md §4.F "Opcodes").
type Opcode byte

const (
	OpConnect Opcode = 1
	OpQuit    Opcode = 2
	OpCreate  Opcode = 3
	OpReserve Opcode = 4
	OpShow    Opcode = 5
	OpList    Opcode = 6
)

var order = binary.NativeEndian

func writeFixedString(w io.Writer, s string, size int) error {
	if len(s) > size {
		return fmt.Errorf("wire: string %q exceeds field width %d", s, size)
	}
	buf := make([]byte, size)
	copy(buf, s)
	_, err := w.Write(buf)
	return err
}

func readFixedString(r io.Reader, size int) (string, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	order.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint32(buf[:]), nil
}

func writeU64(w io.Writer, v uint64) error {
	var buf [8]byte
	order.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return order.Uint64(buf[:]), nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadOpcode reads the single leading opcode byte of a request.
func ReadOpcode(r io.Reader) (Opcode, error) {
	b, err := readByte(r)
	return Opcode(b), err
}

// ConnectRequest is the payload following opcode 1 (spec.md §4.F
// "Connect handshake" step 1).
type ConnectRequest struct {
	RequestFifo  string
	ResponseFifo string
}

func WriteConnectRequest(w io.Writer, req ConnectRequest) error {
	if err := writeByte(w, byte(OpConnect)); err != nil {
		return err
	}
	if err := writeFixedString(w, req.RequestFifo, PipeNameSize); err != nil {
		return err
	}
	return writeFixedString(w, req.ResponseFifo, PipeNameSize)
}

// ReadConnectRequest reads a ConnectRequest payload; the caller has
// already consumed the opcode byte via ReadOpcode.
func ReadConnectRequest(r io.Reader) (ConnectRequest, error) {
	reqFifo, err := readFixedString(r, PipeNameSize)
	if err != nil {
		return ConnectRequest{}, err
	}
	respFifo, err := readFixedString(r, PipeNameSize)
	if err != nil {
		return ConnectRequest{}, err
	}
	return ConnectRequest{RequestFifo: reqFifo, ResponseFifo: respFifo}, nil
}

// WriteSlot writes the session slot assigned during connect (spec.md
// §4.F step 3). Written on the client's own response FIFO rather than
// the shared server FIFO — see internal/session's connect handshake
// adaptation note. A negative slot signals connect failure.
func WriteSlot(w io.Writer, slot int32) error {
	return writeU32(w, uint32(slot))
}

func ReadSlot(r io.Reader) (int32, error) {
	v, err := readU32(r)
	return int32(v), err
}

// CreateRequest is opcode 3's payload.
type CreateRequest struct {
	EventID uint32
	Rows    uint64
	Cols    uint64
}

func WriteCreateRequest(w io.Writer, req CreateRequest) error {
	if err := writeByte(w, byte(OpCreate)); err != nil {
		return err
	}
	if err := writeU32(w, req.EventID); err != nil {
		return err
	}
	if err := writeU64(w, req.Rows); err != nil {
		return err
	}
	return writeU64(w, req.Cols)
}

func ReadCreateRequest(r io.Reader) (CreateRequest, error) {
	id, err := readU32(r)
	if err != nil {
		return CreateRequest{}, err
	}
	rows, err := readU64(r)
	if err != nil {
		return CreateRequest{}, err
	}
	cols, err := readU64(r)
	if err != nil {
		return CreateRequest{}, err
	}
	return CreateRequest{EventID: id, Rows: rows, Cols: cols}, nil
}

// ReserveRequest is opcode 4's payload.
type ReserveRequest struct {
	EventID uint32
	Xs      []uint64
	Ys      []uint64
}

func WriteReserveRequest(w io.Writer, req ReserveRequest) error {
	if err := writeByte(w, byte(OpReserve)); err != nil {
		return err
	}
	if err := writeU32(w, req.EventID); err != nil {
		return err
	}
	n := uint64(len(req.Xs))
	if err := writeU64(w, n); err != nil {
		return err
	}
	for _, x := range req.Xs {
		if err := writeU64(w, x); err != nil {
			return err
		}
	}
	for _, y := range req.Ys {
		if err := writeU64(w, y); err != nil {
			return err
		}
	}
	return nil
}

func ReadReserveRequest(r io.Reader) (ReserveRequest, error) {
	id, err := readU32(r)
	if err != nil {
		return ReserveRequest{}, err
	}
	n, err := readU64(r)
	if err != nil {
		return ReserveRequest{}, err
	}
	xs := make([]uint64, n)
	for i := range xs {
		if xs[i], err = readU64(r); err != nil {
			return ReserveRequest{}, err
		}
	}
	ys := make([]uint64, n)
	for i := range ys {
		if ys[i], err = readU64(r); err != nil {
			return ReserveRequest{}, err
		}
	}
	return ReserveRequest{EventID: id, Xs: xs, Ys: ys}, nil
}

// ShowRequest is opcode 5's payload.
type ShowRequest struct {
	EventID uint32
}

func WriteShowRequest(w io.Writer, req ShowRequest) error {
	if err := writeByte(w, byte(OpShow)); err != nil {
		return err
	}
	return writeU32(w, req.EventID)
}

func ReadShowRequest(r io.Reader) (ShowRequest, error) {
	id, err := readU32(r)
	return ShowRequest{EventID: id}, err
}

// ShowResponse is opcode 5's success-path payload.
type ShowResponse struct {
	Rows  uint64
	Cols  uint64
	Seats []uint32
}

func WriteShowResponse(w io.Writer, resp ShowResponse) error {
	if err := writeU64(w, resp.Rows); err != nil {
		return err
	}
	if err := writeU64(w, resp.Cols); err != nil {
		return err
	}
	for _, s := range resp.Seats {
		if err := writeU32(w, s); err != nil {
			return err
		}
	}
	return nil
}

func ReadShowResponse(r io.Reader) (ShowResponse, error) {
	rows, err := readU64(r)
	if err != nil {
		return ShowResponse{}, err
	}
	cols, err := readU64(r)
	if err != nil {
		return ShowResponse{}, err
	}
	seats := make([]uint32, rows*cols)
	for i := range seats {
		if seats[i], err = readU32(r); err != nil {
			return ShowResponse{}, err
		}
	}
	return ShowResponse{Rows: rows, Cols: cols, Seats: seats}, nil
}

// ListResponse is opcode 6's success-path payload.
type ListResponse struct {
	IDs []uint32
}

func WriteListRequest(w io.Writer) error {
	return writeByte(w, byte(OpList))
}

func WriteListResponse(w io.Writer, resp ListResponse) error {
	if err := writeU64(w, uint64(len(resp.IDs))); err != nil {
		return err
	}
	for _, id := range resp.IDs {
		if err := writeU32(w, id); err != nil {
			return err
		}
	}
	return nil
}

func ReadListResponse(r io.Reader) (ListResponse, error) {
	n, err := readU64(r)
	if err != nil {
		return ListResponse{}, err
	}
	ids := make([]uint32, n)
	for i := range ids {
		if ids[i], err = readU32(r); err != nil {
			return ListResponse{}, err
		}
	}
	return ListResponse{IDs: ids}, nil
}

func WriteQuit(w io.Writer) error {
	return writeByte(w, byte(OpQuit))
}

// Result is the leading success/error envelope every response carries
// (spec.md §4.F per-opcode payloads: "out: success; if success=1 →
// fixed-size error text").
type Result struct {
	OK      bool
	ErrText string
}

func WriteResult(w io.Writer, res Result) error {
	b := byte(0)
	if !res.OK {
		b = 1
	}
	if err := writeByte(w, b); err != nil {
		return err
	}
	if !res.OK {
		return writeFixedString(w, res.ErrText, ErrTextSize)
	}
	return nil
}

func ReadResult(r io.Reader) (Result, error) {
	b, err := readByte(r)
	if err != nil {
		return Result{}, err
	}
	if b == 0 {
		return Result{OK: true}, nil
	}
	text, err := readFixedString(r, ErrTextSize)
	if err != nil {
		return Result{}, err
	}
	return Result{OK: false, ErrText: text}, nil
}
