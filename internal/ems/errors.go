package ems

import "fmt"

// Kind identifies the class of failure returned by an EMS operation.
type Kind string

const (
	KindUsageError          Kind = "usage_error"
	KindIoFailure           Kind = "io_failure"
	KindNotInitialized      Kind = "not_initialized"
	KindAlreadyInitialized  Kind = "already_initialized"
	KindOutOfMemory         Kind = "out_of_memory"
	KindEventAlreadyExists  Kind = "event_already_exists"
	KindEventNotFound       Kind = "event_not_found"
	KindInvalidSeat         Kind = "invalid_seat"
	KindSeatTaken           Kind = "seat_taken"
	KindParseError          Kind = "parse_error"
	KindFifoProtocolError   Kind = "fifo_protocol_error"
)

// Error is the tagged result carried by every failing EMS operation.
// Callers recover most kinds locally (spec.md §7); the event/detail
// fields let the command executor and the session server build a
// human-readable diagnostic without re-deriving context.
type Error struct {
	Kind    Kind
	Event   uint32
	HasEvt  bool
	Detail  string
}

func (e *Error) Error() string {
	if e.HasEvt {
		return fmt.Sprintf("%s (event %d): %s", e.Kind, e.Event, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func newErr(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

func newEventErr(kind Kind, event uint32, detail string) *Error {
	return &Error{Kind: kind, Event: event, HasEvt: true, Detail: detail}
}

// Is allows errors.Is(err, ems.ErrSeatTaken) style checks against a bare kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons that don't care about event/detail.
var (
	ErrNotInitialized     = &Error{Kind: KindNotInitialized}
	ErrAlreadyInitialized = &Error{Kind: KindAlreadyInitialized}
	ErrOutOfMemory        = &Error{Kind: KindOutOfMemory}
	ErrEventAlreadyExists = &Error{Kind: KindEventAlreadyExists}
	ErrEventNotFound      = &Error{Kind: KindEventNotFound}
	ErrInvalidSeat        = &Error{Kind: KindInvalidSeat}
	ErrSeatTaken          = &Error{Kind: KindSeatTaken}
)
