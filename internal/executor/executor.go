// Package executor implements the Command Executor (spec.md §4.C): it
// maps parsed command records onto ems.Store/Engine calls and renders
// results to an output sink. Multi-byte writes that form one logical
// record (a SHOW grid row, a LIST line) are serialized against
// concurrent writers via writeLock, matching spec.md §4.C "Output
// format" and the File-level Thread Pool's shared sink.
package executor

import (
	"fmt"
	"io"
	"sync"

	"github.com/mistakeknot/ems/internal/command"
	"github.com/mistakeknot/ems/internal/ems"
)

// Recorder receives a notification for every command the executor runs,
// used by the audit log (internal/audit) and the live monitor
// (internal/monitor). Both are purely observational and never change a
// command's outcome. The audit log queues its writes without blocking;
// the monitor writes each broadcast synchronously, bounded by a
// per-connection write timeout.
type Recorder interface {
	Record(eventID uint32, hasEvent bool, kind command.Kind, outcome string)
}

// Executor dispatches parsed commands to a Store and renders output.
type Executor struct {
	store *ems.Store

	writeLock sync.Mutex
	out       io.Writer

	recorder Recorder
}

func New(store *ems.Store, out io.Writer) *Executor {
	return &Executor{store: store, out: out}
}

// WithRecorder attaches an observer that is notified after each command
// completes. It never changes command outcomes.
func (e *Executor) WithRecorder(r Recorder) *Executor {
	e.recorder = r
	return e
}

func (e *Executor) writeString(s string) {
	e.writeLock.Lock()
	defer e.writeLock.Unlock()
	io.WriteString(e.out, s)
}

func (e *Executor) record(eventID uint32, hasEvent bool, kind command.Kind, outcome string) {
	if e.recorder != nil {
		e.recorder.Record(eventID, hasEvent, kind, outcome)
	}
}

// Execute runs one parsed command and returns true when the caller's
// processing loop should terminate (on EOC).
func (e *Executor) Execute(cmd *command.Command) (terminate bool) {
	switch cmd.Kind {
	case command.Create:
		err := e.store.Create(cmd.EventID, cmd.Rows, cmd.Cols)
		e.reportErr(cmd, err)
		e.record(cmd.EventID, true, cmd.Kind, outcomeOf(err))

	case command.Reserve:
		_, err := e.store.Reserve(cmd.EventID, cmd.Coords)
		e.reportErr(cmd, err)
		e.record(cmd.EventID, true, cmd.Kind, outcomeOf(err))

	case command.Show:
		e.executeShow(cmd)

	case command.List:
		e.executeList()
		e.record(0, false, cmd.Kind, "ok")

	case command.Wait:
		// No-op in the single-threaded/sequential driver; the File-level
		// Thread Pool intercepts WAIT before a worker ever reaches here
		// (spec.md §4.D "A WAIT record is itself a command issued by a
		// worker; the worker that receives it performs no further action").

	case command.Barrier:
		// A synchronization point, not a command a worker executes
		// (spec.md §4.D "BARRIER and dynamic dispatch"); the dispatcher
		// handles it directly. A no-op here keeps sequential callers safe.

	case command.Help:
		e.writeString(command.HelpText)
		e.record(0, false, cmd.Kind, "ok")

	case command.Empty, command.Comment:
		// ignored

	case command.Invalid:
		e.writeString(fmt.Sprintf("ERR: invalid command: %s\n", cmd.Err))
		e.record(0, false, cmd.Kind, "invalid: "+cmd.Err)

	case command.EOC:
		return true
	}
	return false
}

func (e *Executor) executeShow(cmd *command.Command) {
	rows, cols, seats, err := e.store.Show(cmd.EventID)
	if err != nil {
		e.reportErr(cmd, err)
		e.record(cmd.EventID, true, cmd.Kind, outcomeOf(err))
		return
	}

	var buf []byte
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if c > 0 {
				buf = append(buf, ' ')
			}
			buf = fmt.Appendf(buf, "%d", seats[r*cols+c])
		}
		buf = append(buf, '\n')
	}
	e.writeString(string(buf))
	e.record(cmd.EventID, true, cmd.Kind, "ok")
}

func (e *Executor) executeList() {
	ids, err := e.store.SnapshotIDs()
	if err != nil {
		e.writeString(fmt.Sprintf("ERR: %v\n", err))
		return
	}
	if len(ids) == 0 {
		e.writeString("No events\n")
		return
	}
	var buf []byte
	for _, id := range ids {
		buf = fmt.Appendf(buf, "Event: %d\n", id)
	}
	e.writeString(string(buf))
}

func (e *Executor) reportErr(cmd *command.Command, err error) {
	if err == nil {
		return
	}
	e.writeString(fmt.Sprintf("ERR: %v\n", err))
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	if emsErr, ok := err.(*ems.Error); ok {
		return string(emsErr.Kind)
	}
	return err.Error()
}
