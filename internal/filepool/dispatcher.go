// Package filepool implements the File-level Thread Pool (spec.md §4.D):
// a bounded pool of worker goroutines that drains one file's parsed
// command stream, dispatching each command to a Command Executor while
// implementing BARRIER and WAIT synchronization at the dispatcher level
// rather than as commands a worker itself executes.
package filepool

import (
	"sync"
	"time"

	"github.com/mistakeknot/ems/internal/command"
	"github.com/mistakeknot/ems/internal/executor"
)

// slot is the Go analogue of the spec's ThreadInfo record: one
// worker's identity, whether it is live and has started, and any
// pending WAIT delay (only meaningful before the worker starts
// running). The command itself is passed to runWorker separately.
type slot struct {
	index        uint32
	active       bool
	started      bool
	pendingDelay time.Duration
}

// Dispatcher drains a command stream for one input file across up to
// maxThreads concurrent workers.
type Dispatcher struct {
	ex         *executor.Executor
	maxThreads int

	mu    sync.Mutex
	cond  *sync.Cond
	slots []*slot
	next  uint32 // next thread index to assign; resets to 1 after BARRIER
}

func NewDispatcher(ex *executor.Executor, maxThreads int) *Dispatcher {
	if maxThreads < 1 {
		maxThreads = 1
	}
	d := &Dispatcher{
		ex:         ex,
		maxThreads: maxThreads,
		slots:      make([]*slot, maxThreads),
		next:       1,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Run drains p until EOC, dispatching each command to a worker except
// WAIT and BARRIER, which the dispatcher handles directly (spec.md §9
// "BARRIER and dynamic dispatch": it is a synchronization, not a
// command a worker executes).
func (d *Dispatcher) Run(p *command.Parser) {
	for {
		cmd := p.Next()
		switch cmd.Kind {
		case command.EOC:
			d.joinAll()
			return
		case command.Barrier:
			d.joinAll()
			d.mu.Lock()
			d.next = 1
			d.mu.Unlock()
		case command.Wait:
			// A WAIT is itself a command position in the thread-index
			// sequence, but the "worker" that receives it performs no
			// further action (spec.md §4.D) — so no slot is spawned for
			// it, only the index counter advances and delay bookkeeping
			// is applied to already-issued, not-yet-started workers.
			d.applyWait(cmd)
			d.mu.Lock()
			d.next++
			d.mu.Unlock()
		default:
			s := d.admit()
			go d.runWorker(s, cmd)
		}
	}
}

// admit finds or waits for a free slot position, matching spec.md
// §4.D "Capacity": when live workers equal maxThreads, reuse the slot
// of the first worker observed inactive.
func (d *Dispatcher) admit() *slot {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		for i, s := range d.slots {
			if s == nil || !s.active {
				ns := &slot{index: d.next, active: true}
				d.next++
				d.slots[i] = ns
				return ns
			}
		}
		d.cond.Wait()
	}
}

func (d *Dispatcher) runWorker(s *slot, cmd *command.Command) {
	d.mu.Lock()
	delay := s.pendingDelay
	s.started = true
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	d.ex.Execute(cmd)

	d.mu.Lock()
	s.active = false
	d.cond.Broadcast()
	d.mu.Unlock()
}

// applyWait attaches the pending delay to every slot that has not yet
// started executing its command (spec.md §4.D "WAIT semantics").
func (d *Dispatcher) applyWait(cmd *command.Command) {
	delay := time.Duration(cmd.WaitDelayMs) * time.Millisecond
	targeted := cmd.HasThreadID && cmd.WaitThreadID != 0

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.slots {
		if s == nil || s.started {
			continue
		}
		if targeted && s.index != cmd.WaitThreadID {
			continue
		}
		s.pendingDelay = delay
	}
}

// joinAll blocks until every live slot has finished (spec.md §4.D
// "Termination" and the BARRIER synchronization point).
func (d *Dispatcher) joinAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		anyActive := false
		for _, s := range d.slots {
			if s != nil && s.active {
				anyActive = true
				break
			}
		}
		if !anyActive {
			return
		}
		d.cond.Wait()
	}
}
