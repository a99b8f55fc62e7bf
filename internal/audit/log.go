// Package audit records every command the executor runs into an
// in-memory sqlite log (bounded by a recent-entries ring buffer), for
// the SIGUSR1 introspection hook and post-mortem debugging. It is
// strictly observational: Record never blocks command completion and
// a failed persist is swallowed behind the circuit breaker, never
// surfaced to the caller (spec.md's no-persistence Non-goal rules out
// the Store itself, not a diagnostic side-log scoped to one process's
// lifetime).
package audit

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/mistakeknot/ems/internal/command"
)

// Entry is one recorded command outcome.
type Entry struct {
	Seq      int64
	EventID  uint32
	HasEvent bool
	Kind     string
	Outcome  string
	At       time.Time
}

// breakerState is the write-behind path's circuit breaker state:
// CLOSED (normal) -> OPEN (sqlite unavailable) -> HALF_OPEN (probing)
// -> CLOSED. It trips on repeated entry-insert failures rather than on
// an opaque caller-supplied operation, since insertEntry is the only
// thing this log ever persists.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned (internally, never surfaced past Record)
// when the breaker is open and rejecting writes.
var ErrCircuitOpen = fmt.Errorf("audit: circuit breaker is open")

// Log is a Recorder (internal/executor.Recorder and
// internal/session.Recorder) backed by an in-memory sqlite table plus
// a bounded in-process ring buffer of the most recent entries. Writes
// go through a single write-behind goroutine guarded by a breaker +
// backoff-retry path scoped to inserting one Entry at a time, so a
// wedged sqlite handle degrades the audit trail instead of the
// command path that feeds it.
type Log struct {
	db *sql.DB

	mu      sync.Mutex
	nextSeq int64
	recent  *lru.Cache[int64, Entry]

	writes chan Entry
	done   chan struct{}

	// breaker state, guarded by breakerMu (distinct from mu, which
	// guards the sequence counter and ring buffer).
	breakerMu    sync.Mutex
	state        breakerState
	failures     int
	threshold    int
	resetTimeout time.Duration
	lastFailure  time.Time
	nowFunc      func() time.Time

	// retry tuning for a single insert attempt once the breaker has
	// let it through.
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryJitterPct   float64
	sleepFn          func(time.Duration)

	// insertFn performs one insert attempt; overridden in tests to
	// simulate lock contention without a real wedged sqlite handle.
	insertFn func(Entry) error
}

// Open creates a fresh in-memory audit log holding at most ringSize
// recent entries in memory (sqlite itself is unbounded for the
// process's lifetime). The write-behind path trips its breaker after
// 5 consecutive insert failures and probes again after 2s; a single
// insert is retried up to 7 times with a 50ms exponential backoff and
// 25% jitter, matching the teacher's sqlite resilience defaults.
func Open(ringSize int) (*Log, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE commands (
		seq INTEGER PRIMARY KEY,
		event_id INTEGER,
		has_event INTEGER,
		kind TEXT,
		outcome TEXT,
		at TEXT
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	cache, err := lru.New[int64, Entry](ringSize)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: create ring buffer: %w", err)
	}

	l := &Log{
		db:               db,
		recent:           cache,
		writes:           make(chan Entry, 256),
		done:             make(chan struct{}),
		threshold:        5,
		resetTimeout:     2 * time.Second,
		nowFunc:          time.Now,
		retryMaxAttempts: 7,
		retryBaseDelay:   50 * time.Millisecond,
		retryJitterPct:   0.25,
		sleepFn:          time.Sleep,
	}
	l.insertFn = l.insertEntry
	go l.run()
	return l, nil
}

func (l *Log) run() {
	defer close(l.done)
	for e := range l.writes {
		// Persist failures (including ErrCircuitOpen) are swallowed
		// here: the audit log is a diagnostic side-channel, and
		// BreakerState/Recent already expose enough for SIGUSR1 to
		// report that persistence is degraded.
		_ = l.persistEntry(e)
	}
}

// persistEntry is the write-behind path's sole unit of work: decide
// whether the breaker allows an attempt, then retry the insert of
// exactly this entry on "database is locked" until it succeeds, a
// non-lock error occurs, or attempts are exhausted. The result folds
// back into the breaker's failure count/state.
func (l *Log) persistEntry(e Entry) error {
	l.breakerMu.Lock()
	state := l.state
	if state == breakerOpen {
		if l.nowFunc().Sub(l.lastFailure) < l.resetTimeout {
			l.breakerMu.Unlock()
			return ErrCircuitOpen
		}
		state = breakerHalfOpen
	}
	l.breakerMu.Unlock()

	err := l.insertEntryWithRetry(e)

	l.breakerMu.Lock()
	defer l.breakerMu.Unlock()
	if err != nil {
		l.failures++
		if state == breakerHalfOpen || l.failures >= l.threshold {
			l.state = breakerOpen
			l.lastFailure = l.nowFunc()
		}
		return err
	}
	l.failures = 0
	l.state = breakerClosed
	return nil
}

// insertEntryWithRetry inserts e, retrying with exponential backoff
// while the failure looks like a transient sqlite lock.
func (l *Log) insertEntryWithRetry(e Entry) error {
	err := l.insertFn(e)
	if err == nil {
		return nil
	}
	if !isDBLocked(err) {
		return err
	}

	for attempt := 1; attempt <= l.retryMaxAttempts; attempt++ {
		delay := l.retryBaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * l.retryJitterPct)
		l.sleepFn(delay + jitter)

		err = l.insertFn(e)
		if err == nil {
			return nil
		}
		if !isDBLocked(err) {
			return err
		}
	}
	return err
}

func (l *Log) insertEntry(e Entry) error {
	_, err := l.db.Exec(
		`INSERT INTO commands(seq, event_id, has_event, kind, outcome, at) VALUES (?, ?, ?, ?, ?, ?)`,
		e.Seq, e.EventID, boolToInt(e.HasEvent), e.Kind, e.Outcome, e.At.Format(time.RFC3339Nano),
	)
	return err
}

func isDBLocked(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

// BreakerState reports the write-behind path's current circuit
// breaker state, for the SIGUSR1 introspection hook.
func (l *Log) BreakerState() string {
	l.breakerMu.Lock()
	defer l.breakerMu.Unlock()
	return l.state.String()
}

// Record implements internal/executor.Recorder and
// internal/session.Recorder.
func (l *Log) Record(eventID uint32, hasEvent bool, kind command.Kind, outcome string) {
	l.mu.Lock()
	l.nextSeq++
	seq := l.nextSeq
	l.mu.Unlock()

	e := Entry{Seq: seq, EventID: eventID, HasEvent: hasEvent, Kind: kind.String(), Outcome: outcome, At: time.Now()}
	l.recent.Add(seq, e)

	select {
	case l.writes <- e:
	default:
		// Persistence queue is full: the ring buffer above still holds
		// the entry for Recent(); the sqlite row is simply dropped.
	}
}

// Recent returns the most recently recorded entries, oldest first.
func (l *Log) Recent() []Entry {
	keys := l.recent.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if v, ok := l.recent.Peek(k); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Close stops the write-behind goroutine and closes the database.
func (l *Log) Close() error {
	close(l.writes)
	<-l.done
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
