package eventlog

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/bep/debounce"
)

// SnapshotInterval is the minimum spacing between logged snapshots.
const SnapshotInterval = 5 * time.Second

// Logger writes one session's snapshots to a Store at most once per
// interval. A burst of updates is written immediately if the interval has
// passed, otherwise the newest one is held and written once updates go
// quiet for an interval. Errors are printed to stderr; logging is
// best-effort.
type Logger struct {
	store    Store
	id       string
	interval time.Duration
	debounce func(func())
	now      func() time.Time

	mu       sync.Mutex
	pending  *Snapshot
	lastSave time.Time
	closed   bool
}

// NewLogger opens a session in store and returns its logger. An interval
// of 0 selects SnapshotInterval.
func NewLogger(store Store, mode, waveform, scale string, interval time.Duration) (*Logger, error) {
	if interval <= 0 {
		interval = SnapshotInterval
	}
	id, err := store.BeginSession(mode, waveform, scale)
	if err != nil {
		return nil, err
	}
	return &Logger{
		store:    store,
		id:       id,
		interval: interval,
		debounce: debounce.New(interval),
		now:      time.Now,
	}, nil
}

// SessionID returns the id of the logged session.
func (l *Logger) SessionID() string { return l.id }

// Record offers a snapshot for logging.
func (l *Logger) Record(s Snapshot) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	now := l.now()
	if s.Time.IsZero() {
		s.Time = now
	}
	if l.lastSave.IsZero() || now.Sub(l.lastSave) >= l.interval {
		l.pending = nil
		l.lastSave = now
		l.mu.Unlock()
		l.write(s)
		return
	}
	l.pending = &s
	l.mu.Unlock()
	l.debounce(l.flush)
}

// flush writes the held snapshot, if any.
func (l *Logger) flush() {
	l.mu.Lock()
	s := l.pending
	l.pending = nil
	if s == nil || l.closed {
		l.mu.Unlock()
		return
	}
	l.lastSave = l.now()
	l.mu.Unlock()
	l.write(*s)
}

func (l *Logger) write(s Snapshot) {
	if err := l.store.LogSnapshot(l.id, s); err != nil {
		fmt.Fprintf(os.Stderr, "eventlog: %v\n", err)
	}
}

// Close writes any held snapshot and ends the session. Later calls and
// records are ignored.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	s := l.pending
	l.pending = nil
	l.closed = true
	l.mu.Unlock()

	if s != nil {
		l.write(*s)
	}
	return l.store.EndSession(l.id)
}
