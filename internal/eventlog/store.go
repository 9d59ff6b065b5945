// Package eventlog keeps a history of playback sessions and the
// environmental snapshots the engine mapped while they ran.
package eventlog

import (
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

// Session is one Start..Stop run of the engine.
type Session struct {
	ID       string
	Started  time.Time
	Ended    time.Time // zero while the session is open
	Mode     string
	Waveform string
	Scale    string
	Count    int // number of snapshots logged
}

// Open reports whether the session has not been ended.
func (s Session) Open() bool { return s.Ended.IsZero() }

// Snapshot is one environmental state together with what it mapped to.
type Snapshot struct {
	Time        time.Time
	State       mapper.State
	Fundamental float64
	Frequencies [mapper.Voices]float64
	Lowpass     float64
	Highpass    float64
	Wet         float64
}

// NewSnapshot pairs a state with its recompute targets.
func NewSnapshot(t time.Time, st mapper.State, tg mapper.Targets) Snapshot {
	return Snapshot{
		Time:        t,
		State:       st,
		Fundamental: tg.Fundamental,
		Frequencies: tg.Frequencies,
		Lowpass:     tg.Lowpass,
		Highpass:    tg.Highpass,
		Wet:         tg.Wet,
	}
}

// Store abstracts session log storage.
type Store interface {
	// Write
	BeginSession(mode, waveform, scale string) (string, error)
	EndSession(id string) error
	LogSnapshot(id string, s Snapshot) error

	// Read
	Sessions(limit int) ([]Session, error)             // newest first, 0 = all
	Snapshots(id string, limit int) ([]Snapshot, error) // last N in time order, 0 = all
	FindSession(prefix string) (Session, error)          // by full id or unique prefix

	// Maintenance
	Clean(days int) (int, error) // remove sessions started before the cutoff
	Clear() error

	// Metadata
	Path() string
	Close() error
}

// DayCutoff returns midnight N days ago (inclusive) in the local timezone.
// For days=1 it returns today at midnight, for days=7 it returns 6 days ago, etc.
func DayCutoff(days int) time.Time {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -(days - 1))
}
