package eventlog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/paths"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no session matches an id or prefix.
var ErrNotFound = errors.New("eventlog: session not found")

// SQLiteStore implements Store using a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at path and creates
// tables and indexes.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), paths.DirPerm); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Set PRAGMAs before any DDL.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	}

	ddl := `
CREATE TABLE IF NOT EXISTS sessions (
    id        TEXT PRIMARY KEY,
    started   TEXT NOT NULL,
    ended     TEXT NOT NULL DEFAULT '',
    mode      TEXT NOT NULL DEFAULT '',
    waveform  TEXT NOT NULL DEFAULT '',
    scale     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS snapshots (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id         TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    timestamp          TEXT    NOT NULL,
    latitude           REAL    NOT NULL,
    longitude          REAL    NOT NULL,
    speed              REAL    NOT NULL,
    temperature        REAL    NOT NULL,
    humidity           REAL    NOT NULL,
    heading            REAL    NOT NULL,
    time_of_day        REAL    NOT NULL,
    population_density REAL    NOT NULL,
    traffic_density    REAL    NOT NULL,
    elevation          REAL    NOT NULL,
    rainfall           REAL    NOT NULL,
    fundamental        REAL    NOT NULL,
    frequencies_csv    TEXT    NOT NULL,
    lowpass            REAL    NOT NULL,
    highpass           REAL    NOT NULL,
    wet                REAL    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id, id);
`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) BeginSession(mode, waveform, scale string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started, mode, waveform, scale) VALUES (?, ?, ?, ?, ?)`,
		id, s.now().Format(time.RFC3339), mode, waveform, scale,
	)
	if err != nil {
		return "", fmt.Errorf("eventlog: begin session: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) EndSession(id string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended = ? WHERE id = ? AND ended = ''`,
		s.now().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("eventlog: end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.FindSession(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) LogSnapshot(id string, snap Snapshot) error {
	ts := snap.Time
	if ts.IsZero() {
		ts = s.now()
	}
	st := snap.State
	_, err := s.db.Exec(
		`INSERT INTO snapshots (session_id, timestamp,
		    latitude, longitude, speed, temperature, humidity, heading, time_of_day,
		    population_density, traffic_density, elevation, rainfall,
		    fundamental, frequencies_csv, lowpass, highpass, wet)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ts.Format(time.RFC3339),
		st.Latitude, st.Longitude, st.Speed, st.Temperature, st.Humidity, st.Heading, st.TimeOfDay,
		st.PopulationDensity, st.TrafficDensity, st.Elevation, st.Rainfall,
		snap.Fundamental, formatFrequencies(snap.Frequencies), snap.Lowpass, snap.Highpass, snap.Wet,
	)
	if err != nil {
		return fmt.Errorf("eventlog: log snapshot: %w", err)
	}
	return nil
}

const sessionColumns = `s.id, s.started, s.ended, s.mode, s.waveform, s.scale,
	(SELECT COUNT(*) FROM snapshots n WHERE n.session_id = s.id)`

func (s *SQLiteStore) Sessions(limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started DESC, s.rowid DESC LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) FindSession(prefix string) (Session, error) {
	if prefix == "" {
		return Session{}, ErrNotFound
	}
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.id = ? OR s.id LIKE ? ORDER BY s.id = ? DESC LIMIT 2`,
		prefix, stripWildcards(prefix)+"%", prefix,
	)
	if err != nil {
		return Session{}, err
	}
	defer rows.Close()

	var found []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		found = append(found, sess)
	}
	if err := rows.Err(); err != nil {
		return Session{}, err
	}
	switch {
	case len(found) == 0:
		return Session{}, ErrNotFound
	case found[0].ID == prefix, len(found) == 1:
		return found[0], nil
	default:
		return Session{}, fmt.Errorf("eventlog: session prefix %q is ambiguous", prefix)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (Session, error) {
	var sess Session
	var started, ended string
	if err := r.Scan(&sess.ID, &started, &ended, &sess.Mode, &sess.Waveform, &sess.Scale, &sess.Count); err != nil {
		return Session{}, err
	}
	sess.Started, _ = time.Parse(time.RFC3339, started)
	if ended != "" {
		sess.Ended, _ = time.Parse(time.RFC3339, ended)
	}
	return sess, nil
}

func (s *SQLiteStore) Snapshots(id string, limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(
		`SELECT timestamp,
		    latitude, longitude, speed, temperature, humidity, heading, time_of_day,
		    population_density, traffic_density, elevation, rainfall,
		    fundamental, frequencies_csv, lowpass, highpass, wet
		 FROM snapshots WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		id, sqlLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []Snapshot
	for rows.Next() {
		var snap Snapshot
		var tsStr, freqs string
		st := &snap.State
		if err := rows.Scan(&tsStr,
			&st.Latitude, &st.Longitude, &st.Speed, &st.Temperature, &st.Humidity, &st.Heading, &st.TimeOfDay,
			&st.PopulationDensity, &st.TrafficDensity, &st.Elevation, &st.Rainfall,
			&snap.Fundamental, &freqs, &snap.Lowpass, &snap.Highpass, &snap.Wet); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339, tsStr)
		if err != nil {
			continue
		}
		snap.Time = ts
		snap.Frequencies = parseFrequencies(freqs)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest rows were fetched first; hand them back in time order.
	for i, j := 0, len(snaps)-1; i < j; i, j = i+1, j-1 {
		snaps[i], snaps[j] = snaps[j], snaps[i]
	}
	return snaps, nil
}

// Clean removes sessions started before DayCutoff(days) together with their
// snapshots, returning the number of sessions removed.
func (s *SQLiteStore) Clean(days int) (int, error) {
	cutoff := DayCutoff(days).Format(time.RFC3339)

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	// foreign_keys is per connection, so the cascade is not relied on.
	if _, err := tx.Exec(
		`DELETE FROM snapshots WHERE session_id IN (SELECT id FROM sessions WHERE started < ?)`,
		cutoff,
	); err != nil {
		return 0, err
	}
	res, err := tx.Exec(`DELETE FROM sessions WHERE started < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), tx.Commit()
}

func (s *SQLiteStore) Clear() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM snapshots`); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Path() string {
	return s.path
}

// sqlLimit maps "0 = all" onto SQLite's "negative = no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func stripWildcards(s string) string {
	r := strings.NewReplacer(`%`, ``, `_`, ``)
	return r.Replace(s)
}

func formatFrequencies(f [mapper.Voices]float64) string {
	parts := make([]string, len(f))
	for i, v := range f {
		parts[i] = strconv.FormatFloat(v, 'f', 3, 64)
	}
	return strings.Join(parts, ",")
}

func parseFrequencies(csv string) [mapper.Voices]float64 {
	var f [mapper.Voices]float64
	for i, part := range strings.Split(csv, ",") {
		if i >= len(f) {
			break
		}
		f[i], _ = strconv.ParseFloat(part, 64)
	}
	return f
}
