package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Mavwarf/driftsynth/internal/charter"
	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/paths"
)

const noLogMessage = "No session log found. Enable logging with --log or \"log\": true in config."

func historyCmd(args []string) {
	if len(args) > 0 {
		switch args[0] {
		case "show":
			historyShow(args[1:])
			return
		case "clear":
			historyClear()
			return
		case "clean":
			historyClean(args[1:])
			return
		case "chart":
			historyChart(args[1:])
			return
		}
	}

	count, err := parseCount(args, 10)
	if err != nil {
		fatal(err)
	}
	store, ok := openHistory()
	if !ok {
		return
	}
	defer store.Close()

	sessions, err := store.Sessions(count)
	if err != nil {
		fatal(err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions logged yet.")
		return
	}
	renderSessions(os.Stdout, sessions, time.Now())
}

func historyShow(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("history show requires a session id"))
	}
	count, err := parseCount(args[1:], 20)
	if err != nil {
		fatal(err)
	}
	store, ok := openHistory()
	if !ok {
		return
	}
	defer store.Close()

	sess, err := store.FindSession(args[0])
	if err != nil {
		fatal(err)
	}
	snaps, err := store.Snapshots(sess.ID, count)
	if err != nil {
		fatal(err)
	}
	renderSessions(os.Stdout, []eventlog.Session{sess}, time.Now())
	fmt.Println()
	if len(snaps) == 0 {
		fmt.Println("No snapshots in this session.")
		return
	}
	renderSnapshots(os.Stdout, snaps)
}

// historyChart writes one session's snapshots as an HTML chart.
func historyChart(args []string) {
	if len(args) < 1 {
		fatal(fmt.Errorf("history chart requires a session id"))
	}
	store, ok := openHistory()
	if !ok {
		return
	}
	defer store.Close()

	sess, err := store.FindSession(args[0])
	if err != nil {
		fatal(err)
	}
	snaps, err := store.Snapshots(sess.ID, 0)
	if err != nil {
		fatal(err)
	}
	out := chartPath(sess, args[1:])

	var buf bytes.Buffer
	title := fmt.Sprintf("driftsynth session %s (%s, %s, %s)", shortID(sess.ID), sess.Mode, sess.Waveform, sess.Scale)
	if err := charter.Render(&buf, title, snaps); err != nil {
		fatal(err)
	}
	if err := paths.AtomicWrite(out, buf.Bytes()); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote %s snapshots to %s\n", humanize.Comma(int64(len(snaps))), out)
}

// chartPath is the explicit output argument or drift-<id>.html.
func chartPath(sess eventlog.Session, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "drift-" + shortID(sess.ID) + ".html"
}

func historyClean(args []string) {
	days, err := parseCount(args, 30)
	if err != nil {
		fatal(err)
	}
	store, ok := openHistory()
	if !ok {
		return
	}
	defer store.Close()

	n, err := store.Clean(days)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("Removed %s sessions older than %d days.\n", humanize.Comma(int64(n)), days)
}

func historyClear() {
	store, ok := openHistory()
	if !ok {
		return
	}
	defer store.Close()
	if err := store.Clear(); err != nil {
		fatal(err)
	}
	fmt.Println("Session log cleared.")
}

// openHistory opens the session database if one exists.
func openHistory() (*eventlog.SQLiteStore, bool) {
	path := paths.DBPath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Println(noLogMessage)
			return nil, false
		}
		fatal(err)
	}
	store, err := eventlog.NewSQLiteStore(path)
	if err != nil {
		fatal(err)
	}
	return store, true
}

// parseCount reads an optional positive integer argument.
func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("count must be a positive integer")
	}
	return n, nil
}

func renderSessions(w io.Writer, sessions []eventlog.Session, now time.Time) {
	fmt.Fprintf(w, "%-8s  %-16s  %-9s  %-6s  %-9s  %-9s  %s\n",
		"ID", "STARTED", "LENGTH", "MODE", "WAVEFORM", "SCALE", "SNAPSHOTS")
	for _, s := range sessions {
		fmt.Fprintf(w, "%-8s  %-16s  %-9s  %-6s  %-9s  %-9s  %s\n",
			shortID(s.ID), humanize.RelTime(s.Started, now, "ago", "from now"),
			sessionLength(s), s.Mode, s.Waveform, s.Scale, humanize.Comma(int64(s.Count)))
	}
}

func sessionLength(s eventlog.Session) string {
	if s.Open() {
		return "running"
	}
	return s.Ended.Sub(s.Started).Round(time.Second).String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderSnapshots(w io.Writer, snaps []eventlog.Snapshot) {
	fmt.Fprintf(w, "%-8s  %-19s  %6s  %6s  %6s  %8s  %8s  %5s  %s\n",
		"TIME", "POSITION", "SPEED", "TEMP", "HEAD", "F0", "LOWPASS", "WET", "VOICES")
	for _, s := range snaps {
		st := s.State
		fmt.Fprintf(w, "%-8s  %-19s  %6.1f  %6.1f  %6.0f  %8.2f  %8.0f  %5.2f  %s\n",
			s.Time.Local().Format("15:04:05"),
			fmt.Sprintf("%.4f,%.4f", st.Latitude, st.Longitude),
			st.Speed, st.Temperature, st.Heading,
			s.Fundamental, s.Lowpass, s.Wet, formatFrequencies(s.Frequencies[:]))
	}
}
