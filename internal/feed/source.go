package feed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ClockInterval is how often RunClock pushes the time of day.
const ClockInterval = time.Second

// RunClock pushes the local time of day into a once immediately and then
// every interval until ctx is done.
func RunClock(ctx context.Context, a *Aggregator, interval time.Duration) error {
	if interval <= 0 {
		interval = ClockInterval
	}
	a.Clock(time.Now())
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-tick.C:
			a.Clock(t)
		}
	}
}

// maxLine bounds one JSON update line.
const maxLine = 64 * 1024

// ReadUpdates merges newline-delimited JSON updates from r into a until EOF
// or ctx is done. Malformed lines are reported on stderr and skipped. A
// blocked read is only noticed after the next line arrives.
func ReadUpdates(ctx context.Context, r io.Reader, a *Aggregator) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	line := 0
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		u, err := ParseUpdate([]byte(text))
		if err != nil {
			fmt.Fprintf(os.Stderr, "feed: line %d: %v\n", line, err)
			continue
		}
		a.Apply(u)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("feed: reading updates: %w", err)
	}
	return nil
}
