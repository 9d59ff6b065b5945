package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/Mavwarf/driftsynth/internal/audio"
	"github.com/Mavwarf/driftsynth/internal/config"
	"github.com/Mavwarf/driftsynth/internal/dashboard"
	"github.com/Mavwarf/driftsynth/internal/eventlog"
	"github.com/Mavwarf/driftsynth/internal/feed"
	"github.com/Mavwarf/driftsynth/internal/ffmpeg"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/mqtt"
	"github.com/Mavwarf/driftsynth/internal/paths"
	"github.com/Mavwarf/driftsynth/internal/synth"
	"github.com/Mavwarf/driftsynth/internal/weather"
)

func playCmd(args []string, f flags) {
	if len(args) > 0 {
		fatal(fmt.Errorf("play takes no arguments, got %q", strings.Join(args, " ")))
	}
	cfg, err := loadConfig(f)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	if err := play(ctx, cfg, f.silent, f.duration); err != nil {
		fatal(err)
	}
}

// play runs one session until ctx is done. A positive duration only
// affects how progress is shown; ctx carries the deadline.
func play(ctx context.Context, cfg config.Config, silent bool, duration time.Duration) error {
	opts, err := cfg.EngineOptions()
	if err != nil {
		return err
	}
	if cfg.Engine.ReverbImpulse != "" {
		ir, err := audio.LoadImpulse(cfg.Engine.ReverbImpulse, audio.SampleRate)
		if err != nil {
			fmt.Fprintf(os.Stderr, "driftsynth: %v (using synthetic reverb)\n", err)
		} else {
			opts.Impulse = ir
		}
	}

	var out audio.Output
	if silent {
		out = &audio.Drain{}
	} else {
		out = audio.NewBackend(cfg.VolumeFraction())
	}

	var rec *audio.Recorder
	if cfg.Record.Path != "" {
		path := recordPath(cfg.Record.Path, time.Now())
		if err := ffmpeg.CheckTarget(path); err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), paths.DirPerm); err != nil {
			return err
		}
		wavPath := captureWAVPath(path)
		rec, err = audio.NewRecorder(wavPath, audio.SampleRate)
		if err != nil {
			return err
		}
		out = audio.Tap{Out: out, Rec: rec}
		defer func() {
			if err := finishRecording(rec, wavPath, path); err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
				return
			}
			fmt.Println(recordSummary(path, rec.Frames()))
		}()
	}
	opts.Output = out

	eng := synth.New(opts)
	agg := feed.NewAggregator(eng.SetEnvironmentalData)

	var (
		logStore eventlog.Store
		logger   *eventlog.Logger
	)
	if cfg.Log {
		store, err := eventlog.NewSQLiteStore(paths.DBPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "driftsynth: session log disabled: %v\n", err)
		} else {
			defer store.Close()
			logStore = store
			logger, err = eventlog.NewLogger(store, opts.Mode.String(), opts.Waveform.String(), opts.Scale.String(), 0)
			if err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: session log disabled: %v\n", err)
			} else {
				defer logger.Close()
			}
		}
	}

	var client *mqtt.Client
	if cfg.MQTT.Broker != "" {
		client, err = mqtt.Connect(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: clientID(cfg.MQTT.ClientID),
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "driftsynth: %v (continuing without MQTT)\n", err)
		} else {
			defer client.Close()
			if err := client.Subscribe(cfg.MQTT.Topic, 0, updateHandler(agg)); err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
			}
		}
	}

	var pub *publisher
	if client != nil && cfg.MQTT.PublishTopic != "" {
		pub = newPublisher(func(payload []byte) error {
			return client.Publish(cfg.MQTT.PublishTopic, 0, false, payload)
		})
	}

	var live *dashboard.Live
	if cfg.Dashboard.Enabled {
		live = &dashboard.Live{}
	}

	var (
		status   reporter
		progress *sessionProgress
	)
	switch inline := term.IsTerminal(int(os.Stdout.Fd())); {
	case inline && duration > 0:
		progress = newSessionProgress(os.Stdout, duration, time.Now())
		status = progress
	default:
		status = newStatusLine(os.Stdout, inline)
	}
	eng.OnRecompute(func(r synth.Report) {
		status.Update(r)
		if live != nil {
			live.Update(r)
		}
		if logger != nil {
			logger.Record(eventlog.NewSnapshot(time.Now(), r.State, r.Targets))
		}
		if pub != nil {
			pub.Offer(r)
		}
	})

	fmt.Printf("driftsynth: playing mode=%s waveform=%s scale=%s (Ctrl-C to stop)\n",
		opts.Mode, opts.Waveform, opts.Scale)
	eng.Start()

	// Stdin is read outside the group: a blocked read cannot be interrupted,
	// so it must not hold up shutdown.
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			if err := feed.ReadUpdates(ctx, os.Stdin, agg); err != nil && !errors.Is(err, context.Canceled) {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return feed.RunClock(gctx, agg, feed.ClockInterval) })
	if progress != nil {
		g.Go(func() error { return progress.Run(gctx) })
	}
	if pub != nil {
		g.Go(func() error { return pub.Run(gctx) })
	}
	if cfg.Weather.Enabled {
		p := weather.Provider{BaseURL: cfg.Weather.URL}
		g.Go(func() error { return weather.Run(gctx, agg, p, cfg.WeatherInterval()) })
	}
	if live != nil {
		srv := dashboard.New(cfg, logStore, live)
		g.Go(func() error {
			// A busy port should not end the session.
			if err := srv.Serve(gctx, cfg.Dashboard.Port, false); err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
			}
			return nil
		})
	}
	err = g.Wait()

	eng.Stop()
	status.Done()
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// recordPath expands "auto" into a timestamped file in the data directory.
func recordPath(p string, now time.Time) string {
	if p == "auto" {
		return paths.RecordPath(now.Format("20060102-150405"))
	}
	return p
}

// captureWAVPath is where samples land while playing. Compressed targets
// are captured next to the target and converted on close.
func captureWAVPath(path string) string {
	if ffmpeg.NeedsConversion(path) {
		return path + ".wav"
	}
	return path
}

// finishRecording closes the capture and converts it when the target is
// not WAV. The intermediate WAV is kept if conversion fails.
func finishRecording(rec *audio.Recorder, wavPath, path string) error {
	if err := rec.Close(); err != nil {
		return err
	}
	if wavPath == path {
		return nil
	}
	if err := ffmpeg.Convert(wavPath, path); err != nil {
		return fmt.Errorf("%w (capture kept at %s)", err, wavPath)
	}
	if err := os.Remove(wavPath); err != nil {
		fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
	}
	return nil
}

func recordSummary(path string, frames int) string {
	secs := float64(frames) / float64(audio.SampleRate)
	size := uint64(frames)*4 + 44
	if info, err := os.Stat(path); err == nil {
		size = uint64(info.Size())
	}
	return fmt.Sprintf("Recorded %s to %s (%s)",
		(time.Duration(secs * float64(time.Second))).Round(100*time.Millisecond),
		path, humanize.Bytes(size))
}

// clientID keeps concurrent instances from kicking each other off the
// broker.
func clientID(base string) string {
	if base == "" {
		base = config.DefaultClientID
	}
	return base + "-" + uuid.NewString()[:8]
}

// updateHandler merges MQTT payloads into the aggregator.
func updateHandler(agg *feed.Aggregator) func([]byte) {
	return func(payload []byte) {
		u, err := feed.ParseUpdate(payload)
		if err != nil {
			fmt.Fprintf(os.Stderr, "driftsynth: mqtt: %v\n", err)
			return
		}
		agg.Apply(u)
	}
}

// frequencyMessage is the payload published after every recompute.
type frequencyMessage struct {
	Time        time.Time              `json:"time"`
	Mode        string                 `json:"mode"`
	Scale       string                 `json:"scale"`
	Fundamental float64                `json:"fundamental"`
	Frequencies [mapper.Voices]float64 `json:"frequencies"`
	State       mapper.State           `json:"state"`
}

func encodeReport(r synth.Report, now time.Time) ([]byte, error) {
	return json.Marshal(frequencyMessage{
		Time:        now.UTC(),
		Mode:        r.Mode.String(),
		Scale:       r.Scale.String(),
		Fundamental: r.Targets.Fundamental,
		Frequencies: r.Frequencies,
		State:       r.State,
	})
}

// publisher sends the newest report from its own goroutine so a slow broker
// never stalls a recompute. Reports that arrive while one is in flight
// replace each other.
type publisher struct {
	send  func([]byte) error
	ready chan struct{}

	mu     sync.Mutex
	latest *synth.Report
}

func newPublisher(send func([]byte) error) *publisher {
	return &publisher{send: send, ready: make(chan struct{}, 1)}
}

// Offer queues r, dropping any unsent report.
func (p *publisher) Offer(r synth.Report) {
	p.mu.Lock()
	p.latest = &r
	p.mu.Unlock()
	select {
	case p.ready <- struct{}{}:
	default:
	}
}

func (p *publisher) take() *synth.Report {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := p.latest
	p.latest = nil
	return r
}

// Run publishes until ctx is done. Send errors are logged, not returned.
func (p *publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.ready:
			r := p.take()
			if r == nil {
				continue
			}
			payload, err := encodeReport(*r, time.Now())
			if err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
				continue
			}
			if err := p.send(payload); err != nil {
				fmt.Fprintf(os.Stderr, "driftsynth: %v\n", err)
			}
		}
	}
}

// reporter shows recompute reports on the console.
type reporter interface {
	Update(r synth.Report)
	Done()
}

// sessionProgress shows a timed session as a progress bar described by
// the latest report.
type sessionProgress struct {
	bar   *progressbar.ProgressBar
	w     io.Writer
	start time.Time
}

func newSessionProgress(w io.Writer, total time.Duration, start time.Time) *sessionProgress {
	bar := progressbar.NewOptions64(
		int64(total/time.Second),
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(20),
		progressbar.OptionSetDescription("starting..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &sessionProgress{bar: bar, w: w, start: start}
}

func (p *sessionProgress) Update(r synth.Report) {
	p.bar.Describe(formatReport(r))
}

// tick moves the bar to the whole seconds elapsed at now.
func (p *sessionProgress) tick(now time.Time) {
	p.bar.Set64(int64(now.Sub(p.start) / time.Second))
}

// Run advances the bar once a second until ctx is done.
func (p *sessionProgress) Run(ctx context.Context) error {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			p.tick(now)
		}
	}
}

func (p *sessionProgress) Done() {
	fmt.Fprintln(p.w)
}

// statusLine prints one summary per recompute: in place on a terminal,
// one line each otherwise.
type statusLine struct {
	mu     sync.Mutex
	w      io.Writer
	inline bool
	dirty  bool
}

func newStatusLine(w io.Writer, inline bool) *statusLine {
	return &statusLine{w: w, inline: inline}
}

func (s *statusLine) Update(r synth.Report) {
	line := formatReport(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inline {
		fmt.Fprintf(s.w, "\r\033[K%s", line)
		s.dirty = true
		return
	}
	fmt.Fprintln(s.w, line)
}

// Done ends an in-place line.
func (s *statusLine) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		fmt.Fprintln(s.w)
		s.dirty = false
	}
}

func formatReport(r synth.Report) string {
	return fmt.Sprintf("f0=%.1fHz lp=%.0fHz wet=%.2f [%s]",
		r.Targets.Fundamental, r.Targets.Lowpass, r.Targets.Wet, formatFrequencies(r.Frequencies[:]))
}

func formatFrequencies(f []float64) string {
	return strings.Join(lo.Map(f, func(v float64, _ int) string {
		return fmt.Sprintf("%.1f", v)
	}), " ")
}
