package synth

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sync"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

const (
	// DefaultSampleRate is the graph and backend rate.
	DefaultSampleRate = 44100
	// GlideTime is the default frequency glide.
	GlideTime = 500 * time.Millisecond
	// BackendRetry is the delay between attempts to open the audio backend.
	BackendRetry = 2 * time.Second
)

// Options configure an Engine. Zero values select the defaults.
type Options struct {
	Mode     mapper.Mode
	Waveform Waveform
	Scale    mapper.Scale
	Glide    time.Duration
	PeakHour float64 // hour of the time-of-day pitch maximum; 0 selects mapper.DefaultPeakHour, 24 is midnight

	ReverbLength time.Duration
	ReverbDecay  float64
	// Impulse replaces the synthetic reverb. One channel feeds both sides.
	Impulse [][]float64

	SampleRate int
	Output     Output // nil runs the engine without sound
	Clock      Clock
	Rand       mapper.Rand
}

// Report is delivered to observers after every recompute. It holds copies
// only.
type Report struct {
	// Seq increases with every recompute. Observers may see reports out
	// of order when setters race; a report with a lower Seq is stale.
	Seq         uint64
	Frequencies [mapper.Voices]float64
	State       mapper.State
	Targets     mapper.Targets
	Mode        mapper.Mode
	Waveform    Waveform
	Scale       mapper.Scale
}

// VoiceStatus is one voice's envelope state and levels.
type VoiceStatus struct {
	Index int
	State PulseState
	VoiceLevel
}

// Engine owns the voice bank, effect chain and pulse scheduler. All methods
// are safe for concurrent use. Read is the audio pull and is driven by the
// backend's own goroutine.
type Engine struct {
	ioMu sync.Mutex // serializes Start, Stop and backend attach

	mu        sync.Mutex
	opts      Options
	mapOpts   mapper.Options
	clock     Clock
	rnd       mapper.Rand
	graph     *Graph
	running   bool
	attached  bool
	gen       uint64 // bumped whenever the chains are cancelled
	session   uint64 // bumped by Start and Stop
	reports   uint64
	chains    [mapper.Voices]pulseChain
	retry     Timer
	state     mapper.State
	targets   mapper.Targets
	mode      mapper.Mode
	waveform  Waveform
	scale     mapper.Scale
	observers []func(Report)
}

// New creates a stopped engine.
func New(opts Options) *Engine {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	if opts.Glide <= 0 {
		opts.Glide = GlideTime
	}
	if opts.ReverbLength <= 0 {
		opts.ReverbLength = DefaultReverbLength
	}
	if opts.ReverbDecay <= 0 {
		opts.ReverbDecay = DefaultReverbDecay
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	peak := opts.PeakHour
	if peak == 0 {
		peak = mapper.DefaultPeakHour
	}
	e := &Engine{
		opts:     opts,
		mapOpts:  mapper.Options{PeakHour: peak},
		clock:    opts.Clock,
		rnd:      opts.Rand,
		state:    mapper.Defaults(),
		mode:     opts.Mode,
		waveform: opts.Waveform,
		scale:    opts.Scale,
	}
	for i := range e.chains {
		e.chains[i].state = Stopped
	}
	return e
}

// OnRecompute registers an observer. Observers run outside the engine lock
// and must not block. Concurrent setters may deliver their reports out of
// order; only the latest snapshot matters, so observers that keep state
// should ignore a report whose Seq is below one already seen.
func (e *Engine) OnRecompute(fn func(Report)) {
	e.mu.Lock()
	e.observers = append(e.observers, fn)
	e.mu.Unlock()
}

// Start allocates the graph, begins all eight pulse chains and attaches the
// audio backend. It is a no-op while running. A backend that cannot be
// opened is retried every BackendRetry; Start never fails.
func (e *Engine) Start() {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	irL, irR := e.impulseLocked()
	e.graph = NewGraph(e.opts.SampleRate, e.opts.Glide, e.waveform, irL, irR)
	rep := e.recomputeLocked()
	e.restartChainsLocked()
	e.session++
	session := e.session
	e.mu.Unlock()

	e.notify(rep)
	e.attach(session)
}

func (e *Engine) impulseLocked() ([]float64, []float64) {
	switch len(e.opts.Impulse) {
	case 0:
	case 1:
		return e.opts.Impulse[0], e.opts.Impulse[0]
	default:
		return e.opts.Impulse[0], e.opts.Impulse[1]
	}
	l := SyntheticImpulse(e.opts.ReverbLength, e.opts.ReverbDecay, e.opts.SampleRate, e.rnd)
	r := SyntheticImpulse(e.opts.ReverbLength, e.opts.ReverbDecay, e.opts.SampleRate, e.rnd)
	return l, r
}

// attach opens the backend, or arms a retry. Caller holds ioMu, so Stop
// cannot interleave.
func (e *Engine) attach(session uint64) {
	if e.opts.Output == nil {
		return
	}
	e.mu.Lock()
	live := e.running && session == e.session
	e.mu.Unlock()
	if !live {
		return
	}

	err := e.opts.Output.Open(e)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		e.attached = true
		e.retry = nil
		return
	}
	fmt.Fprintf(os.Stderr, "synth: audio backend unavailable, retrying in %s: %v\n", BackendRetry, err)
	e.retry = e.clock.AfterFunc(BackendRetry, func() {
		e.ioMu.Lock()
		defer e.ioMu.Unlock()
		e.attach(session)
	})
}

// Stop cancels every chain, ramp and glide, closes the backend and releases
// the graph. The environmental snapshot returns to defaults; mode, waveform
// and scale are kept. Safe to call repeatedly.
func (e *Engine) Stop() {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.cancelChainsLocked()
	e.gen++
	e.session++
	if e.retry != nil {
		e.retry.Stop()
		e.retry = nil
	}
	if e.graph != nil {
		e.graph.Silence()
	}
	e.graph = nil
	e.state = mapper.Defaults()
	attached := e.attached
	e.attached = false
	e.mu.Unlock()

	if attached {
		if err := e.opts.Output.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "synth: closing audio backend: %v\n", err)
		}
	}
}

// Read renders the next block of interleaved stereo float32 frames. While
// stopped it yields silence.
func (e *Engine) Read(p []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		clear(p)
		return len(p), nil
	}
	e.graph.Render(p)
	return len(p), nil
}

// SetEnvironmentalData replaces the snapshot wholesale and recomputes once.
func (e *Engine) SetEnvironmentalData(st mapper.State) {
	e.mu.Lock()
	e.state = st.Sanitize()
	rep := e.recomputeLocked()
	e.mu.Unlock()
	e.notify(rep)
}

// SetMode switches the envelope regime and restarts all eight chains.
func (e *Engine) SetMode(m mapper.Mode) {
	if m < mapper.Drone || m > mapper.Click {
		m = mapper.Drone
	}
	e.mu.Lock()
	e.mode = m
	rep := e.recomputeLocked()
	e.restartRunningLocked()
	e.mu.Unlock()
	e.notify(rep)
}

// SetWaveform swaps the oscillator table on every voice and restarts all
// eight chains.
func (e *Engine) SetWaveform(w Waveform) {
	if w < 0 || int(w) >= len(waveNames) {
		w = Sine
	}
	e.mu.Lock()
	e.waveform = w
	if e.graph != nil {
		e.graph.SetWaveform(w)
	}
	rep := e.recomputeLocked()
	e.restartRunningLocked()
	e.mu.Unlock()
	e.notify(rep)
}

// SetScale changes the tuning. The chains keep running.
func (e *Engine) SetScale(s mapper.Scale) {
	if s < 0 || int(s) >= len(mapper.Scales()) {
		s = mapper.Harmonic
	}
	e.mu.Lock()
	e.scale = s
	rep := e.recomputeLocked()
	e.mu.Unlock()
	e.notify(rep)
}

func (e *Engine) restartRunningLocked() {
	if !e.running || e.graph == nil {
		return
	}
	for i := range e.chains {
		e.graph.SetVoiceGain(i, 0, switchFade)
	}
	e.restartChainsLocked()
}

// recomputeLocked runs the mapper and applies its frequency, pan, filter
// and mix targets to the graph. Gains belong to the scheduler.
func (e *Engine) recomputeLocked() Report {
	e.targets = mapper.Recompute(e.state, e.mode, e.scale, e.mapOpts, e.rnd)
	if g := e.graph; g != nil {
		for i, f := range e.targets.Frequencies {
			g.SetVoiceFrequency(i, f)
			g.SetPan(i, e.targets.Pans[i])
		}
		g.SetFilters(e.targets.Highpass, e.targets.Lowpass)
		g.SetWet(e.targets.Wet)
		g.Tremolo(e.targets.Tremolo)
	}
	e.reports++
	return Report{
		Seq:         e.reports,
		Frequencies: e.targets.Frequencies,
		State:       e.state,
		Targets:     e.targets,
		Mode:        e.mode,
		Waveform:    e.waveform,
		Scale:       e.scale,
	}
}

func (e *Engine) notify(rep Report) {
	e.mu.Lock()
	obs := append([]func(Report){}, e.observers...)
	e.mu.Unlock()
	for _, fn := range obs {
		fn(rep)
	}
}

func (e *Engine) speedNorm() float64 {
	return mapper.SpeedNorm(e.state.Speed)
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Attached reports whether the audio backend is open.
func (e *Engine) Attached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attached
}

// Targets returns the result of the last recompute.
func (e *Engine) Targets() mapper.Targets {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.targets
}

// State returns the current sanitized snapshot.
func (e *Engine) State() mapper.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Mode returns the active mode.
func (e *Engine) Mode() mapper.Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Voices reports every voice. Levels are zero while stopped.
func (e *Engine) Voices() [mapper.Voices]VoiceStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out [mapper.Voices]VoiceStatus
	for i := range out {
		out[i] = VoiceStatus{Index: i, State: e.chains[i].state}
		if e.graph != nil {
			out[i].VoiceLevel = e.graph.Voice(i)
		}
	}
	return out
}
