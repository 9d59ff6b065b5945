package synth

import (
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

type fakeOutput struct {
	mu       sync.Mutex
	failures int // Open fails this many times before succeeding
	opens    int
	closes   int
	src      io.Reader
}

func (o *fakeOutput) Open(src io.Reader) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.failures > 0 {
		o.failures--
		return errors.New("device suspended")
	}
	o.src = src
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	o.src = nil
	return nil
}

func (o *fakeOutput) counts() (int, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens, o.closes
}

func newTestEngine(t *testing.T, out Output) (*Engine, *manualClock) {
	t.Helper()
	clk := &manualClock{}
	e := New(Options{
		ReverbLength: 50 * time.Millisecond,
		Output:       out,
		Clock:        clk,
		Rand:         rand.New(rand.NewPCG(7, 11)),
	})
	return e, clk
}

func TestStartArmsEightChains(t *testing.T) {
	out := &fakeOutput{}
	e, clk := newTestEngine(t, out)
	e.Start()
	defer e.Stop()

	if !e.Running() {
		t.Fatal("engine not running after Start")
	}
	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
	for _, v := range e.Voices() {
		if v.State != Idle {
			t.Errorf("voice %d state = %v, want idle", v.Index, v.State)
		}
		if v.Gain != 0 {
			t.Errorf("voice %d gain = %v, want 0", v.Index, v.Gain)
		}
	}
	if opens, _ := out.counts(); opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
}

func TestStartTwiceIsNoop(t *testing.T) {
	out := &fakeOutput{}
	e, clk := newTestEngine(t, out)
	e.Start()
	e.Start()
	defer e.Stop()

	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
	if opens, _ := out.counts(); opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
}

func TestStopTwiceIsNoop(t *testing.T) {
	out := &fakeOutput{}
	e, clk := newTestEngine(t, out)
	e.Start()
	clk.Advance(10 * time.Second)
	e.Stop()
	e.Stop()

	if e.Running() {
		t.Error("engine still running")
	}
	if got := clk.Pending(); got != 0 {
		t.Errorf("pending timers after stop = %d, want 0", got)
	}
	if _, closes := out.counts(); closes != 1 {
		t.Errorf("closes = %d, want 1", closes)
	}
	for _, v := range e.Voices() {
		if v.State != Stopped {
			t.Errorf("voice %d state = %v, want stopped", v.Index, v.State)
		}
	}

	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xff
	}
	if n, err := e.Read(buf); err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("byte %d = %#x after stop, want silence", i, b)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	out := &fakeOutput{}
	e, _ := newTestEngine(t, out)
	e.Stop()
	if _, closes := out.counts(); closes != 0 {
		t.Errorf("closes = %d, want 0", closes)
	}
}

func TestRestartAfterStop(t *testing.T) {
	out := &fakeOutput{}
	e, clk := newTestEngine(t, out)
	e.Start()
	e.Stop()
	e.Start()
	defer e.Stop()
	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
	if got := e.LiveChains(); got != mapper.Voices {
		t.Errorf("live chains = %d, want %d", got, mapper.Voices)
	}
}

func TestModeRoundTripKeepsEightChains(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	e.Start()
	defer e.Stop()
	clk.Advance(3 * time.Second)

	e.SetMode(mapper.Drone)
	clk.Advance(500 * time.Millisecond)
	e.SetMode(mapper.Pulse)
	clk.Advance(500 * time.Millisecond)
	e.SetMode(mapper.Drone)

	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
	if got := e.LiveChains(); got != mapper.Voices {
		t.Errorf("live chains = %d, want %d", got, mapper.Voices)
	}
	if e.Mode() != mapper.Drone {
		t.Errorf("mode = %v, want drone", e.Mode())
	}

	// Keep running: the chain count never drifts.
	for range 50 {
		clk.Advance(time.Second)
		if got := clk.Pending(); got != mapper.Voices {
			t.Fatalf("pending timers = %d, want %d", got, mapper.Voices)
		}
	}
}

func TestWaveformChangeRestartsChains(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	e.Start()
	defer e.Stop()
	clk.Advance(5 * time.Second)

	e.SetWaveform(Cello)
	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
	for _, v := range e.Voices() {
		if v.State != Idle {
			t.Errorf("voice %d state = %v, want idle", v.Index, v.State)
		}
		if v.GainTarget != 0 {
			t.Errorf("voice %d gain target = %v, want 0", v.Index, v.GainTarget)
		}
	}
}

func TestStaleCallbackDoesNothing(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	e.Start()
	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()
	e.Stop()

	e.step(0, gen)
	if got := clk.Pending(); got != 0 {
		t.Errorf("stale callback armed %d timers", got)
	}

	e.Start()
	defer e.Stop()
	e.step(0, gen)
	if got := clk.Pending(); got != mapper.Voices {
		t.Errorf("pending timers = %d, want %d", got, mapper.Voices)
	}
}

func TestBackendRetry(t *testing.T) {
	out := &fakeOutput{failures: 2}
	e, clk := newTestEngine(t, out)
	e.Start()
	defer e.Stop()

	if e.Attached() {
		t.Fatal("attached despite failing backend")
	}
	if !e.Running() {
		t.Fatal("backend failure stopped the engine")
	}
	clk.Advance(BackendRetry)
	if opens, _ := out.counts(); opens != 2 {
		t.Errorf("opens after one retry = %d, want 2", opens)
	}
	clk.Advance(BackendRetry)
	if !e.Attached() {
		t.Error("not attached after backend recovered")
	}
	clk.Advance(5 * BackendRetry)
	if opens, _ := out.counts(); opens != 3 {
		t.Errorf("opens = %d, want 3", opens)
	}
}

func TestStopCancelsBackendRetry(t *testing.T) {
	out := &fakeOutput{failures: 100}
	e, clk := newTestEngine(t, out)
	e.Start()
	e.Stop()
	clk.Advance(10 * BackendRetry)
	if opens, _ := out.counts(); opens != 1 {
		t.Errorf("opens = %d, want 1", opens)
	}
}

func TestRuralFadeOutIsHardStop(t *testing.T) {
	e, clk := newTestEngine(t, nil)
	st := mapper.Defaults()
	st.PopulationDensity = 0.1
	e.Start()
	defer e.Stop()
	e.SetEnvironmentalData(st)

	released := 0
	for range 1200 {
		clk.Advance(100 * time.Millisecond)
		for _, v := range e.Voices() {
			if v.State == Idle && v.Ramp > 0 {
				released++
				if v.Ramp > HardStopCeiling {
					t.Fatalf("voice %d faded out over %v, want <= %v", v.Index, v.Ramp, HardStopCeiling)
				}
			}
		}
	}
	if released == 0 {
		t.Fatal("no voice completed a cycle")
	}
}

func TestGainsStayUnderCeiling(t *testing.T) {
	for _, mode := range mapper.Modes() {
		e, clk := newTestEngine(t, nil)
		e.SetMode(mode)
		e.Start()
		for range 2000 {
			clk.Advance(7 * time.Millisecond)
			sum := 0.0
			for _, v := range e.Voices() {
				if v.GainTarget < 0 || v.GainTarget > MaxVoiceGain {
					t.Fatalf("%v: voice %d target %v outside [0, %v]", mode, v.Index, v.GainTarget, MaxVoiceGain)
				}
				sum += v.GainTarget
			}
			if sum > ClipCeiling || sum >= 1 {
				t.Fatalf("%v: summed gain %v exceeds %v", mode, sum, ClipCeiling)
			}
		}
		e.Stop()
	}
}

func TestObserverReceivesFrequencies(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var got []Report
	e.OnRecompute(func(r Report) { got = append(got, r) })

	st := mapper.State{
		Latitude: 40, Longitude: -74, Speed: 0, Temperature: 20, Humidity: 50,
		Heading: 0, TimeOfDay: 0.5, PopulationDensity: 0.5, TrafficDensity: 0.5,
	}
	e.SetEnvironmentalData(st)
	if len(got) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(got))
	}
	r := got[0]
	if r.Frequencies[mapper.SpeedVoice] != 50 {
		t.Errorf("speed voice = %v, want 50", r.Frequencies[mapper.SpeedVoice])
	}
	for i, f := range r.Frequencies {
		if f < mapper.MinFrequency || f > mapper.MaxFrequency || math.IsNaN(f) {
			t.Errorf("voice %d frequency %v out of range", i, f)
		}
	}
	if r.State.Latitude != 40 {
		t.Errorf("reported latitude = %v", r.State.Latitude)
	}

	e.SetScale(mapper.Pelog)
	e.SetMode(mapper.Pulse)
	if len(got) != 3 {
		t.Errorf("observer calls = %d, want 3", len(got))
	}
}

func TestStartAppliesTargetsToGraph(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Start()
	defer e.Stop()
	tg := e.Targets()
	for _, v := range e.Voices() {
		if v.Frequency != tg.Frequencies[v.Index] {
			t.Errorf("voice %d frequency = %v, want %v", v.Index, v.Frequency, tg.Frequencies[v.Index])
		}
		if math.Abs(v.Pan-tg.Pans[v.Index]) > 1e-12 {
			t.Errorf("voice %d pan = %v, want %v", v.Index, v.Pan, tg.Pans[v.Index])
		}
	}
}

func TestStartWithStereoImpulse(t *testing.T) {
	left := make([]float64, 64)
	right := make([]float64, 64)
	left[0], right[3] = 1, 1
	e := New(Options{
		Impulse: [][]float64{left, right},
		Clock:   &manualClock{},
		Rand:    rand.New(rand.NewPCG(3, 5)),
	})
	e.Start()
	defer e.Stop()

	if v := e.Voices(); len(v) != mapper.Voices {
		t.Fatalf("voices = %d, want %d", len(v), mapper.Voices)
	}
	buf := make([]byte, 4096)
	if n, err := e.Read(buf); err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
}

func TestReportSeqIncreases(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var seqs []uint64
	e.OnRecompute(func(r Report) { seqs = append(seqs, r.Seq) })

	e.Start()
	e.SetEnvironmentalData(mapper.Defaults())
	e.SetScale(mapper.Pelog)
	e.Stop()

	if len(seqs) < 3 {
		t.Fatalf("reports = %d, want at least 3", len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] <= seqs[i-1] {
			t.Errorf("seq %d = %d after %d, want increasing", i, seqs[i], seqs[i-1])
		}
	}
}

func TestStopResetsSnapshot(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Start()
	st := mapper.Defaults()
	st.Temperature = -10
	e.SetEnvironmentalData(st)
	e.SetScale(mapper.Slendro)
	e.Stop()

	if got := e.State(); got != mapper.Defaults() {
		t.Errorf("state after stop = %+v, want defaults", got)
	}
	e.mu.Lock()
	scale := e.scale
	e.mu.Unlock()
	if scale != mapper.Slendro {
		t.Errorf("scale after stop = %v, want slendro", scale)
	}
}

func TestReadRendersWhileRunning(t *testing.T) {
	out := &fakeOutput{}
	e, clk := newTestEngine(t, out)
	e.Start()
	defer e.Stop()
	clk.Advance(12 * time.Second)

	buf := make([]byte, 4096*BytesPerFrame)
	if n, err := out.src.Read(buf); err != nil || n != len(buf) {
		t.Fatalf("Read = %d, %v", n, err)
	}
	assertBounded(t, buf)
}
