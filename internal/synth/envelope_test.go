package synth

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

func TestWaitBoundsShrinkWithSpeed(t *testing.T) {
	for _, mode := range mapper.Modes() {
		for v := range mapper.Voices {
			prevLo, prevHi := WaitBounds(mode, v, 0)
			for s := 0.0; s <= mapper.TopSpeed; s += 0.5 {
				lo, hi := WaitBounds(mode, v, mapper.SpeedNorm(s))
				if lo > prevLo || hi > prevHi {
					t.Fatalf("%v voice %d: bounds grew at %v m/s: [%v,%v] after [%v,%v]",
						mode, v, s, lo, hi, prevLo, prevHi)
				}
				if lo > hi {
					t.Fatalf("%v voice %d: lo %v > hi %v", mode, v, lo, hi)
				}
				prevLo, prevHi = lo, hi
			}
		}
	}
}

func TestSpeedVoiceHasWidestRange(t *testing.T) {
	for _, mode := range mapper.Modes() {
		lo3, hi3 := WaitBounds(mode, mapper.SpeedVoice, 0)
		lo0, hi0 := WaitBounds(mode, 0, 0)
		if hi3-lo3 <= hi0-lo0 {
			t.Errorf("%v: speed voice range %v not wider than %v", mode, hi3-lo3, hi0-lo0)
		}
		tlo3, _ := WaitBounds(mode, mapper.SpeedVoice, 1)
		tlo0, _ := WaitBounds(mode, 0, 1)
		if lo3-tlo3 <= lo0-tlo0 {
			t.Errorf("%v: speed voice not the most speed-sensitive", mode)
		}
	}
}

func TestNextCycleWithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewPCG(5, 6))
	for _, mode := range mapper.Modes() {
		tm := timingFor(mode)
		for range 500 {
			v := rnd.IntN(mapper.Voices)
			speed := rnd.Float64()
			c := NextCycle(mode, v, speed, rnd)
			lo, hi := WaitBounds(mode, v, speed)
			maxWait := hi + tm.silence[1]
			if c.Wait < scaled(lo, -jitter) || c.Wait > scaled(maxWait, jitter) {
				t.Fatalf("%v wait %v outside [%v,%v]", mode, c.Wait, lo, maxWait)
			}
			checkSpan(t, mode.String()+" hold", c.Hold, tm.hold)
			checkSpan(t, mode.String()+" fade in", c.FadeIn, tm.fadeIn)
			checkSpan(t, mode.String()+" fade out", c.FadeOut, tm.fadeOut)
		}
	}
}

func scaled(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * (1 + f))
}

func checkSpan(t *testing.T, name string, d time.Duration, s span) {
	t.Helper()
	lo := max(scaled(s[0], -jitter), minSegment)
	if d < lo || d > scaled(s[1], jitter) {
		t.Fatalf("%s %v outside %v", name, d, s)
	}
}

func TestClickModeInjectsSilence(t *testing.T) {
	rnd := rand.New(rand.NewPCG(8, 9))
	_, hi := WaitBounds(mapper.Click, 0, 0)
	long := 0
	for range 1000 {
		if NextCycle(mapper.Click, 0, 0, rnd).Wait > scaled(hi, jitter) {
			long++
		}
	}
	// Expect roughly 30%.
	if long < 200 || long > 400 {
		t.Errorf("silence gaps in %d of 1000 cycles, want ~300", long)
	}

	for range 1000 {
		_, dhi := WaitBounds(mapper.Drone, 0, 0)
		if NextCycle(mapper.Drone, 0, 0, rnd).Wait > scaled(dhi, jitter) {
			t.Fatal("drone mode injected a silence gap")
		}
	}
}

func TestRuralFadeOutCollapses(t *testing.T) {
	rnd := rand.New(rand.NewPCG(10, 11))
	for _, mode := range mapper.Modes() {
		for range 200 {
			c := NextCycle(mode, rnd.IntN(mapper.Voices), rnd.Float64(), rnd)
			if got := ShapeFadeOut(c.FadeOut, 0.1); got > HardStopCeiling {
				t.Fatalf("%v rural fade out = %v, want <= %v", mode, got, HardStopCeiling)
			}
			if got := ShapeFadeOut(c.FadeOut, 0.5); got != c.FadeOut {
				t.Fatalf("%v urban fade out changed: %v -> %v", mode, c.FadeOut, got)
			}
		}
	}
}

func TestShapeFadeInStretchesWithSparseness(t *testing.T) {
	base := 100 * time.Millisecond
	dense := ShapeFadeIn(base, 1)
	mid := ShapeFadeIn(base, 0.5)
	sparse := ShapeFadeIn(base, 0)
	if dense != base {
		t.Errorf("density 1 fade in = %v, want %v", dense, base)
	}
	if !(sparse > mid && mid > dense) {
		t.Errorf("fade in not inverse to density: %v %v %v", sparse, mid, dense)
	}
	if sparse != 250*time.Millisecond {
		t.Errorf("density 0 fade in = %v, want 250ms", sparse)
	}
}

func TestPeakVolumeCeiling(t *testing.T) {
	rnd := rand.New(rand.NewPCG(12, 13))
	for _, mode := range mapper.Modes() {
		for range 200 {
			sum := 0.0
			for v := range mapper.Voices {
				g := PeakVolume(mode, v, 30, rnd)
				if g < 0 || g > MaxVoiceGain {
					t.Fatalf("%v voice %d peak %v", mode, v, g)
				}
				sum += g
			}
			if sum > ClipCeiling {
				t.Fatalf("%v summed peak %v > %v", mode, sum, ClipCeiling)
			}
		}
	}
	if ClipCeiling >= 1 {
		t.Errorf("clip ceiling %v not under full scale", ClipCeiling)
	}
}

func TestClickVolumeTiers(t *testing.T) {
	fixed := constRand(0.5)
	low := PeakVolume(mapper.Click, 2, 60, fixed)
	mid := PeakVolume(mapper.Click, 2, 400, fixed)
	high := PeakVolume(mapper.Click, 2, 2000, fixed)
	if !(low > mid && mid > high) {
		t.Errorf("click tiers not ordered: %v %v %v", low, mid, high)
	}
}

type constRand float64

func (c constRand) Float64() float64 { return float64(c) }
