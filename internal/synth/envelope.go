package synth

import (
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

const (
	// RuralDensity: below it, fade-outs collapse to HardStop.
	RuralDensity = 0.2
	// HardStop is the near-instant rural cutoff; HardStopCeiling bounds it.
	HardStop        = time.Millisecond
	HardStopCeiling = 2 * time.Millisecond

	// jitter is the ± fraction of organic variation on timings and volumes.
	jitter = 0.03

	minSegment = time.Millisecond
)

// span is a [lo, hi] duration range.
type span [2]time.Duration

// speedSpan gives wait bounds at rest and at TopSpeed. Both bounds at top
// speed are at or below their resting values, so waits never grow with
// speed.
type speedSpan struct {
	rest, top span
}

type timing struct {
	wait          [2]speedSpan // [0] regular voices, [1] the speed voice
	hold          span
	fadeIn        span
	fadeOut       span
	volume        float64
	silenceChance float64
	silence       span
}

var timings = [...]timing{
	mapper.Drone: {
		wait: [2]speedSpan{
			{rest: span{2 * time.Second, 8 * time.Second}, top: span{time.Second, 4 * time.Second}},
			{rest: span{3 * time.Second, 20 * time.Second}, top: span{250 * time.Millisecond, 2 * time.Second}},
		},
		hold:    span{2 * time.Second, 8 * time.Second},
		fadeIn:  span{500 * time.Millisecond, 4 * time.Second},
		fadeOut: span{time.Second, 5 * time.Second},
		volume:  0.06,
	},
	mapper.Pulse: {
		wait: [2]speedSpan{
			{rest: span{400 * time.Millisecond, 2500 * time.Millisecond}, top: span{100 * time.Millisecond, 600 * time.Millisecond}},
			{rest: span{time.Second, 4 * time.Second}, top: span{50 * time.Millisecond, 300 * time.Millisecond}},
		},
		hold:    span{50 * time.Millisecond, 400 * time.Millisecond},
		fadeIn:  span{5 * time.Millisecond, 50 * time.Millisecond},
		fadeOut: span{10 * time.Millisecond, 60 * time.Millisecond},
		volume:  0.08,
	},
	mapper.Click: {
		wait: [2]speedSpan{
			{rest: span{500 * time.Millisecond, 3 * time.Second}, top: span{150 * time.Millisecond, time.Second}},
			{rest: span{time.Second, 6 * time.Second}, top: span{100 * time.Millisecond, 500 * time.Millisecond}},
		},
		hold:          span{10 * time.Millisecond, 40 * time.Millisecond},
		fadeIn:        span{time.Millisecond, 5 * time.Millisecond},
		fadeOut:       span{2 * time.Millisecond, 20 * time.Millisecond},
		volume:        0.09,
		silenceChance: 0.3,
		silence:       span{2 * time.Second, 8 * time.Second},
	},
}

// voiceWeight balances spectral weight: bass voices up, bright voices down.
var voiceWeight = [mapper.Voices]float64{1.2, 1.3, 1.0, 0.9, 0.8, 0.7, 0.75, 0.6}

// Cycle is one freshly drawn pulse: wait, fade in, hold, fade out.
type Cycle struct {
	Wait    time.Duration
	FadeIn  time.Duration
	Hold    time.Duration
	FadeOut time.Duration
}

func timingFor(mode mapper.Mode) timing {
	if mode < mapper.Drone || mode > mapper.Click {
		mode = mapper.Drone
	}
	return timings[mode]
}

func lerp(a, b time.Duration, t float64) time.Duration {
	return a + time.Duration(float64(b-a)*t)
}

// WaitBounds returns the wait range for a voice at a normalized speed.
func WaitBounds(mode mapper.Mode, voice int, speedNorm float64) (lo, hi time.Duration) {
	t := timingFor(mode)
	w := t.wait[0]
	if voice == mapper.SpeedVoice {
		w = t.wait[1]
	}
	s := min(max(speedNorm, 0), 1)
	return lerp(w.rest[0], w.top[0], s), lerp(w.rest[1], w.top[1], s)
}

func draw(r span, rnd mapper.Rand) time.Duration {
	return r[0] + time.Duration(rnd.Float64()*float64(r[1]-r[0]))
}

func jittered(d time.Duration, rnd mapper.Rand) time.Duration {
	d = time.Duration(float64(d) * (1 + (rnd.Float64()*2-1)*jitter))
	if d < minSegment {
		d = minSegment
	}
	return d
}

// NextCycle draws the timings for a voice's next pulse. Click mode may add
// an extra stretch of silence before the wait ends.
func NextCycle(mode mapper.Mode, voice int, speedNorm float64, rnd mapper.Rand) Cycle {
	t := timingFor(mode)
	lo, hi := WaitBounds(mode, voice, speedNorm)
	wait := draw(span{lo, hi}, rnd)
	if t.silenceChance > 0 && rnd.Float64() < t.silenceChance {
		wait += draw(t.silence, rnd)
	}
	return Cycle{
		Wait:    jittered(wait, rnd),
		FadeIn:  jittered(draw(t.fadeIn, rnd), rnd),
		Hold:    jittered(draw(t.hold, rnd), rnd),
		FadeOut: jittered(draw(t.fadeOut, rnd), rnd),
	}
}

// PeakVolume is the gain a voice fades in to. In click mode low
// fundamentals ring louder and high ones quieter.
func PeakVolume(mode mapper.Mode, voice int, fundamental float64, rnd mapper.Rand) float64 {
	t := timingFor(mode)
	v := t.volume
	if voice >= 0 && voice < mapper.Voices {
		v *= voiceWeight[voice]
	}
	if mode == mapper.Click {
		switch {
		case fundamental < 100:
			v *= 1.2
		case fundamental > 800:
			v *= 0.7
		}
	}
	v *= 1 + (rnd.Float64()*2-1)*jitter
	return clampGain(v)
}

// ShapeFadeIn stretches the attack as population density falls.
func ShapeFadeIn(d time.Duration, density float64) time.Duration {
	density = min(max(density, 0), 1)
	return time.Duration(float64(d) * (1 + (1-density)*1.5))
}

// ShapeFadeOut collapses the release to HardStop in rural settings.
func ShapeFadeOut(d time.Duration, density float64) time.Duration {
	if density < RuralDensity {
		return HardStop
	}
	return d
}
