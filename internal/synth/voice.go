package synth

import (
	"math"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

const (
	// MaxVoiceGain is the per-voice gain ceiling.
	MaxVoiceGain = 0.12
	// ClipCeiling is the largest possible sum of all voice gains; it stays
	// under full scale so eight voices at peak cannot clip the master.
	ClipCeiling = MaxVoiceGain * mapper.Voices
)

// voice is one oscillator with its glide, gain ramp, pan and tremolo.
// All counters are in samples at the graph's rate.
type voice struct {
	table *wavetable
	phase float64

	freq       float64
	freqTarget float64
	glideRatio float64
	glideLeft  int

	gain       float64
	gainTarget float64
	gainStep   float64
	gainLeft   int
	ramp       time.Duration // length of the last requested ramp

	pan        float64
	panL, panR float64
	tremRate   float64
	tremDepth  float64
	tremPhase  float64
	tremLeft   int
}

func newVoice(w Waveform) *voice {
	v := &voice{table: tableFor(w)}
	v.setPan(0)
	return v
}

func clampGain(g float64) float64 {
	if math.IsNaN(g) || g < 0 {
		return 0
	}
	if g > MaxVoiceGain {
		return MaxVoiceGain
	}
	return g
}

// setFrequency glides exponentially to hz over n samples. The first
// frequency a voice receives is applied immediately.
func (v *voice) setFrequency(hz float64, n int) {
	hz = mapper.ClampFrequency(hz)
	v.freqTarget = hz
	if v.freq <= 0 || n <= 0 {
		v.freq = hz
		v.glideLeft = 0
		return
	}
	v.glideRatio = math.Pow(hz/v.freq, 1/float64(n))
	v.glideLeft = n
}

// setGain replaces any in-flight ramp with a linear one from the current
// level to target over n samples.
func (v *voice) setGain(target float64, n int, d time.Duration) {
	target = clampGain(target)
	v.gainTarget = target
	v.ramp = d
	if n <= 0 {
		v.gain = target
		v.gainLeft = 0
		return
	}
	v.gainStep = (target - v.gain) / float64(n)
	v.gainLeft = n
}

func (v *voice) setPan(p float64) {
	v.pan = p
	angle := (p + 1) * math.Pi / 4
	v.panL = math.Cos(angle)
	v.panR = math.Sin(angle)
}

func (v *voice) setTremolo(rate, depth float64, n int) {
	v.tremRate = rate
	v.tremDepth = math.Min(math.Max(depth, 0), 1)
	v.tremLeft = n
}

// silence cancels every glide, ramp and tremolo and drops the gain to zero.
func (v *voice) silence() {
	v.glideLeft = 0
	v.gain, v.gainTarget, v.gainLeft = 0, 0, 0
	v.tremLeft = 0
}

func (v *voice) next(sampleRate float64) float64 {
	if v.glideLeft > 0 {
		v.freq *= v.glideRatio
		v.glideLeft--
		if v.glideLeft == 0 {
			v.freq = v.freqTarget
		}
	}
	if v.gainLeft > 0 {
		v.gain += v.gainStep
		v.gainLeft--
		if v.gainLeft == 0 {
			v.gain = v.gainTarget
		}
		v.gain = clampGain(v.gain)
	}
	if v.gain == 0 {
		v.advance(sampleRate)
		return 0
	}

	s := v.table.at(v.phase) * v.gain
	v.advance(sampleRate)

	if v.tremLeft > 0 {
		s *= 1 - v.tremDepth*(0.5+0.5*math.Sin(2*math.Pi*v.tremPhase))
		v.tremPhase += v.tremRate / sampleRate
		v.tremPhase -= math.Floor(v.tremPhase)
		v.tremLeft--
	}
	return s
}

func (v *voice) advance(sampleRate float64) {
	v.phase += v.freq / sampleRate
	v.phase -= math.Floor(v.phase)
}
