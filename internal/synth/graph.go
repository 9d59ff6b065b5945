package synth

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

// BytesPerFrame is one stereo float32 frame.
const BytesPerFrame = 8

// Graph is the allocated audio graph: the voice bank plus the effect chain.
// It is not safe for concurrent use; Engine serializes access.
type Graph struct {
	sampleRate float64
	glide      int
	voices     [mapper.Voices]*voice
	chain      *chain
}

// NewGraph allocates eight silent voices and the effect chain. irL and irR
// are the reverb impulses for the two output channels.
func NewGraph(sampleRate int, glide time.Duration, w Waveform, irL, irR []float64) *Graph {
	g := &Graph{
		sampleRate: float64(sampleRate),
		glide:      int(glide.Seconds() * float64(sampleRate)),
		chain:      newChain(float64(sampleRate), irL, irR),
	}
	for i := range g.voices {
		g.voices[i] = newVoice(w)
	}
	return g
}

func (g *Graph) samples(d time.Duration) int {
	return int(math.Round(d.Seconds() * g.sampleRate))
}

func validVoice(i int) bool {
	return i >= 0 && i < mapper.Voices
}

// SetVoiceFrequency glides voice i to hz, clamped to the audible range.
func (g *Graph) SetVoiceFrequency(i int, hz float64) {
	if !validVoice(i) {
		return
	}
	g.voices[i].setFrequency(hz, g.glide)
}

// SetVoiceGain ramps voice i linearly to target over d, replacing any ramp
// already in flight. The target is clamped to [0, MaxVoiceGain].
func (g *Graph) SetVoiceGain(i int, target float64, d time.Duration) {
	if !validVoice(i) {
		return
	}
	g.voices[i].setGain(target, g.samples(d), d)
}

// SetPan positions voice i in [-1, 1].
func (g *Graph) SetPan(i int, p float64) {
	if !validVoice(i) {
		return
	}
	g.voices[i].setPan(math.Min(math.Max(p, -1), 1))
}

// SetFilters updates the root voice's high-pass and low-pass cutoffs.
func (g *Graph) SetFilters(highpass, lowpass float64) {
	g.chain.setFilters(highpass, lowpass)
}

// SetWet sets the reverb fraction of the master mix.
func (g *Graph) SetWet(w float64) {
	g.chain.setWet(w)
}

// SetWaveform switches every voice's oscillator table in place.
func (g *Graph) SetWaveform(w Waveform) {
	t := tableFor(w)
	for _, v := range g.voices {
		v.table = t
	}
}

// Tremolo superimposes an amplitude wobble on voices that are currently
// sounding. Gain ramps are left untouched.
func (g *Graph) Tremolo(tr mapper.Tremolo) {
	if tr.Depth <= 0 || tr.Duration <= 0 {
		return
	}
	n := g.samples(tr.Duration)
	for _, v := range g.voices {
		if v.gain > 0 || v.gainTarget > 0 {
			v.setTremolo(tr.Rate, tr.Depth, n)
		}
	}
}

// Silence cancels all glides, ramps and tremolos and zeroes every gain.
func (g *Graph) Silence() {
	for _, v := range g.voices {
		v.silence()
	}
	g.chain.reset()
}

// VoiceLevel is the observable state of one voice.
type VoiceLevel struct {
	Frequency  float64 // target frequency
	Gain       float64 // current gain
	GainTarget float64
	Ramp       time.Duration // length of the last requested gain ramp
	Pan        float64
}

// Voice reports the state of voice i.
func (g *Graph) Voice(i int) VoiceLevel {
	if !validVoice(i) {
		return VoiceLevel{}
	}
	v := g.voices[i]
	return VoiceLevel{
		Frequency:  v.freqTarget,
		Gain:       v.gain,
		GainTarget: v.gainTarget,
		Ramp:       v.ramp,
		Pan:        v.pan,
	}
}

// Render fills p with interleaved stereo float32 little-endian frames.
// A trailing partial frame is zeroed.
func (g *Graph) Render(p []byte) {
	frames := len(p) / BytesPerFrame
	for f := 0; f < frames; f++ {
		l, r := g.frame()
		binary.LittleEndian.PutUint32(p[f*BytesPerFrame:], math.Float32bits(float32(l)))
		binary.LittleEndian.PutUint32(p[f*BytesPerFrame+4:], math.Float32bits(float32(r)))
	}
	for i := frames * BytesPerFrame; i < len(p); i++ {
		p[i] = 0
	}
}

func (g *Graph) frame() (float64, float64) {
	var dryL, dryR, send float64
	for i, v := range g.voices {
		s := v.next(g.sampleRate)
		if i == mapper.RootVoice {
			s = g.chain.filterRoot(s)
		}
		dryL += s * v.panL
		dryR += s * v.panR
		send += s
	}
	l, r := g.chain.mix(dryL, dryR, send)
	return clampSample(l), clampSample(r)
}

func clampSample(x float64) float64 {
	if math.IsNaN(x) {
		return 0
	}
	return math.Min(math.Max(x, -1), 1)
}
