package synth

import (
	"fmt"
	"math"
	"strings"
)

// Waveform is the oscillator timbre shared by all voices.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
	Sawtooth
	Square
	Organ
	Metallic
	Harsh
	Cello
	Oboe
	Tympani
)

const tableSize = 2048

// harmonics for the additive timbres; index 0 is the fundamental.
var waveHarmonics = [...][]float64{
	Organ:    {1, 0.8, 0, 0.6, 0, 0.4, 0, 0.3, 0, 0, 0, 0.15},
	Metallic: {1, 0, 0, 0.7, 0, 0, 0.5, 0, 0, 0, 0.6, 0, 0, 0.4, 0, 0, 0, 0.3},
	Harsh:    harshHarmonics(24),
	Cello:    {1, 0.6, 0.5, 0.35, 0.25, 0.2, 0.12, 0.1, 0.06, 0.04},
	Oboe:     {0.3, 0.7, 1, 0.8, 0.5, 0.4, 0.25, 0.15, 0.1},
	Tympani:  {1, 0.1, 0.5, 0.05, 0.3, 0.02, 0.15, 0, 0.08},
}

var waveNames = [...]string{
	Sine:     "sine",
	Triangle: "triangle",
	Sawtooth: "sawtooth",
	Square:   "square",
	Organ:    "organ",
	Metallic: "metallic",
	Harsh:    "harsh",
	Cello:    "cello",
	Oboe:     "oboe",
	Tympani:  "tympani",
}

func harshHarmonics(n int) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = 1 / math.Sqrt(float64(i+1))
	}
	return h
}

func (w Waveform) String() string {
	if w < 0 || int(w) >= len(waveNames) {
		return fmt.Sprintf("waveform(%d)", int(w))
	}
	return waveNames[w]
}

// Waveforms lists the palette in declaration order.
func Waveforms() []Waveform {
	out := make([]Waveform, len(waveNames))
	for i := range waveNames {
		out[i] = Waveform(i)
	}
	return out
}

// ParseWaveform resolves a waveform by name. "saw" is accepted for sawtooth.
func ParseWaveform(name string) (Waveform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "saw" {
		return Sawtooth, nil
	}
	for i, n := range waveNames {
		if n == name {
			return Waveform(i), nil
		}
	}
	return Sine, fmt.Errorf("unknown waveform %q", name)
}

// wavetable is one cycle normalized to a peak of 1, with a guard sample
// for interpolation.
type wavetable [tableSize + 1]float64

var tables = buildTables()

func buildTables() []*wavetable {
	out := make([]*wavetable, len(waveNames))
	for i := range out {
		out[i] = buildTable(Waveform(i))
	}
	return out
}

func buildTable(w Waveform) *wavetable {
	var coeffs []float64
	switch w {
	case Sine:
		coeffs = []float64{1}
	case Triangle:
		coeffs = seriesHarmonics(32, func(k int) float64 {
			if k%2 == 0 {
				return 0
			}
			s := 1.0 / float64(k*k)
			if (k/2)%2 == 1 {
				s = -s
			}
			return s
		})
	case Sawtooth:
		coeffs = seriesHarmonics(40, func(k int) float64 { return 1 / float64(k) })
	case Square:
		coeffs = seriesHarmonics(40, func(k int) float64 {
			if k%2 == 0 {
				return 0
			}
			return 1 / float64(k)
		})
	default:
		coeffs = waveHarmonics[w]
	}

	t := new(wavetable)
	peak := 0.0
	for i := 0; i < tableSize; i++ {
		x := float64(i) / tableSize
		var v float64
		for k, a := range coeffs {
			if a != 0 {
				v += a * math.Sin(2*math.Pi*float64(k+1)*x)
			}
		}
		t[i] = v
		peak = math.Max(peak, math.Abs(v))
	}
	if peak > 0 {
		for i := 0; i < tableSize; i++ {
			t[i] /= peak
		}
	}
	t[tableSize] = t[0]
	return t
}

func seriesHarmonics(n int, amp func(k int) float64) []float64 {
	h := make([]float64, n)
	for i := range h {
		h[i] = amp(i + 1)
	}
	return h
}

func tableFor(w Waveform) *wavetable {
	if w < 0 || int(w) >= len(tables) {
		w = Sine
	}
	return tables[w]
}

// at samples the table at phase ∈ [0,1) with linear interpolation.
func (t *wavetable) at(phase float64) float64 {
	pos := phase * tableSize
	i := int(pos)
	if i >= tableSize {
		i = tableSize - 1
	}
	frac := pos - float64(i)
	return t[i] + (t[i+1]-t[i])*frac
}
