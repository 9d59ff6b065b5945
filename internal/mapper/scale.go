package mapper

import (
	"fmt"
	"math"
	"strings"
)

// Scale names a tuning system: an ordered table of frequency ratios that
// starts at 1.0 and never decreases.
type Scale int

const (
	Harmonic Scale = iota // harmonic series 1..16
	Just20                // 20-tone just intonation within one octave
	Slendro               // 5-tone gamelan, near-equal steps
	Pelog                 // 7-tone gamelan
	EDO24                 // 24-tone equal division of the octave
)

// TonesPerSelection is how many ratios ScaleTones picks for the partials.
const TonesPerSelection = 6

type scaleDef struct {
	name   string
	ratios []float64
}

var scales = []scaleDef{
	Harmonic: {"harmonic", harmonicRatios(16)},
	Just20: {"just20", []float64{
		1, 21.0 / 20, 16.0 / 15, 10.0 / 9, 9.0 / 8, 8.0 / 7, 7.0 / 6, 6.0 / 5, 5.0 / 4, 9.0 / 7,
		4.0 / 3, 7.0 / 5, 10.0 / 7, 3.0 / 2, 8.0 / 5, 5.0 / 3, 12.0 / 7, 7.0 / 4, 9.0 / 5, 15.0 / 8,
	}},
	Slendro: {"slendro", centsRatios(0, 240, 480, 720, 960)},
	Pelog:   {"pelog", centsRatios(0, 120, 270, 540, 670, 785, 950)},
	EDO24:   {"edo24", edoRatios(24)},
}

func harmonicRatios(n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = float64(i + 1)
	}
	return r
}

func centsRatios(cents ...float64) []float64 {
	r := make([]float64, len(cents))
	for i, c := range cents {
		r[i] = math.Pow(2, c/1200)
	}
	return r
}

func edoRatios(n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = math.Pow(2, float64(i)/float64(n))
	}
	return r
}

func (s Scale) String() string {
	if s < 0 || int(s) >= len(scales) {
		return fmt.Sprintf("scale(%d)", int(s))
	}
	return scales[s].name
}

// Scales lists every tuning in declaration order.
func Scales() []Scale {
	out := make([]Scale, len(scales))
	for i := range scales {
		out[i] = Scale(i)
	}
	return out
}

// ParseScale resolves a scale by name, case-insensitively.
func ParseScale(name string) (Scale, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, def := range scales {
		if def.name == name {
			return Scale(i), nil
		}
	}
	return Harmonic, fmt.Errorf("unknown scale %q", name)
}

// Ratios returns a copy of the scale's ratio table. Unknown scales fall back
// to the harmonic series.
func (s Scale) Ratios() []float64 {
	if s < 0 || int(s) >= len(scales) {
		s = Harmonic
	}
	src := scales[s].ratios
	out := make([]float64, len(src))
	copy(out, src)
	return out
}

// ScaleTones picks TonesPerSelection ratios from the scale as a pure function
// of compass heading. The heading range is split into four quadrants:
//
//	N [0,90)    low register, stride 1, sliding up to n/4
//	E [90,180)  middle register, stride 2, sliding from n/4 to about n/2
//	S [180,270) high register, stride 1, sliding from n/2 to the top
//	W [270,360) spread across the whole table, compressing toward the root
//
// Each quadrant ends where the next one begins, so selections on either side
// of a boundary share at least one ratio. Indices past the end of the table
// clamp to the last ratio.
func ScaleTones(s Scale, heading float64) [TonesPerSelection]float64 {
	ratios := s.Ratios()
	var out [TonesPerSelection]float64
	for i, idx := range toneIndices(len(ratios), heading) {
		out[i] = ratios[idx]
	}
	return out
}

func toneIndices(n int, heading float64) [TonesPerSelection]int {
	h := wrap(orDefault(heading, DefaultHeading), 360)
	q := int(h / 90)
	if q > 3 {
		q = 3
	}
	t := (h - float64(q)*90) / 90
	nf := float64(n)

	var idx [TonesPerSelection]int
	switch q {
	case 0:
		start := int(math.Round(t * nf / 4))
		for i := range idx {
			idx[i] = start + i
		}
	case 1:
		// Slide in whole strides so neighbouring headings keep sharing tones.
		start := int(math.Round(nf/4)) + 2*int(math.Round(t*nf/8))
		for i := range idx {
			idx[i] = start + 2*i
		}
	case 2:
		start := int(math.Round(nf/2 + t*math.Max(0, nf/2-TonesPerSelection)))
		for i := range idx {
			idx[i] = start + i
		}
	default:
		span := (nf - 1) / (TonesPerSelection - 1) * (1 - 0.5*t)
		for i := range idx {
			idx[i] = int(math.Round(float64(i) * span))
		}
	}
	for i := range idx {
		if idx[i] > n-1 {
			idx[i] = n - 1
		}
		if idx[i] < 0 {
			idx[i] = 0
		}
	}
	return idx
}
