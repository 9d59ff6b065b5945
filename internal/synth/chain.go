package synth

import (
	"math"
	"time"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/mjibson/go-dsp/fft"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

const (
	// DefaultReverbLength and DefaultReverbDecay shape the synthetic impulse.
	DefaultReverbLength = 3 * time.Second
	DefaultReverbDecay  = 2.0

	// convBlock is the convolution partition size; it is also the reverb's
	// added latency in samples.
	convBlock = 1024

	filterFade = 256 // samples of crossfade when filter coefficients change
	butterQ    = 0.7071067811865476
)

// filterStage runs one biquad and crossfades to a new section whenever the
// cutoff moves, so coefficient swaps do not click.
type filterStage struct {
	cur, prev *biquad.Section
	cutoff    float64
	fade      int
}

func (f *filterStage) set(c biquad.Coefficients, cutoff float64) {
	if f.cur != nil && math.Abs(cutoff-f.cutoff) < 1 {
		return
	}
	f.prev = f.cur
	f.cur = biquad.NewSection(c)
	f.cutoff = cutoff
	if f.prev != nil {
		f.fade = filterFade
	}
}

func (f *filterStage) process(x float64) float64 {
	if f.cur == nil {
		return x
	}
	y := f.cur.ProcessSample(x)
	if f.fade > 0 {
		a := float64(f.fade) / filterFade
		y = a*f.prev.ProcessSample(x) + (1-a)*y
		f.fade--
		if f.fade == 0 {
			f.prev = nil
		}
	}
	return y
}

// lowpassCoefficients builds a Butterworth RBJ low-pass section.
func lowpassCoefficients(cutoff, sampleRate float64) biquad.Coefficients {
	w0, cw, alpha := rbj(cutoff, sampleRate)
	if w0 == 0 {
		return biquad.Coefficients{B0: 1}
	}
	inv := 1 / (1 + alpha)
	return biquad.Coefficients{
		B0: ((1 - cw) * 0.5) * inv,
		B1: (1 - cw) * inv,
		B2: ((1 - cw) * 0.5) * inv,
		A1: (-2 * cw) * inv,
		A2: (1 - alpha) * inv,
	}
}

// highpassCoefficients builds a Butterworth RBJ high-pass section.
func highpassCoefficients(cutoff, sampleRate float64) biquad.Coefficients {
	w0, cw, alpha := rbj(cutoff, sampleRate)
	if w0 == 0 {
		return biquad.Coefficients{B0: 1}
	}
	inv := 1 / (1 + alpha)
	return biquad.Coefficients{
		B0: ((1 + cw) * 0.5) * inv,
		B1: -(1 + cw) * inv,
		B2: ((1 + cw) * 0.5) * inv,
		A1: (-2 * cw) * inv,
		A2: (1 - alpha) * inv,
	}
}

// rbj returns w0 = 0 when the cutoff cannot be realised at this rate.
func rbj(cutoff, sampleRate float64) (w0, cw, alpha float64) {
	cutoff = mapper.ClampFrequency(cutoff)
	if cutoff >= 0.49*sampleRate {
		return 0, 0, 0
	}
	w0 = 2 * math.Pi * cutoff / sampleRate
	cw = math.Cos(w0)
	alpha = math.Sin(w0) / (2 * butterQ)
	return w0, cw, alpha
}

// SyntheticImpulse builds a noise burst of the given length shaped by
// (1 - t/len)^decay and normalized to unit energy.
func SyntheticImpulse(length time.Duration, decay float64, sampleRate int, rnd mapper.Rand) []float64 {
	n := int(length.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	if decay <= 0 {
		decay = DefaultReverbDecay
	}
	ir := make([]float64, n)
	energy := 0.0
	for i := range ir {
		env := math.Pow(1-float64(i)/float64(n), decay)
		ir[i] = (rnd.Float64()*2 - 1) * env
		energy += ir[i] * ir[i]
	}
	if energy > 0 {
		scale := 1 / math.Sqrt(energy)
		for i := range ir {
			ir[i] *= scale
		}
	}
	return ir
}

// convolver is a uniformly partitioned overlap-save FFT convolver. Output
// lags input by convBlock samples.
type convolver struct {
	parts   [][]complex128 // spectra of the impulse partitions
	history [][]complex128 // input spectra, newest at head
	head    int
	prev    []float64
	in      []float64
	out     []float64
	pos     int
	acc     []complex128
	frame   []complex128
}

func newConvolver(ir []float64) *convolver {
	p := (len(ir) + convBlock - 1) / convBlock
	if p < 1 {
		p = 1
	}
	c := &convolver{
		parts:   make([][]complex128, p),
		history: make([][]complex128, p),
		prev:    make([]float64, convBlock),
		in:      make([]float64, convBlock),
		out:     make([]float64, convBlock),
		acc:     make([]complex128, 2*convBlock),
		frame:   make([]complex128, 2*convBlock),
	}
	for k := range c.parts {
		buf := make([]complex128, 2*convBlock)
		for i := 0; i < convBlock; i++ {
			j := k*convBlock + i
			if j >= len(ir) {
				break
			}
			buf[i] = complex(ir[j], 0)
		}
		c.parts[k] = fft.FFT(buf)
	}
	return c
}

func (c *convolver) process(x float64) float64 {
	y := c.out[c.pos]
	c.in[c.pos] = x
	c.pos++
	if c.pos == convBlock {
		c.flush()
		c.pos = 0
	}
	return y
}

func (c *convolver) flush() {
	for i := 0; i < convBlock; i++ {
		c.frame[i] = complex(c.prev[i], 0)
		c.frame[convBlock+i] = complex(c.in[i], 0)
	}
	n := len(c.history)
	c.head = (c.head - 1 + n) % n
	c.history[c.head] = fft.FFT(c.frame)

	for i := range c.acc {
		c.acc[i] = 0
	}
	for k, h := range c.parts {
		x := c.history[(c.head+k)%n]
		if x == nil {
			continue
		}
		for i := range c.acc {
			c.acc[i] += x[i] * h[i]
		}
	}
	y := fft.IFFT(c.acc)
	for i := 0; i < convBlock; i++ {
		c.out[i] = real(y[convBlock+i])
	}
	copy(c.prev, c.in)
}

func (c *convolver) reset() {
	for i := range c.history {
		c.history[i] = nil
	}
	for i := range c.prev {
		c.prev[i], c.in[i], c.out[i] = 0, 0, 0
	}
	c.pos = 0
}

// chain is the shared effect path: the root filter pair and a stereo
// reverb fed from a mono send.
type chain struct {
	sampleRate float64
	highpass   filterStage
	lowpass    filterStage
	reverbL    *convolver
	reverbR    *convolver
	wet        float64
}

func newChain(sampleRate float64, irL, irR []float64) *chain {
	return &chain{
		sampleRate: sampleRate,
		reverbL:    newConvolver(irL),
		reverbR:    newConvolver(irR),
		wet:        mapper.WetMix(mapper.DefaultHumidity),
	}
}

func (c *chain) setFilters(highpass, lowpass float64) {
	c.highpass.set(highpassCoefficients(highpass, c.sampleRate), highpass)
	c.lowpass.set(lowpassCoefficients(lowpass, c.sampleRate), lowpass)
}

func (c *chain) setWet(w float64) {
	c.wet = math.Min(math.Max(w, 0), 1)
}

func (c *chain) filterRoot(x float64) float64 {
	return c.lowpass.process(c.highpass.process(x))
}

// mix combines the dry buses with the reverb of the send bus.
func (c *chain) mix(dryL, dryR, send float64) (float64, float64) {
	wl := c.reverbL.process(send)
	wr := c.reverbR.process(send)
	dry := 1 - c.wet
	return dry*dryL + c.wet*wl, dry*dryR + c.wet*wr
}

func (c *chain) reset() {
	c.reverbL.reset()
	c.reverbR.reset()
}
