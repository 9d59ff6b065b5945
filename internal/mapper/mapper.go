package mapper

import (
	"math"
	"time"
)

const (
	// Voices is the size of the oscillator bank.
	Voices = 8
	// RootVoice is routed through the filter pair.
	RootVoice = 0
	// SpeedVoice follows speed directly and ignores the scale.
	SpeedVoice = 3

	MinFrequency = 20.0
	MaxFrequency = 20000.0

	// TopSpeed is the speed (≈80 mph) at which speed-driven values saturate.
	TopSpeed = 35.8

	// HarmonicThreshold: fundamentals below it multiply scale ratios,
	// fundamentals at or above it divide them (subharmonics).
	HarmonicThreshold = 200.0

	// DefaultPeakHour is the local hour at which the time-of-day factor peaks.
	DefaultPeakHour = 14.0

	speedVoiceLow  = 50.0
	speedVoiceHigh = 1000.0

	panSpread  = 0.7
	panMax     = 0.8
	panOffset  = 0.3
	panDensity = 0.8

	wetBase  = 0.1
	wetRange = 0.5

	tremoloWindow = 2 * time.Second
)

// Rand is the source of randomness for the mapper and the scheduler.
// *math/rand/v2.Rand satisfies it; tests inject a seeded one.
type Rand interface {
	Float64() float64
}

// partials are the scale-driven voices in the order they take ratios.
var partials = [...]int{1, 2, 4, 5, 6, 7}

// octaveShift spreads the derived voices per mode so they do not cluster:
// bass voices move down, shimmer voices move up.
var octaveShift = [...][Voices]float64{
	Drone: {1, 0.5, 1, 1, 2, 1, 2, 4},
	Pulse: {1, 0.25, 1, 1, 2, 4, 2, 8},
	Click: {1, 0.125, 0.5, 1, 2, 4, 8, 8},
}

// fundamentalSpread is the random multiplier range applied to the reference
// frequency per mode.
var fundamentalSpread = [...][2]float64{
	Drone: {0.75, 1.25},
	Pulse: {0.5, 4},
	Click: {0.25, 8},
}

// speedVoiceShift holds the extra octave jumps available to the speed voice.
// Drone keeps it in place.
var speedVoiceShift = [...][]float64{
	Drone: {1},
	Pulse: {0.5, 1, 2, 4},
	Click: {0.25, 0.5, 2, 4, 8},
}

// Options tune the parts of the mapping that are configuration rather than
// environment.
type Options struct {
	PeakHour float64 // hour of the time-of-day maximum, 0..24
}

// Tremolo describes the rainfall amplitude wobble. Zero Depth means none.
type Tremolo struct {
	Rate     float64 // Hz
	Depth    float64 // 0..1
	Duration time.Duration
}

// Targets is everything one recompute produces for the engine to apply.
type Targets struct {
	Reference    float64
	Fundamental  float64
	Frequencies  [Voices]float64
	Pans         [Voices]float64
	Tones        [TonesPerSelection]float64
	SunElevation float64
	Lowpass      float64
	Highpass     float64
	Wet          float64
	Tremolo      Tremolo
}

// SpeedNorm maps a speed in m/s onto [0,1] against TopSpeed.
func SpeedNorm(speed float64) float64 {
	return clamp(orDefault(speed, 0)/TopSpeed, 0, 1)
}

// Reference computes the deterministic base frequency before the mode's
// random multiplier. Each factor is monotonic in its input and they combine
// multiplicatively:
//
//	temperature  55 Hz at -30 °C rising linearly to 220 Hz at 50 °C
//	latitude     one octave down from equator to pole
//	time of day  ±25% cosine over 24h peaking at opts.PeakHour
//	density      half an octave either side of 0.5
func Reference(st State, opts Options) float64 {
	st = st.Sanitize()
	t := clamp(st.Temperature, -30, 50)
	tempBase := 55 + (t+30)/80*165
	latFactor := math.Pow(2, -math.Abs(st.Latitude)/90)
	peak := opts.PeakHour
	if math.IsNaN(peak) || peak < 0 || peak > 24 {
		peak = DefaultPeakHour
	}
	timeFactor := 1 + 0.25*math.Cos(2*math.Pi*(st.TimeOfDay-peak/24))
	densityFactor := math.Pow(2, st.PopulationDensity-0.5)
	return tempBase * latFactor * timeFactor * densityFactor
}

// Drift is the maximum temperature-proportional random offset, in Hz,
// applied to the fundamental.
func Drift(temperature float64) float64 {
	return math.Abs(orDefault(temperature, DefaultTemperature)) * 0.05
}

// Recompute maps a snapshot onto per-voice frequencies, pans, filter cutoffs
// and mix. Scale tone selection is deterministic; the fundamental multiplier,
// drift and the speed voice's octave jump draw from rnd.
func Recompute(st State, mode Mode, scale Scale, opts Options, rnd Rand) Targets {
	st = st.Sanitize()
	mode = validMode(mode)

	var tg Targets
	tg.Reference = Reference(st, opts)
	spread := fundamentalSpread[mode]
	mult := spread[0] + rnd.Float64()*(spread[1]-spread[0])
	drift := (rnd.Float64()*2 - 1) * Drift(st.Temperature)
	tg.Fundamental = ClampFrequency(tg.Reference*mult + drift)

	tg.Tones = ScaleTones(scale, st.Heading)
	tg.Frequencies[RootVoice] = tg.Fundamental
	shift := octaveShift[mode]
	for k, v := range partials {
		ratio := tg.Tones[k%TonesPerSelection] * math.Pow(2, float64(k/TonesPerSelection))
		var f float64
		if tg.Fundamental < HarmonicThreshold {
			f = tg.Fundamental * ratio
		} else {
			f = tg.Fundamental / ratio
		}
		tg.Frequencies[v] = ClampFrequency(f * shift[v])
	}

	speedHz := speedVoiceLow + SpeedNorm(st.Speed)*(speedVoiceHigh-speedVoiceLow)
	jumps := speedVoiceShift[mode]
	speedHz *= jumps[int(rnd.Float64()*float64(len(jumps)))%len(jumps)]
	tg.Frequencies[SpeedVoice] = ClampFrequency(speedHz)

	tg.SunElevation = SunElevation(st.Latitude, st.TimeOfDay)
	tg.Lowpass = LowpassCutoff(tg.SunElevation, st.Latitude)
	tg.Highpass = HighpassCutoff(tg.SunElevation, st.Longitude)

	tg.Pans = Pans(st.Heading, st.PopulationDensity)
	tg.Wet = WetMix(st.Humidity)
	tg.Tremolo = RainTremolo(st.Rainfall)
	return tg
}

// Pans places the voices around the heading. Rural settings spread them
// wider, urban settings pull them together.
func Pans(heading, density float64) [Voices]float64 {
	base := math.Sin(orDefault(heading, DefaultHeading)*math.Pi/180) * panSpread
	width := panOffset * (1 - clamp(orDefault(density, DefaultDensity), 0, 1)*panDensity)
	var pans [Voices]float64
	for i := range pans {
		off := (float64(i) - (Voices-1)/2.0) / ((Voices - 1) / 2.0) * width
		pans[i] = clamp(base+off, -panMax, panMax)
	}
	return pans
}

// WetMix is the reverb fraction, rising linearly with humidity.
func WetMix(humidity float64) float64 {
	return wetBase + wetRange*clamp(orDefault(humidity, DefaultHumidity), 0, 100)/100
}

// RainTremolo returns the tremolo for a rainfall rate. No rain, no tremolo.
func RainTremolo(rainfall float64) Tremolo {
	rainfall = orDefault(rainfall, 0)
	if rainfall <= 0 {
		return Tremolo{}
	}
	return Tremolo{
		Rate:     4 + 2*math.Min(rainfall, 20)/20,
		Depth:    0.5 * math.Min(rainfall/10, 1),
		Duration: tremoloWindow,
	}
}

func validMode(m Mode) Mode {
	if m < Drone || m > Click {
		return Drone
	}
	return m
}
