package main

import (
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Mavwarf/driftsynth/internal/feed"
	"github.com/Mavwarf/driftsynth/internal/mapper"
)

func mapCmd(args []string, f flags) {
	cfg, err := loadConfig(f)
	if err != nil {
		fatal(err)
	}
	st, err := parseState(args)
	if err != nil {
		fatal(err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
		fatal(err)
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	peak := opts.PeakHour
	if peak == 0 {
		peak = mapper.DefaultPeakHour
	}
	tg := mapper.Recompute(st, opts.Mode, opts.Scale, mapper.Options{PeakHour: peak}, rnd)
	printTargets(os.Stdout, st.Sanitize(), opts.Mode, opts.Scale, tg)
}

// stateKeys maps accepted key names onto snapshot fields.
var stateKeys = map[string]func(*mapper.State) *float64{
	"latitude":           func(s *mapper.State) *float64 { return &s.Latitude },
	"lat":                func(s *mapper.State) *float64 { return &s.Latitude },
	"longitude":          func(s *mapper.State) *float64 { return &s.Longitude },
	"lon":                func(s *mapper.State) *float64 { return &s.Longitude },
	"speed":              func(s *mapper.State) *float64 { return &s.Speed },
	"temperature":        func(s *mapper.State) *float64 { return &s.Temperature },
	"temp":               func(s *mapper.State) *float64 { return &s.Temperature },
	"humidity":           func(s *mapper.State) *float64 { return &s.Humidity },
	"heading":            func(s *mapper.State) *float64 { return &s.Heading },
	"time_of_day":        func(s *mapper.State) *float64 { return &s.TimeOfDay },
	"population_density": func(s *mapper.State) *float64 { return &s.PopulationDensity },
	"density":            func(s *mapper.State) *float64 { return &s.PopulationDensity },
	"traffic_density":    func(s *mapper.State) *float64 { return &s.TrafficDensity },
	"traffic":            func(s *mapper.State) *float64 { return &s.TrafficDensity },
	"elevation":          func(s *mapper.State) *float64 { return &s.Elevation },
	"rainfall":           func(s *mapper.State) *float64 { return &s.Rainfall },
	"rain":               func(s *mapper.State) *float64 { return &s.Rainfall },
}

// parseState builds a snapshot from key=value pairs over the defaults.
// "time" takes a wall-clock HH:MM and sets time_of_day.
func parseState(args []string) (mapper.State, error) {
	st := mapper.Defaults()
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			return st, fmt.Errorf("expected key=value, got %q", a)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		if key == "time" {
			t, err := time.Parse("15:04", val)
			if err != nil {
				return st, fmt.Errorf("time must be HH:MM, got %q", val)
			}
			st.TimeOfDay = feed.TimeOfDay(t)
			continue
		}
		field, ok := stateKeys[key]
		if !ok {
			return st, fmt.Errorf("unknown key %q", key)
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return st, fmt.Errorf("%s: %q is not a number", key, val)
		}
		*field(&st) = v
	}
	return st, nil
}

func printTargets(w io.Writer, st mapper.State, mode mapper.Mode, scale mapper.Scale, tg mapper.Targets) {
	fmt.Fprintf(w, "mode %s, scale %s\n", mode, scale)
	fmt.Fprintf(w, "at %.4f,%.4f  %.1f m/s  %.1f°C  %.0f%%  heading %.0f°  %s\n\n",
		st.Latitude, st.Longitude, st.Speed, st.Temperature, st.Humidity, st.Heading, clockTime(st.TimeOfDay))
	fmt.Fprintf(w, "  reference      %8.2f Hz\n", tg.Reference)
	fmt.Fprintf(w, "  fundamental    %8.2f Hz\n", tg.Fundamental)
	fmt.Fprintf(w, "  sun elevation  %8.2f°\n", tg.SunElevation)
	fmt.Fprintf(w, "  highpass       %8.1f Hz\n", tg.Highpass)
	fmt.Fprintf(w, "  lowpass        %8.1f Hz\n", tg.Lowpass)
	fmt.Fprintf(w, "  reverb wet     %8.2f\n", tg.Wet)
	if tg.Tremolo.Depth > 0 {
		fmt.Fprintf(w, "  tremolo        %8.2f Hz depth %.2f\n", tg.Tremolo.Rate, tg.Tremolo.Depth)
	}
	fmt.Fprintf(w, "  scale tones    %s\n\n", formatRatios(tg.Tones[:]))

	fmt.Fprintf(w, "  %-5s %-8s %10s %6s\n", "voice", "role", "freq", "pan")
	for i, f := range tg.Frequencies {
		fmt.Fprintf(w, "  %-5d %-8s %10.2f %+6.2f\n", i, voiceRole(i), f, tg.Pans[i])
	}
}

// clockTime renders a fraction of the day as HH:MM.
func clockTime(frac float64) string {
	mins := int(math.Round(frac*24*60)) % (24 * 60)
	return fmt.Sprintf("%02d:%02d", mins/60, mins%60)
}

func voiceRole(i int) string {
	switch i {
	case mapper.RootVoice:
		return "root"
	case mapper.SpeedVoice:
		return "speed"
	}
	return "partial"
}

func tonesCmd(args []string, f flags) {
	name := f.scale
	heading := 0.0
	for _, a := range args {
		if v, err := strconv.ParseFloat(a, 64); err == nil {
			heading = v
			continue
		}
		name = a
	}
	if name == "" {
		name = "harmonic"
	}
	scale, err := mapper.ParseScale(name)
	if err != nil {
		fatal(err)
	}
	tones := mapper.ScaleTones(scale, heading)
	fmt.Printf("%s at heading %g°\n", scale, heading)
	for i, r := range tones {
		fmt.Printf("  %d  %8.4f  %7.1f cents\n", i+1, r, cents(r))
	}
}

func scalesCmd() {
	for _, s := range mapper.Scales() {
		ratios := s.Ratios()
		fmt.Printf("%-9s %2d tones  %s\n", s, len(ratios), formatRatios(ratios))
	}
}

func formatRatios(r []float64) string {
	return strings.Join(lo.Map(r, func(v float64, _ int) string {
		return strconv.FormatFloat(v, 'f', 3, 64)
	}), " ")
}

func cents(ratio float64) float64 {
	return 1200 * math.Log2(ratio)
}
