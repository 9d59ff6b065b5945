package main

import (
	"bytes"
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

func TestParseState(t *testing.T) {
	st, err := parseState([]string{"lat=40", "lon=-74.5", "speed=12", "time=18:00", "rain=3", "density=0.1"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Latitude != 40 || st.Longitude != -74.5 || st.Speed != 12 {
		t.Errorf("position = %+v", st)
	}
	if st.TimeOfDay != 0.75 {
		t.Errorf("time of day = %v, want 0.75", st.TimeOfDay)
	}
	if st.Rainfall != 3 || st.PopulationDensity != 0.1 {
		t.Errorf("rain/density = %v/%v", st.Rainfall, st.PopulationDensity)
	}
	if st.Temperature != mapper.DefaultTemperature {
		t.Errorf("unset field = %v, want default", st.Temperature)
	}
}

func TestParseStateErrors(t *testing.T) {
	tests := [][]string{
		{"lat"},
		{"altitude=3"},
		{"speed=fast"},
		{"time=noon"},
	}
	for _, args := range tests {
		if _, err := parseState(args); err == nil {
			t.Errorf("parseState(%v) succeeded, want error", args)
		}
	}
}

func TestClockTime(t *testing.T) {
	tests := []struct {
		frac float64
		want string
	}{
		{0, "00:00"},
		{0.5, "12:00"},
		{0.75, "18:00"},
		{0.9999999, "00:00"},
	}
	for _, tt := range tests {
		if got := clockTime(tt.frac); got != tt.want {
			t.Errorf("clockTime(%v) = %q, want %q", tt.frac, got, tt.want)
		}
	}
}

func TestFormatRatios(t *testing.T) {
	if got := formatRatios([]float64{1, 1.5, 2}); got != "1.000 1.500 2.000" {
		t.Errorf("formatRatios = %q", got)
	}
}

func TestCents(t *testing.T) {
	if got := cents(2); math.Abs(got-1200) > 1e-9 {
		t.Errorf("cents(2) = %v", got)
	}
	if got := cents(1); got != 0 {
		t.Errorf("cents(1) = %v", got)
	}
}

func TestPrintTargetsListsEveryVoice(t *testing.T) {
	st := mapper.Defaults()
	st.Latitude = 40
	rnd := rand.New(rand.NewPCG(1, 2))
	tg := mapper.Recompute(st, mapper.Drone, mapper.Harmonic, mapper.Options{PeakHour: mapper.DefaultPeakHour}, rnd)

	var buf bytes.Buffer
	printTargets(&buf, st, mapper.Drone, mapper.Harmonic, tg)
	out := buf.String()
	for _, want := range []string{"mode drone, scale harmonic", "fundamental", "lowpass", "root", "speed", "partial"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "partial"); n != mapper.Voices-2 {
		t.Errorf("%d partial rows, want %d", n, mapper.Voices-2)
	}
}
