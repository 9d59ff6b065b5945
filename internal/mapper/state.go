package mapper

import "math"

// Neutral values substituted for missing or invalid fields.
const (
	DefaultLatitude    = 0.0
	DefaultLongitude   = 0.0
	DefaultSpeed       = 0.0
	DefaultTemperature = 20.0
	DefaultHumidity    = 50.0
	DefaultHeading     = 0.0
	DefaultTimeOfDay   = 0.5
	DefaultDensity     = 0.5
	DefaultTraffic     = 0.5
	DefaultElevation   = 0.0
	DefaultRainfall    = 0.0
)

// State is one complete environmental snapshot. The engine replaces it
// wholesale on every update; callers that only know some fields merge them
// upstream (see internal/feed).
type State struct {
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	Speed             float64 `json:"speed"`       // m/s
	Temperature       float64 `json:"temperature"` // °C
	Humidity          float64 `json:"humidity"`    // percent
	Heading           float64 `json:"heading"`     // degrees
	TimeOfDay         float64 `json:"time_of_day"` // fraction of the local day
	PopulationDensity float64 `json:"population_density"`
	TrafficDensity    float64 `json:"traffic_density"`
	Elevation         float64 `json:"elevation"` // meters
	Rainfall          float64 `json:"rainfall"`  // mm/h
}

// Defaults returns the neutral snapshot used before any update arrives.
func Defaults() State {
	return State{
		Latitude:          DefaultLatitude,
		Longitude:         DefaultLongitude,
		Speed:             DefaultSpeed,
		Temperature:       DefaultTemperature,
		Humidity:          DefaultHumidity,
		Heading:           DefaultHeading,
		TimeOfDay:         DefaultTimeOfDay,
		PopulationDensity: DefaultDensity,
		TrafficDensity:    DefaultTraffic,
		Elevation:         DefaultElevation,
		Rainfall:          DefaultRainfall,
	}
}

// Sanitize returns a copy with every NaN or infinite field replaced by its
// neutral default and every bounded field pulled into range. Heading and
// time of day wrap rather than clamp.
func (s State) Sanitize() State {
	s.Latitude = clamp(orDefault(s.Latitude, DefaultLatitude), -90, 90)
	s.Longitude = clamp(orDefault(s.Longitude, DefaultLongitude), -180, 180)
	s.Speed = math.Max(orDefault(s.Speed, DefaultSpeed), 0)
	s.Temperature = clamp(orDefault(s.Temperature, DefaultTemperature), -60, 60)
	s.Humidity = clamp(orDefault(s.Humidity, DefaultHumidity), 0, 100)
	s.Heading = wrap(orDefault(s.Heading, DefaultHeading), 360)
	s.TimeOfDay = wrap(orDefault(s.TimeOfDay, DefaultTimeOfDay), 1)
	s.PopulationDensity = clamp(orDefault(s.PopulationDensity, DefaultDensity), 0, 1)
	s.TrafficDensity = clamp(orDefault(s.TrafficDensity, DefaultTraffic), 0, 1)
	s.Elevation = orDefault(s.Elevation, DefaultElevation)
	s.Rainfall = math.Max(orDefault(s.Rainfall, DefaultRainfall), 0)
	return s
}

func orDefault(v, def float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return def
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// wrap folds v into [0, period).
func wrap(v, period float64) float64 {
	v = math.Mod(v, period)
	if v < 0 {
		v += period
	}
	if v >= period {
		v = 0
	}
	return v
}

// ClampFrequency pulls hz into the audible range [MinFrequency, MaxFrequency].
// NaN maps to MinFrequency.
func ClampFrequency(hz float64) float64 {
	if math.IsNaN(hz) {
		return MinFrequency
	}
	return clamp(hz, MinFrequency, MaxFrequency)
}
