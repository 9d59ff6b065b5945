// Package feed adapts the environmental sources (location, compass, clock,
// weather) into complete snapshots for the engine.
package feed

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Mavwarf/driftsynth/internal/mapper"
)

// CompassThrottle is the minimum spacing between accepted heading updates.
const CompassThrottle = 500 * time.Millisecond

// Weather is one reading from the weather and geo enrichment source.
type Weather struct {
	Temperature       float64 // °C
	Humidity          float64 // %
	Rainfall          float64 // mm/h
	PopulationDensity float64 // 0..1
	Elevation         float64 // m
}

// WeatherFallback is used when the weather source fails.
func WeatherFallback() Weather {
	return Weather{
		Temperature:       mapper.DefaultTemperature,
		Humidity:          mapper.DefaultHumidity,
		Rainfall:          0,
		PopulationDensity: mapper.DefaultDensity,
		Elevation:         0,
	}
}

// Update is a partial snapshot; nil fields are left unchanged. It is the
// wire shape of JSON lines and MQTT payloads.
type Update struct {
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Speed             *float64 `json:"speed,omitempty"`
	Temperature       *float64 `json:"temperature,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	Heading           *float64 `json:"heading,omitempty"`
	TimeOfDay         *float64 `json:"time_of_day,omitempty"`
	PopulationDensity *float64 `json:"population_density,omitempty"`
	TrafficDensity    *float64 `json:"traffic_density,omitempty"`
	Elevation         *float64 `json:"elevation,omitempty"`
	Rainfall          *float64 `json:"rainfall,omitempty"`
}

// ParseUpdate decodes one JSON object into an Update.
func ParseUpdate(data []byte) (Update, error) {
	var u Update
	if err := json.Unmarshal(data, &u); err != nil {
		return Update{}, fmt.Errorf("feed: parsing update: %w", err)
	}
	return u, nil
}

// Aggregator merges source updates into a full snapshot and hands every
// changed snapshot to the sink. The sink runs outside the aggregator's lock.
type Aggregator struct {
	mu          sync.Mutex
	state       mapper.State
	lastHeading time.Time
	sink        func(mapper.State)
	now         func() time.Time
}

// NewAggregator starts from the neutral defaults.
func NewAggregator(sink func(mapper.State)) *Aggregator {
	return &Aggregator{
		state: mapper.Defaults(),
		sink:  sink,
		now:   time.Now,
	}
}

// Snapshot returns the current merged state.
func (a *Aggregator) Snapshot() mapper.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Aggregator) publish(st mapper.State) {
	if a.sink != nil {
		a.sink(st)
	}
}

// Location records a position fix. A nil speed means the provider has
// none, which counts as standing still.
func (a *Aggregator) Location(lat, lon float64, speed *float64) {
	a.mu.Lock()
	a.state.Latitude = lat
	a.state.Longitude = lon
	a.state.Speed = 0
	if speed != nil {
		a.state.Speed = *speed
	}
	st := a.state
	a.mu.Unlock()
	a.publish(st)
}

// Heading records a compass reading. Readings closer than CompassThrottle
// to the last accepted one are dropped; the result reports acceptance.
func (a *Aggregator) Heading(deg float64) bool {
	a.mu.Lock()
	if !a.acceptHeadingLocked() {
		a.mu.Unlock()
		return false
	}
	a.state.Heading = deg
	st := a.state
	a.mu.Unlock()
	a.publish(st)
	return true
}

func (a *Aggregator) acceptHeadingLocked() bool {
	now := a.now()
	if !a.lastHeading.IsZero() && now.Sub(a.lastHeading) < CompassThrottle {
		return false
	}
	a.lastHeading = now
	return true
}

// Clock records the local time of day.
func (a *Aggregator) Clock(t time.Time) {
	a.mu.Lock()
	a.state.TimeOfDay = TimeOfDay(t)
	st := a.state
	a.mu.Unlock()
	a.publish(st)
}

// Weather records an enrichment reading. A non-nil err replaces the
// reading with WeatherFallback.
func (a *Aggregator) Weather(w Weather, err error) {
	if err != nil {
		w = WeatherFallback()
	}
	a.mu.Lock()
	a.state.Temperature = w.Temperature
	a.state.Humidity = w.Humidity
	a.state.Rainfall = w.Rainfall
	a.state.PopulationDensity = w.PopulationDensity
	a.state.Elevation = w.Elevation
	st := a.state
	a.mu.Unlock()
	a.publish(st)
}

// Apply merges a partial update. A position without a speed resets speed
// to 0, and a heading inside the throttle window is ignored. Nothing is
// published if nothing changed.
func (a *Aggregator) Apply(u Update) {
	a.mu.Lock()
	before := a.state
	s := &a.state
	if u.Latitude != nil || u.Longitude != nil {
		set(&s.Latitude, u.Latitude)
		set(&s.Longitude, u.Longitude)
		s.Speed = 0
	}
	set(&s.Speed, u.Speed)
	set(&s.Temperature, u.Temperature)
	set(&s.Humidity, u.Humidity)
	set(&s.TimeOfDay, u.TimeOfDay)
	set(&s.PopulationDensity, u.PopulationDensity)
	set(&s.TrafficDensity, u.TrafficDensity)
	set(&s.Elevation, u.Elevation)
	set(&s.Rainfall, u.Rainfall)
	if u.Heading != nil && a.acceptHeadingLocked() {
		s.Heading = *u.Heading
	}
	st := a.state
	a.mu.Unlock()
	if st != before {
		a.publish(st)
	}
}

func set(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

// TimeOfDay maps a wall-clock time to a fraction of the local day.
func TimeOfDay(t time.Time) float64 {
	h, m, s := t.Clock()
	secs := float64(h*3600+m*60+s) + float64(t.Nanosecond())/1e9
	return secs / 86400
}
