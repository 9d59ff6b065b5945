// Package weather polls a current-conditions provider and feeds the
// readings into the snapshot aggregator.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/Mavwarf/driftsynth/internal/feed"
	"github.com/Mavwarf/driftsynth/internal/httputil"
)

const (
	// DefaultURL is the open-meteo forecast endpoint. It needs no key.
	DefaultURL = "https://api.open-meteo.com/v1/forecast"
	// DefaultInterval is how often Run polls.
	DefaultInterval = 10 * time.Minute
)

// Provider fetches current conditions from an open-meteo compatible API.
type Provider struct {
	BaseURL string // empty selects DefaultURL
}

type response struct {
	Elevation float64 `json:"elevation"`
	Current   struct {
		Temperature   *float64 `json:"temperature_2m"`
		Humidity      *float64 `json:"relative_humidity_2m"`
		Precipitation *float64 `json:"precipitation"`
	} `json:"current"`
}

func (p Provider) endpoint(lat, lon float64) string {
	base := p.BaseURL
	if base == "" {
		base = DefaultURL
	}
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,relative_humidity_2m,precipitation")
	return base + "?" + q.Encode()
}

// Fetch returns the conditions at a position. Population density is not
// part of the response; density is carried into the result unchanged.
func (p Provider) Fetch(ctx context.Context, lat, lon, density float64) (feed.Weather, error) {
	var r response
	if err := httputil.GetJSON(ctx, p.endpoint(lat, lon), "weather", &r); err != nil {
		return feed.Weather{}, err
	}
	c := r.Current
	if c.Temperature == nil || c.Humidity == nil {
		return feed.Weather{}, fmt.Errorf("weather: response has no current conditions")
	}
	w := feed.Weather{
		Temperature:       *c.Temperature,
		Humidity:          *c.Humidity,
		PopulationDensity: density,
		Elevation:         r.Elevation,
	}
	if c.Precipitation != nil {
		w.Rainfall = *c.Precipitation
	}
	return w, nil
}

// Run polls p for the aggregator's current position immediately and then
// every interval until ctx is done. A failed fetch applies the fallback
// reading and is reported on stderr.
func Run(ctx context.Context, a *feed.Aggregator, p Provider, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultInterval
	}
	poll := func() {
		st := a.Snapshot()
		w, err := p.Fetch(ctx, st.Latitude, st.Longitude, st.PopulationDensity)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "weather: %v (using fallback)\n", err)
		}
		a.Weather(w, err)
	}

	poll()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			poll()
		}
	}
}
