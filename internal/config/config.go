package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/Mavwarf/driftsynth/internal/ffmpeg"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/paths"
	"github.com/Mavwarf/driftsynth/internal/synth"
)

// Engine defaults written into every freshly decoded Config.
const (
	DefaultMode          = "drone"
	DefaultWaveform      = "sine"
	DefaultScale         = "harmonic"
	DefaultGlideSeconds  = 0.5
	DefaultVolume        = 80
	DefaultReverbSeconds = 3.0
	DefaultReverbDecay   = 2.0

	DefaultWeatherMinutes = 10
	DefaultDashboardPort  = 8420

	DefaultClientID     = "driftsynth"
	DefaultTopic        = "driftsynth/env"
	DefaultPublishTopic = "driftsynth/frequencies"
)

// Engine holds the synthesis settings parsed from the "engine" key.
type Engine struct {
	Mode          string  `json:"mode"`
	Waveform      string  `json:"waveform"`
	Scale         string  `json:"scale"`
	GlideSeconds  float64 `json:"glide_seconds"`
	Volume        int     `json:"volume"`                   // 0-100
	Seed          uint64  `json:"seed,omitempty"`           // 0 = random
	PeakHour      float64 `json:"peak_hour"`                // 0-24
	ReverbSeconds float64 `json:"reverb_seconds"`           // synthetic impulse length
	ReverbDecay   float64 `json:"reverb_decay"`             // synthetic impulse decay exponent
	ReverbImpulse string  `json:"reverb_impulse,omitempty"` // WAV or AIFF file replacing the synthetic impulse
}

// MQTT holds the optional broker connection. An empty Broker disables it.
type MQTT struct {
	Broker       string `json:"broker,omitempty"`
	ClientID     string `json:"client_id"`
	Topic        string `json:"topic"`
	PublishTopic string `json:"publish_topic,omitempty"` // empty = don't publish
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
}

// Weather holds the optional current-conditions poller.
type Weather struct {
	Enabled         bool   `json:"enabled,omitempty"`
	URL             string `json:"url,omitempty"` // empty = open-meteo
	IntervalMinutes int    `json:"interval_minutes"`
}

// Dashboard holds the local HTTP dashboard. Enabled starts it alongside
// play; the dashboard command ignores it.
type Dashboard struct {
	Enabled bool `json:"enabled,omitempty"`
	Port    int  `json:"port"`
}

// Record holds the capture target. An empty Path disables recording, "auto"
// picks a timestamped WAV in the data directory. WAV and AIFF are written
// directly; .ogg, .opus, .flac and .mp3 are converted with ffmpeg when the
// session ends.
type Record struct {
	Path string `json:"path,omitempty"`
}

// Config holds the top-level configuration.
type Config struct {
	Engine    Engine    `json:"engine"`
	MQTT      MQTT      `json:"mqtt"`
	Weather   Weather   `json:"weather"`
	Log       bool      `json:"log,omitempty"`
	Record    Record    `json:"record"`
	Dashboard Dashboard `json:"dashboard"`

	// Source is the file the config was read from, empty for defaults.
	Source string `json:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Engine: Engine{
			Mode:          DefaultMode,
			Waveform:      DefaultWaveform,
			Scale:         DefaultScale,
			GlideSeconds:  DefaultGlideSeconds,
			Volume:        DefaultVolume,
			PeakHour:      mapper.DefaultPeakHour,
			ReverbSeconds: DefaultReverbSeconds,
			ReverbDecay:   DefaultReverbDecay,
		},
		MQTT: MQTT{
			ClientID:     DefaultClientID,
			Topic:        DefaultTopic,
			PublishTopic: DefaultPublishTopic,
		},
		Weather:   Weather{IntervalMinutes: DefaultWeatherMinutes},
		Dashboard: Dashboard{Port: DefaultDashboardPort},
	}
}

// UnmarshalJSON sets defaults then decodes the JSON structure.
// Go's json.Unmarshal merges into existing struct fields, so only
// values present in JSON override the defaults.
func (c *Config) UnmarshalJSON(data []byte) error {
	*c = Default()
	type Alias Config
	return json.Unmarshal(data, (*Alias)(c))
}

// Validate rejects unknown names and out-of-range values.
func (c Config) Validate() error {
	var errs []error
	if _, err := mapper.ParseMode(c.Engine.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := synth.ParseWaveform(c.Engine.Waveform); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapper.ParseScale(c.Engine.Scale); err != nil {
		errs = append(errs, err)
	}
	if c.Engine.Volume < 0 || c.Engine.Volume > 100 {
		errs = append(errs, fmt.Errorf("volume %d out of range 0-100", c.Engine.Volume))
	}
	if c.Engine.GlideSeconds < 0 {
		errs = append(errs, fmt.Errorf("glide_seconds must not be negative"))
	}
	if c.Engine.PeakHour < 0 || c.Engine.PeakHour > 24 {
		errs = append(errs, fmt.Errorf("peak_hour %g out of range 0-24", c.Engine.PeakHour))
	}
	if c.Engine.ReverbSeconds < 0 || c.Engine.ReverbDecay < 0 {
		errs = append(errs, fmt.Errorf("reverb settings must not be negative"))
	}
	if c.Weather.IntervalMinutes < 0 {
		errs = append(errs, fmt.Errorf("weather interval_minutes must not be negative"))
	}
	if c.Record.Path != "" && c.Record.Path != "auto" {
		if err := ffmpeg.CheckTarget(c.Record.Path); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Errorf("dashboard port %d out of range", c.Dashboard.Port))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, fmt.Errorf("mqtt topic is required when a broker is set"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the engine section into synth options. The
// output, clock and impulse are left for the caller.
func (c Config) EngineOptions() (synth.Options, error) {
	if err := c.Validate(); err != nil {
		return synth.Options{}, err
	}
	mode, _ := mapper.ParseMode(c.Engine.Mode)
	wf, _ := synth.ParseWaveform(c.Engine.Waveform)
	scale, _ := mapper.ParseScale(c.Engine.Scale)

	opts := synth.Options{
		Mode:         mode,
		Waveform:     wf,
		Scale:        scale,
		Glide:        seconds(c.Engine.GlideSeconds),
		PeakHour:     c.Engine.PeakHour,
		ReverbLength: seconds(c.Engine.ReverbSeconds),
		ReverbDecay:  c.Engine.ReverbDecay,
	}
	if c.Engine.Seed != 0 {
		opts.Rand = rand.New(rand.NewPCG(c.Engine.Seed, c.Engine.Seed^0x9e3779b97f4a7c15))
	}
	return opts, nil
}

// VolumeFraction maps the 0-100 volume onto the backend's 0-1 range.
func (c Config) VolumeFraction() float64 {
	return float64(c.Engine.Volume) / 100
}

// WeatherInterval returns the poll interval; 0 minutes selects the default.
func (c Config) WeatherInterval() time.Duration {
	if c.Weather.IntervalMinutes <= 0 {
		return DefaultWeatherMinutes * time.Minute
	}
	return time.Duration(c.Weather.IntervalMinutes) * time.Minute
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Load reads and parses a config file. It tries, in order:
//  1. explicitPath (if non-empty)
//  2. driftsynth-config.json next to the running binary
//  3. ~/.config/driftsynth/driftsynth-config.json
//
// When none exists the built-in defaults are returned. An explicit path
// that cannot be read is an error.
func Load(explicitPath string) (Config, error) {
	if explicitPath != "" {
		return readConfig(explicitPath)
	}

	// Next to binary
	exe, err := os.Executable()
	if err == nil {
		p := filepath.Join(filepath.Dir(exe), paths.ConfigFileName)
		if _, err := os.Stat(p); err == nil {
			return readConfig(p)
		}
	}

	// User config directory
	if p := paths.ConfigPath(); fileExists(p) {
		return readConfig(p)
	}

	return Default(), nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func readConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Source = path
	return cfg, nil
}

// Write marshals cfg to JSON and writes it atomically.
func Write(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	data = append(data, '\n')
	return paths.AtomicWrite(path, data)
}
