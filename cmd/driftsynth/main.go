package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/Mavwarf/driftsynth/internal/config"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/synth"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// flags holds the global options accepted before or after the command.
type flags struct {
	configPath string
	volume     int // -1 = config
	mode       string
	waveform   string
	scale      string
	broker     string
	record     string
	duration   time.Duration
	log        bool
	silent     bool
	weather    bool
	dashboard  bool
	port       int
	open       bool
}

func main() {
	f, rest, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if len(rest) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch rest[0] {
	case "help", "-h", "--help":
		printUsage()
	case "version", "-V", "--version":
		printVersion()
	case "play":
		playCmd(rest[1:], f)
	case "map":
		mapCmd(rest[1:], f)
	case "tones":
		tonesCmd(rest[1:], f)
	case "scales":
		scalesCmd()
	case "history":
		historyCmd(rest[1:])
	case "init":
		initCmd(rest[1:], f.configPath)
	case "dashboard":
		dashboardCmd(rest[1:], f)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n", rest[0])
		fmt.Fprintf(os.Stderr, "Run 'driftsynth help' for usage.\n")
		os.Exit(1)
	}
}

// parseFlags pulls the global options out of args and returns the rest in
// order.
func parseFlags(args []string) (flags, []string, error) {
	f := flags{volume: -1}
	var rest []string

	value := func(i int, name, want string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires %s", name, want)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch a {
		case "--volume", "-v":
			s, err := value(i, a, "a value (0-100)")
			if err != nil {
				return f, nil, err
			}
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 || v > 100 {
				return f, nil, fmt.Errorf("volume must be a number between 0 and 100")
			}
			f.volume = v
			i++
		case "--config", "-c":
			s, err := value(i, a, "a file path")
			if err != nil {
				return f, nil, err
			}
			f.configPath = s
			i++
		case "--mode", "-m":
			s, err := value(i, a, "a mode name")
			if err != nil {
				return f, nil, err
			}
			f.mode = s
			i++
		case "--waveform", "-w":
			s, err := value(i, a, "a waveform name")
			if err != nil {
				return f, nil, err
			}
			f.waveform = s
			i++
		case "--scale", "-s":
			s, err := value(i, a, "a scale name")
			if err != nil {
				return f, nil, err
			}
			f.scale = s
			i++
		case "--broker", "-b":
			s, err := value(i, a, "a broker URL")
			if err != nil {
				return f, nil, err
			}
			f.broker = s
			i++
		case "--record", "-r":
			s, err := value(i, a, "a file path or \"auto\"")
			if err != nil {
				return f, nil, err
			}
			f.record = s
			i++
		case "--duration", "-d":
			s, err := value(i, a, "a duration")
			if err != nil {
				return f, nil, err
			}
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				return f, nil, fmt.Errorf("duration must be positive, like 90s or 10m")
			}
			f.duration = d
			i++
		case "--log", "-L":
			f.log = true
		case "--silent", "-q":
			f.silent = true
		case "--weather", "-W":
			f.weather = true
		case "--dashboard", "-D":
			f.dashboard = true
		case "--port", "-p":
			s, err := value(i, a, "a port number")
			if err != nil {
				return f, nil, err
			}
			v, err := strconv.Atoi(s)
			if err != nil || v <= 0 || v > 65535 {
				return f, nil, fmt.Errorf("port must be a number between 1 and 65535")
			}
			f.port = v
			i++
		case "--open":
			f.open = true
		default:
			rest = append(rest, a)
		}
	}
	return f, rest, nil
}

// loadConfig reads the config and applies command-line overrides.
func loadConfig(f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	applyOverrides(&cfg, f)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// applyOverrides gives flags priority over the config file.
func applyOverrides(cfg *config.Config, f flags) {
	if f.volume >= 0 {
		cfg.Engine.Volume = f.volume
	}
	if f.mode != "" {
		cfg.Engine.Mode = f.mode
	}
	if f.waveform != "" {
		cfg.Engine.Waveform = f.waveform
	}
	if f.scale != "" {
		cfg.Engine.Scale = f.scale
	}
	if f.broker != "" {
		cfg.MQTT.Broker = f.broker
	}
	if f.record != "" {
		cfg.Record.Path = f.record
	}
	if f.log {
		cfg.Log = true
	}
	if f.weather {
		cfg.Weather.Enabled = true
	}
	if f.dashboard {
		cfg.Dashboard.Enabled = true
	}
	if f.port > 0 {
		cfg.Dashboard.Port = f.port
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("driftsynth %s (%s) %s/%s\n", version, buildDate, runtime.GOOS, runtime.GOARCH)
}

func names[T fmt.Stringer](items []T) string {
	return strings.Join(lo.Map(items, func(it T, _ int) string { return it.String() }), ", ")
}

func printUsage() {
	fmt.Printf("driftsynth %s - Generative drone synth driven by the environment\n", version)
	fmt.Printf(`
Usage:
  driftsynth [options] play
  driftsynth [options] map [key=value ...]
  driftsynth tones [scale] [heading]
  driftsynth scales
  driftsynth history [count | show <id> [count] | chart <id> [file] | clean [days] | clear]
  driftsynth init [--defaults]
  driftsynth [options] dashboard [--open]

Options:
  --config, -c <path>      Path to driftsynth-config.json
  --volume, -v <0-100>     Override volume (default: config or %d)
  --mode, -m <name>        Playback mode
  --waveform, -w <name>    Oscillator waveform
  --scale, -s <name>       Tuning for the partials
  --broker, -b <url>       MQTT broker for snapshots (e.g. tcp://localhost:1883)
  --record, -r <path|auto> Capture the output (.wav/.aiff, or .ogg/.opus/.flac/.mp3 via ffmpeg)
  --duration, -d <dur>     Stop playing after a duration (e.g. 10m)
  --log, -L                Log the session to the history database
  --silent, -q             Run without an audio device (pair with --record)
  --weather, -W            Poll current weather for the reported position
  --dashboard, -D          Serve the live dashboard while playing
  --port, -p <port>        Dashboard port (default: config or %d)
  --open                   Open the dashboard in a browser window

Commands:
  play                     Start the engine; reads JSON updates from stdin, MQTT and weather
  map                      Print what a snapshot maps to, without sound
  tones                    Print the six ratios a heading selects from a scale
  scales                   List the tuning tables
  history                  Show logged sessions and their snapshots
  init                     Write a config file
  dashboard                Browse logged sessions in a local web page
  version, -V              Show version and build date
  help, -h, --help         Show this help message

Modes:     %s
Waveforms: %s
Scales:    %s

Snapshot keys for map and JSON updates:
  latitude longitude speed temperature humidity heading time_of_day
  population_density traffic_density elevation rainfall
  (map also accepts lat, lon, temp, density, traffic, rain and time=HH:MM)

Config resolution:
  1. --config <path>                          (explicit)
  2. driftsynth-config.json next to binary    (portable)
  3. ~/.config/driftsynth/driftsynth-config.json (user default)
  Built-in defaults apply when none is found.

Examples:
  driftsynth play                              Play with the clock as the only input
  gps-feed | driftsynth -m pulse play          Drive the engine from JSON lines
  driftsynth -b tcp://pi:1883 -L play          Follow MQTT snapshots and log them
  driftsynth -q -r auto -d 5m play             Record five minutes without a device
  driftsynth map lat=40 time=12:00 speed=0     Inspect one mapping
  driftsynth -L -D play                        Play, log and watch at localhost:%d

https://github.com/Mavwarf/driftsynth
`, config.DefaultVolume, config.DefaultDashboardPort, names(mapper.Modes()), names(synth.Waveforms()), names(mapper.Scales()),
		config.DefaultDashboardPort)
}
