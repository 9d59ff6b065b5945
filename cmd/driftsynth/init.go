package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Mavwarf/driftsynth/internal/config"
	"github.com/Mavwarf/driftsynth/internal/mapper"
	"github.com/Mavwarf/driftsynth/internal/paths"
	"github.com/Mavwarf/driftsynth/internal/synth"
)

func initCmd(args []string, configPath string) {
	for _, a := range args {
		if a == "--defaults" {
			initDefaults(configPath)
			return
		}
	}
	initInteractive(configPath)
}

// initDefaults writes the built-in default config to a file without prompts.
func initDefaults(configPath string) {
	path := resolveInitPath(configPath)

	cfg := config.Default()
	cfg.Log = true

	if err := config.Write(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Printf("Wrote default config to %s\n", path)
	fmt.Println("Edit it to set a broker, an impulse response or a recording path.")
}

// initInteractive walks the user through an interactive config setup.
func initInteractive(configPath string) {
	scanner := bufio.NewScanner(os.Stdin)
	path := resolveInitPath(configPath)

	// Check for existing config.
	if _, err := os.Stat(path); err == nil {
		if !promptYN(scanner, fmt.Sprintf("%s already exists. Overwrite?", path), false) {
			fmt.Println("Aborted.")
			return
		}
	}

	fmt.Println("driftsynth init: interactive config generator")
	fmt.Println()

	cfg := config.Default()
	cfg.Engine.Mode = promptChoice(scanner, "Mode", names(mapper.Modes()), cfg.Engine.Mode,
		func(s string) error { _, err := mapper.ParseMode(s); return err })
	cfg.Engine.Waveform = promptChoice(scanner, "Waveform", names(synth.Waveforms()), cfg.Engine.Waveform,
		func(s string) error { _, err := synth.ParseWaveform(s); return err })
	cfg.Engine.Scale = promptChoice(scanner, "Scale", names(mapper.Scales()), cfg.Engine.Scale,
		func(s string) error { _, err := mapper.ParseScale(s); return err })

	vol := promptLineDefault(scanner, "Volume (0-100)", strconv.Itoa(cfg.Engine.Volume))
	if v, err := strconv.Atoi(vol); err == nil && v >= 0 && v <= 100 {
		cfg.Engine.Volume = v
	} else {
		fmt.Fprintf(os.Stderr, "  Warning: invalid volume %q, keeping %d\n", vol, cfg.Engine.Volume)
	}

	fmt.Println()
	if promptYN(scanner, "Receive snapshots over MQTT?", false) {
		cfg.MQTT.Broker = promptLineDefault(scanner, "  Broker URL", "tcp://localhost:1883")
		cfg.MQTT.Topic = promptLineDefault(scanner, "  Snapshot topic", cfg.MQTT.Topic)
		cfg.MQTT.PublishTopic = promptLineDefault(scanner, "  Frequency topic (- for none)", cfg.MQTT.PublishTopic)
		if cfg.MQTT.PublishTopic == "-" {
			cfg.MQTT.PublishTopic = ""
		}
		cfg.MQTT.Username = promptLine(scanner, "  Username (blank for none): ")
		if cfg.MQTT.Username != "" {
			cfg.MQTT.Password = promptLine(scanner, "  Password: ")
		}
	}

	cfg.Log = promptYN(scanner, "Log sessions to the history database?", true)

	if err := cfg.Validate(); err != nil {
		fatal(err)
	}
	if err := config.Write(path, cfg); err != nil {
		fatal(err)
	}
	fmt.Println()
	fmt.Printf("Wrote config to %s\n", path)
}

// resolveInitPath determines where to write the config file.
func resolveInitPath(configPath string) string {
	if configPath != "" {
		return configPath
	}
	// Try next-to-binary first.
	exe, err := os.Executable()
	if err == nil {
		return filepath.Join(filepath.Dir(exe), paths.ConfigFileName)
	}
	// Fall back to user config directory.
	return paths.ConfigPath()
}

// promptChoice asks for a name until valid() accepts it.
func promptChoice(scanner *bufio.Scanner, question, choices, defaultVal string, valid func(string) error) string {
	fmt.Printf("%s: %s\n", question, choices)
	for {
		answer := promptLineDefault(scanner, "  Choice", defaultVal)
		err := valid(answer)
		if err == nil {
			return strings.ToLower(answer)
		}
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		if answer == defaultVal {
			return defaultVal
		}
	}
}

// promptYN asks a yes/no question with a default. Returns true for yes.
func promptYN(scanner *bufio.Scanner, question string, defaultYes bool) bool {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Printf("%s %s ", question, hint)
	if !scanner.Scan() {
		return defaultYes
	}
	answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
	if answer == "" {
		return defaultYes
	}
	return answer == "y" || answer == "yes"
}

// promptLine asks a question and returns the trimmed answer.
func promptLine(scanner *bufio.Scanner, question string) string {
	fmt.Print(question)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// promptLineDefault asks a question with a default value shown in brackets.
func promptLineDefault(scanner *bufio.Scanner, question, defaultVal string) string {
	fmt.Printf("%s [%s]: ", question, defaultVal)
	if !scanner.Scan() {
		return defaultVal
	}
	answer := strings.TrimSpace(scanner.Text())
	if answer == "" {
		return defaultVal
	}
	return answer
}
