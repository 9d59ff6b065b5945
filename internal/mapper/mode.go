package mapper

import (
	"fmt"
	"strings"
)

// Mode selects the envelope timing regime shared by all voices.
type Mode int

const (
	Drone Mode = iota // sustained, multi-second swells
	Pulse             // short bursts
	Click             // sparse percussive bells with silence gaps
)

var modeNames = []string{"drone", "pulse", "click"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// Modes lists every playback mode in declaration order.
func Modes() []Mode {
	return []Mode{Drone, Pulse, Click}
}

// ParseMode accepts a mode name, case-insensitively. "bell" is an alias
// for click.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "drone":
		return Drone, nil
	case "pulse":
		return Pulse, nil
	case "click", "bell":
		return Click, nil
	}
	return Drone, fmt.Errorf("unknown mode %q (want drone, pulse or click)", s)
}
