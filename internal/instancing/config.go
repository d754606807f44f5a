package instancing

import (
	"fmt"
	"os"
	"strings"
)

// EnvOverride is the environment variable the CLI reads the instancing
// override from. Values: -1 (default), 0 (off), 1 (on).
const EnvOverride = "INSTKEY_OVERRIDE_INSTANCEABLE"

// Override is a process-wide switch layered over authored opinions.
type Override int

const (
	// OverrideDefault honors the authored instanceable opinion.
	OverrideDefault Override = iota
	// OverrideOff disables instancing for every graph.
	OverrideOff
	// OverrideOn treats every graph as if instanceable were authored true.
	// Graphs with no eligible node still never instance.
	OverrideOn
)

func (o Override) String() string {
	switch o {
	case OverrideDefault:
		return "default"
	case OverrideOff:
		return "off"
	case OverrideOn:
		return "on"
	default:
		return fmt.Sprintf("Override(%d)", int(o))
	}
}

// ParseOverride accepts the names default/off/on or the numeric encoding
// -1/0/1. The empty string is OverrideDefault.
func ParseOverride(s string) (Override, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "-1":
		return OverrideDefault, nil
	case "off", "0":
		return OverrideOff, nil
	case "on", "1":
		return OverrideOn, nil
	default:
		return OverrideDefault, fmt.Errorf("invalid instancing override %q: must be one of default, off, on, -1, 0, 1", s)
	}
}

// OverrideFromEnv reads EnvOverride. An unset variable is OverrideDefault.
func OverrideFromEnv() (Override, error) {
	v, ok := os.LookupEnv(EnvOverride)
	if !ok {
		return OverrideDefault, nil
	}
	o, err := ParseOverride(v)
	if err != nil {
		return OverrideDefault, fmt.Errorf("%s: %w", EnvOverride, err)
	}
	return o, nil
}

// Config is passed explicitly to every entry point. The zero value is the
// default behavior.
type Config struct {
	Override Override
}
