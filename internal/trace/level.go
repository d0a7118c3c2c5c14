package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity. *Level implements pflag.Value.
type Level uint8

const (
	LevelOff    Level = iota // no tracing
	LevelError               // only the ring dump on a crash
	LevelPhase               // driver and pass spans
	LevelDetail              // plus probes, functions and resolver iterations
	LevelDebug               // plus node-level points
)

var levelNames = [...]string{
	LevelOff:    "off",
	LevelError:  "error",
	LevelPhase:  "phase",
	LevelDetail: "detail",
	LevelDebug:  "debug",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(l), nil // #nosec G115 -- index of a five element array
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: off|error|phase|detail|debug)", s)
}

func (l *Level) Set(s string) error {
	v, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = v
	return nil
}

func (*Level) Type() string { return "level" }

// ShouldEmit reports whether events of scope pass the level. LevelError
// records nothing up front; crash dumps come from the ring.
func (l Level) ShouldEmit(scope Scope) bool {
	switch l {
	case LevelPhase:
		return scope <= ScopePass
	case LevelDetail:
		return scope <= ScopeUnit
	case LevelDebug:
		return true
	}
	return false
}
