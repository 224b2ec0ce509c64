//go:generate go run golang.org/x/tools/cmd/stringer -type=Level -linecomment=true

package log

import (
	"strings"
)

// Level parametrizes supported log verbosity levels.
type Level int

const (
	// Debug messages trace per-command and per-stage behaviors.
	Debug Level = iota // DEBUG
	// Info messages convey connection lifecycle and resolution outcomes.
	Info // INFO
	// Warn messages describe non-erroring divergences from the ideal code path, such as a
	// client connection failing mid-session.
	Warn // WARN
	// Error messages indicate behavior that is not intended and should be corrected.
	Error // ERROR
)

// ParseLevel looks up a Level constant by its stringified (case-insensitive) representation. Unknown
// names yield Error.
func ParseLevel(level string) (Level, bool) {
	for _, knownLevel := range []Level{Debug, Info, Warn, Error} {
		if strings.EqualFold(level, knownLevel.String()) {
			return knownLevel, true
		}
	}

	return Error, false
}

// Enables indicates whether the current log level enables logging at another level.
//
// For example,
//
//	Debug enables Debug, Info, Warn, and Error
//	Info enables Info, Warn, and Error, but not Debug
//	Error enables Error, but not Debug, Info, or Warn
func (l Level) Enables(other Level) bool {
	return l <= other
}
