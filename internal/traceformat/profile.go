package traceformat

import (
	"fmt"
	"strings"
)

// Granularity describes the precision of the per-line timestamp field.
type Granularity int

// Timestamp granularities, in increasing precision. The zero value means
// the trace carries no timestamp column at all.
const (
	GranularityNone Granularity = iota
	GranularitySeconds
	GranularityCentiseconds
	GranularityMicroseconds
)

// String returns a human-readable name for the granularity.
func (g Granularity) String() string {
	switch g {
	case GranularityNone:
		return "none"
	case GranularitySeconds:
		return "seconds"
	case GranularityCentiseconds:
		return "centiseconds"
	case GranularityMicroseconds:
		return "microseconds"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// Profile describes which optional fields every line of a trace carries.
// A Profile is immutable once computed: all lines in one stream are assumed
// to share it.
type Profile struct {
	// HasPid reports whether each line starts with a process id column.
	HasPid bool
	// Granularity is the precision of the timestamp column, or
	// GranularityNone when there is no timestamp.
	Granularity Granularity
	// HasElapsed reports whether each completed call line ends with a
	// <seconds> elapsed-time suffix.
	HasElapsed bool
}

// String renders the profile in the compact form used in log output,
// e.g. "pid+micro+elapsed" or "bare".
func (p Profile) String() string {
	s := ""
	if p.HasPid {
		s += "pid+"
	}
	switch p.Granularity {
	case GranularitySeconds:
		s += "sec+"
	case GranularityCentiseconds:
		s += "centi+"
	case GranularityMicroseconds:
		s += "micro+"
	}
	if p.HasElapsed {
		s += "elapsed+"
	}
	if s == "" {
		return "bare"
	}
	return s[:len(s)-1]
}

// ParseProfile parses the compact profile notation accepted as a format
// override, the inverse of Profile.String. "bare" selects the empty
// profile; otherwise the notation is "+"-joined tokens out of pid, sec,
// centi, micro and elapsed.
func ParseProfile(s string) (Profile, error) {
	var p Profile
	if s == "bare" {
		return p, nil
	}
	for _, tok := range strings.Split(s, "+") {
		switch tok {
		case "pid":
			p.HasPid = true
		case "sec":
			p.Granularity = GranularitySeconds
		case "centi":
			p.Granularity = GranularityCentiseconds
		case "micro":
			p.Granularity = GranularityMicroseconds
		case "elapsed":
			p.HasElapsed = true
		default:
			return Profile{}, fmt.Errorf("unknown format token %q in %q", tok, s)
		}
	}
	return p, nil
}
