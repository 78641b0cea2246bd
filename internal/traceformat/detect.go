package traceformat

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"
)

// DefaultSampleLines is how many leading non-empty lines Detect examines.
const DefaultSampleLines = 32

// DetectionError reports that the sample lines were insufficient or
// contradictory. It is fatal: the run must not start without a profile.
type DetectionError struct {
	Reason string
}

func (e *DetectionError) Error() string {
	return "format detection failed: " + e.Reason
}

var (
	pidPrefixRe     = regexp.MustCompile(`^(\d+)[ \t]+`)
	clockStampRe    = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(?:\.(\d+))?[ \t]+`)
	epochStampRe    = regexp.MustCompile(`^(\d{9,})\.(\d+)[ \t]+`)
	callStartRe     = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*\(`)
	resumedStartRe  = regexp.MustCompile(`^<\.\.\. [a-zA-Z_][a-zA-Z0-9_]* resumed>`)
	elapsedSuffixRe = regexp.MustCompile(`<\d+\.\d+>$`)
)

// lineShape is the per-line field inventory inferred during detection.
type lineShape struct {
	hasPid      bool
	granularity Granularity
	hasElapsed  bool
	// elapsedKnown is false for unfinished lines, which never carry the
	// elapsed suffix regardless of the trace format.
	elapsedKnown bool
}

// granularityForFraction maps the width of the fractional-seconds field to
// the timestamp granularity it implies.
func granularityForFraction(frac string) Granularity {
	switch {
	case frac == "":
		return GranularitySeconds
	case len(frac) <= 2:
		return GranularityCentiseconds
	default:
		return GranularityMicroseconds
	}
}

// inspectLine infers the shape of a single trace line. The second return
// value is false when the line does not look like a call record at all
// (signal markers, exit markers, arbitrary noise).
func inspectLine(line string) (lineShape, bool) {
	var shape lineShape
	rest := line

	if m := pidPrefixRe.FindStringSubmatch(rest); m != nil {
		shape.hasPid = true
		rest = rest[len(m[0]):]
	}

	if m := clockStampRe.FindStringSubmatch(rest); m != nil {
		shape.granularity = granularityForFraction(m[4])
		rest = rest[len(m[0]):]
	} else if m := epochStampRe.FindStringSubmatch(rest); m != nil {
		shape.granularity = granularityForFraction(m[2])
		rest = rest[len(m[0]):]
	}

	if !callStartRe.MatchString(rest) && !resumedStartRe.MatchString(rest) {
		return lineShape{}, false
	}

	if strings.HasSuffix(rest, "<unfinished ...>") {
		// Unfinished halves never carry an elapsed suffix; they say
		// nothing about whether the trace has one.
		return shape, true
	}

	if strings.HasSuffix(rest, "= ?") {
		// Calls that never return (exit_group, execve into a dead
		// process, a signal-killed rt_sigreturn) print no elapsed
		// suffix even when the trace has one everywhere else.
		return shape, true
	}

	shape.elapsedKnown = true
	shape.hasElapsed = elapsedSuffixRe.MatchString(rest)
	return shape, true
}

// Detect infers a Profile from a bounded sample of leading trace lines.
//
// Field presence must be consistent across every sample line that parses
// as a call record: a sample where some lines carry a process id or a
// timestamp and others do not is contradictory and fails detection, as
// does a sample with no parsable call record at all. Detection is pure
// and idempotent.
func Detect(sample []string) (Profile, error) {
	var (
		profile      Profile
		parsed       int
		elapsedSeen  bool
		elapsedKnown bool
	)

	for _, line := range sample {
		if strings.TrimSpace(line) == "" {
			continue
		}
		shape, ok := inspectLine(line)
		if !ok {
			continue
		}

		if parsed == 0 {
			profile.HasPid = shape.hasPid
			profile.Granularity = shape.granularity
		} else {
			if shape.hasPid != profile.HasPid {
				return Profile{}, &DetectionError{Reason: "inconsistent process id column across sample lines"}
			}
			if shape.granularity != profile.Granularity {
				return Profile{}, &DetectionError{Reason: "inconsistent timestamp format across sample lines"}
			}
		}
		parsed++

		if shape.elapsedKnown {
			if elapsedKnown && shape.hasElapsed != elapsedSeen {
				return Profile{}, &DetectionError{Reason: "inconsistent elapsed-time suffix across sample lines"}
			}
			elapsedSeen = shape.hasElapsed
			elapsedKnown = true
		}
	}

	if parsed == 0 {
		return Profile{}, &DetectionError{Reason: "no sample line parses as a call record"}
	}

	profile.HasElapsed = elapsedSeen
	return profile, nil
}

// SampleStream reads up to maxLines non-empty lines from r for format
// detection and returns them together with a reader that replays every
// consumed byte before continuing with the rest of the stream. The input
// may be a pipe: no seeking is required and no line is lost.
func SampleStream(r io.Reader, maxLines int) ([]string, io.Reader, error) {
	br := bufio.NewReader(r)
	var consumed bytes.Buffer
	var sample []string

	for len(sample) < maxLines {
		line, err := br.ReadString('\n')
		consumed.WriteString(line)

		if trimmed := strings.TrimSpace(line); trimmed != "" {
			sample = append(sample, trimmed)
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
	}

	return sample, io.MultiReader(bytes.NewReader(consumed.Bytes()), br), nil
}
