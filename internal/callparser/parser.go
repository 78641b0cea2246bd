package callparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

// Result classifies the outcome of parsing one line.
type Result int

const (
	// ResultRaw means no syscall name could be extracted; the line is
	// surfaced to raw hooks only and counts as unparsed.
	ResultRaw Result = iota
	// ResultEvent means a named event was produced.
	ResultEvent
	// ResultHeld means the line was an unfinished half and is retained
	// in the lookback buffer awaiting its resumed counterpart.
	ResultHeld
)

const unfinishedSuffix = "<unfinished ...>"

var (
	pidRe     = regexp.MustCompile(`^(\d+)[ \t]+`)
	clockRe   = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(?:\.(\d+))?[ \t]+`)
	epochRe   = regexp.MustCompile(`^(\d{9,})(?:\.(\d+))?[ \t]+`)
	nameRe    = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_]*)\(`)
	resumedRe = regexp.MustCompile(`^<\.\.\. ([a-zA-Z_][a-zA-Z0-9_]*) resumed>[ \t]?`)
	retRe     = regexp.MustCompile(`^(\S+)(?:[ \t]+(E[A-Z0-9_]+)[ \t]+\((.*)\))?$`)
	elapsedRe = regexp.MustCompile(`[ \t]*<(\d+\.\d+)>$`)
)

// Parser decomposes trace lines according to a fixed format profile.
// It carries one slot of lookback state per process id to reunite
// unfinished/resumed pairs into a single logical event.
type Parser struct {
	profile traceformat.Profile
	pending map[int]*CallEvent
}

// New creates a parser for the given profile.
func New(profile traceformat.Profile) *Parser {
	return &Parser{
		profile: profile,
		pending: make(map[int]*CallEvent),
	}
}

// Pending returns the number of unfinished halves still awaiting their
// resumed counterpart. Useful for end-of-run diagnostics.
func (p *Parser) Pending() int {
	return len(p.pending)
}

// Parse decomposes one raw line into a CallEvent. The event is nil unless
// the result is ResultEvent.
func (p *Parser) Parse(line string) (*CallEvent, Result) {
	ev := &CallEvent{Raw: line}
	rest := strings.TrimRight(line, "\r\n")

	if p.profile.HasPid {
		if m := pidRe.FindStringSubmatch(rest); m != nil {
			// The pid column fits an int on any supported platform.
			if pid, err := strconv.Atoi(m[1]); err == nil {
				ev.Pid = pid
				ev.HasPid = true
			}
			rest = rest[len(m[0]):]
		}
	}

	if p.profile.Granularity != traceformat.GranularityNone {
		rest = p.parseTimestamp(rest, ev)
	}

	if m := resumedRe.FindStringSubmatch(rest); m != nil {
		return p.parseResumed(rest[len(m[0]):], m[1], ev)
	}

	m := nameRe.FindStringSubmatch(rest)
	if m == nil {
		return nil, ResultRaw
	}
	ev.Name = m[1]
	rest = rest[len(m[0]):]

	if tail, ok := strings.CutSuffix(rest, unfinishedSuffix); ok {
		ev.Unfinished = true
		ev.Args, _, _ = scanArgs(strings.TrimRight(tail, " \t,"))
		p.pending[p.pendingKey(ev)] = ev
		return nil, ResultHeld
	}

	args, tail, closed := scanArgs(rest)
	ev.Args = args
	if closed {
		p.parseReturn(tail, ev)
	}

	return ev, ResultEvent
}

// parseResumed handles "<... name resumed>" continuation lines. When the
// matching unfinished half is held, the two halves are merged into one
// logical event; otherwise the resumed half is surfaced on its own.
func (p *Parser) parseResumed(tail, name string, ev *CallEvent) (*CallEvent, Result) {
	ev.Name = name
	ev.Resumed = true

	// A resumed call can be interrupted again before completing. Fold the
	// continuation into the held half and keep waiting.
	if cut, ok := strings.CutSuffix(tail, unfinishedSuffix); ok {
		ev.Unfinished = true
		ev.Args, _, _ = scanArgsAt(strings.TrimRight(cut, " \t,"), 1)

		key := p.pendingKey(ev)
		if held, ok := p.pending[key]; ok && held.Name == name {
			held.Args = append(held.Args, ev.Args...)
			held.Raw = ev.Raw
		} else {
			p.pending[key] = ev
		}
		return nil, ResultHeld
	}

	// The tail continues inside the argument list of the original call.
	args, rest, closed := scanArgsAt(tail, 1)
	ev.Args = args
	if closed {
		p.parseReturn(rest, ev)
	}

	key := p.pendingKey(ev)
	if held, ok := p.pending[key]; ok && held.Name == name {
		delete(p.pending, key)
		merged := *held
		merged.Unfinished = false
		merged.Resumed = true
		merged.Args = append(append([]string(nil), held.Args...), ev.Args...)
		merged.RetVal = ev.RetVal
		merged.ErrName = ev.ErrName
		merged.ErrMessage = ev.ErrMessage
		merged.Elapsed = ev.Elapsed
		merged.HasElapsed = ev.HasElapsed
		merged.Raw = ev.Raw
		return &merged, ResultEvent
	}

	return ev, ResultEvent
}

// parseTimestamp strips and records the leading timestamp token. A missing
// timestamp is tolerated: the field is left unset and parsing continues.
func (p *Parser) parseTimestamp(rest string, ev *CallEvent) string {
	if m := clockRe.FindStringSubmatch(rest); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		ts := float64(h*3600 + min*60 + sec)
		if m[4] != "" {
			frac, _ := strconv.ParseFloat("0."+m[4], 64)
			ts += frac
		}
		ev.Timestamp = ts
		ev.HasTimestamp = true
		return rest[len(m[0]):]
	}
	if m := epochRe.FindStringSubmatch(rest); m != nil {
		text := m[1]
		if m[2] != "" {
			text += "." + m[2]
		}
		if ts, err := strconv.ParseFloat(text, 64); err == nil {
			ev.Timestamp = ts
			ev.HasTimestamp = true
		}
		return rest[len(m[0]):]
	}
	return rest
}

// parseReturn decomposes everything after the closing parenthesis: the
// " = " separator, the return value token, an optional error name with
// parenthesised message, and the optional elapsed suffix. Any part that
// does not match is simply left unset.
func (p *Parser) parseReturn(tail string, ev *CallEvent) {
	if p.profile.HasElapsed {
		if m := elapsedRe.FindStringSubmatch(tail); m != nil {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil {
				ev.Elapsed = secs
				ev.HasElapsed = true
			}
			tail = tail[:len(tail)-len(m[0])]
		}
	}

	rest, ok := strings.CutPrefix(strings.TrimLeft(tail, " \t"), "= ")
	if !ok {
		return
	}

	m := retRe.FindStringSubmatch(strings.TrimSpace(rest))
	if m == nil {
		return
	}
	ev.RetVal = m[1]
	ev.ErrName = m[2]
	ev.ErrMessage = m[3]
}

func (p *Parser) pendingKey(ev *CallEvent) int {
	if ev.HasPid {
		return ev.Pid
	}
	return 0
}

// scanArgs splits a top-level comma-delimited argument list, starting just
// inside the opening parenthesis. It returns the argument tokens, the text
// after the matching closing parenthesis, and whether that close was found.
func scanArgs(s string) ([]string, string, bool) {
	return scanArgsAt(s, 1)
}

func scanArgsAt(s string, depth int) ([]string, string, bool) {
	var (
		args    []string
		start   int
		inQuote bool
		escaped bool
	)

	flush := func(end int) {
		if tok := strings.TrimSpace(s[start:end]); tok != "" {
			args = append(args, tok)
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case inQuote:
			// Commas and brackets inside quoted strings are data.
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			if depth > 1 {
				depth--
			}
		case c == ')':
			depth--
			if depth == 0 {
				flush(i)
				return args, s[i+1:], true
			}
		case c == ',' && depth == 1:
			flush(i)
			start = i + 1
		}
	}

	flush(len(s))
	return args, "", false
}
