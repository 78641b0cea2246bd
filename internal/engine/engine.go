// Package engine drives the single forward pass over a trace stream.
//
// The engine owns the read position: it reads one line at a time, asks the
// parser to decompose it, and dispatches the result before advancing. It
// performs no buffering of its own, so a live pipe producing unbounded
// output is supported. A structural parse failure on one line demotes the
// line to raw and the pass continues; only I/O failure on the underlying
// stream is fatal.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/filter"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

// maxLineSize bounds a single trace line. Write payloads can be large when
// the trace was captured with a big -s string limit.
const maxLineSize = 1 << 20

// State is the engine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// RunStats summarizes one pass over the stream.
type RunStats struct {
	// LinesProcessed is the number of non-empty input lines read.
	LinesProcessed int
	// LinesUnparsed counts lines with no extractable syscall name; they
	// were surfaced to raw hooks only.
	LinesUnparsed int
	// EventsDispatched counts named events delivered to syscall hooks.
	EventsDispatched int
}

// StreamError reports a fatal read failure on the underlying stream.
type StreamError struct {
	Line int
	Err  error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream read failed after line %d: %v", e.Line, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Engine performs the single-threaded synchronous pass: read, parse,
// dispatch, advance.
type Engine struct {
	parser *callparser.Parser
	match  *filter.Filter
	state  State
}

// New creates an engine for a stream with the given format profile.
func New(profile traceformat.Profile) *Engine {
	return &Engine{
		parser: callparser.New(profile),
		state:  StateIdle,
	}
}

// SetFilter installs a pre-compiled match expression. Events that do not
// match skip name-keyed dispatch; raw hooks are unaffected.
func (e *Engine) SetFilter(f *filter.Filter) {
	e.match = f
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Run reads the stream to exhaustion, dispatching each line before
// advancing. The registry must not be mutated during the run. Cancellation
// is cooperative: ctx is checked between lines. The caller owns the stream
// and is responsible for closing it on every exit path.
func (e *Engine) Run(ctx context.Context, r io.Reader, registry *hookreg.Registry) (RunStats, error) {
	var stats RunStats
	e.state = StateRunning

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			e.state = StateFailed
			return stats, err
		}

		line := scanner.Text()
		if line == "" {
			continue
		}
		stats.LinesProcessed++

		// Raw hooks observe every line, matched or not.
		if err := registry.DispatchRaw(line); err != nil {
			e.state = StateFailed
			return stats, err
		}

		ev, result := e.parser.Parse(line)
		switch result {
		case callparser.ResultHeld:
			// Unfinished half retained by the parser; the merged
			// event is dispatched when the resumed line arrives.
		case callparser.ResultRaw:
			stats.LinesUnparsed++
		case callparser.ResultEvent:
			if e.match != nil {
				matched, err := e.match.Match(ev)
				if err != nil {
					e.state = StateFailed
					return stats, err
				}
				if !matched {
					continue
				}
			}
			if err := registry.Dispatch(ev); err != nil {
				e.state = StateFailed
				return stats, err
			}
			stats.EventsDispatched++
		}
	}

	if err := scanner.Err(); err != nil {
		e.state = StateFailed
		return stats, &StreamError{Line: stats.LinesProcessed, Err: err}
	}

	if pending := e.parser.Pending(); pending > 0 {
		log.Printf("%d unfinished call(s) never resumed before end of stream", pending)
	}

	e.state = StateCompleted
	return stats, nil
}
