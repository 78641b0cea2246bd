// Package iostats implements the file I/O latency plugin: min/avg/max
// elapsed time per fd-oriented syscall. It requires a trace captured with
// an elapsed-time suffix.
package iostats

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/plugin"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func init() {
	plugin.Register("iostats", func() plugin.StatPlugin { return New() })
}

// watched lists the fd-oriented syscalls the plugin accumulates latency
// for. Argument semantics stay opaque; only the elapsed suffix is used.
var watched = []string{
	"open", "openat", "close", "read", "pread64",
	"write", "pwrite64", "fsync", "fdatasync",
}

type latency struct {
	count int
	min   float64
	max   float64
	sum   float64
}

// Plugin accumulates latency per watched syscall name.
type Plugin struct {
	byName map[string]*latency
	unit   string
}

// New creates an unconfigured iostats plugin.
func New() *Plugin {
	return &Plugin{
		byName: make(map[string]*latency),
		unit:   "us",
	}
}

func (p *Plugin) Name() string {
	return "iostats"
}

// IsOperational requires the elapsed-time suffix: without it there is no
// latency to accumulate.
func (p *Plugin) IsOperational(profile traceformat.Profile) bool {
	return profile.HasElapsed
}

func (p *Plugin) OptionHelp() map[string]string {
	return map[string]string{
		"unit": "latency unit in the report: us or ms (default us)",
	}
}

func (p *Plugin) SetOptions(opts map[string]string) error {
	if err := plugin.RejectUnknownOptions(p, opts); err != nil {
		return err
	}
	if v, ok := opts["unit"]; ok {
		if v != "us" && v != "ms" {
			return fmt.Errorf("iostats: invalid unit %q, want us or ms", v)
		}
		p.unit = v
	}
	return nil
}

func (p *Plugin) SyscallHooks() map[string]hookreg.HookFunc {
	hooks := make(map[string]hookreg.HookFunc, len(watched))
	for _, name := range watched {
		hooks[name] = p.record
	}
	return hooks
}

func (p *Plugin) RawHooks() []hookreg.RawHookFunc {
	return nil
}

func (p *Plugin) record(ev *callparser.CallEvent) error {
	if !ev.HasElapsed {
		// Unfinished halves and anomalous lines carry no elapsed time.
		return nil
	}

	l := p.byName[ev.Name]
	if l == nil {
		l = &latency{min: ev.Elapsed, max: ev.Elapsed}
		p.byName[ev.Name] = l
	}
	l.count++
	l.sum += ev.Elapsed
	if ev.Elapsed < l.min {
		l.min = ev.Elapsed
	}
	if ev.Elapsed > l.max {
		l.max = ev.Elapsed
	}
	return nil
}

func (p *Plugin) scale() float64 {
	if p.unit == "ms" {
		return 1e3
	}
	return 1e6
}

// PrintOutput renders per-syscall latency, sorted by cumulative time.
func (p *Plugin) PrintOutput(w io.Writer) error {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return p.byName[names[i]].sum > p.byName[names[j]].sum
	})

	scale := p.scale()
	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "syscall\tcalls\tmin(%s)\tavg(%s)\tmax(%s)\ttotal(%s)\t\n", p.unit, p.unit, p.unit, p.unit)
	for _, name := range names {
		l := p.byName[name]
		avg := l.sum / float64(l.count)
		fmt.Fprintf(tw, "%s\t%d\t%.3f\t%.3f\t%.3f\t%.3f\t\n",
			name, l.count, l.min*scale, avg*scale, l.max*scale, l.sum*scale)
	}
	return tw.Flush()
}
