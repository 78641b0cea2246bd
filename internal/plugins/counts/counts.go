// Package counts implements the per-syscall call summary plugin, in the
// spirit of strace -c: calls, errors and cumulative elapsed time per
// syscall name.
package counts

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/plugin"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func init() {
	plugin.Register("counts", func() plugin.StatPlugin { return New() })
}

type row struct {
	name    string
	calls   int
	errors  int
	seconds float64
}

// Plugin accumulates one row per syscall name.
type Plugin struct {
	rows       map[string]*row
	sawElapsed bool

	top     int
	sortKey string
}

// New creates an unconfigured counts plugin.
func New() *Plugin {
	return &Plugin{
		rows:    make(map[string]*row),
		sortKey: "calls",
	}
}

func (p *Plugin) Name() string {
	return "counts"
}

// IsOperational always reports true: call counting needs nothing beyond a
// syscall name. The time column stays blank when the trace has no elapsed
// suffix.
func (p *Plugin) IsOperational(traceformat.Profile) bool {
	return true
}

func (p *Plugin) OptionHelp() map[string]string {
	return map[string]string{
		"top":  "limit output to the N busiest syscalls",
		"sort": "sort column: calls, errors, time or name (default calls)",
	}
}

func (p *Plugin) SetOptions(opts map[string]string) error {
	if err := plugin.RejectUnknownOptions(p, opts); err != nil {
		return err
	}
	if v, ok := opts["top"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("counts: top must be a positive integer, got %q", v)
		}
		p.top = n
	}
	if v, ok := opts["sort"]; ok {
		switch v {
		case "calls", "errors", "time", "name":
			p.sortKey = v
		default:
			return fmt.Errorf("counts: invalid sort column %q", v)
		}
	}
	return nil
}

func (p *Plugin) SyscallHooks() map[string]hookreg.HookFunc {
	return map[string]hookreg.HookFunc{"*": p.record}
}

func (p *Plugin) RawHooks() []hookreg.RawHookFunc {
	return nil
}

func (p *Plugin) record(ev *callparser.CallEvent) error {
	r := p.rows[ev.Name]
	if r == nil {
		r = &row{name: ev.Name}
		p.rows[ev.Name] = r
	}
	r.calls++
	if ev.Failed() {
		r.errors++
	}
	if ev.HasElapsed {
		r.seconds += ev.Elapsed
		p.sawElapsed = true
	}
	return nil
}

// PrintOutput renders the summary table, sorted per the configured column.
func (p *Plugin) PrintOutput(w io.Writer) error {
	rows := make([]*row, 0, len(p.rows))
	for _, r := range p.rows {
		rows = append(rows, r)
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch p.sortKey {
		case "errors":
			if a.errors != b.errors {
				return a.errors > b.errors
			}
		case "time":
			if a.seconds != b.seconds {
				return a.seconds > b.seconds
			}
		case "name":
			return a.name < b.name
		default:
			if a.calls != b.calls {
				return a.calls > b.calls
			}
		}
		return a.name < b.name
	})

	if p.top > 0 && len(rows) > p.top {
		rows = rows[:p.top]
	}

	var totalCalls, totalErrors int
	var totalSeconds float64
	for _, r := range p.rows {
		totalCalls += r.calls
		totalErrors += r.errors
		totalSeconds += r.seconds
	}

	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', tabwriter.AlignRight)
	if p.sawElapsed {
		fmt.Fprintln(tw, "% time\tseconds\tcalls\terrors\tsyscall\t")
		for _, r := range rows {
			percent := 0.0
			if totalSeconds > 0 {
				percent = 100 * r.seconds / totalSeconds
			}
			fmt.Fprintf(tw, "%.2f\t%.6f\t%d\t%d\t%s\t\n", percent, r.seconds, r.calls, r.errors, r.name)
		}
		fmt.Fprintf(tw, "100.00\t%.6f\t%d\t%d\ttotal\t\n", totalSeconds, totalCalls, totalErrors)
	} else {
		fmt.Fprintln(tw, "calls\terrors\tsyscall\t")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%d\t%s\t\n", r.calls, r.errors, r.name)
		}
		fmt.Fprintf(tw, "%d\t%d\ttotal\t\n", totalCalls, totalErrors)
	}
	return tw.Flush()
}
