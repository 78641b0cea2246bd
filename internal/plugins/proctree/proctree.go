// Package proctree reconstructs the process tree of a traced session from
// clone/fork/vfork return values and execve calls. It requires a trace
// captured with process id columns.
package proctree

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/plugin"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

func init() {
	plugin.Register("proctree", func() plugin.StatPlugin { return New() })
}

// process is one node of the reconstructed tree.
type process struct {
	pid       int
	parent    int
	hasParent bool
	command   string
	children  []int
	exited    bool
	exitCode  string
}

// table manages process node lifecycle, command-query separated like the
// metadata managers elsewhere in this codebase. The engine is single
// threaded, so no locking is needed.
type table struct {
	nodes map[int]*process
}

func newTable() *table {
	return &table{nodes: make(map[int]*process)}
}

// get retrieves a node (query). Returns nil when the pid is unknown.
func (t *table) get(pid int) *process {
	return t.nodes[pid]
}

// getOrCreate retrieves a node, creating it if needed (command).
func (t *table) getOrCreate(pid int) *process {
	if t.nodes[pid] == nil {
		t.nodes[pid] = &process{pid: pid}
	}
	return t.nodes[pid]
}

// Plugin accumulates the process tree.
type Plugin struct {
	procs *table
	roots []int
}

// New creates an unconfigured proctree plugin.
func New() *Plugin {
	return &Plugin{procs: newTable()}
}

func (p *Plugin) Name() string {
	return "proctree"
}

// IsOperational requires the process id column: without it there is no
// tree to reconstruct.
func (p *Plugin) IsOperational(profile traceformat.Profile) bool {
	return profile.HasPid
}

func (p *Plugin) OptionHelp() map[string]string {
	return map[string]string{
		"roots": "comma-separated pids to render as tree roots (default: processes with no observed parent)",
	}
}

func (p *Plugin) SetOptions(opts map[string]string) error {
	if err := plugin.RejectUnknownOptions(p, opts); err != nil {
		return err
	}
	if v, ok := opts["roots"]; ok {
		for _, tok := range strings.Split(v, ",") {
			pid, err := strconv.Atoi(strings.TrimSpace(tok))
			if err != nil || pid <= 0 {
				return fmt.Errorf("proctree: invalid root pid %q", tok)
			}
			p.roots = append(p.roots, pid)
		}
	}
	return nil
}

func (p *Plugin) SyscallHooks() map[string]hookreg.HookFunc {
	return map[string]hookreg.HookFunc{
		"clone":      p.recordSpawn,
		"clone3":     p.recordSpawn,
		"fork":       p.recordSpawn,
		"vfork":      p.recordSpawn,
		"execve":     p.recordExec,
		"execveat":   p.recordExec,
		"exit":       p.recordExit,
		"exit_group": p.recordExit,
	}
}

func (p *Plugin) RawHooks() []hookreg.RawHookFunc {
	return nil
}

// recordSpawn links a child pid (the return value of a successful
// clone/fork) to the calling process.
func (p *Plugin) recordSpawn(ev *callparser.CallEvent) error {
	if !ev.HasPid || ev.Failed() {
		return nil
	}
	child, err := strconv.Atoi(ev.RetVal)
	if err != nil || child <= 0 {
		return nil
	}

	parent := p.procs.getOrCreate(ev.Pid)
	node := p.procs.getOrCreate(child)
	if !node.hasParent {
		node.parent = ev.Pid
		node.hasParent = true
		parent.children = append(parent.children, child)
	}
	return nil
}

// recordExec attaches the executed program to the calling process. The
// first argument token is the quoted program path.
func (p *Plugin) recordExec(ev *callparser.CallEvent) error {
	if !ev.HasPid || ev.Failed() || len(ev.Args) == 0 {
		return nil
	}
	node := p.procs.getOrCreate(ev.Pid)
	node.command = strings.Trim(ev.Args[0], `"`)
	return nil
}

func (p *Plugin) recordExit(ev *callparser.CallEvent) error {
	if !ev.HasPid {
		return nil
	}
	node := p.procs.getOrCreate(ev.Pid)
	node.exited = true
	if len(ev.Args) > 0 {
		node.exitCode = ev.Args[0]
	}
	return nil
}

// rootPids returns the configured roots, or every process with no
// observed parent, sorted for deterministic output.
func (p *Plugin) rootPids() []int {
	if len(p.roots) > 0 {
		return p.roots
	}
	var roots []int
	for pid, node := range p.procs.nodes {
		if !node.hasParent {
			roots = append(roots, pid)
		}
	}
	sort.Ints(roots)
	return roots
}

// PrintOutput renders the tree with two-space indentation per depth.
func (p *Plugin) PrintOutput(w io.Writer) error {
	if len(p.procs.nodes) == 0 {
		_, err := fmt.Fprintln(w, "no processes observed")
		return err
	}
	for _, pid := range p.rootPids() {
		if node := p.procs.get(pid); node != nil {
			p.printNode(w, node, 0)
		}
	}
	return nil
}

func (p *Plugin) printNode(w io.Writer, node *process, depth int) {
	indent := strings.Repeat("  ", depth)
	label := node.command
	if label == "" {
		label = "?"
	}
	status := ""
	if node.exited {
		status = " [exited " + node.exitCode + "]"
	}
	fmt.Fprintf(w, "%s%d %s%s\n", indent, node.pid, label, status)

	children := append([]int(nil), node.children...)
	sort.Ints(children)
	for _, child := range children {
		if c := p.procs.get(child); c != nil {
			p.printNode(w, c, depth+1)
		}
	}
}
