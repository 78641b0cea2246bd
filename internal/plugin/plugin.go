// Package plugin defines the capability every stat plugin implements and
// the name-keyed registry plugin instances are resolved from at startup.
//
// Plugins accumulate all of their state privately during hook callbacks;
// the engine guarantees no two callbacks ever execute concurrently, so
// plugin state needs no locking.
package plugin

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

// StatPlugin is an analysis module that consumes dispatched call events
// and renders a report after the run completes.
type StatPlugin interface {
	// Name identifies the plugin in diagnostics and option strings.
	Name() string

	// IsOperational reports whether the plugin can produce meaningful
	// output under the given format profile. A non-operational plugin
	// selected by the operator is a fatal configuration error.
	IsOperational(profile traceformat.Profile) bool

	// OptionHelp maps recognized option names to descriptions.
	OptionHelp() map[string]string

	// SetOptions applies the parsed option values. Unknown keys and
	// invalid values are rejected with an error; configuration errors
	// are fatal at setup time, before any parsing begins.
	SetOptions(opts map[string]string) error

	// SyscallHooks returns the name-keyed callbacks the plugin wants
	// registered. The key "*" registers a wildcard hook fired for every
	// named event.
	SyscallHooks() map[string]hookreg.HookFunc

	// RawHooks returns callbacks to invoke for every line regardless of
	// syscall-name recognition. Most plugins return nil.
	RawHooks() []hookreg.RawHookFunc

	// PrintOutput renders the accumulated report. Invoked only after
	// the run completes.
	PrintOutput(w io.Writer) error
}

// Lifecycle is an optional interface for plugins that hold external
// resources, such as an exporter connection. Start runs after options are
// applied and before the stream is touched, so a failure never leaves a
// partial run; Close runs after PrintOutput on every exit path.
type Lifecycle interface {
	Start() error
	Close(ctx context.Context) error
}

// Factory constructs a fresh plugin instance.
type Factory func() StatPlugin

// The registry is populated from plugin package init functions and only
// read afterwards, so it needs no locking.
var factories = make(map[string]Factory)

// Register adds a plugin factory under its name. Called from init;
// duplicate names are a programming error.
func Register(name string, factory Factory) {
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("plugin %q registered twice", name))
	}
	factories[name] = factory
}

// Lookup resolves a plugin factory by name.
func Lookup(name string) (Factory, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown plugin %q (available: %v)", name, Names())
	}
	return factory, nil
}

// Names returns the registered plugin names, sorted.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterHooks wires a configured plugin's callbacks into the registry.
func RegisterHooks(registry *hookreg.Registry, p StatPlugin) {
	hooks := p.SyscallHooks()
	names := make([]string, 0, len(hooks))
	for name := range hooks {
		names = append(names, name)
	}
	// Map iteration order is random; keep registration deterministic.
	sort.Strings(names)
	for _, name := range names {
		if name == "*" {
			registry.RegisterWildcardHook(p.Name(), hooks[name])
			continue
		}
		registry.RegisterSyscallHook(p.Name(), name, hooks[name])
	}
	for _, fn := range p.RawHooks() {
		registry.RegisterRawHook(p.Name(), fn)
	}
}

// RejectUnknownOptions is a helper for SetOptions implementations: it
// fails on any option key not present in the plugin's help map.
func RejectUnknownOptions(p StatPlugin, opts map[string]string) error {
	help := p.OptionHelp()
	for key := range opts {
		if _, ok := help[key]; !ok {
			return fmt.Errorf("plugin %q: unknown option %q", p.Name(), key)
		}
	}
	return nil
}
