// Package hookreg routes parsed call events to registered plugin callbacks.
//
// Registration is append-only and happens before the run starts; dispatch
// never mutates the registry, so lookup stays O(1) per event with no
// locking. Events are passed by pointer for efficiency but must be treated
// as read-only: a mutation would be visible to later callbacks in the
// chain, and no callback may rely on that.
package hookreg

import (
	"fmt"

	"github.com/mrzor/strace-analyzer/internal/callparser"
)

// HookFunc is invoked for every matched event of a registered syscall name.
type HookFunc func(ev *callparser.CallEvent) error

// RawHookFunc is invoked once per input line with the raw line text,
// regardless of whether the line matched a syscall name.
type RawHookFunc func(line string) error

// CallbackError identifies the plugin and syscall whose hook failed.
// Hook failure is fatal: a partially-failed plugin produces unreliable
// output, so the run aborts rather than silently skipping.
type CallbackError struct {
	Plugin  string
	Syscall string
	Err     error
}

func (e *CallbackError) Error() string {
	if e.Syscall == "" {
		return fmt.Sprintf("raw hook of plugin %q failed: %v", e.Plugin, e.Err)
	}
	return fmt.Sprintf("hook of plugin %q for syscall %q failed: %v", e.Plugin, e.Syscall, e.Err)
}

func (e *CallbackError) Unwrap() error {
	return e.Err
}

type hook struct {
	owner string
	fn    HookFunc
}

type rawHook struct {
	owner string
	fn    RawHookFunc
}

// Registry maps syscall names to ordered callback lists, plus a list of
// wildcard hooks fired for every named event and a separate list of raw
// hooks invoked for every line.
type Registry struct {
	hooks     map[string][]hook
	wildcards []hook
	rawHooks  []rawHook
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		hooks: make(map[string][]hook),
	}
}

// RegisterSyscallHook appends a callback for the given syscall name on
// behalf of the named plugin. Duplicate registrations are kept and all
// fire, in registration order.
func (r *Registry) RegisterSyscallHook(owner, name string, fn HookFunc) {
	r.hooks[name] = append(r.hooks[name], hook{owner: owner, fn: fn})
}

// RegisterWildcardHook appends a callback fired for every named event,
// after the event's name-keyed hooks.
func (r *Registry) RegisterWildcardHook(owner string, fn HookFunc) {
	r.wildcards = append(r.wildcards, hook{owner: owner, fn: fn})
}

// RegisterRawHook appends a raw callback on behalf of the named plugin.
func (r *Registry) RegisterRawHook(owner string, fn RawHookFunc) {
	r.rawHooks = append(r.rawHooks, rawHook{owner: owner, fn: fn})
}

// HookCount returns the number of callbacks registered for a syscall name.
func (r *Registry) HookCount(name string) int {
	return len(r.hooks[name])
}

// RawHookCount returns the number of registered raw callbacks.
func (r *Registry) RawHookCount() int {
	return len(r.rawHooks)
}

// Dispatch invokes every callback registered under ev.Name, in
// registration order, followed by the wildcard hooks. The first callback
// error aborts dispatch and is returned as a CallbackError.
func (r *Registry) Dispatch(ev *callparser.CallEvent) error {
	for _, h := range r.hooks[ev.Name] {
		if err := h.fn(ev); err != nil {
			return &CallbackError{Plugin: h.owner, Syscall: ev.Name, Err: err}
		}
	}
	for _, h := range r.wildcards {
		if err := h.fn(ev); err != nil {
			return &CallbackError{Plugin: h.owner, Syscall: ev.Name, Err: err}
		}
	}
	return nil
}

// DispatchRaw invokes every raw callback with the raw line text.
func (r *Registry) DispatchRaw(line string) error {
	for _, h := range r.rawHooks {
		if err := h.fn(line); err != nil {
			return &CallbackError{Plugin: h.owner, Err: err}
		}
	}
	return nil
}
