package hookreg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/strace-analyzer/internal/callparser"
)

func TestRegistry_DispatchOrder(t *testing.T) {
	r := New()
	var order []string

	r.RegisterSyscallHook("first", "open", func(ev *callparser.CallEvent) error {
		order = append(order, "h1")
		return nil
	})
	r.RegisterSyscallHook("second", "open", func(ev *callparser.CallEvent) error {
		order = append(order, "h2")
		return nil
	})

	err := r.Dispatch(&callparser.CallEvent{Name: "open"})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2"}, order, "hooks must fire in registration order")
}

func TestRegistry_DispatchUnregisteredName(t *testing.T) {
	r := New()
	fired := false
	r.RegisterSyscallHook("p", "open", func(ev *callparser.CallEvent) error {
		fired = true
		return nil
	})

	err := r.Dispatch(&callparser.CallEvent{Name: "close"})
	require.NoError(t, err)
	assert.False(t, fired)
}

func TestRegistry_CallbackErrorIdentifiesPlugin(t *testing.T) {
	r := New()
	boom := errors.New("accumulator overflow")

	r.RegisterSyscallHook("futexstats", "futex", func(ev *callparser.CallEvent) error {
		return boom
	})
	reached := false
	r.RegisterSyscallHook("other", "futex", func(ev *callparser.CallEvent) error {
		reached = true
		return nil
	})

	err := r.Dispatch(&callparser.CallEvent{Name: "futex"})
	require.Error(t, err)

	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "futexstats", cbErr.Plugin)
	assert.Equal(t, "futex", cbErr.Syscall)
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached, "dispatch must stop at the failing hook")
}

func TestRegistry_DispatchRaw(t *testing.T) {
	r := New()
	var seen []string
	r.RegisterRawHook("logger", func(line string) error {
		seen = append(seen, line)
		return nil
	})

	require.NoError(t, r.DispatchRaw("garbage text no parens"))
	require.NoError(t, r.DispatchRaw(`open("/a") = 3`))
	assert.Equal(t, []string{"garbage text no parens", `open("/a") = 3`}, seen)
}

func TestRegistry_RawCallbackError(t *testing.T) {
	r := New()
	r.RegisterRawHook("sink", func(line string) error {
		return errors.New("disk full")
	})

	err := r.DispatchRaw("anything")
	var cbErr *CallbackError
	require.ErrorAs(t, err, &cbErr)
	assert.Equal(t, "sink", cbErr.Plugin)
	assert.Empty(t, cbErr.Syscall)
}

func TestRegistry_WildcardHooksFireForEveryName(t *testing.T) {
	r := New()
	var order []string
	r.RegisterWildcardHook("counter", func(ev *callparser.CallEvent) error {
		order = append(order, "any:"+ev.Name)
		return nil
	})
	r.RegisterSyscallHook("p", "open", func(ev *callparser.CallEvent) error {
		order = append(order, "open")
		return nil
	})

	require.NoError(t, r.Dispatch(&callparser.CallEvent{Name: "open"}))
	require.NoError(t, r.Dispatch(&callparser.CallEvent{Name: "close"}))
	assert.Equal(t, []string{"open", "any:open", "any:close"}, order,
		"named hooks fire before wildcard hooks")
}

func TestRegistry_Counts(t *testing.T) {
	r := New()
	assert.Equal(t, 0, r.HookCount("open"))
	assert.Equal(t, 0, r.RawHookCount())

	r.RegisterSyscallHook("a", "open", func(ev *callparser.CallEvent) error { return nil })
	r.RegisterSyscallHook("b", "open", func(ev *callparser.CallEvent) error { return nil })
	r.RegisterRawHook("c", func(line string) error { return nil })

	assert.Equal(t, 2, r.HookCount("open"))
	assert.Equal(t, 1, r.RawHookCount())
}
