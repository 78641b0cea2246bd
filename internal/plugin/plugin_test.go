package plugin

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/strace-analyzer/internal/callparser"
	"github.com/mrzor/strace-analyzer/internal/hookreg"
	"github.com/mrzor/strace-analyzer/internal/traceformat"
)

// stub is a minimal plugin for registry and wiring tests.
type stub struct {
	name  string
	hooks map[string]hookreg.HookFunc
	raw   []hookreg.RawHookFunc
}

func (s *stub) Name() string                           { return s.name }
func (s *stub) IsOperational(traceformat.Profile) bool { return true }
func (s *stub) OptionHelp() map[string]string {
	return map[string]string{"known": "a recognized option"}
}
func (s *stub) SetOptions(opts map[string]string) error   { return RejectUnknownOptions(s, opts) }
func (s *stub) SyscallHooks() map[string]hookreg.HookFunc { return s.hooks }
func (s *stub) RawHooks() []hookreg.RawHookFunc           { return s.raw }
func (s *stub) PrintOutput(io.Writer) error               { return nil }

func TestRegisterAndLookup(t *testing.T) {
	Register("stub-lookup", func() StatPlugin { return &stub{name: "stub-lookup"} })

	factory, err := Lookup("stub-lookup")
	require.NoError(t, err)
	assert.Equal(t, "stub-lookup", factory().Name())
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("no-such-plugin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown plugin")
	assert.Contains(t, err.Error(), "available")
}

func TestRegisterDuplicatePanics(t *testing.T) {
	Register("stub-dup", func() StatPlugin { return &stub{name: "stub-dup"} })
	assert.Panics(t, func() {
		Register("stub-dup", func() StatPlugin { return &stub{name: "stub-dup"} })
	})
}

func TestNamesSorted(t *testing.T) {
	Register("stub-zz", func() StatPlugin { return &stub{name: "stub-zz"} })
	Register("stub-aa", func() StatPlugin { return &stub{name: "stub-aa"} })

	names := Names()
	assert.IsType(t, []string{}, names)
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}

func TestRegisterHooks(t *testing.T) {
	var named, wildcard, raw int
	p := &stub{
		name: "wiring",
		hooks: map[string]hookreg.HookFunc{
			"read": func(*callparser.CallEvent) error { named++; return nil },
			"*":    func(*callparser.CallEvent) error { wildcard++; return nil },
		},
		raw: []hookreg.RawHookFunc{
			func(string) error { raw++; return nil },
		},
	}

	registry := hookreg.New()
	RegisterHooks(registry, p)

	assert.Equal(t, 1, registry.HookCount("read"))
	assert.Equal(t, 1, registry.RawHookCount())

	require.NoError(t, registry.Dispatch(&callparser.CallEvent{Name: "read"}))
	require.NoError(t, registry.Dispatch(&callparser.CallEvent{Name: "close"}))
	require.NoError(t, registry.DispatchRaw("line"))

	assert.Equal(t, 1, named, "named hook fires only for its syscall")
	assert.Equal(t, 2, wildcard, "wildcard hook fires for every named event")
	assert.Equal(t, 1, raw)
}

func TestRejectUnknownOptions(t *testing.T) {
	p := &stub{name: "opts"}

	require.NoError(t, p.SetOptions(nil))
	require.NoError(t, p.SetOptions(map[string]string{"known": "x"}))

	err := p.SetOptions(map[string]string{"bogus": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown option "bogus"`)
}
