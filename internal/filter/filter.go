// Package filter evaluates match expressions against call events.
//
// Expressions use the expr language and are compiled once at setup time,
// before the stream is touched. The evaluation environment exposes the
// event fields as plain values: name, args, ret, err, pid, elapsed.
package filter

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/mrzor/strace-analyzer/internal/callparser"
)

// Filter is a pre-compiled boolean match expression.
type Filter struct {
	source  string
	program *vm.Program
}

// exprEnv defines the environment for expression type checking.
func exprEnv() map[string]interface{} {
	return map[string]interface{}{
		"name":    "",
		"args":    []string{},
		"ret":     "",
		"err":     "",
		"pid":     0,
		"elapsed": 0.0,
	}
}

// Compile compiles a match expression. The expression must evaluate to a
// boolean; anything else is rejected here rather than mid-run.
func Compile(source string) (*Filter, error) {
	program, err := expr.Compile(source, expr.Env(exprEnv()), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile match expression %q: %w", source, err)
	}
	return &Filter{source: source, program: program}, nil
}

// Source returns the original expression text.
func (f *Filter) Source() string {
	return f.source
}

// Match evaluates the expression against one event.
func (f *Filter) Match(ev *callparser.CallEvent) (bool, error) {
	env := map[string]interface{}{
		"name":    ev.Name,
		"args":    ev.Args,
		"ret":     ev.RetVal,
		"err":     ev.ErrName,
		"pid":     ev.Pid,
		"elapsed": ev.Elapsed,
	}

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("match expression %q: %w", f.source, err)
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("match expression %q returned %T, want bool", f.source, out)
	}
	return matched, nil
}
