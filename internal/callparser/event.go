package callparser

// CallEvent is the structured decomposition of one trace line. Events are
// transient: they are constructed per line, handed to hooks synchronously,
// and discarded. Hooks must copy anything they need into their own state.
type CallEvent struct {
	// Pid is the process id column. Valid only when HasPid is set.
	Pid    int
	HasPid bool

	// Timestamp is the line timestamp in seconds (since midnight for
	// clock-style stamps, since the epoch for epoch-style stamps), with
	// fractional precision per the profile granularity. Valid only when
	// HasTimestamp is set.
	Timestamp    float64
	HasTimestamp bool

	// Name is the syscall name. Non-empty for every event surfaced to
	// name-keyed hooks.
	Name string

	// Args are the unparsed argument tokens, split on top-level commas.
	Args []string

	// RetVal is the raw return value token: numeric, symbolic ("?") or a
	// hexadecimal pointer. Kept as a string, never coerced. Empty when
	// the line carried no return value.
	RetVal string

	// ErrName and ErrMessage are set when the call returned an error,
	// e.g. "EAGAIN" and "Resource temporarily unavailable".
	ErrName    string
	ErrMessage string

	// Elapsed is the trailing <seconds> suffix. Valid only when
	// HasElapsed is set.
	Elapsed    float64
	HasElapsed bool

	// Unfinished and Resumed mark continuation halves of a call that was
	// interrupted by a signal. A merged event has Resumed set.
	Unfinished bool
	Resumed    bool

	// Raw is the original line, retained for raw-hook consumers and
	// diagnostics.
	Raw string
}

// Failed reports whether the call returned an error.
func (e *CallEvent) Failed() bool {
	return e.ErrName != ""
}
