// Package callparser decomposes raw trace lines into structured call events.
//
// Parsing is guided by a traceformat.Profile computed before the run: the
// parser never guesses per line which optional fields are present. Argument
// lists are split only on top-level commas, respecting nested parentheses,
// brackets, braces and quoted strings; the tokens themselves stay opaque.
//
// Reunification policy for signal-interrupted calls: a line ending in
// "<unfinished ...>" is held back in a one-slot-per-pid lookback buffer and
// is not surfaced as a named event. The matching "<... name resumed>" line
// is merged with the held half and surfaced as one logical event carrying
// the concatenated argument list and the resumed half's return value and
// elapsed time. A resumed line that is itself cut short by another signal
// folds back into the held half. A resumed line with no held counterpart is
// surfaced as-is.
package callparser
