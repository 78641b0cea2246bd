// Package traceformat infers the shape of strace-style trace lines.
//
// Trace files differ in which optional fields they carry depending on the
// flags the trace was captured with: a leading process id (-f), a timestamp
// in one of three granularities (-t / -tt / -ttt), and a trailing elapsed
// time suffix (-T). A Profile records which of these fields are present;
// it is computed once per run, either by Detect over a bounded sample of
// leading lines or from an explicit operator override, and stays fixed for
// every line of the stream.
package traceformat
