// Package progress carries run lifecycle and per-row fetch events from the
// run workers to pluggable sinks. Emit never blocks; events are batched on a
// background goroutine.
package progress
