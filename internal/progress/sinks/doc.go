// Package sinks implements progress consumers for structured logging and
// Prometheus.
package sinks
