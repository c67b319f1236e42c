// Package telemetry provides structured logging, Prometheus metrics and
// OpenTelemetry tracing for OpenHutch components. All handles are created at
// startup and injected; nothing in this package is ambient global state.
package telemetry
