// Package telemetry provides the observability stack for the CLI:
// zerolog structured logging, OpenTelemetry tracing with per-phase
// spans, Prometheus metrics for lifecycle operations, and an in-process
// lifecycle event publisher. Everything except logging defaults to
// off; a CLI run opts in through Config.
package telemetry
