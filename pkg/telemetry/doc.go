// Package telemetry provides logging, metrics, and tracing for the Loom dev
// loop. Logging is structured via zerolog, metrics are Prometheus collectors
// exposed through the dev registry, and tracing is OpenTelemetry with stdout
// or OTLP export for inspecting a full discover→resolve→package→serve cycle.
package telemetry
