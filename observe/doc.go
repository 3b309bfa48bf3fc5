// Package observe provides the ambient instrumentation surface for the
// resilience core: a minimal structured JSON logger and OpenTelemetry
// metrics for breaker transitions, retries, and admission rejections.
//
// The core primitives never log on hot paths; runtime wrappers accept these
// interfaces and the host process decides where they go. Both the logger and
// the metrics have no-op implementations so nothing here is mandatory.
package observe
