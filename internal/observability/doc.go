// Package observability groups the logging, metrics, SLO and tracing helpers
// shared by cmd/api and cmd/worker.
//
// Subpackages:
//   - logging: slog construction and context propagation of run and request IDs
//   - metrics: HTTP and database pool metrics on the default Prometheus registry
//   - slo: delivery service level gauges updated after every batch run
//   - tracing: OpenTelemetry provider setup and HTTP middleware
//
// Dispatch-specific counters (deliveries, retries, quota hits) live next to
// the code that increments them in internal/usecase/notify.
package observability
