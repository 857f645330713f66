// Package tracing wires OpenTelemetry into the dispatch engine.
//
// Each batch run and each channel delivery gets a span from GetTracer; the
// HTTP API is wrapped with Middleware. Binaries call InstallProvider once at
// start-up and defer the returned shutdown.
package tracing
