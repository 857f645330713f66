// Package metrics holds the process-wide HTTP and database metrics.
//
// Metrics register with the Prometheus default registry and are served by
// promhttp on /metrics in both binaries:
//
//	start := time.Now()
//	next.ServeHTTP(rw, r)
//	metrics.RecordHTTPRequest(r.Method, route, "200", time.Since(start), reqSize, respSize)
package metrics
