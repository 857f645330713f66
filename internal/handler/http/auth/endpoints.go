package auth

import "strings"

// PublicEndpoints are served without a bearer token: probes and the
// Prometheus scrape target.
var PublicEndpoints = []string{
	"/health",
	"/ready",
	"/metrics",
}

// IsPublicEndpoint reports whether path is one of PublicEndpoints. A trailing
// slash or a query string is tolerated; sub-paths are not.
//
//	IsPublicEndpoint("/health")        // true
//	IsPublicEndpoint("/health?full=1") // true
//	IsPublicEndpoint("/health/db")     // false
//	IsPublicEndpoint("/notifications") // false
func IsPublicEndpoint(path string) bool {
	for _, endpoint := range PublicEndpoints {
		if path == endpoint || path == endpoint+"/" || strings.HasPrefix(path, endpoint+"?") {
			return true
		}
	}
	return false
}
