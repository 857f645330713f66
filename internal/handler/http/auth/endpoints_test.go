package auth

import "testing"

func TestIsPublicEndpoint(t *testing.T) {
	tests := map[string]bool{
		"/health":                 true,
		"/health/":                true,
		"/health?format=json":     true,
		"/ready":                  true,
		"/metrics":                true,
		"/health/detail":          false,
		"/healthcheck":            false,
		"/notifications/dispatch": false,
		"/":                       false,
	}

	for path, want := range tests {
		if got := IsPublicEndpoint(path); got != want {
			t.Errorf("IsPublicEndpoint(%q) = %v, want %v", path, got, want)
		}
	}
}
