package auth

import (
	"slices"
	"strings"
)

// Roles carried in the "role" claim.
const (
	// RoleAdmin may call every endpoint.
	RoleAdmin = "admin"
	// RoleDispatcher is the service role used by schedulers and the
	// translation pipeline to trigger batches and single sends.
	RoleDispatcher = "dispatcher"
	// RoleViewer may only read processor stats.
	RoleViewer = "viewer"
)

// Permission is the set of methods and paths a role may use. A path ending
// in "/*" matches the prefix and everything below it.
type Permission struct {
	AllowedMethods []string
	AllowedPaths   []string
}

// RolePermissions maps each role to its permission.
var RolePermissions = map[string]Permission{
	RoleAdmin: {
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "PATCH"},
		AllowedPaths:   []string{"/*"},
	},
	RoleDispatcher: {
		AllowedMethods: []string{"GET", "POST"},
		AllowedPaths:   []string{"/notifications/*"},
	},
	RoleViewer: {
		AllowedMethods: []string{"GET"},
		AllowedPaths:   []string{"/notifications/stats"},
	},
}

func checkRolePermission(role, method, path string) bool {
	perm, ok := RolePermissions[role]
	if !ok {
		return false
	}
	if !slices.Contains(perm.AllowedMethods, method) {
		return false
	}
	return matchesPathPattern(path, perm.AllowedPaths)
}

func matchesPathPattern(path string, patterns []string) bool {
	for _, pattern := range patterns {
		if pattern == "/*" {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if path == pattern {
			return true
		}
	}
	return false
}
