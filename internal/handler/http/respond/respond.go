// Package respond writes JSON responses and turns errors into bodies that are
// safe to show to API callers.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// clientSafe lists message fragments that identify caller mistakes. Only
// errors containing one of them are echoed back verbatim.
var clientSafe = []string{
	"required",
	"invalid",
	"not found",
	"already delivered",
	"already in progress",
	"inactive",
	"must be",
	"shutting down",
}

// JSON writes v as the response body with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("failed to encode JSON response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Error writes {"error": err.Error()} without filtering.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, map[string]string{"error": err.Error()})
}

// SafeError writes err's message only when it is a recognisable client error
// and code is below 500. Anything else is logged with secrets masked and
// replaced by "internal server error".
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	msg := err.Error()
	if code < http.StatusInternalServerError && isClientSafe(msg) {
		JSON(w, code, map[string]string{"error": msg})
		return
	}

	slog.Default().Error("internal server error",
		slog.String("status", http.StatusText(code)),
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, map[string]string{"error": "internal server error"})
}

func isClientSafe(msg string) bool {
	lower := strings.ToLower(msg)
	for _, fragment := range clientSafe {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
