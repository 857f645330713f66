// Package auth guards the dispatch API with HS256 bearer tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"osiri-dispatch/internal/handler/http/respond"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	ctxSubject ctxKey = "subject"
	ctxRole    ctxKey = "role"
)

// ErrEmptySecret is returned by NewAuthz when no signing secret is configured.
var ErrEmptySecret = errors.New("jwt secret is required")

// NewAuthz returns middleware that requires a valid bearer token on every
// non-public endpoint. The token must be HS256-signed with secret, unexpired,
// and carry "sub" and "role" claims; the role must permit the method and path.
func NewAuthz(secret []byte) (func(http.Handler) http.Handler, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			subject, role, err := validateJWT(r.Header.Get("Authorization"), secret)
			RecordAuthDuration(time.Since(start).Seconds())
			if err != nil {
				RecordAuthRequest("unknown", "unauthorized")
				respond.SafeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials: %w", err))
				return
			}
			if !checkRolePermission(role, r.Method, r.URL.Path) {
				RecordAuthRequest(role, "forbidden")
				RecordForbiddenAttempt(role, r.Method)
				respond.JSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
				return
			}
			RecordAuthRequest(role, "success")

			ctx := context.WithValue(r.Context(), ctxSubject, subject)
			ctx = context.WithValue(ctx, ctxRole, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// SubjectFromContext returns the authenticated "sub" claim, or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxSubject).(string)
	return s
}

// RoleFromContext returns the authenticated role, or "".
func RoleFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxRole).(string)
	return s
}

func validateJWT(header string, secret []byte) (string, string, error) {
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return "", "", errors.New("missing bearer token")
	}

	tok, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return "", "", errors.New("invalid token")
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.New("invalid claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", errors.New("invalid sub claim")
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return "", "", errors.New("invalid role claim")
	}
	return sub, role, nil
}
