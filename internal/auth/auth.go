// Package auth guards scene endpoints with a static bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/star/goeschip/internal/metrics"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// Rejection reasons, also used as metric labels.
const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
)

// Public reports whether path is served without a token. Probes, metrics
// and the satellite list are public, as is everything under fixedgrid since
// it reads no scene data.
func Public(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics", "/api/v1/satellites":
		return true
	}
	return strings.HasPrefix(path, "/api/v1/fixedgrid/")
}

// check validates the Authorization header against token and returns a
// rejection reason, or "" when the request is allowed.
func check(header, token string) string {
	if header == "" {
		return ReasonMissing
	}
	scheme, cred, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || cred == "" {
		return ReasonMalformed
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(cred), []byte(token)) != 1 {
		return ReasonInvalid
	}
	return ""
}

// Middleware returns an HTTP middleware that enforces bearer-token auth on
// non-public paths when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || Public(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			if reason := check(r.Header.Get("Authorization"), cfg.Token); reason != "" {
				metrics.RecordAuthFailure(reason)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="goeschip"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized", "reason": reason})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
