package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	enabled := Config{Enabled: true, Token: "s3cret"}

	tests := []struct {
		name       string
		cfg        Config
		path       string
		header     string
		wantStatus int
		wantReason string
	}{
		{"disabled", Config{}, "/api/v1/chips/conus", "", http.StatusOK, ""},
		{"probe public", enabled, "/healthz", "", http.StatusOK, ""},
		{"metrics public", enabled, "/metrics", "", http.StatusOK, ""},
		{"fixedgrid public", enabled, "/api/v1/fixedgrid/geodetic", "", http.StatusOK, ""},
		{"chip without token", enabled, "/api/v1/chips/conus", "", http.StatusUnauthorized, ReasonMissing},
		{"chip with token", enabled, "/api/v1/chips/conus", "Bearer s3cret", http.StatusOK, ""},
		{"scheme case-insensitive", enabled, "/api/v1/chips/conus", "bearer s3cret", http.StatusOK, ""},
		{"wrong token", enabled, "/api/v1/chips/conus", "Bearer nope", http.StatusUnauthorized, ReasonInvalid},
		{"wrong scheme", enabled, "/api/v1/scenes", "Basic s3cret", http.StatusUnauthorized, ReasonMalformed},
		{"bare token", enabled, "/api/v1/scenes", "s3cret", http.StatusUnauthorized, ReasonMalformed},
		{"empty configured token", Config{Enabled: true}, "/api/v1/scenes", "Bearer x", http.StatusUnauthorized, ReasonInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusUnauthorized {
				return
			}
			if w.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
			var body map[string]string
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body["reason"] != tt.wantReason {
				t.Errorf("reason = %q, want %q", body["reason"], tt.wantReason)
			}
		})
	}
}

func TestPublic(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/healthz", true},
		{"/api/v1/satellites", true},
		{"/api/v1/fixedgrid/scan-angles", true},
		{"/api/v1/fixedgrid", false},
		{"/api/v1/scenes", false},
		{"/api/v1/cache/stats", false},
		{"/api/v1/chips/conus", false},
	}
	for _, tt := range tests {
		if got := Public(tt.path); got != tt.want {
			t.Errorf("Public(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
