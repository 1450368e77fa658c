package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/api/v1/satellites", "/api/v1/satellites"},
		{"/api/v1/fixedgrid/scan-angles", "/api/v1/fixedgrid/scan-angles"},
		{"/api/v1/fixedgrid/geodetic", "/api/v1/fixedgrid/geodetic"},
		{"/api/v1/scenes", "/api/v1/scenes"},
		{"/api/v1/cache/stats", "/api/v1/cache/stats"},

		// Scene names collapse to one label.
		{"/api/v1/chips/conus-2020001", "/api/v1/chips/{scene}"},
		{"/api/v1/chips/full_disk", "/api/v1/chips/{scene}"},
		{"/api/v1/chips/archive/2020/001", "/api/v1/chips/{scene}"},

		// Unknown/bot paths collapse to "other".
		{"/api/v1/chips/", "other"},
		{"/", "other"},
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 scene names produce exactly one
// distinct path label.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		label := normalizeRoute("/api/v1/chips/scene-" + string(rune('0'+i%10)) + string(rune('0'+i/10)))
		seen[label] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareCountsNormalizedRoute(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/chips/{scene}", "GET", "404"))
	for _, name := range []string{"a", "b", "c"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/chips/"+name, nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("/api/v1/chips/{scene}", "GET", "404"))

	if after-before != 3 {
		t.Errorf("counter grew by %v, want 3", after-before)
	}
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(chipsExtractedTotal.WithLabelValues("true"))
	RecordChip(true, 20*time.Millisecond)
	if got := testutil.ToFloat64(chipsExtractedTotal.WithLabelValues("true")) - before; got != 1 {
		t.Errorf("chips counter grew by %v, want 1", got)
	}

	beforeFail := testutil.ToFloat64(sceneFailuresTotal.WithLabelValues("load"))
	RecordSceneFailure("load")
	RecordSceneFailure("load")
	if got := testutil.ToFloat64(sceneFailuresTotal.WithLabelValues("load")) - beforeFail; got != 2 {
		t.Errorf("failure counter grew by %v, want 2", got)
	}

	SetBatchStats(7, 2, 3*time.Second)
	if got := testutil.ToFloat64(batchScenes.WithLabelValues("success")); got != 7 {
		t.Errorf("success gauge = %v, want 7", got)
	}
	if got := testutil.ToFloat64(batchDurationSeconds); got != 3 {
		t.Errorf("duration gauge = %v, want 3", got)
	}

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "goeschip_scene_failures_total") {
		t.Error("metrics output missing goeschip_scene_failures_total")
	}
}
