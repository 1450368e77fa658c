package api

import (
	"encoding/json"
	"image/png"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/star/goeschip/internal/auth"
	"github.com/star/goeschip/internal/cache"
	"github.com/star/goeschip/internal/fixedgrid"
	"github.com/star/goeschip/internal/scene"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// testServer serves one small synthetic full-disk bundle named "conus".
func testServer(t *testing.T, authCfg auth.Config) (http.Handler, *cache.SceneCache) {
	t.Helper()
	root := t.TempDir()

	cfg, _ := fixedgrid.Preset("goes-16")
	opts := scene.DefaultSynthOptions()
	opts.Rows, opts.Cols = 120, 120
	s, err := scene.Synthesize(cfg, opts)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if err := scene.Save(filepath.Join(root, "conus"), s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	sceneFS := os.DirFS(root)
	scenes := cache.NewSceneCache(cache.Config{}, func(name string) (*scene.Scene, error) {
		return scene.Load(sceneFS, name)
	}, testLogger())

	srv := NewServer(Config{
		Addr:          ":0",
		Auth:          authCfg,
		Satellite:     "goes-16",
		DefaultBuffer: 10,
		MaxBuffer:     40,
	}, sceneFS, scenes, testLogger())
	return srv.Handler(), scenes
}

func get(h http.Handler, target string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func TestProbes(t *testing.T) {
	h, _ := testServer(t, auth.Config{Enabled: true, Token: "s3cret"})

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		if w := get(h, path); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}
}

func TestSatellites(t *testing.T) {
	h, _ := testServer(t, auth.Config{})

	w := get(h, "/api/v1/satellites")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	sats, _ := decodeJSON(t, w)["satellites"].([]any)
	if len(sats) != len(fixedgrid.PresetNames()) {
		t.Errorf("got %d satellites, want %d", len(sats), len(fixedgrid.PresetNames()))
	}
}

func TestScanAngles(t *testing.T) {
	h, _ := testServer(t, auth.Config{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"cape canaveral", "?lat=28.3922&lon=-80.6077", http.StatusOK},
		{"explicit satellite", "?lat=28.3922&lon=-80.6077&satellite=goes-18", http.StatusOK},
		{"missing lon", "?lat=28.3922", http.StatusBadRequest},
		{"bad lat", "?lat=north&lon=-80", http.StatusBadRequest},
		{"lat out of range", "?lat=95&lon=-80", http.StatusBadRequest},
		{"NaN", "?lat=NaN&lon=-80", http.StatusBadRequest},
		{"unknown satellite", "?lat=0&lon=0&satellite=himawari-8", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, "/api/v1/fixedgrid/scan-angles"+tt.query)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeJSON(t, w)
			if tt.wantStatus != http.StatusOK {
				if resp["error"] == nil {
					t.Error("expected error field in response")
				}
				return
			}
			if _, ok := resp["visible"].(bool); !ok {
				t.Error("expected visible field")
			}
		})
	}

	w := get(h, "/api/v1/fixedgrid/scan-angles?lat=28.3922&lon=-80.6077")
	resp := decodeJSON(t, w)
	x, _ := resp["x"].(float64)
	y, _ := resp["y"].(float64)
	if math.Abs(x-(-0.0149498003)) > 1e-6 || math.Abs(y-0.0822403919) > 1e-6 {
		t.Errorf("scan angles = (%v, %v)", x, y)
	}
	if resp["visible"] != true || resp["satellite"] != "goes-16" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestGeodetic(t *testing.T) {
	h, _ := testServer(t, auth.Config{})

	w := get(h, "/api/v1/fixedgrid/geodetic?x=0&y=0")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeJSON(t, w)
	if lat, _ := resp["lat"].(float64); math.Abs(lat) > 1e-9 {
		t.Errorf("lat = %v, want 0", lat)
	}
	if lon, _ := resp["lon"].(float64); math.Abs(lon-(-75)) > 1e-9 {
		t.Errorf("lon = %v, want -75", lon)
	}

	w = get(h, "/api/v1/fixedgrid/geodetic?x=0.2&y=0")
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("off-earth status = %d, want 422", w.Code)
	}
	if decodeJSON(t, w)["error"] == nil {
		t.Error("expected error field for off-earth angles")
	}

	if w := get(h, "/api/v1/fixedgrid/geodetic?x=0"); w.Code != http.StatusBadRequest {
		t.Errorf("missing y status = %d, want 400", w.Code)
	}
}

func TestChip(t *testing.T) {
	h, scenes := testServer(t, auth.Config{})

	w := get(h, "/api/v1/chips/conus?lat=28.3922&lon=-80.6077&buffer=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Chip-Truncated") != "false" || w.Header().Get("X-Chip-Clamped") != "false" {
		t.Errorf("unexpected flags truncated=%s clamped=%s",
			w.Header().Get("X-Chip-Truncated"), w.Header().Get("X-Chip-Clamped"))
	}
	img, err := png.Decode(w.Body)
	if err != nil {
		t.Fatalf("decoding png: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 20 || b.Dy() != 20 {
		t.Errorf("chip is %dx%d, want 20x20", b.Dx(), b.Dy())
	}

	// Second request is served from the cache.
	get(h, "/api/v1/chips/conus?lat=28.3922&lon=-80.6077&format=tiff")
	stats := scenes.Stats()
	if stats.Entries != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("cache stats = %+v, want 1 entry, 1 hit, 1 miss", stats)
	}
}

func TestChipErrors(t *testing.T) {
	h, _ := testServer(t, auth.Config{})

	tests := []struct {
		name       string
		target     string
		wantStatus int
	}{
		{"unknown scene", "/api/v1/chips/nope?lat=28&lon=-80", http.StatusNotFound},
		{"not visible", "/api/v1/chips/conus?lat=0&lon=105", http.StatusUnprocessableEntity},
		{"zero buffer", "/api/v1/chips/conus?lat=28&lon=-80&buffer=0", http.StatusBadRequest},
		{"buffer too large", "/api/v1/chips/conus?lat=28&lon=-80&buffer=41", http.StatusBadRequest},
		{"bad format", "/api/v1/chips/conus?lat=28&lon=-80&format=gif", http.StatusBadRequest},
		{"missing lat", "/api/v1/chips/conus?lon=-80", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(h, tt.target)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestChipTIFF(t *testing.T) {
	h, _ := testServer(t, auth.Config{})

	w := get(h, "/api/v1/chips/conus?lat=28.3922&lon=-80.6077&format=tiff")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/tiff" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestScenesAndAuth(t *testing.T) {
	h, _ := testServer(t, auth.Config{Enabled: true, Token: "s3cret"})

	if w := get(h, "/api/v1/scenes"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated scenes = %d, want 401", w.Code)
	}
	if w := get(h, "/api/v1/chips/conus?lat=28&lon=-80"); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated chip = %d, want 401", w.Code)
	}
	if w := get(h, "/api/v1/fixedgrid/scan-angles?lat=28&lon=-80"); w.Code != http.StatusOK {
		t.Errorf("fixedgrid should be public, got %d", w.Code)
	}

	w := get(h, "/api/v1/scenes", "Authorization", "Bearer s3cret")
	if w.Code != http.StatusOK {
		t.Fatalf("scenes status = %d", w.Code)
	}
	resp := decodeJSON(t, w)
	scenes, _ := resp["scenes"].([]any)
	if len(scenes) != 1 || scenes[0] != "conus" {
		t.Errorf("scenes = %v, want [conus]", resp["scenes"])
	}
}
