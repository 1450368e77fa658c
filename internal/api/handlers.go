package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/star/goeschip/internal/cache"
	"github.com/star/goeschip/internal/chip"
	"github.com/star/goeschip/internal/fixedgrid"
	"github.com/star/goeschip/internal/output"
	"github.com/star/goeschip/internal/scene"
)

// maxResize bounds the resize query parameter of the chip endpoint.
const maxResize = 2048

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// floatParam parses a required finite float query parameter.
func floatParam(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return v, nil
}

// intParam parses an optional integer query parameter within [lo, hi].
func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, fmt.Errorf("invalid %s: %q (must be %d-%d)", name, raw, lo, hi)
	}
	return v, nil
}

// geoParams parses lat and lon, checking their ranges.
func geoParams(r *http.Request) (chip.GeoPoint, error) {
	lat, err := floatParam(r, "lat")
	if err != nil {
		return chip.GeoPoint{}, err
	}
	lon, err := floatParam(r, "lon")
	if err != nil {
		return chip.GeoPoint{}, err
	}
	if lat < -90 || lat > 90 {
		return chip.GeoPoint{}, fmt.Errorf("lat %v out of range [-90, 90]", lat)
	}
	if lon < -180 || lon > 180 {
		return chip.GeoPoint{}, fmt.Errorf("lon %v out of range [-180, 180]", lon)
	}
	return chip.GeoPoint{Lat: lat, Lon: lon}, nil
}

// satelliteParam resolves the satellite query parameter, falling back to def.
func satelliteParam(r *http.Request, def string) (string, fixedgrid.ProjectionConfig, error) {
	name := r.URL.Query().Get("satellite")
	if name == "" {
		name = def
	}
	cfg, ok := fixedgrid.Preset(name)
	if !ok {
		return "", fixedgrid.ProjectionConfig{}, fmt.Errorf("unknown satellite %q", name)
	}
	return name, cfg, nil
}

type satelliteInfo struct {
	Name                   string  `json:"name"`
	LongitudeOrigin        float64 `json:"longitude_of_projection_origin"`
	SemiMajorAxis          float64 `json:"semi_major_axis"`
	SemiMinorAxis          float64 `json:"semi_minor_axis"`
	PerspectivePointHeight float64 `json:"perspective_point_height"`
}

func satellitesHandler(w http.ResponseWriter, r *http.Request) {
	names := fixedgrid.PresetNames()
	out := make([]satelliteInfo, 0, len(names))
	for _, name := range names {
		cfg, _ := fixedgrid.Preset(name)
		out = append(out, satelliteInfo{
			Name:                   name,
			LongitudeOrigin:        cfg.LongitudeOrigin,
			SemiMajorAxis:          cfg.SemiMajorAxis,
			SemiMinorAxis:          cfg.SemiMinorAxis,
			PerspectivePointHeight: cfg.PerspectivePointHeight,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"satellites": out})
}

func scanAnglesHandler(defaultSat string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, cfg, err := satelliteParam(r, defaultSat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p, err := geoParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		x, y := fixedgrid.LatLonToScanAngles(cfg, p.Lat, p.Lon)
		writeJSON(w, http.StatusOK, map[string]any{
			"satellite": name,
			"lat":       p.Lat,
			"lon":       p.Lon,
			"x":         x,
			"y":         y,
			"visible":   fixedgrid.Visible(cfg, p.Lat, p.Lon),
		})
	}
}

func geodeticHandler(defaultSat string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, cfg, err := satelliteParam(r, defaultSat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		x, err := floatParam(r, "x")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		y, err := floatParam(r, "y")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		lat, lon, err := fixedgrid.ScanAnglesToLatLon(cfg, x, y)
		if errors.Is(err, fixedgrid.ErrOffEarth) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"satellite": name,
			"x":         x,
			"y":         y,
			"lat":       lat,
			"lon":       lon,
		})
	}
}

func scenesHandler(logger *slog.Logger, sceneFS fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dirs, err := scene.Find(sceneFS, ".")
		if err != nil {
			logger.Error("listing scenes failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list scenes")
			return
		}
		if dirs == nil {
			dirs = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"scenes": dirs, "count": len(dirs)})
	}
}

func cacheStatsHandler(scenes *cache.SceneCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, scenes.Stats())
	}
}

func chipHandler(logger *slog.Logger, scenes *cache.SceneCache, defaultBuffer, maxBuffer int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("scene")
		if !fs.ValidPath(name) || name == "." {
			writeError(w, http.StatusNotFound, "scene not found")
			return
		}

		center, err := geoParams(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		buffer, err := intParam(r, "buffer", defaultBuffer, 1, maxBuffer)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resize, err := intParam(r, "resize", 0, 0, maxResize)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format := r.URL.Query().Get("format")
		if format == "" {
			format = "png"
		}
		if format != "png" && format != "tiff" {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid format %q (png or tiff)", format))
			return
		}

		s, err := scenes.Get(name)
		if errors.Is(err, scene.ErrNotBundle) {
			writeError(w, http.StatusNotFound, "scene not found")
			return
		}
		if err != nil {
			logger.Error("loading scene failed", "scene", name, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load scene")
			return
		}

		c, err := chip.Extract(s, center, buffer)
		switch {
		case errors.Is(err, chip.ErrTargetNotVisible), errors.Is(err, chip.ErrEmptyChip):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		var buf bytes.Buffer
		contentType := "image/png"
		if format == "tiff" {
			contentType = "image/tiff"
			err = output.EncodeTIFF(&buf, c)
		} else {
			err = output.EncodePNG(&buf, c, resize)
		}
		if err != nil {
			logger.Error("encoding chip failed", "scene", name, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to encode chip")
			return
		}

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Chip-Tag", c.Tag())
		w.Header().Set("X-Chip-Window", fmt.Sprintf("%d:%d,%d:%d", c.Window.Row0, c.Window.Row1, c.Window.Col0, c.Window.Col1))
		w.Header().Set("X-Chip-Clamped", strconv.FormatBool(c.Clamped))
		w.Header().Set("X-Chip-Truncated", strconv.FormatBool(c.Window.Truncated))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	}
}
