package fixedgrid

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Eccentricity is the first eccentricity of the GRS80 ellipsoid used by the
// GOES-R series imagers. It is a property of the satellite family, not of a
// single scene.
const Eccentricity = 0.0818191910435

// GRS80 axes and the nominal geostationary perspective height, as published
// in the goes_imager_projection variable of every ABI product.
const (
	grs80SemiMajor      = 6378137.0     // meters
	grs80SemiMinor      = 6356752.31414 // meters
	grs80InvFlat        = 298.2572221   // 1/f
	nominalPerspectiveH = 35786023.0    // meters above the ellipsoid
)

// ProjectionConfig describes a satellite's fixed grid geometry. It is read
// once per scene and never mutated.
type ProjectionConfig struct {
	SemiMajorAxis          float64 // req, meters
	SemiMinorAxis          float64 // rpol, meters
	PerspectivePointHeight float64 // pers_h, meters above the ellipsoid
	LongitudeOrigin        float64 // Lo, degrees east
	InverseFlattening      float64 // informational only
}

// Validate reports whether the geometry can be used by the transforms.
func (c ProjectionConfig) Validate() error {
	switch {
	case !(c.SemiMajorAxis > 0):
		return fmt.Errorf("semi_major_axis must be positive, got %v", c.SemiMajorAxis)
	case !(c.SemiMinorAxis > 0):
		return fmt.Errorf("semi_minor_axis must be positive, got %v", c.SemiMinorAxis)
	case !(c.PerspectivePointHeight > 0):
		return fmt.Errorf("perspective_point_height must be positive, got %v", c.PerspectivePointHeight)
	case math.IsNaN(c.LongitudeOrigin) || math.IsInf(c.LongitudeOrigin, 0):
		return fmt.Errorf("longitude_of_projection_origin must be finite, got %v", c.LongitudeOrigin)
	}
	return nil
}

// satelliteHeight is H: the distance from the Earth's center to the satellite.
func (c ProjectionConfig) satelliteHeight() float64 {
	return c.PerspectivePointHeight + c.SemiMajorAxis
}

// axisRatioSq is (req/rpol)^2.
func (c ProjectionConfig) axisRatioSq() float64 {
	r := c.SemiMajorAxis / c.SemiMinorAxis
	return r * r
}

func goesR(lonOrigin float64) ProjectionConfig {
	return ProjectionConfig{
		SemiMajorAxis:          grs80SemiMajor,
		SemiMinorAxis:          grs80SemiMinor,
		PerspectivePointHeight: nominalPerspectiveH,
		LongitudeOrigin:        lonOrigin,
		InverseFlattening:      grs80InvFlat,
	}
}

// presets holds the operational slots of the GOES-R series.
var presets = map[string]ProjectionConfig{
	"goes-16": goesR(-75.0),
	"goes-17": goesR(-137.0),
	"goes-18": goesR(-137.0),
	"goes-19": goesR(-75.2),
}

// Preset returns the projection of a named GOES-R satellite ("goes-16",
// "GOES18", ...).
func Preset(name string) (ProjectionConfig, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if !strings.Contains(key, "-") && strings.HasPrefix(key, "goes") {
		key = "goes-" + strings.TrimPrefix(key, "goes")
	}
	cfg, ok := presets[key]
	return cfg, ok
}

// PresetNames lists the known satellite names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
