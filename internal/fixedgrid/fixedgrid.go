// Package fixedgrid converts between GOES-R ABI Fixed Grid scan angles and
// geodetic latitude/longitude.
//
// A fixed grid pixel is addressed by two viewing angles from the satellite:
// x (east-west scan) and y (north-south elevation), both in radians. The
// transforms follow the GOES-R Product User Guide, Volume 3 (L1b), section
// 4.2.8 "Fixed Grid Format".
//
// All trigonometry is done in radians; latitude and longitude cross the API
// in degrees.
package fixedgrid

import (
	"errors"
	"math"
)

// ErrOffEarth is returned when a viewing ray misses the Earth ellipsoid,
// i.e. the scan angles point past the limb into space.
var ErrOffEarth = errors.New("fixedgrid: scan angles do not intersect the earth")

const deg = math.Pi / 180.0

// EarthPoint is a point in the satellite-relative Earth-centered frame used
// by the PUG: the x axis points from the Earth's center towards the
// sub-satellite point, z towards the north pole. Meters.
type EarthPoint struct {
	X, Y, Z float64
}

// Intersect finds where the viewing ray (x, y) meets the ellipsoid.
//
// The slant range rs solves a*rs^2 + b*rs + c = 0 with
//
//	a = sin²x + cos²x·(cos²y + (req/rpol)²·sin²y)
//	b = -2·H·cos x·cos y
//	c = H² - req²
//
// The smaller root is the near intersection on the visible hemisphere.
// Returns ErrOffEarth when the discriminant is negative.
func Intersect(cfg ProjectionConfig, x, y float64) (EarthPoint, error) {
	H := cfg.satelliteHeight()
	req := cfg.SemiMajorAxis

	sinX, cosX := math.Sincos(x)
	sinY, cosY := math.Sincos(y)

	a := sinX*sinX + cosX*cosX*(cosY*cosY+cfg.axisRatioSq()*sinY*sinY)
	b := -2 * H * cosX * cosY
	c := H*H - req*req

	disc := b*b - 4*a*c
	if disc < 0 || math.IsNaN(disc) {
		return EarthPoint{}, ErrOffEarth
	}
	rs := (-b - math.Sqrt(disc)) / (2 * a)

	// Satellite-centered components of the ray at range rs.
	sx := rs * cosX * cosY
	sy := -rs * sinX
	sz := rs * cosX * sinY

	return EarthPoint{X: H - sx, Y: -sy, Z: sz}, nil
}

// ScanAnglesToLatLon converts fixed grid scan angles (radians) to geodetic
// latitude and longitude (degrees). Longitude is not wrapped; it lies within
// about ±81° of the projection origin.
func ScanAnglesToLatLon(cfg ProjectionConfig, x, y float64) (lat, lon float64, err error) {
	p, err := Intersect(cfg, x, y)
	if err != nil {
		return math.NaN(), math.NaN(), err
	}

	// In satellite-centered terms H-sx = p.X and sy = -p.Y.
	lat = math.Atan(cfg.axisRatioSq()*p.Z/math.Hypot(p.X, p.Y)) / deg
	lon = cfg.LongitudeOrigin - math.Atan(-p.Y/p.X)/deg
	return lat, lon, nil
}

// LatLonToScanAngles converts geodetic latitude and longitude (degrees) to
// fixed grid scan angles (radians).
//
// The algebra has no failure mode, but the result is only meaningful for
// points on the visible disk; use Visible to check. Points behind the limb
// still produce angles, typically outside any populated scene axis.
func LatLonToScanAngles(cfg ProjectionConfig, lat, lon float64) (x, y float64) {
	sx, sy, sz := satelliteVector(cfg, lat, lon)

	y = math.Atan(sz / sx)
	x = math.Asin(-sy / math.Sqrt(sx*sx+sy*sy+sz*sz))
	return x, y
}

// Visible reports whether a geodetic point can be seen from the satellite.
// Per the PUG, a point is hidden when H·(H-sx) < sy² + (req/rpol)²·sz².
func Visible(cfg ProjectionConfig, lat, lon float64) bool {
	H := cfg.satelliteHeight()
	sx, sy, sz := satelliteVector(cfg, lat, lon)
	return H*(H-sx) >= sy*sy+cfg.axisRatioSq()*sz*sz
}

// satelliteVector returns the satellite-to-point vector (sx, sy, sz) for a
// geodetic point, going through geocentric latitude:
//
//	latc = atan((rpol/req)²·tan(lat))
//	rc   = rpol / sqrt(1 - e²·cos²(latc))
func satelliteVector(cfg ProjectionConfig, lat, lon float64) (sx, sy, sz float64) {
	H := cfg.satelliteHeight()
	ratio := cfg.SemiMinorAxis / cfg.SemiMajorAxis

	latc := math.Atan(ratio * ratio * math.Tan(lat*deg))
	sinLatc, cosLatc := math.Sincos(latc)
	rc := cfg.SemiMinorAxis / math.Sqrt(1-Eccentricity*Eccentricity*cosLatc*cosLatc)

	dLon := (lon - cfg.LongitudeOrigin) * deg
	sinDLon, cosDLon := math.Sincos(dLon)

	sx = H - rc*cosLatc*cosDLon
	sy = -rc * cosLatc * sinDLon
	sz = rc * sinLatc
	return sx, sy, sz
}
