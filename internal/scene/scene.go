// Package scene holds decoded satellite scenes: a brightness temperature
// grid, its fixed grid scan-angle axes and the projection it was imaged
// with. It also reads and writes scene bundles, a directory layout of JSON
// metadata plus raw typed arrays.
package scene

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/star/goeschip/internal/fixedgrid"
)

// Scene is one decoded image. X indexes columns and Y indexes rows; both
// are scan angles in radians and must be monotonic, in either direction.
type Scene struct {
	Name       string // dataset_name attribute, e.g. OR_ABI-L2-CMIPF-M6C13_G16_s..._e..._c....nc
	Start, End string // time_coverage_start / time_coverage_end attributes
	Projection fixedgrid.ProjectionConfig
	X, Y       []float64
	CMI        *Grid
}

// Validate checks that the axes agree with the grid shape and that the
// projection is usable.
func (s *Scene) Validate() error {
	if s.CMI == nil {
		return errors.New("scene has no CMI grid")
	}
	if len(s.X) != s.CMI.Cols {
		return fmt.Errorf("x axis has %d values, grid has %d columns", len(s.X), s.CMI.Cols)
	}
	if len(s.Y) != s.CMI.Rows {
		return fmt.Errorf("y axis has %d values, grid has %d rows", len(s.Y), s.CMI.Rows)
	}
	if len(s.CMI.Data) != s.CMI.Rows*s.CMI.Cols {
		return fmt.Errorf("grid holds %d samples, want %dx%d", len(s.CMI.Data), s.CMI.Rows, s.CMI.Cols)
	}
	if err := s.Projection.Validate(); err != nil {
		return fmt.Errorf("projection: %w", err)
	}
	return nil
}

// SourceID derives a short identifier for naming chips from a dataset name.
// ABI product names carry their creation time as a "_c<digits>" field,
// which is unique per file; other names fall back to the base name without
// extension.
func SourceID(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.TrimSuffix(base, path.Ext(base))

	fields := strings.Split(base, "_")
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		if len(f) > 1 && f[0] == 'c' && isDigits(f[1:]) {
			return f[1:]
		}
	}
	return base
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// Platform returns the satellite named by the "_G<nn>_" field of an ABI
// dataset name, e.g. "goes-16", or "" when there is none.
func Platform(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	for _, f := range strings.Split(strings.TrimSuffix(base, path.Ext(base)), "_") {
		if len(f) == 3 && f[0] == 'G' && isDigits(f[1:]) {
			return "goes-" + f[1:]
		}
	}
	return ""
}
