// Package chip cuts fixed-size sub-images ("chips") out of a scene around a
// geographic point and rescales them to 8-bit intensities.
package chip

import (
	"errors"
	"fmt"
	"strings"

	"github.com/star/goeschip/internal/fixedgrid"
	"github.com/star/goeschip/internal/scene"
)

var (
	// ErrInvalidBuffer is returned for a non-positive buffer radius.
	ErrInvalidBuffer = errors.New("chip: buffer must be positive")
	// ErrTargetNotVisible is returned when the centre point is behind the
	// Earth's limb as seen from the satellite.
	ErrTargetNotVisible = errors.New("chip: target not visible from satellite")
	// ErrEmptyChip is returned when no pixels remain after clipping.
	ErrEmptyChip = errors.New("chip: window is empty")
)

// GeoPoint is a geodetic position in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.4f, %.4f)", p.Lat, p.Lon)
}

// Chip is a sub-grid of a scene. The pixel nearest the centre point sits at
// (RowIndex-Window.Row0, ColIndex-Window.Col0), which is (buffer, buffer)
// unless the window was truncated on the top or left.
type Chip struct {
	Data   *scene.Grid
	Window Window
	Center GeoPoint

	// Scan angles of Center, radians.
	ScanX, ScanY float64
	// Scene pixel nearest to Center.
	RowIndex, ColIndex int

	Start, End string
	Source     string

	// Clamped is set when the scan angles fell outside the scene axes and
	// the nearest boundary pixel was used instead.
	Clamped bool
}

// Tag names the chip from its coverage times and source,
// "Chip_<start>_<end>" with "_<source>" appended when known.
func (c *Chip) Tag() string {
	parts := []string{"Chip", c.Start, c.End}
	if c.Source != "" {
		parts = append(parts, c.Source)
	}
	return strings.Join(parts, "_")
}

// Extract returns the chip of s centred on center, spanning buffer pixels
// either side of the nearest pixel. Near the scene edge the chip is
// truncated rather than padded.
func Extract(s *scene.Scene, center GeoPoint, buffer int) (*Chip, error) {
	if buffer <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBuffer, buffer)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scene: %w", err)
	}
	if !fixedgrid.Visible(s.Projection, center.Lat, center.Lon) {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotVisible, center)
	}

	x, y := fixedgrid.LatLonToScanAngles(s.Projection, center.Lat, center.Lon)
	col := NearestIndex(s.X, x)
	row := NearestIndex(s.Y, y)
	if col < 0 || row < 0 {
		return nil, ErrEmptyChip
	}

	w := NewWindow(row, col, buffer, s.CMI.Rows, s.CMI.Cols)
	if w.Empty() {
		return nil, ErrEmptyChip
	}

	return &Chip{
		Data:     s.CMI.Sub(w.Row0, w.Row1, w.Col0, w.Col1),
		Window:   w,
		Center:   center,
		ScanX:    x,
		ScanY:    y,
		RowIndex: row,
		ColIndex: col,
		Start:    s.Start,
		End:      s.End,
		Source:   scene.SourceID(s.Name),
		Clamped:  !axisCovers(s.X, x) || !axisCovers(s.Y, y),
	}, nil
}
