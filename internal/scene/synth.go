package scene

import (
	"fmt"
	"math"

	"github.com/star/goeschip/internal/fixedgrid"
)

// SynthOptions shapes a synthetic scene.
type SynthOptions struct {
	Name       string
	Start, End string
	Rows, Cols int
	// Scan-angle extent in radians. Y runs north to south (YMax first), as
	// in ABI products; X runs west to east.
	XMin, XMax float64
	YMin, YMax float64
}

// DefaultSynthOptions covers the full disk at roughly 10 km resolution.
func DefaultSynthOptions() SynthOptions {
	return SynthOptions{
		Name:  "OR_ABI-L2-CMIPF-M6C13_G16_s20200010000216_e20200010009536_c20200010010018.nc",
		Start: "2020-01-01T00:00:21.6Z",
		End:   "2020-01-01T00:09:53.6Z",
		Rows:  1086,
		Cols:  1086,
		XMin:  -0.151844,
		XMax:  0.151844,
		YMin:  -0.151844,
		YMax:  0.151844,
	}
}

// Synthesize builds a scene whose brightness temperature is a smooth
// function of latitude and longitude, with off-earth pixels masked. It is
// used for demos and tests in place of real imagery.
func Synthesize(cfg fixedgrid.ProjectionConfig, opts SynthOptions) (*Scene, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Rows < 1 || opts.Cols < 1 {
		return nil, fmt.Errorf("synthetic scene needs a positive shape, got %dx%d", opts.Rows, opts.Cols)
	}

	s := &Scene{
		Name:       opts.Name,
		Start:      opts.Start,
		End:        opts.End,
		Projection: cfg,
		X:          linspace(opts.XMin, opts.XMax, opts.Cols),
		Y:          linspace(opts.YMax, opts.YMin, opts.Rows),
		CMI:        NewGrid(opts.Rows, opts.Cols),
	}

	nan := float32(math.NaN())
	for r, y := range s.Y {
		for c, x := range s.X {
			lat, lon, err := fixedgrid.ScanAnglesToLatLon(cfg, x, y)
			if err != nil {
				s.CMI.Set(r, c, nan)
				continue
			}
			s.CMI.Set(r, c, float32(brightness(lat, lon)))
		}
	}
	return s, nil
}

// brightness is a plausible 10.3 µm field in kelvin: warm tropics, cold
// poles, and a banded cloud pattern.
func brightness(lat, lon float64) float64 {
	latR := lat * math.Pi / 180
	lonR := lon * math.Pi / 180
	return 220 + 80*math.Cos(latR) - 25*math.Pow(math.Sin(3*latR)*math.Cos(4*lonR), 2)
}

func linspace(from, to float64, n int) []float64 {
	out := make([]float64, n)
	if n == 1 {
		out[0] = from
		return out
	}
	step := (to - from) / float64(n-1)
	for i := range out {
		out[i] = from + float64(i)*step
	}
	return out
}
