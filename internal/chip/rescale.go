package chip

import (
	"image"
	"math"

	"github.com/star/goeschip/internal/scene"
)

// ZeroCelsius is 0 °C in kelvin.
const ZeroCelsius = 273.15

// Rescale maps the finite range [min, max] of g linearly onto [0, 255],
// truncating toward zero. A constant or fully masked grid yields all zeros,
// as do masked cells.
func Rescale(g *scene.Grid) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, g.Cols, g.Rows))
	lo, hi, ok := g.MinMax()
	if !ok || lo == hi {
		return img
	}

	base, span := float64(lo), float64(hi)-float64(lo)
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := float64(g.At(r, c))
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			s := math.Trunc((v - base) * 255 / span)
			img.Pix[r*img.Stride+c] = uint8(math.Max(0, math.Min(255, s)))
		}
	}
	return img
}

// Celsius returns a copy of g converted from kelvin to degrees Celsius.
func Celsius(g *scene.Grid) *scene.Grid {
	out := g.Sub(0, g.Rows, 0, g.Cols)
	out.Apply(func(v float32) float32 { return v - ZeroCelsius })
	return out
}

// Kelvin returns a copy of g converted from degrees Celsius to kelvin.
func Kelvin(g *scene.Grid) *scene.Grid {
	out := g.Sub(0, g.Rows, 0, g.Cols)
	out.Apply(func(v float32) float32 { return v + ZeroCelsius })
	return out
}
