package scene

import (
	"fmt"
	"math"
)

// Grid is a row-major 2-D array of float32 samples. Masked cells (outside
// the Earth's limb, or fill values) hold NaN.
type Grid struct {
	Rows, Cols int
	Data       []float32
}

// NewGrid allocates a zeroed rows×cols grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("scene: negative grid shape %dx%d", rows, cols))
	}
	return &Grid{Rows: rows, Cols: cols, Data: make([]float32, rows*cols)}
}

// At returns the sample at row r, column c.
func (g *Grid) At(r, c int) float32 {
	return g.Data[r*g.Cols+c]
}

// Set stores v at row r, column c.
func (g *Grid) Set(r, c int, v float32) {
	g.Data[r*g.Cols+c] = v
}

// Empty reports whether the grid has no cells.
func (g *Grid) Empty() bool {
	return g == nil || g.Rows == 0 || g.Cols == 0
}

// Sub copies rows [r0, r1) and columns [c0, c1) into a new grid. Bounds
// must already lie within the grid.
func (g *Grid) Sub(r0, r1, c0, c1 int) *Grid {
	if r0 < 0 || c0 < 0 || r1 > g.Rows || c1 > g.Cols || r0 > r1 || c0 > c1 {
		panic(fmt.Sprintf("scene: sub-grid [%d:%d, %d:%d] outside %dx%d", r0, r1, c0, c1, g.Rows, g.Cols))
	}
	out := NewGrid(r1-r0, c1-c0)
	for r := r0; r < r1; r++ {
		copy(out.Data[(r-r0)*out.Cols:(r-r0+1)*out.Cols], g.Data[r*g.Cols+c0:r*g.Cols+c1])
	}
	return out
}

// MinMax returns the smallest and largest finite samples. ok is false when
// every cell is masked.
func (g *Grid) MinMax() (min, max float32, ok bool) {
	for _, v := range g.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if !ok {
			min, max, ok = v, v, true
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, ok
}

// Apply replaces every finite sample v with fn(v).
func (g *Grid) Apply(fn func(float32) float32) {
	for i, v := range g.Data {
		if math.IsNaN(float64(v)) {
			continue
		}
		g.Data[i] = fn(v)
	}
}
