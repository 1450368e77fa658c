package chip

import "math"

// NearestIndex returns the index of the axis value closest to target. Exact
// ties go to the lowest index. Targets beyond either end of the axis land
// on the boundary index. NaN entries are skipped; -1 means the axis has no
// usable values.
func NearestIndex(axis []float64, target float64) int {
	best := -1
	bestDiff := math.Inf(1)
	for i, v := range axis {
		if math.IsNaN(v) {
			continue
		}
		d := math.Abs(v - target)
		if best < 0 || d < bestDiff {
			best, bestDiff = i, d
		}
	}
	return best
}

// axisCovers reports whether v lies within the finite extent of axis.
func axisCovers(axis []float64, v float64) bool {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, a := range axis {
		if math.IsNaN(a) {
			continue
		}
		lo = math.Min(lo, a)
		hi = math.Max(hi, a)
	}
	return v >= lo && v <= hi
}

// Window is a half-open pixel rectangle, rows [Row0, Row1) by columns
// [Col0, Col1).
type Window struct {
	Row0, Row1 int
	Col0, Col1 int
	// Truncated is set when the requested window was clipped by the scene
	// edge.
	Truncated bool
}

// NewWindow centres a 2*buffer square on (rowIdx, colIdx) and clips it to a
// rows×cols scene. Clipping shrinks the window instead of failing.
func NewWindow(rowIdx, colIdx, buffer, rows, cols int) Window {
	r0, r1, rt := clip(rowIdx-buffer, rowIdx+buffer, rows)
	c0, c1, ct := clip(colIdx-buffer, colIdx+buffer, cols)
	return Window{Row0: r0, Row1: r1, Col0: c0, Col1: c1, Truncated: rt || ct}
}

func clip(lo, hi, n int) (int, int, bool) {
	truncated := false
	if lo < 0 {
		lo, truncated = 0, true
	}
	if hi > n {
		hi, truncated = n, true
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi, truncated
}

// Rows is the window height in pixels.
func (w Window) Rows() int { return w.Row1 - w.Row0 }

// Cols is the window width in pixels.
func (w Window) Cols() int { return w.Col1 - w.Col0 }

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool { return w.Rows() <= 0 || w.Cols() <= 0 }
