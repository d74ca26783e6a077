package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// ErrEmptyWindow is returned when a window covers no pixels.
var ErrEmptyWindow = errors.New("window covers no pixels")

// Window is a rectangular block of pixels on a raster grid.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

// WindowFromBounds returns the pixel window on the grid described by t that
// covers the bound. Offsets are rounded to the nearest pixel and lengths are
// truncated to whole pixels, so a window over a bound and a raster rendered
// over the same bound at the grid resolution have identical shapes.
func WindowFromBounds(b orb.Bound, t Affine) (Window, error) {
	inv, err := t.Inverse()
	if err != nil {
		return Window{}, err
	}

	corners := [4]orb.Point{
		{b.Min[0], b.Min[1]},
		{b.Min[0], b.Max[1]},
		{b.Max[0], b.Min[1]},
		{b.Max[0], b.Max[1]},
	}

	minCol, minRow := math.Inf(1), math.Inf(1)
	maxCol, maxRow := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		col, row := inv.Apply(c[0], c[1])
		minCol = math.Min(minCol, col)
		maxCol = math.Max(maxCol, col)
		minRow = math.Min(minRow, row)
		maxRow = math.Max(maxRow, row)
	}

	w := Window{
		ColOff: int(math.Round(minCol)),
		RowOff: int(math.Round(minRow)),
		Width:  int(math.Floor(maxCol - minCol + pixelEpsilon)),
		Height: int(math.Floor(maxRow - minRow + pixelEpsilon)),
	}
	if w.Width <= 0 || w.Height <= 0 {
		return Window{}, fmt.Errorf("%w: %+v", ErrEmptyWindow, w)
	}
	return w, nil
}

// Size returns the number of pixels in the window.
func (w Window) Size() int {
	return w.Width * w.Height
}

// Within reports whether the window lies entirely inside a width x height grid.
func (w Window) Within(width, height int) bool {
	return w.ColOff >= 0 && w.RowOff >= 0 &&
		w.ColOff+w.Width <= width && w.RowOff+w.Height <= height
}

// Intersects reports whether the window overlaps a width x height grid at all.
func (w Window) Intersects(width, height int) bool {
	return w.ColOff < width && w.RowOff < height &&
		w.ColOff+w.Width > 0 && w.RowOff+w.Height > 0
}

// Transform returns the transform of the window's origin on the grid t.
func (w Window) Transform(t Affine) Affine {
	return t.Translate(float64(w.ColOff), float64(w.RowOff))
}

// String implements fmt.Stringer.
func (w Window) String() string {
	return fmt.Sprintf("Window(col_off=%d, row_off=%d, width=%d, height=%d)", w.ColOff, w.RowOff, w.Width, w.Height)
}
