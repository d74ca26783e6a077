// Package raster holds the in-memory raster types shared by the tile fetcher,
// the band extractor and the comparison engine.
package raster

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// pixelEpsilon absorbs floating point noise when converting extents to pixel counts.
const pixelEpsilon = 1e-6

// ErrSingularTransform is returned when an affine transform cannot be inverted.
var ErrSingularTransform = errors.New("affine transform is not invertible")

// Affine maps pixel (col, row) coordinates to CRS (x, y) coordinates:
//
//	x = A*col + B*row + C
//	y = D*col + E*row + F
//
// The coefficient order matches GDAL geotransforms and the six-element
// proj:transform arrays published in STAC items.
type Affine struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, E: 1}
}

// NewAffine builds a transform from a six or nine element proj:transform array.
func NewAffine(coeffs []float64) (Affine, error) {
	if len(coeffs) != 6 && len(coeffs) != 9 {
		return Affine{}, fmt.Errorf("transform must have 6 or 9 coefficients, got %d", len(coeffs))
	}
	return Affine{
		A: coeffs[0], B: coeffs[1], C: coeffs[2],
		D: coeffs[3], E: coeffs[4], F: coeffs[5],
	}, nil
}

// FromBounds returns the north-up transform that spreads the bound over a
// width x height grid.
func FromBounds(b orb.Bound, width, height int) Affine {
	return Affine{
		A: (b.Max[0] - b.Min[0]) / float64(width),
		C: b.Min[0],
		E: -(b.Max[1] - b.Min[1]) / float64(height),
		F: b.Max[1],
	}
}

// Coefficients returns the six transform coefficients.
func (t Affine) Coefficients() []float64 {
	return []float64{t.A, t.B, t.C, t.D, t.E, t.F}
}

// Apply maps a pixel coordinate to a CRS coordinate.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t.A*col + t.B*row + t.C, t.D*col + t.E*row + t.F
}

// Translate returns the transform shifted by the given number of pixels.
func (t Affine) Translate(cols, rows float64) Affine {
	x, y := t.Apply(cols, rows)
	t.C = x
	t.F = y
	return t
}

// Determinant of the linear part.
func (t Affine) Determinant() float64 {
	return t.A*t.E - t.B*t.D
}

// Inverse returns the transform mapping CRS coordinates back to pixels.
func (t Affine) Inverse() (Affine, error) {
	det := t.Determinant()
	if det == 0 || math.IsNaN(det) {
		return Affine{}, ErrSingularTransform
	}

	ia := t.E / det
	ib := -t.B / det
	id := -t.D / det
	ie := t.A / det

	return Affine{
		A: ia, B: ib, C: -t.C*ia - t.F*ib,
		D: id, E: ie, F: -t.C*id - t.F*ie,
	}, nil
}

// PixelSize returns the absolute pixel width and height in CRS units.
func (t Affine) PixelSize() (float64, float64) {
	return math.Hypot(t.A, t.D), math.Hypot(t.B, t.E)
}

// PixelCount returns how many whole pixels of the given size fit in extent.
func PixelCount(extent, size float64) int {
	if size <= 0 {
		return 0
	}
	return int(math.Floor(extent/size + pixelEpsilon))
}
