package raster

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

// ErrBandShape is returned when a band's length does not match the image size.
var ErrBandShape = errors.New("band does not match image dimensions")

// Image is a georeferenced multi-band raster. Each band is a row-major slice
// of Width*Height samples. Images are owned by their producer until handed
// to a consumer, which treats them as read-only.
type Image struct {
	Bands     [][]float64
	Width     int
	Height    int
	Transform Affine
	CRS       geo.CRS
}

// NewImage validates band lengths and returns the image.
func NewImage(bands [][]float64, width, height int, t Affine, crs geo.CRS) (*Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrBandShape, width, height)
	}
	for i, b := range bands {
		if len(b) != width*height {
			return nil, fmt.Errorf("%w: band %d has %d samples, want %d", ErrBandShape, i, len(b), width*height)
		}
	}
	return &Image{
		Bands:     bands,
		Width:     width,
		Height:    height,
		Transform: t,
		CRS:       crs,
	}, nil
}

// Count returns the number of bands.
func (im *Image) Count() int {
	return len(im.Bands)
}

// At returns the sample of band b at (row, col).
func (im *Image) At(b, row, col int) float64 {
	return im.Bands[b][row*im.Width+col]
}

// Pixels returns Width*Height.
func (im *Image) Pixels() int {
	return im.Width * im.Height
}

// SameShape reports whether two images have the same width and height.
func (im *Image) SameShape(other *Image) bool {
	return im.Width == other.Width && im.Height == other.Height
}

// Bound returns the image footprint in its CRS.
func (im *Image) Bound() orb.Bound {
	x0, y0 := im.Transform.Apply(0, 0)
	x1, y1 := im.Transform.Apply(float64(im.Width), float64(im.Height))
	return orb.Bound{
		Min: orb.Point{min(x0, x1), min(y0, y1)},
		Max: orb.Point{max(x0, x1), max(y0, y1)},
	}
}
