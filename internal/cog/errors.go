// Package cog reads windows of Cloud Optimized GeoTIFFs over HTTP range
// requests. Only the full-resolution image is read; blocks are decoded into
// float64 samples of the first channel and cached process-wide.
package cog

import "errors"

var (
	// ErrUnsupportedTIFF is returned for layouts or encodings the reader does not handle.
	ErrUnsupportedTIFF = errors.New("unsupported TIFF")

	// ErrWindowOutOfBounds is returned when a window extends past the image.
	ErrWindowOutOfBounds = errors.New("window outside image extent")
)
