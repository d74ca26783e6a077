package cog

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// Reader provides window access to the full-resolution image of one COG.
// It is safe for concurrent use.
type Reader struct {
	href  string
	src   RangeReader
	bo    binary.ByteOrder
	ifd   IFD
	geo   GeoInfo
	cache *TileCache
}

// Open parses the header of the file behind src. href identifies the file
// in the shared cache. A nil cache disables caching.
func Open(ctx context.Context, href string, src RangeReader, cache *TileCache) (*Reader, error) {
	ifd, bo, err := parseTIFF(newHeaderReader(ctx, src))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", href, err)
	}

	geo, err := parseGeoInfo(&ifd)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", href, err)
	}

	return &Reader{
		href:  href,
		src:   src,
		bo:    bo,
		ifd:   ifd,
		geo:   geo,
		cache: cache,
	}, nil
}

// Href returns the file location.
func (r *Reader) Href() string {
	return r.href
}

// Width returns the full-resolution image width.
func (r *Reader) Width() int {
	return int(r.ifd.Width)
}

// Height returns the full-resolution image height.
func (r *Reader) Height() int {
	return int(r.ifd.Height)
}

// GeoInfo returns the parsed geographic metadata.
func (r *Reader) GeoInfo() GeoInfo {
	return r.geo
}

// NoData returns the GDAL nodata value, if declared.
func (r *Reader) NoData() (float64, bool) {
	if r.ifd.NoData == nil {
		return 0, false
	}
	return *r.ifd.NoData, true
}

// ReadWindow returns the first channel of the window as row-major samples.
func (r *Reader) ReadWindow(ctx context.Context, win raster.Window) ([]float64, error) {
	if win.Width <= 0 || win.Height <= 0 {
		return nil, fmt.Errorf("%w: %s", raster.ErrEmptyWindow, win)
	}
	if !win.Within(r.Width(), r.Height()) {
		return nil, fmt.Errorf("%w: %s not within %dx%d", ErrWindowOutOfBounds, win, r.Width(), r.Height())
	}

	bw := int(r.ifd.BlockWidth)
	bh := int(r.ifd.BlockHeight)
	across := r.ifd.BlocksAcross()

	colStart := win.ColOff / bw
	colEnd := (win.ColOff + win.Width - 1) / bw
	rowStart := win.RowOff / bh
	rowEnd := (win.RowOff + win.Height - 1) / bh

	out := make([]float64, win.Width*win.Height)

	for row := rowStart; row <= rowEnd; row++ {
		for col := colStart; col <= colEnd; col++ {
			block, err := r.readBlock(ctx, row*across+col)
			if err != nil {
				return nil, err
			}

			// Overlap of the block with the window, in image pixels.
			x0 := max(win.ColOff, col*bw)
			x1 := min(win.ColOff+win.Width, (col+1)*bw)
			y0 := max(win.RowOff, row*bh)
			y1 := min(win.RowOff+win.Height, (row+1)*bh)

			for y := y0; y < y1; y++ {
				src := block[(y-row*bh)*bw+(x0-col*bw) : (y-row*bh)*bw+(x1-col*bw)]
				dst := out[(y-win.RowOff)*win.Width+(x0-win.ColOff):]
				copy(dst, src)
			}
		}
	}

	return out, nil
}

// readBlock returns the decoded samples of one block, through the cache.
func (r *Reader) readBlock(ctx context.Context, idx int) ([]float64, error) {
	load := func(ctx context.Context) (any, error) {
		return r.loadBlock(ctx, idx)
	}

	if r.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		return v.([]float64), nil
	}

	v, err := r.cache.fetch(ctx, fmt.Sprintf("block:%s:%d", r.href, idx), load)
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

func (r *Reader) loadBlock(ctx context.Context, idx int) ([]float64, error) {
	offset := r.ifd.BlockOffsets[idx]
	size := r.ifd.BlockByteCounts[idx]

	// Sparse blocks are all zero.
	if size == 0 {
		return make([]float64, int(r.ifd.BlockWidth)*int(r.ifd.BlockHeight)), nil
	}

	raw, err := r.src.ReadRange(ctx, int64(offset), int64(size))
	if err != nil {
		return nil, fmt.Errorf("reading block %d of %s: %w", idx, r.href, err)
	}
	if uint64(len(raw)) < size {
		return nil, fmt.Errorf("reading block %d of %s: got %d of %d bytes", idx, r.href, len(raw), size)
	}

	samples, err := decodeBlock(&r.ifd, r.bo, raw)
	if err != nil {
		return nil, fmt.Errorf("decoding block %d of %s: %w", idx, r.href, err)
	}
	return samples, nil
}
