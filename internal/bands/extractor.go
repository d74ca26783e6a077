// Package bands reads the reference red, green and blue bands of a scene over
// an area of interest, each on its own native pixel grid.
package bands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// DefaultWorkers is the number of bands read concurrently.
const DefaultWorkers = 3

// ErrAssetRead is returned when a reference band cannot be read: the asset is
// unreachable, the window falls outside its extent, or the bands disagree on size.
var ErrAssetRead = errors.New("asset read failed")

// RasterReader reads one window of the first channel of a remote raster.
// cog.Client implements it.
type RasterReader interface {
	ReadWindow(ctx context.Context, href string, win raster.Window) ([]float64, error)
}

// Extractor reads aligned reference windows from scene assets.
type Extractor struct {
	reader  RasterReader
	bands   []string
	workers int
	logger  *slog.Logger
}

// NewExtractor creates an extractor for the red, green and blue bands.
func NewExtractor(reader RasterReader) *Extractor {
	return &Extractor{
		reader:  reader,
		bands:   catalog.RGBBands,
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
}

// WithLogger sets a custom logger for the extractor
func (e *Extractor) WithLogger(logger *slog.Logger) *Extractor {
	e.logger = logger
	return e
}

// WithWorkers sets how many bands are read at once.
func (e *Extractor) WithWorkers(n int) *Extractor {
	if n > 0 {
		e.workers = n
	}
	return e
}

// Extract reads the window of each band covering area and stacks the bands
// in [red, green, blue] order. The returned transform places the blue window
// on the scene's grid; the image carries the same transform.
func (e *Extractor) Extract(ctx context.Context, scene *catalog.SceneRecord, area geo.Area) (*raster.Image, raster.Affine, error) {
	start := time.Now()

	crs, err := scene.CRS()
	if err != nil {
		return nil, raster.Affine{}, err
	}
	local, err := area.Reproject(crs)
	if err != nil {
		return nil, raster.Affine{}, fmt.Errorf("reprojecting area to %s: %w", crs, err)
	}
	bound := local.Bound()

	type plan struct {
		asset catalog.Asset
		win   raster.Window
	}
	plans := make([]plan, len(e.bands))
	for i, name := range e.bands {
		asset, err := scene.Band(name)
		if err != nil {
			return nil, raster.Affine{}, err
		}
		win, err := raster.WindowFromBounds(bound, *asset.Transform)
		if err != nil {
			return nil, raster.Affine{}, fmt.Errorf("%w: scene %s band %s: %v", ErrAssetRead, scene.ID, name, err)
		}
		plans[i] = plan{asset: asset, win: win}
	}

	ref := plans[0].win
	for i, p := range plans[1:] {
		if p.win.Width != ref.Width || p.win.Height != ref.Height {
			return nil, raster.Affine{}, fmt.Errorf("%w: scene %s band %s window %s does not match %s window %s",
				ErrAssetRead, scene.ID, e.bands[i+1], p.win, e.bands[0], ref)
		}
	}

	out := make([][]float64, len(plans))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, p := range plans {
		g.Go(func() error {
			data, err := e.reader.ReadWindow(gctx, p.asset.Href, p.win)
			if err != nil {
				return fmt.Errorf("%w: scene %s band %s (%s): %w", ErrAssetRead, scene.ID, e.bands[i], p.asset.Href, err)
			}
			if len(data) != p.win.Size() {
				return fmt.Errorf("%w: scene %s band %s returned %d samples for %s",
					ErrAssetRead, scene.ID, e.bands[i], len(data), p.win)
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, raster.Affine{}, err
	}

	last := plans[len(plans)-1]
	transform := last.win.Transform(*last.asset.Transform)

	img, err := raster.NewImage(out, ref.Width, ref.Height, transform, crs)
	if err != nil {
		return nil, raster.Affine{}, fmt.Errorf("%w: scene %s: %v", ErrAssetRead, scene.ID, err)
	}

	e.logger.DebugContext(ctx, "reference bands extracted",
		slog.String("scene_id", scene.ID),
		slog.String("crs", crs.String()),
		slog.String("window", ref.String()),
		slog.Duration("duration", time.Since(start)),
	)

	return img, transform, nil
}
