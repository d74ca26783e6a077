// Package check runs the imagery cross-validation pipeline: catalog search,
// scene selection, reference extraction and tile fetch, then comparison.
package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/compare"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	"github.com/robert-malhotra/imagery-check/internal/raster"
	"github.com/robert-malhotra/imagery-check/internal/tiles"
)

// Pipeline defaults.
const (
	DefaultRunTimeout = 5 * time.Minute
	DefaultResolution = 10.0
)

// ErrInvalidInput is returned for requests that cannot start a run.
var ErrInvalidInput = errors.New("invalid check input")

// Extractor reads the reference bands of a scene over an area.
// bands.Extractor implements it.
type Extractor interface {
	Extract(ctx context.Context, scene *catalog.SceneRecord, area geo.Area) (*raster.Image, raster.Affine, error)
}

// TileFetcher renders an area through the tile service.
// tiles.Fetcher implements it.
type TileFetcher interface {
	URL(req tiles.Request) (string, error)
	Fetch(ctx context.Context, req tiles.Request) (*raster.Image, error)
}

// Input describes one run.
type Input struct {
	Area  geo.Area
	Span  catalog.TimeSpan
	Layer string
}

// Pipeline wires the components of a run together. It holds no per-run
// state, so one Pipeline serves concurrent runs.
type Pipeline struct {
	searcher   catalog.Searcher
	extractor  Extractor
	fetcher    TileFetcher
	engine     *compare.Engine
	thresholds Thresholds
	timeout    time.Duration
	resolution float64
	limit      int
	maxCloud   *float64
	logger     *slog.Logger
}

// NewPipeline creates a pipeline with default thresholds and run timeout.
func NewPipeline(searcher catalog.Searcher, extractor Extractor, fetcher TileFetcher, engine *compare.Engine) *Pipeline {
	if engine == nil {
		engine = compare.NewEngine()
	}
	return &Pipeline{
		searcher:   searcher,
		extractor:  extractor,
		fetcher:    fetcher,
		engine:     engine,
		thresholds: DefaultThresholds(),
		timeout:    DefaultRunTimeout,
		resolution: DefaultResolution,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the pipeline
func (p *Pipeline) WithLogger(logger *slog.Logger) *Pipeline {
	p.logger = logger
	return p
}

// WithThresholds replaces the pass/fail policy.
func (p *Pipeline) WithThresholds(t Thresholds) *Pipeline {
	p.thresholds = t
	return p
}

// WithRunTimeout sets the end-to-end deadline of a run. Zero disables it.
func (p *Pipeline) WithRunTimeout(d time.Duration) *Pipeline {
	p.timeout = d
	return p
}

// WithResolution sets the ground resolution of the tile request.
func (p *Pipeline) WithResolution(res float64) *Pipeline {
	if res > 0 {
		p.resolution = res
	}
	return p
}

// WithSearchLimit caps the number of catalog records considered.
func (p *Pipeline) WithSearchLimit(n int) *Pipeline {
	p.limit = n
	return p
}

// WithMaxCloudCover restricts the catalog search by eo:cloud_cover.
func (p *Pipeline) WithMaxCloudCover(v float64) *Pipeline {
	p.maxCloud = &v
	return p
}

// Run executes the pipeline once. Catalog, extraction, tile and comparison
// failures are returned as errors; threshold violations are reported in the
// verdict.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Verdict, error) {
	if in.Area.IsEmpty() {
		return nil, fmt.Errorf("%w: empty area", ErrInvalidInput)
	}
	if in.Layer == "" {
		return nil, fmt.Errorf("%w: no layer", ErrInvalidInput)
	}

	start := time.Now()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.logger.InfoContext(ctx, "starting imagery check",
		slog.String("backend", p.searcher.Name()),
		slog.String("span", in.Span.String()),
		slog.String("layer", in.Layer),
		slog.Any("bbox", in.Area.BBox()),
	)

	records, err := p.searcher.Search(ctx, &catalog.Query{
		Area:          in.Area,
		Span:          in.Span,
		Limit:         p.limit,
		MaxCloudCover: p.maxCloud,
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s catalog for %s: %w", p.searcher.Name(), in.Span, err)
	}

	scene, err := catalog.SelectBest(records)
	if err != nil {
		return nil, fmt.Errorf("selecting scene for %s: %w", in.Span, err)
	}
	score, _ := catalog.CloudScore(scene)

	day, err := scene.AcquisitionDate()
	if err != nil {
		return nil, err
	}
	crs, err := scene.CRS()
	if err != nil {
		return nil, err
	}
	local, err := in.Area.Reproject(crs)
	if err != nil {
		return nil, fmt.Errorf("reprojecting area to %s for scene %s: %w", crs, scene.ID, err)
	}

	p.logger.InfoContext(ctx, "selected scene",
		slog.String("scene_id", scene.ID),
		slog.String("date", day.Format(catalog.DateFormat)),
		slog.Float64("cloud_score", score),
		slog.Int("candidates", len(records)),
	)

	tileReq := tiles.Request{
		Bound:      local.Bound(),
		CRS:        crs,
		Start:      day,
		Layer:      in.Layer,
		Resolution: p.resolution,
	}
	tileURL, err := p.fetcher.URL(tileReq)
	if err != nil {
		return nil, fmt.Errorf("scene %s: %w", scene.ID, err)
	}

	var ref, tile *raster.Image
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		img, _, err := p.extractor.Extract(gctx, scene, in.Area)
		if err != nil {
			return fmt.Errorf("extracting reference bands: %w", err)
		}
		ref = img
		return nil
	})
	g.Go(func() error {
		img, err := p.fetcher.Fetch(gctx, tileReq)
		if err != nil {
			return fmt.Errorf("fetching tile for scene %s on %s: %w", scene.ID, day.Format(catalog.DateFormat), err)
		}
		tile = img
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := p.engine.Compare(tile, ref)
	if err != nil {
		return nil, fmt.Errorf("comparing scene %s with layer %s: %w", scene.ID, in.Layer, err)
	}

	passed, metric, failure := p.thresholds.Evaluate(result)
	v := &Verdict{
		Passed:     passed,
		Metric:     metric,
		Failure:    failure,
		Result:     result,
		SceneID:    scene.ID,
		SceneDate:  day,
		CloudScore: score,
		Candidates: len(records),
		Backend:    p.searcher.Name(),
		Layer:      in.Layer,
		CRS:        crs.String(),
		TileURL:    tileURL,
		Width:      ref.Width,
		Height:     ref.Height,
		BlankTile:  tiles.Blank(tile),
		Duration:   time.Since(start),
	}

	if passed {
		p.logger.InfoContext(ctx, "imagery check passed",
			slog.String("scene_id", scene.ID),
			slog.Float64("correlation", result.Correlation),
			slog.Float64("p_value", result.PValue),
			slog.Int("num_valid_pixels", result.NumValidPixels),
			slog.Duration("duration", v.Duration),
		)
	} else {
		p.logger.ErrorContext(ctx, "imagery check failed",
			slog.String("scene_id", scene.ID),
			slog.String("metric", metric),
			slog.String("error", failure),
			slog.Bool("blank_tile", v.BlankTile),
		)
	}

	return v, nil
}
