// Package app assembles the imagery check components from configuration.
package app

import (
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/imagery-check/internal/bands"
	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/check"
	"github.com/robert-malhotra/imagery-check/internal/cog"
	"github.com/robert-malhotra/imagery-check/internal/compare"
	"github.com/robert-malhotra/imagery-check/internal/config"
	"github.com/robert-malhotra/imagery-check/internal/opensearch"
	"github.com/robert-malhotra/imagery-check/internal/stacsearch"
	"github.com/robert-malhotra/imagery-check/internal/tiles"
)

// Components are the long-lived parts of the service. They are safe for
// concurrent use by multiple runs.
type Components struct {
	Searcher catalog.Searcher
	Pipeline *check.Pipeline
	Cache    *cog.TileCache
}

// Build creates the configured catalog backend and a pipeline around it.
func Build(cfg *config.Config, logger *slog.Logger) (*Components, error) {
	if logger == nil {
		logger = slog.Default()
	}

	searcher, err := NewSearcher(cfg, cfg.Catalog.Type, logger)
	if err != nil {
		return nil, err
	}

	cache := cog.NewTileCache(cfg.COG.CacheSize, cfg.COG.CacheTTL)
	pipeline, err := NewPipeline(cfg, searcher, cache, logger)
	if err != nil {
		return nil, err
	}

	return &Components{Searcher: searcher, Pipeline: pipeline, Cache: cache}, nil
}

// NewSearcher creates the catalog backend of the given type.
func NewSearcher(cfg *config.Config, kind string, logger *slog.Logger) (catalog.Searcher, error) {
	switch kind {
	case config.CatalogOpenSearch:
		filters := map[string]string{}
		if cfg.OpenSearch.ProductType != "" {
			filters["productType"] = cfg.OpenSearch.ProductType
		}
		client := opensearch.NewClient(cfg.OpenSearch.BaseURL, cfg.OpenSearch.Timeout).
			WithLogger(logger).
			WithRetry(cfg.OpenSearch.MaxAttempts, cfg.OpenSearch.RetryDelay).
			WithChunkDays(cfg.OpenSearch.ChunkDays).
			WithMaxRecords(cfg.OpenSearch.MaxRecords).
			WithFilters(filters)
		logger.Info("using opensearch catalog", "base_url", cfg.OpenSearch.BaseURL)
		return opensearch.NewBackend(client, logger), nil

	case config.CatalogSTAC:
		client := stacsearch.NewClient(cfg.STAC.BaseURL, cfg.STAC.Timeout).WithLogger(logger)
		logger.Info("using STAC catalog", "base_url", cfg.STAC.BaseURL, "collections", cfg.STAC.Collections)
		return stacsearch.NewBackend(client, cfg.STAC.Collections, cfg.STAC.PageSize, logger), nil

	default:
		return nil, fmt.Errorf("unknown catalog type %q", kind)
	}
}

// NewPipeline wires the band extractor, tile fetcher and comparison engine
// around searcher, applying the check policy from cfg.
func NewPipeline(cfg *config.Config, searcher catalog.Searcher, cache *cog.TileCache, logger *slog.Logger) (*check.Pipeline, error) {
	if cache == nil {
		cache = cog.NewTileCache(cfg.COG.CacheSize, cfg.COG.CacheTTL)
	}

	reader := cog.NewClient(cfg.COG.Timeout, cache).WithLogger(logger)
	extractor := bands.NewExtractor(reader).
		WithLogger(logger).
		WithWorkers(cfg.COG.Workers)

	fetcher := tiles.NewFetcher(cfg.WMS.URL, cfg.WMS.Timeout).WithLogger(logger)
	if cfg.WMS.Format != "" {
		fetcher = fetcher.WithFormat(cfg.WMS.Format)
	}

	engine := compare.NewEngine()
	nodata, ok, err := cfg.Check.NoDataValue()
	if err != nil {
		return nil, err
	}
	if ok {
		engine = engine.WithNoData(nodata)
	}

	pipeline := check.NewPipeline(searcher, extractor, fetcher, engine).
		WithLogger(logger).
		WithThresholds(check.Thresholds{
			MinCorrelation: cfg.Check.MinCorrelation,
			MaxPValue:      cfg.Check.MaxPValue,
			MinValidPixels: cfg.Check.MinValidPixels,
		}).
		WithRunTimeout(cfg.Check.RunTimeout).
		WithResolution(cfg.Check.Resolution).
		WithSearchLimit(cfg.Check.SearchLimit)
	if cfg.Check.MaxCloudCover > 0 {
		pipeline = pipeline.WithMaxCloudCover(cfg.Check.MaxCloudCover)
	}

	return pipeline, nil
}
