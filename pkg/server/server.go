// Package server provides a public API for embedding the imagery check service.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robert-malhotra/imagery-check/internal/api"
	"github.com/robert-malhotra/imagery-check/internal/app"
	"github.com/robert-malhotra/imagery-check/internal/config"
)

// CatalogType specifies which catalog the check searches.
type CatalogType string

const (
	// CatalogSTAC uses a STAC API item search.
	CatalogSTAC CatalogType = config.CatalogSTAC
	// CatalogOpenSearch uses a paginated resto OpenSearch endpoint.
	CatalogOpenSearch CatalogType = config.CatalogOpenSearch
)

// Options configures the imagery check server.
type Options struct {
	// BaseURL is the public-facing URL for links in scene listings.
	// Default: derived from each request
	BaseURL string

	// Catalog specifies which catalog backend to search.
	// Default: CatalogSTAC
	Catalog CatalogType

	// STACBaseURL is the STAC API root.
	// Default: "https://earth-search.aws.element84.com/v1"
	STACBaseURL string

	// STACCollections are the collections searched.
	// Default: ["sentinel-2-l2a"]
	STACCollections []string

	// OpenSearchURL is the resto search.json endpoint.
	// Default: the Copernicus Data Space Sentinel-2 collection
	OpenSearchURL string

	// WMSURL is the GetMap endpoint of the tile service (required).
	WMSURL string

	// Layer is the tile layer checked when a request names none.
	// Default: "coramaps:s2_rgb"
	Layer string

	// Bounds is the default area of interest as west, south, east, north.
	// Default: a 1 km square near Agen, France
	Bounds []float64

	// Timeout is the upstream request timeout.
	// Default: 30s
	Timeout time.Duration

	// RunTimeout bounds one whole check.
	// Default: 5m
	RunTimeout time.Duration

	// MinCorrelation, MaxPValue and MinValidPixels are the pass thresholds.
	// Default: 0.9, 0.05 and 100
	MinCorrelation float64
	MaxPValue      float64
	MinValidPixels int

	// Logger is the slog logger to use.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Server is an imagery check server that can be embedded in another application.
type Server struct {
	router     chi.Router
	components *app.Components
}

// New creates a new imagery check server with the given options.
func New(opts Options) (*Server, error) {
	if opts.WMSURL == "" {
		return nil, fmt.Errorf("WMS URL is required")
	}

	// Apply defaults
	if opts.Catalog == "" {
		opts.Catalog = CatalogSTAC
	}
	if opts.STACBaseURL == "" {
		opts.STACBaseURL = "https://earth-search.aws.element84.com/v1"
	}
	if len(opts.STACCollections) == 0 {
		opts.STACCollections = []string{"sentinel-2-l2a"}
	}
	if opts.OpenSearchURL == "" {
		opts.OpenSearchURL = "https://catalogue.dataspace.copernicus.eu/resto/api/collections/Sentinel2/search.json"
	}
	if opts.Layer == "" {
		opts.Layer = "coramaps:s2_rgb"
	}
	if len(opts.Bounds) == 0 {
		opts.Bounds = []float64{0.748182, 44.6840129, 0.7618833, 44.69329}
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RunTimeout == 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	if opts.MinCorrelation == 0 {
		opts.MinCorrelation = 0.9
	}
	if opts.MaxPValue == 0 {
		opts.MaxPValue = 0.05
	}
	if opts.MinValidPixels == 0 {
		opts.MinValidPixels = 100
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Build internal config
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    opts.RunTimeout + time.Minute,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			BaseURL:         opts.BaseURL,
		},
		Catalog: config.CatalogConfig{
			Type: string(opts.Catalog),
		},
		OpenSearch: config.OpenSearchConfig{
			BaseURL:     opts.OpenSearchURL,
			Timeout:     opts.Timeout,
			MaxAttempts: 5,
			RetryDelay:  time.Second,
			ChunkDays:   10,
			MaxRecords:  200,
			ProductType: "L2A",
		},
		STAC: config.STACConfig{
			BaseURL:     opts.STACBaseURL,
			Collections: opts.STACCollections,
			Timeout:     opts.Timeout,
		},
		WMS: config.WMSConfig{
			URL:     opts.WMSURL,
			Layer:   opts.Layer,
			Format:  "image/png",
			Timeout: opts.Timeout,
		},
		Check: config.CheckConfig{
			RunTimeout:     opts.RunTimeout,
			DurationDays:   30,
			EndOffsetDays:  2,
			Bounds:         opts.Bounds,
			Resolution:     10,
			MinCorrelation: opts.MinCorrelation,
			MaxPValue:      opts.MaxPValue,
			MinValidPixels: opts.MinValidPixels,
		},
		COG: config.COGConfig{
			Timeout:   opts.Timeout,
			CacheSize: 1024,
			CacheTTL:  10 * time.Minute,
			Workers:   3,
		},
		Logging: config.LoggingConfig{Level: "info", Format: "json"},
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	components, err := app.Build(cfg, opts.Logger)
	if err != nil {
		return nil, err
	}

	// Create handlers and router
	handlers := api.NewHandlers(cfg, components.Pipeline, components.Searcher, opts.Logger)
	router := api.NewRouter(handlers, opts.Logger)

	return &Server{
		router:     router,
		components: components,
	}, nil
}

// Router returns the chi.Router for mounting in another application.
func (s *Server) Router() chi.Router {
	return s.router
}

// Handler returns the server as a plain http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops background goroutines (COG cache eviction).
func (s *Server) Close() {
	if s.components != nil && s.components.Cache != nil {
		s.components.Cache.Stop()
	}
}
