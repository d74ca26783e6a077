// Package config provides configuration management for the imagery check service.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Catalog backend names.
const (
	CatalogOpenSearch = "opensearch"
	CatalogSTAC       = "stac"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Catalog    CatalogConfig    `envPrefix:"CATALOG_"`
	OpenSearch OpenSearchConfig `envPrefix:"OPENSEARCH_"`
	STAC       STACConfig       `envPrefix:"STAC_"`
	WMS        WMSConfig        `envPrefix:"WMS_"`
	Check      CheckConfig      `envPrefix:"CHECK_"`
	COG        COGConfig        `envPrefix:"COG_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"6m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" envDefault:"*"`
	BaseURL         string        `env:"BASE_URL" envDefault:""` // public URL for links, derived from the request when empty
}

// CatalogConfig contains catalog backend selection.
type CatalogConfig struct {
	// Type specifies which backend the check uses: "opensearch" or "stac"
	Type string `env:"TYPE" envDefault:"stac"`
}

// OpenSearchConfig contains the paginated resto search client configuration.
type OpenSearchConfig struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://catalogue.dataspace.copernicus.eu/resto/api/collections/Sentinel2/search.json"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"1s"`
	ChunkDays   int           `env:"CHUNK_DAYS" envDefault:"10"`
	MaxRecords  int           `env:"MAX_RECORDS" envDefault:"200"`
	ProductType string        `env:"PRODUCT_TYPE" envDefault:"L2A"`
}

// STACConfig contains STAC API item search configuration.
type STACConfig struct {
	BaseURL     string        `env:"BASE_URL" envDefault:"https://earth-search.aws.element84.com/v1"`
	Collections []string      `env:"COLLECTIONS" envDefault:"sentinel-2-l2a"`
	PageSize    int           `env:"PAGE_SIZE" envDefault:"250"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// WMSConfig contains tile service configuration.
type WMSConfig struct {
	URL     string        `env:"URL"` // GetMap endpoint (required)
	Layer   string        `env:"LAYER" envDefault:"coramaps:s2_rgb"`
	Format  string        `env:"FORMAT" envDefault:"image/png"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"60s"`
}

// CheckConfig contains pipeline defaults and the pass/fail policy.
type CheckConfig struct {
	RunTimeout     time.Duration `env:"RUN_TIMEOUT" envDefault:"5m"`
	DurationDays   int           `env:"DURATION_DAYS" envDefault:"30"`
	EndOffsetDays  int           `env:"END_OFFSET_DAYS" envDefault:"2"`
	Bounds         []float64     `env:"BOUNDS" envDefault:"0.748182,44.6840129,0.7618833,44.69329"`
	Resolution     float64       `env:"RESOLUTION" envDefault:"10"`
	MaxCloudCover  float64       `env:"MAX_CLOUD_COVER" envDefault:"0"` // 0 disables the filter
	SearchLimit    int           `env:"SEARCH_LIMIT" envDefault:"0"`
	MinCorrelation float64       `env:"MIN_CORRELATION" envDefault:"0.9"`
	MaxPValue      float64       `env:"MAX_P_VALUE" envDefault:"0.05"`
	MinValidPixels int           `env:"MIN_VALID_PIXELS" envDefault:"100"`
	NoData         string        `env:"NODATA" envDefault:""` // optional reference no-data value
}

// COGConfig contains remote band reader configuration.
type COGConfig struct {
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"60s"`
	CacheSize int64         `env:"CACHE_SIZE" envDefault:"1024"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"10m"`
	Workers   int           `env:"WORKERS" envDefault:"3"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables, after loading any
// .env files given (".env" when none are). Missing files are ignored and
// variables already set in the environment take precedence.
// It returns an error if required fields are missing or invalid.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		_ = godotenv.Load(f) // ignore missing file
	}

	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	// Validate catalog config
	if c.Catalog.Type != CatalogOpenSearch && c.Catalog.Type != CatalogSTAC {
		return fmt.Errorf("catalog type must be 'opensearch' or 'stac', got %q", c.Catalog.Type)
	}

	if c.OpenSearch.BaseURL == "" {
		return fmt.Errorf("OpenSearch base URL is required")
	}

	if c.OpenSearch.Timeout <= 0 {
		return fmt.Errorf("OpenSearch timeout must be positive, got %s", c.OpenSearch.Timeout)
	}

	if c.OpenSearch.MaxAttempts < 1 {
		return fmt.Errorf("OpenSearch max attempts must be at least 1, got %d", c.OpenSearch.MaxAttempts)
	}

	if c.OpenSearch.ChunkDays < 1 {
		return fmt.Errorf("OpenSearch chunk days must be at least 1, got %d", c.OpenSearch.ChunkDays)
	}

	if c.STAC.BaseURL == "" {
		return fmt.Errorf("STAC base URL is required")
	}

	if len(c.STAC.Collections) == 0 {
		return fmt.Errorf("at least one STAC collection is required")
	}

	if c.STAC.Timeout <= 0 {
		return fmt.Errorf("STAC timeout must be positive, got %s", c.STAC.Timeout)
	}

	// Validate WMS config
	if c.WMS.URL == "" {
		return fmt.Errorf("WMS URL is required")
	}

	if c.WMS.Layer == "" {
		return fmt.Errorf("WMS layer is required")
	}

	// Validate check config
	if c.Check.RunTimeout <= 0 {
		return fmt.Errorf("check run timeout must be positive, got %s", c.Check.RunTimeout)
	}

	if c.Server.WriteTimeout < c.Check.RunTimeout {
		return fmt.Errorf("server write timeout (%s) must be >= check run timeout (%s)", c.Server.WriteTimeout, c.Check.RunTimeout)
	}

	if c.Check.DurationDays < 0 {
		return fmt.Errorf("check duration days must not be negative, got %d", c.Check.DurationDays)
	}

	if len(c.Check.Bounds) != 4 {
		return fmt.Errorf("check bounds must have 4 values, got %d", len(c.Check.Bounds))
	}

	if c.Check.Resolution <= 0 {
		return fmt.Errorf("check resolution must be positive, got %g", c.Check.Resolution)
	}

	if _, _, err := c.Check.NoDataValue(); err != nil {
		return err
	}

	if c.COG.Workers < 1 {
		return fmt.Errorf("COG workers must be at least 1, got %d", c.COG.Workers)
	}

	// Validate logging config
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NoDataValue returns the configured reference no-data value, if any.
func (c *CheckConfig) NoDataValue() (float64, bool, error) {
	if c.NoData == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(c.NoData, 64)
	if err != nil {
		return 0, false, fmt.Errorf("invalid check nodata value %q: %w", c.NoData, err)
	}
	return v, true, nil
}
