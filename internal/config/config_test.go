package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	t.Setenv("WMS_URL", "https://tiles.example.com/wms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Test defaults
	if cfg.Server.Address() != "0.0.0.0:8080" {
		t.Errorf("expected default address 0.0.0.0:8080, got %s", cfg.Server.Address())
	}

	if cfg.Catalog.Type != CatalogSTAC {
		t.Errorf("expected default catalog stac, got %s", cfg.Catalog.Type)
	}

	if cfg.STAC.BaseURL != "https://earth-search.aws.element84.com/v1" {
		t.Errorf("expected default STAC base URL, got %s", cfg.STAC.BaseURL)
	}

	if len(cfg.STAC.Collections) != 1 || cfg.STAC.Collections[0] != "sentinel-2-l2a" {
		t.Errorf("expected default collection sentinel-2-l2a, got %v", cfg.STAC.Collections)
	}

	if cfg.OpenSearch.ChunkDays != 10 || cfg.OpenSearch.MaxAttempts != 5 {
		t.Errorf("unexpected OpenSearch defaults: %+v", cfg.OpenSearch)
	}

	if cfg.WMS.Layer != "coramaps:s2_rgb" {
		t.Errorf("expected default layer coramaps:s2_rgb, got %s", cfg.WMS.Layer)
	}

	if cfg.Check.RunTimeout != 5*time.Minute {
		t.Errorf("expected default run timeout 5m, got %s", cfg.Check.RunTimeout)
	}

	if cfg.Check.DurationDays != 30 || cfg.Check.EndOffsetDays != 2 {
		t.Errorf("unexpected check window defaults: %d, %d", cfg.Check.DurationDays, cfg.Check.EndOffsetDays)
	}

	wantBounds := []float64{0.748182, 44.6840129, 0.7618833, 44.69329}
	for i, v := range wantBounds {
		if cfg.Check.Bounds[i] != v {
			t.Errorf("expected bound %d = %v, got %v", i, v, cfg.Check.Bounds[i])
		}
	}

	if cfg.Check.MinCorrelation != 0.9 || cfg.Check.MaxPValue != 0.05 || cfg.Check.MinValidPixels != 100 {
		t.Errorf("unexpected threshold defaults: %+v", cfg.Check)
	}

	if _, ok, _ := cfg.Check.NoDataValue(); ok {
		t.Errorf("expected no nodata value by default")
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadWithCustomValues(t *testing.T) {
	t.Setenv("WMS_URL", "https://tiles.example.com/wms")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("CATALOG_TYPE", "opensearch")
	t.Setenv("OPENSEARCH_CHUNK_DAYS", "5")
	t.Setenv("STAC_COLLECTIONS", "sentinel-2-l2a,sentinel-2-c1-l2a")
	t.Setenv("CHECK_RUN_TIMEOUT", "90s")
	t.Setenv("CHECK_BOUNDS", "1,2,3,4")
	t.Setenv("CHECK_NODATA", "65535")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}

	if cfg.Catalog.Type != CatalogOpenSearch {
		t.Errorf("expected catalog opensearch, got %s", cfg.Catalog.Type)
	}

	if cfg.OpenSearch.ChunkDays != 5 {
		t.Errorf("expected chunk days 5, got %d", cfg.OpenSearch.ChunkDays)
	}

	if len(cfg.STAC.Collections) != 2 {
		t.Errorf("expected 2 collections, got %v", cfg.STAC.Collections)
	}

	if cfg.Check.RunTimeout != 90*time.Second {
		t.Errorf("expected run timeout 90s, got %s", cfg.Check.RunTimeout)
	}

	if cfg.Check.Bounds[3] != 4 {
		t.Errorf("expected custom bounds, got %v", cfg.Check.Bounds)
	}

	if v, ok, err := cfg.Check.NoDataValue(); err != nil || !ok || v != 65535 {
		t.Errorf("expected nodata 65535, got %v %v %v", v, ok, err)
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoadMissingWMSURL(t *testing.T) {
	os.Unsetenv("WMS_URL")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when WMS_URL is not set")
	}
}

func TestLoadDotEnv(t *testing.T) {
	os.Unsetenv("WMS_URL")
	os.Unsetenv("WMS_LAYER")
	t.Cleanup(func() {
		os.Unsetenv("WMS_URL")
		os.Unsetenv("WMS_LAYER")
	})

	path := filepath.Join(t.TempDir(), "check.env")
	content := "WMS_URL=https://dotenv.example.com/wms\nWMS_LAYER=myw:tci\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.WMS.URL != "https://dotenv.example.com/wms" || cfg.WMS.Layer != "myw:tci" {
		t.Errorf("expected values from env file, got %+v", cfg.WMS)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{
				Port:            8080,
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    6 * time.Minute,
				ShutdownTimeout: 10 * time.Second,
			},
			Catalog:    CatalogConfig{Type: CatalogSTAC},
			OpenSearch: OpenSearchConfig{BaseURL: "https://resto", Timeout: time.Second, MaxAttempts: 5, ChunkDays: 10},
			STAC:       STACConfig{BaseURL: "https://stac", Collections: []string{"sentinel-2-l2a"}, Timeout: time.Second},
			WMS:        WMSConfig{URL: "https://wms", Layer: "rgb"},
			Check: CheckConfig{
				RunTimeout: 5 * time.Minute,
				Bounds:     []float64{0, 0, 1, 1},
				Resolution: 10,
			},
			COG:     COGConfig{Workers: 3},
			Logging: LoggingConfig{Level: "info", Format: "json"},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server port"},
		{"bad catalog", func(c *Config) { c.Catalog.Type = "cmr" }, "catalog type"},
		{"no attempts", func(c *Config) { c.OpenSearch.MaxAttempts = 0 }, "max attempts"},
		{"no collections", func(c *Config) { c.STAC.Collections = nil }, "STAC collection"},
		{"no wms url", func(c *Config) { c.WMS.URL = "" }, "WMS URL"},
		{"write timeout below run timeout", func(c *Config) { c.Server.WriteTimeout = time.Minute }, "write timeout"},
		{"short bounds", func(c *Config) { c.Check.Bounds = []float64{1, 2, 3} }, "bounds"},
		{"bad nodata", func(c *Config) { c.Check.NoData = "none" }, "nodata"},
		{"no workers", func(c *Config) { c.COG.Workers = 0 }, "workers"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "log level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
