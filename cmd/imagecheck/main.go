// Imagery check one-shot runner. It prints the verdict as JSON and exits
// 0 when the layer passed, 1 when it failed and 2 on error.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/api"
	"github.com/robert-malhotra/imagery-check/internal/app"
	"github.com/robert-malhotra/imagery-check/internal/check"
	"github.com/robert-malhotra/imagery-check/internal/config"
	"github.com/robert-malhotra/imagery-check/internal/geo"
	intstac "github.com/robert-malhotra/imagery-check/internal/stac"
)

const (
	exitPassed = 0
	exitFailed = 1
	exitError  = 2
)

type options struct {
	envFile  string
	start    string
	end      string
	duration int
	layer    string
	bounds   string
	catalog  string
}

func main() {
	var opts options
	flag.StringVar(&opts.envFile, "env", ".env", "dotenv file to load before reading the environment")
	flag.StringVar(&opts.start, "start", "", "window start date (YYYY-MM-DD)")
	flag.StringVar(&opts.end, "end", "", "window end date (YYYY-MM-DD)")
	flag.IntVar(&opts.duration, "duration", -1, "window length in days when start is empty (default CHECK_DURATION_DAYS)")
	flag.StringVar(&opts.layer, "layer", "", "tile layer to check (default WMS_LAYER)")
	flag.StringVar(&opts.bounds, "bounds", "", "area of interest as west,south,east,north (default CHECK_BOUNDS)")
	flag.StringVar(&opts.catalog, "catalog", "", "catalog backend: opensearch or stac (default CATALOG_TYPE)")
	flag.Parse()

	passed, err := run(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitError)
	}
	if !passed {
		os.Exit(exitFailed)
	}
	os.Exit(exitPassed)
}

func run(opts options) (bool, error) {
	cfg, err := config.Load(opts.envFile)
	if err != nil {
		return false, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.catalog != "" {
		cfg.Catalog.Type = opts.catalog
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	in, err := buildInput(cfg, opts, time.Now())
	if err != nil {
		return false, err
	}

	components, err := app.Build(cfg, logger)
	if err != nil {
		return false, fmt.Errorf("failed to build components: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("running imagery check",
		"catalog", components.Searcher.Name(),
		"span", in.Span.String(),
		"layer", in.Layer,
	)

	verdict, err := components.Pipeline.Run(ctx, in)
	if err != nil {
		return false, err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(api.NewCheckResponse(verdict)); err != nil {
		return false, fmt.Errorf("failed to write verdict: %w", err)
	}

	return verdict.Passed, nil
}

func buildInput(cfg *config.Config, opts options, now time.Time) (check.Input, error) {
	duration := cfg.Check.DurationDays
	if opts.duration >= 0 {
		duration = opts.duration
	}
	span, err := check.Window(opts.start, opts.end, duration, cfg.Check.EndOffsetDays, now)
	if err != nil {
		return check.Input{}, err
	}

	bounds := cfg.Check.Bounds
	if opts.bounds != "" {
		bounds, err = intstac.ParseBBox(opts.bounds)
		if err != nil {
			return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
		}
	}
	if len(bounds) != 4 {
		return check.Input{}, fmt.Errorf("invalid bounds: expected west,south,east,north")
	}
	if err := intstac.ValidateBBox(bounds); err != nil {
		return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
	}
	area, err := geo.AreaFromBBox(bounds, geo.WGS84)
	if err != nil {
		return check.Input{}, fmt.Errorf("invalid bounds: %w", err)
	}

	layer := strings.TrimSpace(opts.layer)
	if layer == "" {
		layer = cfg.WMS.Layer
	}

	return check.Input{Area: area, Span: span, Layer: layer}, nil
}

// setupLogger writes to stderr so stdout carries only the verdict.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
