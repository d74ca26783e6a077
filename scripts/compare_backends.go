// Script to compare OpenSearch and STAC catalog results for the check area
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/app"
	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/check"
	"github.com/robert-malhotra/imagery-check/internal/config"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	span, err := check.Window("", "", cfg.Check.DurationDays, cfg.Check.EndOffsetDays, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "window: %v\n", err)
		os.Exit(1)
	}
	area, err := geo.AreaFromBBox(cfg.Check.Bounds, geo.WGS84)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bounds: %v\n", err)
		os.Exit(1)
	}
	query := &catalog.Query{Area: area, Span: span}

	fmt.Println("=== Backend Comparison: Sentinel-2 L2A over the check area ===")
	fmt.Printf("Date range: %s\n", span)
	fmt.Printf("Bounding box: %v\n\n", cfg.Check.Bounds)

	results := map[string][]string{}
	for _, kind := range []string{config.CatalogOpenSearch, config.CatalogSTAC} {
		fmt.Printf("Querying %s catalog...\n", kind)
		ids, best, err := queryBackend(cfg, kind, query, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s query failed: %v\n", kind, err)
			continue
		}
		results[kind] = ids
		fmt.Printf("%s count: %d, least cloudy: %s\n\n", kind, len(ids), best)
	}

	osIDs, stacIDs := results[config.CatalogOpenSearch], results[config.CatalogSTAC]

	// Compare
	fmt.Println("=== Comparison ===")
	fmt.Printf("OpenSearch: %d scenes\n", len(osIDs))
	fmt.Printf("STAC:       %d scenes\n", len(stacIDs))
	if len(osIDs) == len(stacIDs) {
		fmt.Println("✓ Counts match!")
	} else {
		fmt.Printf("✗ Difference: %d\n", len(osIDs)-len(stacIDs))
		fmt.Println("\nNote: Differences may occur due to:")
		fmt.Println("  - Different ingestion times between the catalogs")
		fmt.Println("  - Product identifiers that differ between catalogs (processing baselines)")
		fmt.Println("  - Footprint intersection done on different geometries")
	}
}

// queryBackend returns the sorted scene identifiers of one backend and the
// identifier of its least cloudy scene.
func queryBackend(cfg *config.Config, kind string, q *catalog.Query, logger *slog.Logger) ([]string, string, error) {
	searcher, err := app.NewSearcher(cfg, kind, logger)
	if err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	records, err := searcher.Search(ctx, q)
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	slices.Sort(ids)

	best := "-"
	if scene, err := catalog.SelectBest(records); err == nil {
		score, _ := catalog.CloudScore(scene)
		best = fmt.Sprintf("%s (cloud score %.2f)", scene.ID, score)
	}
	return ids, best, nil
}
