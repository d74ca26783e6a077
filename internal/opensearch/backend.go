package opensearch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

// Backend implements catalog.Searcher on top of a resto Client.
type Backend struct {
	client *Client
	logger *slog.Logger
}

// NewBackend creates a new opensearch backend.
func NewBackend(client *Client, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{client: client, logger: logger}
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "opensearch"
}

// Search runs one paged query per chunk of the time span and returns the
// unique records whose footprint intersects the query area.
func (b *Backend) Search(ctx context.Context, q *catalog.Query) ([]*catalog.SceneRecord, error) {
	aoi, err := q.Area.Reproject(geo.WGS84)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject search area: %w", err)
	}

	box := q.BBox
	if len(box) == 0 {
		sb := aoi.SearchBound()
		box = []float64{sb.Min[0], sb.Min[1], sb.Max[0], sb.Max[1]}
	}

	filters := b.client.filters
	if len(q.Filters) > 0 {
		filters = make(map[string]string, len(b.client.filters)+len(q.Filters))
		for k, v := range b.client.filters {
			filters[k] = v
		}
		for k, v := range q.Filters {
			filters[k] = v
		}
	}

	dedup := catalog.NewDeduplicator()
	chunks := q.Span.Chunks(b.client.chunkDays)
	for i, chunk := range chunks {
		params := SearchParams{
			StartDate:      chunk.StartOfDay(),
			CompletionDate: chunk.EndOfDay(),
			Box:            box,
			MaxRecords:     b.client.maxRecords,
			Extra:          filters,
		}

		found, err := b.searchChunk(ctx, params, dedup)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk, err)
		}

		b.logger.DebugContext(ctx, "catalog chunk searched",
			slog.Int("chunk", i+1),
			slog.Int("chunks", len(chunks)),
			slog.String("span", chunk.String()),
			slog.Int("features", found),
			slog.Int("unique_total", dedup.Len()),
		)
	}

	results := make([]*catalog.SceneRecord, 0, dedup.Len())
	for _, found := range dedup.Records() {
		rec, err := b.withFootprint(ctx, found)
		if err != nil {
			return nil, err
		}

		ok, err := rec.Footprint.Intersects(aoi)
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", rec.ID, err)
		}
		if !ok {
			continue
		}
		results = append(results, rec)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}

	b.logger.InfoContext(ctx, "opensearch search completed",
		slog.String("span", q.Span.String()),
		slog.Int("chunks", len(chunks)),
		slog.Int("unique", dedup.Len()),
		slog.Int("intersecting", len(results)),
	)

	return results, nil
}

// withFootprint returns rec itself when it carries a footprint, otherwise a
// copy with the footprint resolved from its GML or linked geometry.
func (b *Backend) withFootprint(ctx context.Context, rec *catalog.SceneRecord) (*catalog.SceneRecord, error) {
	if rec.HasFootprint() {
		return rec, nil
	}
	area, err := b.client.resolveFootprint(ctx, rec.Raw)
	if err != nil {
		return nil, err
	}
	resolved := *rec
	resolved.Footprint = area
	return &resolved, nil
}

// searchChunk walks every page of one chunk into dedup and checks the
// collected feature count against the reported total.
func (b *Backend) searchChunk(ctx context.Context, params SearchParams, dedup *catalog.Deduplicator) (int, error) {
	pager, err := b.client.NewPager(params)
	if err != nil {
		return 0, err
	}

	for {
		features, ok, err := pager.Next(ctx)
		if err != nil {
			return pager.Collected(), err
		}
		if !ok {
			break
		}

		for _, raw := range features {
			rec, err := catalog.DecodeFeature(raw)
			if err != nil {
				return pager.Collected(), err
			}
			if _, err := dedup.Add(rec); err != nil {
				return pager.Collected(), err
			}
		}
	}

	if total := pager.Total(); total != nil && *total > 0 && *total != pager.Collected() {
		return pager.Collected(), fmt.Errorf("%w: catalog reported %d results but returned %d",
			catalog.ErrInconsistentCatalog, *total, pager.Collected())
	}

	return pager.Collected(), nil
}
