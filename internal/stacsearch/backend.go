package stacsearch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/planetlabs/go-ogc/filter"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

// Backend implements catalog.Searcher for a STAC API.
type Backend struct {
	client      *Client
	collections []string
	pageSize    int
	query       map[string]any
	logger      *slog.Logger
}

// NewBackend creates a new STAC backend searching the given collections.
func NewBackend(client *Client, collections []string, pageSize int, logger *slog.Logger) *Backend {
	if len(collections) == 0 {
		collections = []string{DefaultCollection}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		client:      client,
		collections: collections,
		pageSize:    pageSize,
		logger:      logger,
	}
}

// WithQuery sets a STAC query-extension mapping sent with every search
// (e.g., {"eo:cloud_cover": {"lt": 50}}).
func (b *Backend) WithQuery(query map[string]any) *Backend {
	b.query = query
	return b
}

// Name returns the backend name.
func (b *Backend) Name() string {
	return "stac"
}

// Search posts the query and follows next links until the results are
// exhausted or q.Limit records have been collected.
func (b *Backend) Search(ctx context.Context, q *catalog.Query) ([]*catalog.SceneRecord, error) {
	req, err := b.buildRequest(q)
	if err != nil {
		return nil, err
	}

	resp, body, err := b.client.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("STAC search failed: %w", err)
	}

	matched := resp.Matched()
	var records []*catalog.SceneRecord
	pages := 0

	for {
		pages++
		for _, raw := range resp.Features {
			rec, err := catalog.DecodeFeature(raw)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			if q.Limit > 0 && len(records) >= q.Limit {
				break
			}
		}

		if q.Limit > 0 && len(records) >= q.Limit {
			break
		}
		next := resp.NextLink()
		if next == nil || len(resp.Features) == 0 {
			break
		}

		resp, body, err = b.client.Follow(ctx, next, body)
		if err != nil {
			return nil, fmt.Errorf("STAC search page %d failed: %w", pages+1, err)
		}
	}

	attrs := []any{
		slog.String("span", q.Span.String()),
		slog.Int("pages", pages),
		slog.Int("retrieved", len(records)),
	}
	if matched != nil {
		attrs = append(attrs, slog.Int("matched", *matched))
	}
	b.logger.InfoContext(ctx, "STAC search completed", attrs...)

	return records, nil
}

// buildRequest converts a catalog query into a POST /search body.
func (b *Backend) buildRequest(q *catalog.Query) (*SearchRequest, error) {
	aoi, err := q.Area.Reproject(geo.WGS84)
	if err != nil {
		return nil, fmt.Errorf("failed to reproject search area: %w", err)
	}
	intersects, err := aoi.GeoJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to encode search area: %w", err)
	}

	pageSize := b.pageSize
	if q.Limit > 0 && q.Limit < pageSize {
		pageSize = q.Limit
	}

	req := &SearchRequest{
		Collections: b.collections,
		Intersects:  intersects,
		Datetime:    q.Span.String(),
		Limit:       pageSize,
	}

	if len(b.query) > 0 || len(q.Filters) > 0 {
		req.Query = make(map[string]any, len(b.query)+len(q.Filters))
		for k, v := range b.query {
			req.Query[k] = v
		}
		for k, v := range q.Filters {
			req.Query[k] = map[string]any{"eq": v}
		}
	}

	if q.MaxCloudCover != nil {
		req.Filter = CloudCoverFilter(*q.MaxCloudCover)
		req.FilterLang = "cql2-json"
	}

	return req, nil
}

// CloudCoverFilter returns a CQL2 filter keeping items with eo:cloud_cover
// at or below maxCover.
func CloudCoverFilter(maxCover float64) *filter.Filter {
	return &filter.Filter{
		Expression: &filter.Comparison{
			Name:  filter.LessThanOrEquals,
			Left:  &filter.Property{Name: "eo:cloud_cover"},
			Right: &filter.Number{Value: maxCover},
		},
	}
}
