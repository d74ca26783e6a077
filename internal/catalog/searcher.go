package catalog

import (
	"context"

	"github.com/robert-malhotra/imagery-check/internal/geo"
)

// Searcher finds scenes intersecting an area within a time span.
// The opensearch and stacsearch backends both implement this interface.
type Searcher interface {
	// Search returns the matching scenes in catalog order.
	Search(ctx context.Context, q *Query) ([]*SceneRecord, error)

	// Name returns the backend name (e.g., "opensearch", "stac").
	Name() string
}

// Query contains backend-agnostic search parameters.
type Query struct {
	// Area of interest; reprojected to EPSG:4326 by backends as needed.
	Area geo.Area

	// Span of acquisition days, inclusive.
	Span TimeSpan

	// BBox overrides the box derived from Area as [west, south, east, north]
	// in EPSG:4326. Used by paginated backends only.
	BBox []float64

	// Limit caps the number of records returned (0 means no cap).
	Limit int

	// Filters are extra backend request parameters (e.g., productType=L2A).
	Filters map[string]string

	// MaxCloudCover restricts results by eo:cloud_cover when set.
	MaxCloudCover *float64
}
