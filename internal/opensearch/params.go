package opensearch

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Defaults matching the resto search API limits.
const (
	DefaultMaxRecords = 200
	DefaultSortParam  = "startDate"
	DefaultSortOrder  = "descending"
)

// SearchParams represents parameters for a resto search request
type SearchParams struct {
	// Temporal filters, already formatted (e.g., "2025-04-01T00:00:00Z")
	StartDate      string
	CompletionDate string

	// Spatial filter as [west, south, east, north] in EPSG:4326
	Box []float64

	// Paging and ordering
	MaxRecords int
	Page       int
	SortParam  string
	SortOrder  string

	// Extra backend parameters (e.g., productType=L2A)
	Extra map[string]string
}

// ToURLValues converts SearchParams to url.Values for query string building
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	if p.StartDate != "" {
		values.Set("startDate", p.StartDate)
	}
	if p.CompletionDate != "" {
		values.Set("completionDate", p.CompletionDate)
	}

	if len(p.Box) == 4 {
		parts := make([]string, len(p.Box))
		for i, v := range p.Box {
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		values.Set("box", strings.Join(parts, ","))
	}

	maxRecords := p.MaxRecords
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	values.Set("maxRecords", strconv.Itoa(maxRecords))

	sortParam := p.SortParam
	if sortParam == "" {
		sortParam = DefaultSortParam
	}
	values.Set("sortParam", sortParam)

	sortOrder := p.SortOrder
	if sortOrder == "" {
		sortOrder = DefaultSortOrder
	}
	values.Set("sortOrder", sortOrder)

	// Extra parameters in a stable order
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values.Set(k, p.Extra[k])
	}

	if p.Page > 0 {
		values.Set("page", strconv.Itoa(p.Page))
	}

	return values
}

// ToQueryString converts SearchParams to a URL query string
func (p *SearchParams) ToQueryString() string {
	return p.ToURLValues().Encode()
}
