package stac

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string `json:"field"`
	Direction string `json:"direction"` // "asc" or "desc"
}

// SearchRequest is a scene search in STAC item-search form. Only the
// parameters the catalog backends can honour are accepted.
type SearchRequest struct {
	BBox          []float64       `json:"bbox,omitempty"`
	DateTime      string          `json:"datetime,omitempty"`
	Intersects    json.RawMessage `json:"intersects,omitempty"`
	Limit         int             `json:"limit,omitempty"`
	Page          int             `json:"page,omitempty"`
	Sortby        []SortbyItem    `json:"sortby,omitempty"`
	MaxCloudCover *float64        `json:"max_cloud_cover,omitempty"`
}

// ParseSearchRequest parses a STAC search request from GET query parameters
func ParseSearchRequest(r *http.Request) (*SearchRequest, error) {
	query := r.URL.Query()
	req := &SearchRequest{}

	if bboxStr := query.Get("bbox"); bboxStr != "" {
		bbox, err := ParseBBox(bboxStr)
		if err != nil {
			return nil, err
		}
		req.BBox = bbox
	}

	req.DateTime = query.Get("datetime")

	if intersects := query.Get("intersects"); intersects != "" {
		if !json.Valid([]byte(intersects)) {
			return nil, fmt.Errorf("intersects must be a GeoJSON geometry")
		}
		req.Intersects = json.RawMessage(intersects)
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		req.Limit = limit
	}

	if pageStr := query.Get("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			return nil, fmt.Errorf("invalid page parameter: %w", err)
		}
		req.Page = page
	}

	sortby, err := parseSortbyParam(query.Get("sortby"))
	if err != nil {
		return nil, fmt.Errorf("invalid sortby parameter: %w", err)
	}
	req.Sortby = sortby

	if cloudStr := query.Get("max_cloud_cover"); cloudStr != "" {
		v, err := strconv.ParseFloat(cloudStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid max_cloud_cover parameter: %w", err)
		}
		req.MaxCloudCover = &v
	}

	return req, nil
}

// ParseBBox parses a comma-separated bounding box.
func ParseBBox(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 && len(parts) != 6 {
		return nil, fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(parts))
	}

	bbox := make([]float64, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox coordinate at position %d: %w", i, err)
		}
		bbox[i] = val
	}
	return bbox, nil
}

// parseSortbyParam parses the sortby query parameter
// Format: sortby=+datetime or sortby=-cloud_score (+ is asc, - is desc)
func parseSortbyParam(sortbyStr string) ([]SortbyItem, error) {
	if sortbyStr == "" {
		return nil, nil
	}

	fields := strings.Split(sortbyStr, ",")
	items := make([]SortbyItem, 0, len(fields))

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		direction := "asc"
		fieldName := field
		switch {
		case strings.HasPrefix(field, "+"):
			fieldName = field[1:]
		case strings.HasPrefix(field, "-"):
			direction = "desc"
			fieldName = field[1:]
		}

		if fieldName == "" {
			return nil, fmt.Errorf("empty field name in sortby")
		}

		items = append(items, SortbyItem{
			Field:     fieldName,
			Direction: direction,
		})
	}

	return items, nil
}

// ParseSearchRequestBody parses a STAC search request from POST JSON body
func ParseSearchRequestBody(body io.Reader) (*SearchRequest, error) {
	var req SearchRequest

	decoder := json.NewDecoder(body)
	if err := decoder.Decode(&req); err != nil {
		return nil, fmt.Errorf("failed to parse search request body: %w", err)
	}

	return &req, nil
}

// ToQueryParams converts a SearchRequest to URL query parameters.
// Pagination links of POST searches carry the search this way.
func (req *SearchRequest) ToQueryParams() url.Values {
	params := url.Values{}

	if len(req.BBox) >= 4 {
		bboxStrs := make([]string, len(req.BBox))
		for i, v := range req.BBox {
			bboxStrs[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		params.Set("bbox", strings.Join(bboxStrs, ","))
	}

	if req.DateTime != "" {
		params.Set("datetime", req.DateTime)
	}

	if len(req.Intersects) > 0 {
		params.Set("intersects", string(req.Intersects))
	}

	// Limit and page are handled separately in pagination link building

	if len(req.Sortby) > 0 {
		sortbyStrs := make([]string, 0, len(req.Sortby))
		for _, item := range req.Sortby {
			prefix := "+"
			if item.Direction == "desc" {
				prefix = "-"
			}
			sortbyStrs = append(sortbyStrs, prefix+item.Field)
		}
		params.Set("sortby", strings.Join(sortbyStrs, ","))
	}

	if req.MaxCloudCover != nil {
		params.Set("max_cloud_cover", strconv.FormatFloat(*req.MaxCloudCover, 'f', -1, 64))
	}

	return params
}

// Area returns the search area in EPSG:4326. Exactly one of bbox and
// intersects must be set.
func (req *SearchRequest) Area() (geo.Area, error) {
	switch {
	case len(req.Intersects) > 0:
		return geo.ParseGeoJSON(req.Intersects, geo.WGS84)
	case len(req.BBox) == 4:
		return geo.AreaFromBBox(req.BBox, geo.WGS84)
	case len(req.BBox) == 6:
		return geo.AreaFromBBox([]float64{req.BBox[0], req.BBox[1], req.BBox[3], req.BBox[4]}, geo.WGS84)
	default:
		return geo.Area{}, fmt.Errorf("bbox or intersects is required")
	}
}

// Span returns the acquisition days covered by the datetime parameter.
// Catalog searches need both ends, so open intervals are rejected.
func (req *SearchRequest) Span() (catalog.TimeSpan, error) {
	if req.DateTime == "" {
		return catalog.TimeSpan{}, fmt.Errorf("datetime is required")
	}

	if !strings.Contains(req.DateTime, "/") {
		t, err := parseInstant(req.DateTime)
		if err != nil {
			return catalog.TimeSpan{}, err
		}
		return catalog.SingleDay(t), nil
	}

	start, end, err := ParseDatetimeInterval(req.DateTime)
	if err != nil {
		return catalog.TimeSpan{}, err
	}
	if start == nil || end == nil {
		return catalog.TimeSpan{}, fmt.Errorf("datetime interval must be closed, got %s", req.DateTime)
	}
	return catalog.NewTimeSpan(*start, *end)
}

// Query converts the request into a backend-agnostic catalog query.
func (req *SearchRequest) Query() (*catalog.Query, error) {
	area, err := req.Area()
	if err != nil {
		return nil, err
	}
	span, err := req.Span()
	if err != nil {
		return nil, err
	}
	return &catalog.Query{
		Area:          area,
		Span:          span,
		MaxCloudCover: req.MaxCloudCover,
	}, nil
}
