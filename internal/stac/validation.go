package stac

import (
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

// ValidateSearchRequest validates a STAC search request
func ValidateSearchRequest(req *SearchRequest) error {
	if req == nil {
		return fmt.Errorf("search request cannot be nil")
	}

	// Validate bbox if provided
	if len(req.BBox) > 0 {
		if err := ValidateBBox(req.BBox); err != nil {
			return fmt.Errorf("invalid bbox: %w", err)
		}
	}

	// Validate datetime if provided
	if req.DateTime != "" {
		if err := ValidateDatetime(req.DateTime); err != nil {
			return fmt.Errorf("invalid datetime: %w", err)
		}
	}

	// Cannot specify both bbox and intersects
	if len(req.BBox) > 0 && len(req.Intersects) > 0 {
		return fmt.Errorf("cannot specify both bbox and intersects")
	}

	if req.Limit < 0 {
		return fmt.Errorf("limit must be non-negative, got %d", req.Limit)
	}

	if req.Page < 0 {
		return fmt.Errorf("page must be non-negative, got %d", req.Page)
	}

	if req.MaxCloudCover != nil && (*req.MaxCloudCover < 0 || *req.MaxCloudCover > 100) {
		return fmt.Errorf("max_cloud_cover must be between 0 and 100, got %g", *req.MaxCloudCover)
	}

	for _, item := range req.Sortby {
		if !IsSortable(item.Field) {
			return fmt.Errorf("unsupported sort field: %s", item.Field)
		}
	}

	return nil
}

// ValidateBBox validates a bounding box
func ValidateBBox(bbox []float64) error {
	var west, south, east, north float64

	switch len(bbox) {
	case 4:
		// 2D bbox: [west, south, east, north]
		west, south, east, north = bbox[0], bbox[1], bbox[2], bbox[3]
	case 6:
		// 3D bbox: [west, south, min_elev, east, north, max_elev]
		west, south, east, north = bbox[0], bbox[1], bbox[3], bbox[4]
		if bbox[2] > bbox[5] {
			return fmt.Errorf("minimum elevation (%f) must be less than or equal to maximum elevation (%f)", bbox[2], bbox[5])
		}
	default:
		return fmt.Errorf("bbox must have 4 or 6 coordinates, got %d", len(bbox))
	}

	// Validate longitude bounds
	if west < -180 || west > 180 {
		return fmt.Errorf("west longitude must be between -180 and 180, got %f", west)
	}
	if east < -180 || east > 180 {
		return fmt.Errorf("east longitude must be between -180 and 180, got %f", east)
	}

	// Validate latitude bounds
	if south < -90 || south > 90 {
		return fmt.Errorf("south latitude must be between -90 and 90, got %f", south)
	}
	if north < -90 || north > 90 {
		return fmt.Errorf("north latitude must be between -90 and 90, got %f", north)
	}

	// Catalog searches need an area, so degenerate boxes are rejected
	if west >= east {
		return fmt.Errorf("west longitude (%f) must be less than east longitude (%f)", west, east)
	}
	if south >= north {
		return fmt.Errorf("south latitude (%f) must be less than north latitude (%f)", south, north)
	}

	return nil
}

// ValidateDatetime validates a datetime string according to RFC 3339 / ISO 8601.
// Calendar dates (YYYY-MM-DD) are accepted wherever an instant is.
func ValidateDatetime(dt string) error {
	if dt == "" {
		return fmt.Errorf("datetime cannot be empty")
	}

	// Open interval, valid
	if dt == ".." || dt == "../.." {
		return nil
	}

	if strings.Contains(dt, "/") {
		_, _, err := ParseDatetimeInterval(dt)
		return err
	}

	_, err := parseInstant(dt)
	return err
}

// ParseDatetimeInterval parses a datetime interval string into start and end times
// Supports formats:
// - "2023-01-01T00:00:00Z/2023-12-31T23:59:59Z" (closed interval)
// - "2025-04-06/2025-04-08" (calendar dates)
// - "2023-01-01T00:00:00Z/.." (start time only)
// - "../2023-12-31T23:59:59Z" (end time only)
// - ".." or "../.." (open interval, both nil)
func ParseDatetimeInterval(dt string) (start, end *time.Time, err error) {
	if dt == "" {
		return nil, nil, fmt.Errorf("datetime interval cannot be empty")
	}

	// Handle fully open interval
	if dt == ".." || dt == "../.." {
		return nil, nil, nil
	}

	parts := strings.Split(dt, "/")
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid datetime interval format, expected 'start/end', got: %s", dt)
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	if startStr != "" && startStr != ".." {
		t, err := parseInstant(startStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid start datetime: %w", err)
		}
		start = &t
	}

	if endStr != "" && endStr != ".." {
		t, err := parseInstant(endStr)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid end datetime: %w", err)
		}
		end = &t
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, fmt.Errorf("start datetime (%s) must be before or equal to end datetime (%s)", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}

	return start, end, nil
}

func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(catalog.DateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid datetime format, expected RFC 3339 or YYYY-MM-DD: %q", s)
	}
	return t, nil
}
