package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
	"github.com/robert-malhotra/imagery-check/internal/geo"
)

var gmlCoordinates = regexp.MustCompile(`<gml:coordinates[^>]*>([^<]*)</gml:coordinates>`)

// ParseGMLCoordinates reads the rings of a GML polygon in EPSG:4326. The
// first <gml:coordinates> element is the exterior ring, any further ones are
// holes. It returns ok=false when the document has no coordinates element.
func ParseGMLCoordinates(gml string) (area geo.Area, ok bool, err error) {
	if !strings.Contains(gml, "EPSG:4326") {
		return geo.Area{}, false, fmt.Errorf("%w: gml geometry is not in EPSG:4326", geo.ErrUnsupportedCRS)
	}

	matches := gmlCoordinates.FindAllStringSubmatch(gml, -1)
	if len(matches) == 0 {
		return geo.Area{}, false, nil
	}

	poly := make(orb.Polygon, 0, len(matches))
	for _, m := range matches {
		ring, err := parseCoordinateList(m[1])
		if err != nil {
			return geo.Area{}, false, err
		}
		poly = append(poly, ring)
	}
	return geo.NewArea(poly, geo.WGS84), true, nil
}

// parseCoordinateList parses "lon,lat lon,lat ..." tuples.
func parseCoordinateList(s string) (orb.Ring, error) {
	fields := strings.Fields(s)
	if len(fields) < 3 {
		return nil, fmt.Errorf("gml ring has %d coordinates, need at least 3", len(fields))
	}

	ring := make(orb.Ring, 0, len(fields)+1)
	for _, tuple := range fields {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid gml coordinate %q", tuple)
		}
		x, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gml coordinate %q: %w", tuple, err)
		}
		y, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid gml coordinate %q: %w", tuple, err)
		}
		ring = append(ring, orb.Point{x, y})
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return ring, nil
}

// resolveFootprint finds the geometry of a feature that does not embed
// GeoJSON: the gmlgeometry property first, then the linked JSON document.
func (c *Client) resolveFootprint(ctx context.Context, raw json.RawMessage) (geo.Area, error) {
	var f Feature
	if err := json.Unmarshal(raw, &f); err != nil {
		return geo.Area{}, fmt.Errorf("%w: %v", catalog.ErrMalformedScene, err)
	}

	if gml := f.Properties.GMLGeometry; gml != "" {
		area, ok, err := ParseGMLCoordinates(gml)
		if err != nil {
			return geo.Area{}, fmt.Errorf("%w: scene %s: %v", catalog.ErrMalformedScene, f.ID, err)
		}
		if ok {
			return area, nil
		}
	}

	for _, link := range f.Properties.Links {
		if link.Type != "application/json" || link.Href == "" {
			continue
		}

		var doc struct {
			Geometry json.RawMessage `json:"geometry"`
		}
		if err := c.fetchJSON(ctx, link.Href, &doc); err != nil {
			return geo.Area{}, fmt.Errorf("%w: scene %s: %v", catalog.ErrCatalogUnavailable, f.ID, err)
		}
		area, err := geo.ParseGeoJSON(doc.Geometry, geo.WGS84)
		if err != nil {
			return geo.Area{}, fmt.Errorf("%w: scene %s linked geometry: %v", catalog.ErrMalformedScene, f.ID, err)
		}
		return area, nil
	}

	return geo.Area{}, fmt.Errorf("%w: scene %s has no resolvable geometry", catalog.ErrMalformedScene, f.ID)
}
