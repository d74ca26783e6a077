package geo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"github.com/paulmach/orb/simplify"
)

// ErrEmptyArea is returned when an area has no polygon rings.
var ErrEmptyArea = errors.New("area has no geometry")

// Area is a polygonal area tagged with the CRS its coordinates are expressed in.
// Areas are values: Reproject returns a new Area and never mutates the receiver.
type Area struct {
	Shape orb.MultiPolygon
	CRS   CRS
}

// NewArea wraps a single polygon.
func NewArea(p orb.Polygon, crs CRS) Area {
	return Area{Shape: orb.MultiPolygon{p.Clone()}, CRS: crs}
}

// AreaFromBound returns the rectangle covering the bound.
func AreaFromBound(b orb.Bound, crs CRS) Area {
	return Area{Shape: orb.MultiPolygon{b.ToPolygon()}, CRS: crs}
}

// AreaFromBBox builds an area from a [west, south, east, north] box.
func AreaFromBBox(bbox []float64, crs CRS) (Area, error) {
	if len(bbox) != 4 {
		return Area{}, fmt.Errorf("bbox must have 4 values, got %d", len(bbox))
	}
	if bbox[0] >= bbox[2] || bbox[1] >= bbox[3] {
		return Area{}, fmt.Errorf("bbox min must be less than max: %v", bbox)
	}
	b := orb.Bound{Min: orb.Point{bbox[0], bbox[1]}, Max: orb.Point{bbox[2], bbox[3]}}
	return AreaFromBound(b, crs), nil
}

// AreaFromGeometry converts polygonal orb geometries into an Area.
func AreaFromGeometry(g orb.Geometry, crs CRS) (Area, error) {
	switch v := g.(type) {
	case orb.Polygon:
		return NewArea(v, crs), nil
	case orb.MultiPolygon:
		return Area{Shape: v.Clone(), CRS: crs}, nil
	case orb.Bound:
		return AreaFromBound(v, crs), nil
	case orb.Ring:
		return NewArea(orb.Polygon{v}, crs), nil
	case nil:
		return Area{}, ErrEmptyArea
	default:
		return Area{}, fmt.Errorf("unsupported geometry type %s", g.GeoJSONType())
	}
}

// ParseGeoJSON decodes a GeoJSON Polygon or MultiPolygon geometry.
func ParseGeoJSON(data []byte, crs CRS) (Area, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return Area{}, fmt.Errorf("invalid GeoJSON geometry: %w", err)
	}
	return AreaFromGeometry(g.Geometry(), crs)
}

// Geometry returns the area as a Polygon when it has a single part, else
// as a MultiPolygon.
func (a Area) Geometry() orb.Geometry {
	if len(a.Shape) == 1 {
		return a.Shape[0]
	}
	return a.Shape
}

// GeoJSON encodes the area as a GeoJSON geometry object.
func (a Area) GeoJSON() ([]byte, error) {
	if a.IsEmpty() {
		return nil, ErrEmptyArea
	}
	return json.Marshal(geojson.NewGeometry(a.Geometry()))
}

// IsEmpty reports whether the area has no exterior ring.
func (a Area) IsEmpty() bool {
	for _, p := range a.Shape {
		if len(p) > 0 && len(p[0]) > 0 {
			return false
		}
	}
	return true
}

// Bound returns the axis-aligned bounds in the area's CRS.
func (a Area) Bound() orb.Bound {
	return a.Shape.Bound()
}

// BBox returns the bounds as [west, south, east, north].
func (a Area) BBox() []float64 {
	b := a.Bound()
	return []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// Reproject returns a copy of the area with every vertex moved to the target CRS.
func (a Area) Reproject(to CRS) (Area, error) {
	if a.CRS == to {
		return a, nil
	}
	if a.CRS.IsZero() {
		return Area{}, fmt.Errorf("%w: area has no CRS", ErrUnsupportedCRS)
	}

	proj, err := Transformer(a.CRS, to)
	if err != nil {
		return Area{}, err
	}

	shape := project.MultiPolygon(a.Shape.Clone(), proj)
	return Area{Shape: shape, CRS: to}, nil
}

// SearchBound returns the bounds used for catalog box queries: the boundary is
// simplified with a tolerance of one hundredth of the mean extent, then padded
// outward by the same tolerance.
func (a Area) SearchBound() orb.Bound {
	b := a.Bound()
	tolerance := ((b.Max[0] - b.Min[0]) + (b.Max[1] - b.Min[1])) / 2 / 100
	if tolerance <= 0 {
		return b
	}

	simplified := simplify.DouglasPeucker(tolerance).MultiPolygon(a.Shape.Clone())
	if len(simplified) == 0 {
		return b.Pad(tolerance)
	}
	return simplified.Bound().Pad(tolerance)
}

// Intersects reports whether the two areas share at least one point.
// The other area is reprojected into the receiver's CRS when they differ.
func (a Area) Intersects(other Area) (bool, error) {
	if other.CRS != a.CRS {
		var err error
		other, err = other.Reproject(a.CRS)
		if err != nil {
			return false, err
		}
	}

	for _, p := range a.Shape {
		for _, q := range other.Shape {
			if polygonsIntersect(p, q) {
				return true, nil
			}
		}
	}
	return false, nil
}

func polygonsIntersect(p, q orb.Polygon) bool {
	if len(p) == 0 || len(q) == 0 || len(p[0]) == 0 || len(q[0]) == 0 {
		return false
	}
	if !p.Bound().Intersects(q.Bound()) {
		return false
	}

	// One polygon inside the other.
	if planar.PolygonContains(q, p[0][0]) || planar.PolygonContains(p, q[0][0]) {
		return true
	}

	// Crossing boundaries.
	for _, rp := range p {
		for _, rq := range q {
			if ringsCross(rp, rq) {
				return true
			}
		}
	}
	return false
}

func ringsCross(r, s orb.Ring) bool {
	for i := 0; i < len(r); i++ {
		a1, a2 := r[i], r[(i+1)%len(r)]
		for j := 0; j < len(s); j++ {
			b1, b2 := s[j], s[(j+1)%len(s)]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, q1, q2 orb.Point) bool {
	d1 := orientation(q1, q2, p1)
	d2 := orientation(q1, q2, p2)
	d3 := orientation(p1, p2, q1)
	d4 := orientation(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	switch {
	case d1 == 0 && onSegment(q1, q2, p1):
		return true
	case d2 == 0 && onSegment(q1, q2, p2):
		return true
	case d3 == 0 && onSegment(p1, p2, q1):
		return true
	case d4 == 0 && onSegment(p1, p2, q2):
		return true
	}
	return false
}

func orientation(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return p[0] >= min(a[0], b[0]) && p[0] <= max(a[0], b[0]) &&
		p[1] >= min(a[1], b[1]) && p[1] <= max(a[1], b[1])
}
