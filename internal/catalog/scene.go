// Package catalog defines the scene records returned by catalog backends and
// the backend-independent operations on them: time span chunking,
// deduplication and least-cloud scene selection.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/geo"
	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// Reference band asset keys, in stacking order.
const (
	BandRed   = "red"
	BandGreen = "green"
	BandBlue  = "blue"
)

// RGBBands lists the reference bands in the order they are stacked.
var RGBBands = []string{BandRed, BandGreen, BandBlue}

// Asset is a reference to a remote raster file belonging to a scene.
type Asset struct {
	Href  string
	Type  string
	Title string
	Roles []string

	// Transform is the asset's proj:transform, nil when not published.
	Transform *raster.Affine

	// Shape is the asset's proj:shape as [height, width], nil when not published.
	Shape []int
}

// SceneRecord is a normalized catalog entry. Records are never mutated after
// a backend creates them.
type SceneRecord struct {
	ID         string
	Collection string
	Datetime   time.Time
	Footprint  geo.Area
	Properties map[string]any
	Assets     map[string]Asset

	// Raw is the record exactly as the backend returned it.
	Raw json.RawMessage
}

// rawFeature is the GeoJSON feature shape shared by STAC items and resto results.
type rawFeature struct {
	ID         string                     `json:"id"`
	Collection string                     `json:"collection"`
	Geometry   json.RawMessage            `json:"geometry"`
	Properties map[string]any             `json:"properties"`
	Assets     map[string]json.RawMessage `json:"assets"`
}

type rawAsset struct {
	Href      string    `json:"href"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Roles     []string  `json:"roles"`
	Transform []float64 `json:"proj:transform"`
	Shape     []int     `json:"proj:shape"`
}

// DecodeFeature builds a SceneRecord from a GeoJSON feature. The embedded
// geometry, when present, becomes the footprint in EPSG:4326.
func DecodeFeature(data []byte) (*SceneRecord, error) {
	var f rawFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedScene, err)
	}
	if f.ID == "" {
		return nil, fmt.Errorf("%w: feature has no id", ErrMalformedScene)
	}

	rec := &SceneRecord{
		ID:         f.ID,
		Collection: f.Collection,
		Properties: f.Properties,
		Assets:     make(map[string]Asset, len(f.Assets)),
		Raw:        append(json.RawMessage(nil), data...),
	}
	if rec.Properties == nil {
		rec.Properties = make(map[string]any)
	}

	if hasGeometry(f.Geometry) {
		area, err := geo.ParseGeoJSON(f.Geometry, geo.WGS84)
		if err != nil {
			return nil, fmt.Errorf("%w: scene %s: %v", ErrMalformedScene, f.ID, err)
		}
		rec.Footprint = area
	}

	for _, key := range []string{"datetime", "startDate"} {
		if s, ok := rec.Properties[key].(string); ok && s != "" {
			t, err := parseTimestamp(s)
			if err != nil {
				return nil, fmt.Errorf("%w: scene %s: %v", ErrMalformedScene, f.ID, err)
			}
			rec.Datetime = t
			break
		}
	}

	for key, assetJSON := range f.Assets {
		var ra rawAsset
		if err := json.Unmarshal(assetJSON, &ra); err != nil {
			return nil, fmt.Errorf("%w: scene %s asset %s: %v", ErrMalformedScene, f.ID, key, err)
		}
		asset := Asset{
			Href:  ra.Href,
			Type:  ra.Type,
			Title: ra.Title,
			Roles: ra.Roles,
			Shape: ra.Shape,
		}
		if len(ra.Transform) > 0 {
			t, err := raster.NewAffine(ra.Transform)
			if err != nil {
				return nil, fmt.Errorf("%w: scene %s asset %s: %v", ErrMalformedScene, f.ID, key, err)
			}
			asset.Transform = &t
		}
		rec.Assets[key] = asset
	}

	return rec, nil
}

// HasFootprint reports whether the record's geometry has been resolved.
func (r *SceneRecord) HasFootprint() bool {
	return !r.Footprint.IsEmpty()
}

// AcquisitionDate returns the scene's acquisition day.
func (r *SceneRecord) AcquisitionDate() (time.Time, error) {
	if r.Datetime.IsZero() {
		return time.Time{}, fmt.Errorf("%w: scene %s has no datetime", ErrMalformedScene, r.ID)
	}
	return truncateDay(r.Datetime), nil
}

// CRS returns the scene's native projection from proj:epsg or proj:code.
func (r *SceneRecord) CRS() (geo.CRS, error) {
	if v, ok := r.Properties["proj:epsg"]; ok {
		if f, ok := v.(float64); ok && f > 0 {
			return geo.EPSG(int(f)), nil
		}
	}
	if s, ok := r.Properties["proj:code"].(string); ok {
		crs, err := geo.ParseCRS(s)
		if err == nil {
			return crs, nil
		}
	}
	return geo.CRS{}, fmt.Errorf("%w: scene %s has no proj:epsg", ErrMalformedScene, r.ID)
}

// Band returns a reference band asset, which must carry its own transform.
func (r *SceneRecord) Band(name string) (Asset, error) {
	a, ok := r.Assets[name]
	if !ok || a.Href == "" {
		return Asset{}, fmt.Errorf("%w: scene %s has no %s asset", ErrMalformedScene, r.ID, name)
	}
	if a.Transform == nil {
		return Asset{}, fmt.Errorf("%w: scene %s asset %s has no proj:transform", ErrMalformedScene, r.ID, name)
	}
	return a, nil
}

// Number reads a numeric property.
func (r *SceneRecord) Number(key string) (float64, bool) {
	switch v := r.Properties[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func hasGeometry(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null"
}

var timestampFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	DateFormat,
}

func parseTimestamp(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range timestampFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, lastErr)
}
