// Package stac renders scene records as STAC items, wrapping planetlabs/go-stac
// for the core types and adding the ItemCollection envelope.
package stac

import (
	"encoding/json"
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

// Version is the STAC version written on rendered items.
const Version = "1.0.0"

// Re-export core types from planetlabs/go-stac for convenience
type (
	Item  = gostac.Item
	Asset = gostac.Asset
	Link  = gostac.Link
)

// ItemCollection represents a STAC ItemCollection (GeoJSON FeatureCollection)
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*gostac.Link `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned"`
	Context        *Context       `json:"context,omitempty"`
}

// Context provides additional metadata about the response (STAC Context extension)
type Context struct {
	Returned int    `json:"returned"`
	Limit    int    `json:"limit,omitempty"`
	Matched  *int   `json:"matched,omitempty"`
	Backend  string `json:"backend,omitempty"`
}

// NewItemCollection creates a new ItemCollection with the given items.
func NewItemCollection(items []*gostac.Item) *ItemCollection {
	return &ItemCollection{
		Type:           "FeatureCollection",
		Features:       items,
		Links:          make([]*gostac.Link, 0),
		NumberReturned: len(items),
	}
}

// AddLink adds a link to the ItemCollection.
func (ic *ItemCollection) AddLink(rel, href, mediaType string) {
	ic.Links = append(ic.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// SetContext sets the context metadata for the ItemCollection.
func (ic *ItemCollection) SetContext(backend string, limit int, matched *int) {
	ic.Context = &Context{
		Returned: ic.NumberReturned,
		Limit:    limit,
		Matched:  matched,
		Backend:  backend,
	}
	if matched != nil {
		ic.NumberMatched = matched
	}
}

// FromScenes converts scene records into an ItemCollection.
func FromScenes(records []*catalog.SceneRecord) *ItemCollection {
	items := make([]*gostac.Item, 0, len(records))
	for _, rec := range records {
		items = append(items, FromScene(rec))
	}
	return NewItemCollection(items)
}

// FromScene renders a scene record as a STAC item. The cloud-occlusion score
// is added as the "cloud_score" property when it can be computed.
func FromScene(rec *catalog.SceneRecord) *gostac.Item {
	item := &gostac.Item{
		Version:    Version,
		Id:         rec.ID,
		Collection: rec.Collection,
		Properties: make(map[string]any, len(rec.Properties)+2),
		Assets:     make(map[string]*gostac.Asset, len(rec.Assets)),
		Links:      make([]*gostac.Link, 0),
	}

	for k, v := range rec.Properties {
		item.Properties[k] = v
	}
	if !rec.Datetime.IsZero() {
		item.Properties["datetime"] = rec.Datetime.UTC().Format(time.RFC3339)
	}
	if score, err := catalog.CloudScore(rec); err == nil {
		item.Properties["cloud_score"] = score
	}

	if rec.HasFootprint() {
		if geom, err := rec.Footprint.GeoJSON(); err == nil {
			item.Geometry = json.RawMessage(geom)
			item.Bbox = rec.Footprint.BBox()
		}
	}

	for key, a := range rec.Assets {
		item.Assets[key] = &gostac.Asset{
			Href:  a.Href,
			Title: a.Title,
			Type:  a.Type,
			Roles: a.Roles,
		}
	}

	return item
}
