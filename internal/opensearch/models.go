package opensearch

import "encoding/json"

// SearchResponse represents a resto search.json FeatureCollection page
type SearchResponse struct {
	Type       string             `json:"type"` // "FeatureCollection"
	Properties ResponseProperties `json:"properties"`
	Features   []json.RawMessage  `json:"features"`
}

// ResponseProperties holds the paging metadata of a page
type ResponseProperties struct {
	// TotalResults is only reported reliably on the first page
	TotalResults *int   `json:"totalResults"`
	ItemsPerPage int    `json:"itemsPerPage"`
	Links        []Link `json:"links"`
}

// Link is a resto link; the paging link is tagged by title or rel "next"
type Link struct {
	Rel   string `json:"rel"`
	Type  string `json:"type"`
	Title string `json:"title"`
	Href  string `json:"href"`
}

// Feature holds the parts of a resto feature needed to resolve its geometry
type Feature struct {
	ID         string            `json:"id"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureProperties contains the legacy geometry fields of a resto feature
type FeatureProperties struct {
	GMLGeometry string `json:"gmlgeometry"`
	Links       []Link `json:"links"`
}

// nextLink returns the href of the "next" paging link, if any.
func (p ResponseProperties) nextLink() string {
	for _, l := range p.Links {
		if l.Title == "next" || l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}
