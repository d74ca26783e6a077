package stacsearch

import (
	"encoding/json"

	gostac "github.com/planetlabs/go-stac"
	"github.com/planetlabs/go-ogc/filter"
)

// SearchRequest is the body of a STAC API POST /search request.
type SearchRequest struct {
	Collections []string        `json:"collections,omitempty"`
	Intersects  json.RawMessage `json:"intersects,omitempty"`
	Datetime    string          `json:"datetime,omitempty"`
	Limit       int             `json:"limit,omitempty"`
	Query       map[string]any  `json:"query,omitempty"`
	Filter      *filter.Filter  `json:"filter,omitempty"`
	FilterLang  string          `json:"filter-lang,omitempty"`
}

// SearchResponse is one page of a STAC API ItemCollection.
type SearchResponse struct {
	Type           string            `json:"type"`
	Features       []json.RawMessage `json:"features"`
	Links          []*gostac.Link    `json:"links"`
	NumberMatched  *int              `json:"numberMatched,omitempty"`
	NumberReturned *int              `json:"numberReturned,omitempty"`
	Context        *ResponseContext  `json:"context,omitempty"`
}

// ResponseContext is the legacy STAC context extension.
type ResponseContext struct {
	Returned int  `json:"returned"`
	Limit    int  `json:"limit,omitempty"`
	Matched  *int `json:"matched,omitempty"`
}

// Matched returns the total number of matches reported by the server, if any.
func (r *SearchResponse) Matched() *int {
	if r.NumberMatched != nil {
		return r.NumberMatched
	}
	if r.Context != nil {
		return r.Context.Matched
	}
	return nil
}

// NextLink returns the rel=next link, or nil on the last page.
func (r *SearchResponse) NextLink() *gostac.Link {
	for _, link := range r.Links {
		if link != nil && link.Rel == "next" && link.Href != "" {
			return link
		}
	}
	return nil
}
