package stac

import (
	"net/url"
	"strconv"
)

// PaginationInfo holds information needed to generate pagination links
type PaginationInfo struct {
	BaseURL       string
	CurrentPage   int
	Limit         int
	TotalCount    *int // Optional: total matching records if known
	ReturnedCount int
	QueryParams   url.Values
}

// Paginate returns the 1-based page of records of the given size.
// A non-positive limit returns every record on page 1.
func Paginate[T any](records []T, page, limit int) []T {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		if page == 1 {
			return records
		}
		return nil
	}

	start := (page - 1) * limit
	if start >= len(records) {
		return nil
	}
	end := start + limit
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

// BuildPaginationLinks generates next and prev links based on pagination info
func BuildPaginationLinks(info PaginationInfo) []*Link {
	links := make([]*Link, 0, 2)
	if info.Limit <= 0 {
		return links
	}

	// Generate previous link if not on first page
	if info.CurrentPage > 1 {
		prevURL := buildPageURL(info.BaseURL, info.QueryParams, info.CurrentPage-1, info.Limit)
		links = append(links, &Link{
			Rel:  "prev",
			Href: prevURL,
			Type: "application/geo+json",
		})
	}

	hasNextPage := false

	if info.TotalCount != nil {
		totalPages := (*info.TotalCount + info.Limit - 1) / info.Limit // Ceiling division
		hasNextPage = info.CurrentPage < totalPages
	} else {
		// Without a total, a full page may be followed by another
		hasNextPage = info.ReturnedCount >= info.Limit
	}

	if hasNextPage {
		nextURL := buildPageURL(info.BaseURL, info.QueryParams, info.CurrentPage+1, info.Limit)
		links = append(links, &Link{
			Rel:  "next",
			Href: nextURL,
			Type: "application/geo+json",
		})
	}

	return links
}

// buildPageURL constructs a URL with the given page number and limit
func buildPageURL(baseURL string, params url.Values, page, limit int) string {
	// Clone the params to avoid modifying the original
	newParams := url.Values{}
	for key, values := range params {
		for _, value := range values {
			newParams.Add(key, value)
		}
	}

	newParams.Set("page", strconv.Itoa(page))
	newParams.Set("limit", strconv.Itoa(limit))

	return baseURL + "?" + newParams.Encode()
}
