package opensearch

import (
	"context"
	"encoding/json"
)

// Pager walks the pages of one search lazily. Each Next call fetches at most
// one page through the client's retry policy.
type Pager struct {
	client  *Client
	nextURL string
	page    int
	done    bool

	total     *int
	collected int
}

// NewPager returns a pager starting at page 1 of params.
func (c *Client) NewPager(params SearchParams) (*Pager, error) {
	params.Page = 1
	first, err := c.buildSearchURL(&params)
	if err != nil {
		return nil, err
	}
	return &Pager{client: c, nextURL: first}, nil
}

// Next returns the features of the next page. ok is false once the sequence
// is exhausted: after an empty page or a page without a next link.
func (p *Pager) Next(ctx context.Context) (features []json.RawMessage, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}

	resp, err := p.client.FetchPage(ctx, p.nextURL)
	if err != nil {
		p.done = true
		return nil, false, err
	}
	p.page++

	if p.page == 1 {
		p.total = resp.Properties.TotalResults
	}

	if len(resp.Features) == 0 {
		p.done = true
		return nil, false, nil
	}
	p.collected += len(resp.Features)

	next := resp.Properties.nextLink()
	if next == "" {
		p.done = true
	}
	p.nextURL = next

	return resp.Features, true, nil
}

// Total returns the totalResults reported by the first page, or nil when
// the catalog did not report one.
func (p *Pager) Total() *int {
	return p.total
}

// Collected returns the number of features returned so far.
func (p *Pager) Collected() int {
	return p.collected
}

// Pages returns the number of pages fetched so far.
func (p *Pager) Pages() int {
	return p.page
}
