package cog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/raster"
)

// Client opens COGs by URL and reads windows from them. Parsed headers and
// decoded blocks are kept in the shared TileCache.
type Client struct {
	httpClient *http.Client
	cache      *TileCache
	logger     *slog.Logger
	sources    func(href string) RangeReader
}

// NewClient creates a client using HTTP range requests.
func NewClient(timeout time.Duration, cache *TileCache) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cache:  cache,
		logger: slog.Default(),
	}
	c.sources = c.httpSource
	return c
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// WithSources replaces how hrefs are turned into range readers.
func (c *Client) WithSources(fn func(href string) RangeReader) *Client {
	c.sources = fn
	return c
}

func (c *Client) httpSource(href string) RangeReader {
	return NewHTTPRangeReader(href, c.httpClient, c.logger)
}

// Open returns the reader for href, parsing its header at most once while
// it stays cached.
func (c *Client) Open(ctx context.Context, href string) (*Reader, error) {
	open := func(ctx context.Context) (any, error) {
		c.logger.DebugContext(ctx, "opening COG",
			slog.String("href", href),
		)
		return Open(ctx, href, c.sources(href), c.cache)
	}

	if c.cache == nil {
		v, err := open(ctx)
		if err != nil {
			return nil, err
		}
		return v.(*Reader), nil
	}

	v, err := c.cache.fetch(ctx, "header:"+href, open)
	if err != nil {
		return nil, err
	}
	return v.(*Reader), nil
}

// ReadWindow reads the first channel of a window of the file at href.
func (c *Client) ReadWindow(ctx context.Context, href string, win raster.Window) ([]float64, error) {
	r, err := c.Open(ctx, href)
	if err != nil {
		return nil, err
	}
	return r.ReadWindow(ctx, win)
}
