// Package opensearch implements the paginated resto/OpenSearch catalog
// backend: chunked time windows, per-page retries, result-count checks and
// geometry resolution for records that do not embed GeoJSON.
package opensearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

// Defaults for the retry policy and chunking.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = time.Second
	DefaultChunkDays   = 10
)

const userAgent = "imagery-check/1.0"

// Client handles communication with a resto search endpoint
type Client struct {
	endpoint    string
	httpClient  *http.Client
	logger      *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
	chunkDays   int
	maxRecords  int
	filters     map[string]string
}

// NewClient creates a new client for the given search.json endpoint
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:      slog.Default(),
		maxAttempts: DefaultMaxAttempts,
		retryDelay:  DefaultRetryDelay,
		chunkDays:   DefaultChunkDays,
		maxRecords:  DefaultMaxRecords,
		filters:     map[string]string{"productType": "L2A"},
	}
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

// WithRetry sets the number of attempts per page and the delay between them
func (c *Client) WithRetry(maxAttempts int, delay time.Duration) *Client {
	if maxAttempts > 0 {
		c.maxAttempts = maxAttempts
	}
	if delay >= 0 {
		c.retryDelay = delay
	}
	return c
}

// WithChunkDays sets the number of days covered by one chunk query
func (c *Client) WithChunkDays(days int) *Client {
	if days > 0 {
		c.chunkDays = days
	}
	return c
}

// WithMaxRecords sets the page size sent as maxRecords
func (c *Client) WithMaxRecords(n int) *Client {
	if n > 0 {
		c.maxRecords = n
	}
	return c
}

// WithFilters replaces the default extra request parameters
func (c *Client) WithFilters(filters map[string]string) *Client {
	c.filters = filters
	return c
}

// FetchPage requests one page, retrying on transport errors and non-200
// responses. Exhaustion returns a *catalog.UnavailableError with the last
// status and body seen.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (*SearchResponse, error) {
	lastErr := &catalog.UnavailableError{Endpoint: pageURL}

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr.Attempts = attempt

		resp, status, body, err := c.fetchOnce(ctx, pageURL)
		if err == nil && status == http.StatusOK {
			return resp, nil
		}

		if ctx.Err() != nil {
			lastErr.Err = ctx.Err()
			return nil, lastErr
		}

		lastErr.StatusCode = status
		lastErr.Body = body
		lastErr.Err = err

		c.logger.WarnContext(ctx, "catalog page request failed",
			slog.String("url", pageURL),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", c.maxAttempts),
			slog.Int("status_code", status),
		)

		if attempt < c.maxAttempts {
			if err := sleep(ctx, c.retryDelay); err != nil {
				lastErr.Err = err
				return nil, lastErr
			}
		}
	}

	c.logger.ErrorContext(ctx, "catalog returned non-200 status",
		slog.Int("status_code", lastErr.StatusCode),
		slog.String("response_body", lastErr.Body),
	)
	return nil, lastErr
}

// fetchOnce performs a single GET. A decode failure is returned as an error
// with status 200 so it is not mistaken for success.
func (c *Client) fetchOnce(ctx context.Context, pageURL string) (*SearchResponse, int, string, error) {
	c.logger.DebugContext(ctx, "executing catalog search",
		slog.String("url", pageURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, resp.StatusCode, string(body), fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, resp.StatusCode, "", fmt.Errorf("failed to decode catalog response: %w", err)
	}

	return &result, resp.StatusCode, "", nil
}

// fetchJSON GETs an arbitrary JSON document (used for linked geometries).
func (c *Client) fetchJSON(ctx context.Context, docURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request for %s failed: %w", docURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "linked document returned non-200 status",
			slog.String("url", docURL),
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return fmt.Errorf("%s returned status %d: %s", docURL, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", docURL, err)
	}
	return nil
}

// buildSearchURL constructs the first-page URL for params
func (c *Client) buildSearchURL(params *SearchParams) (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint URL: %w", err)
	}
	base.RawQuery = params.ToQueryString()
	return base.String(), nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
