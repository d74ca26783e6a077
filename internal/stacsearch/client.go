// Package stacsearch implements the STAC API catalog backend: POST /search
// with an intersects geometry, following rel=next links until exhausted.
package stacsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/imagery-check/internal/catalog"
)

const (
	// DefaultBaseURL is the Earth Search STAC API.
	DefaultBaseURL = "https://earth-search.aws.element84.com/v1"

	// DefaultCollection holds Sentinel-2 L2A scenes with COG band assets.
	DefaultCollection = "sentinel-2-l2a"

	// DefaultPageSize is the number of items requested per page.
	DefaultPageSize = 250
)

const userAgent = "imagery-check/1.0"

// Client handles communication with a STAC API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new STAC API client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.Default(),
	}
}

// WithLogger sets a custom logger for the client.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Search posts the first page of a search. The returned body is the request
// as a JSON object, used to build follow-up requests that merge into it.
func (c *Client) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, map[string]any, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.baseURL+"/search", data)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

// Follow requests the page a next link points to. POST links send the link
// body, merged into prev when the link asks for it; other links are fetched
// with GET.
func (c *Client) Follow(ctx context.Context, link *gostac.Link, prev map[string]any) (*SearchResponse, map[string]any, error) {
	if !strings.EqualFold(link.Method, http.MethodPost) {
		resp, err := c.do(ctx, http.MethodGet, link.Href, nil)
		return resp, prev, err
	}

	body := make(map[string]any)
	if merge, _ := link.AdditionalFields["merge"].(bool); merge {
		for k, v := range prev {
			body[k] = v
		}
	}
	if lb, ok := link.Body.(map[string]any); ok {
		for k, v := range lb {
			body[k] = v
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode next request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, link.Href, data)
	return resp, body, err
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) (*SearchResponse, error) {
	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("method", method),
		slog.String("url", target),
	)

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("User-Agent", userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
			slog.String("url", target),
		)
		return nil, &catalog.UnavailableError{Endpoint: target, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, &catalog.UnavailableError{
			Endpoint:   target,
			Attempts:   1,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode STAC response",
			slog.String("error", err.Error()),
		)
		return nil, &catalog.UnavailableError{
			Endpoint: target,
			Attempts: 1,
			Err:      fmt.Errorf("failed to decode STAC response: %w", err),
		}
	}

	return &result, nil
}
