// Package clipboard talks to the external clipboard-history service. The
// service is read-only from our side: pages of captured entries are
// fetched and written into a registered clipboard database through the
// generic record API.
package clipboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultPageSize = 100

// Entry is one captured clipboard item as the history service reports it.
type Entry struct {
	Content   string `json:"content"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// page mirrors the service's paginated response envelope.
type page struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	HasMore bool    `json:"has_more"`
}

// Client fetches paginated clipboard history entries over HTTP.
type Client struct {
	baseURL    string
	pageSize   int
	httpClient *http.Client
}

// NewClient creates a Client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		pageSize:   defaultPageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithPageSize overrides how many entries each request asks for.
func (c *Client) WithPageSize(size int) *Client {
	if size > 0 {
		c.pageSize = size
	}
	return c
}

// FetchPage fetches one page of entries starting at offset.
func (c *Client) FetchPage(ctx context.Context, offset int) ([]Entry, bool, error) {
	endpoint := fmt.Sprintf("%s/entries?%s", c.baseURL, url.Values{
		"limit":  {fmt.Sprintf("%d", c.pageSize)},
		"offset": {fmt.Sprintf("%d", offset)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read body: %w", err)
	}

	var p page
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false, fmt.Errorf("parse json: %w", err)
	}
	return p.Entries, p.HasMore, nil
}

// FetchAll walks the pages until the service reports no more entries.
func (c *Client) FetchAll(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	offset := 0
	for {
		batch, hasMore, err := c.FetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		entries = append(entries, batch...)
		if !hasMore || len(batch) == 0 {
			return entries, nil
		}
		offset += len(batch)
	}
}
