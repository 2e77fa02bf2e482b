// Package websearch is a narrow REST client for an external web search
// collaborator (spec.md §1, §5 manager_s), grounded on
// original_source/agents/manager_s.py's Tavily-backed search_web/search_news
// tools. The wire shape here is a generic "search API" rather than Tavily's
// specific one, since spec.md's Non-goals exclude implementing a concrete
// search provider.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client queries a web search API for results or news articles.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New constructs a Client against baseURL, authenticating with apiKey.
func New(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Result is one search hit (spec.md §5 manager_s formats title/URL/content).
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search issues a general web search for query, capped at maxResults hits.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return c.query(ctx, "/search", query, maxResults)
}

// SearchNews issues a news-focused search for query, capped at maxResults hits.
func (c *Client) SearchNews(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return c.query(ctx, "/news", query, maxResults)
}

func (c *Client) query(ctx context.Context, path, q string, maxResults int) ([]Result, error) {
	u := fmt.Sprintf("%s%s?q=%s&max_results=%s", c.baseURL, path, url.QueryEscape(q), strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("websearch: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("websearch: unexpected status %d: %s", resp.StatusCode, string(data))
	}

	var results []Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("websearch: decode response: %w", err)
	}
	return results, nil
}
