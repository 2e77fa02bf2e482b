// Package calendar is a narrow REST client for an external calendar
// collaborator (spec.md §1, §5 manager_t). Natural-language time parsing is
// never implemented here: callers pass already-resolved RFC3339 timestamps,
// since that parsing is the LLM's job (Non-goals).
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a calendar service's REST API to create, update, delete, and
// list events.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New constructs a Client against baseURL using token as a bearer credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Event describes a calendar entry.
type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

// CreateEvent creates ev and returns the server-assigned Event (with ID set).
func (c *Client) CreateEvent(ctx context.Context, ev Event) (Event, error) {
	var created Event
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/events", ev, &created); err != nil {
		return Event{}, fmt.Errorf("calendar: create event: %w", err)
	}
	return created, nil
}

// UpdateEvent replaces the event identified by eventID with ev.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, ev Event) (Event, error) {
	var updated Event
	if err := c.do(ctx, http.MethodPut, c.baseURL+"/events/"+eventID, ev, &updated); err != nil {
		return Event{}, fmt.Errorf("calendar: update event %q: %w", eventID, err)
	}
	return updated, nil
}

// DeleteEvent removes the event identified by eventID.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/events/"+eventID, nil, nil); err != nil {
		return fmt.Errorf("calendar: delete event %q: %w", eventID, err)
	}
	return nil
}

// ListEvents returns events starting in [from, to).
func (c *Client) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	query := url.Values{}
	query.Set("from", from.UTC().Format(time.RFC3339))
	query.Set("to", to.UTC().Format(time.RFC3339))
	endpoint := c.baseURL + "/events?" + query.Encode()
	var events []Event
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &events); err != nil {
		return nil, fmt.Errorf("calendar: list events: %w", err)
	}
	return events, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
