// Package upstream provides HTTP-backed collection sources for the
// statistics engine. Each upstream service returns JSON arrays with its own
// field naming; records are passed through raw and reconciled by the
// normalizer.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/biblio-hub/apiserver/internal/stats"
)

const defaultTimeout = 10 * time.Second

// Client fetches collections from one upstream base URL.
type Client struct {
	base string
	http *http.Client
}

// NewClient constructs a client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: defaultTimeout},
	}
}

// Source returns a stats source fetching GET {base}{path}. An empty path
// fetches the base URL itself.
func (c *Client) Source(path string) stats.Source {
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := c.base + path
	return func(ctx context.Context) ([]stats.RawRecord, error) {
		return c.fetch(ctx, url)
	}
}

func (c *Client) fetch(ctx context.Context, url string) ([]stats.RawRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return extractRecords(payload)
}

// extractRecords accepts either a bare JSON array or an envelope object
// wrapping the array under a conventional key.
func extractRecords(payload any) ([]stats.RawRecord, error) {
	switch typed := payload.(type) {
	case []any:
		return toRecords(typed), nil
	case map[string]any:
		for _, key := range []string{"items", "data", "records", "results"} {
			if inner, ok := typed[key].([]any); ok {
				return toRecords(inner), nil
			}
		}
	}
	return nil, fmt.Errorf("response is not a JSON collection")
}

func toRecords(items []any) []stats.RawRecord {
	records := make([]stats.RawRecord, 0, len(items))
	for _, item := range items {
		if rec, ok := item.(map[string]any); ok {
			records = append(records, stats.RawRecord(rec))
		}
	}
	return records
}
