// Package dealsearch queries the hosted search index that backs the
// platform's deal catalog.
//
// The index is a third-party hosted service; query and response shapes
// are passed through mostly untouched. Authentication uses the secured,
// short-lived key scraped by the searchkey package — any outright query
// failure invalidates that key so the next call re-acquires it.
package dealsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/covale/dealbridge/internal/httpkit"
)

// Result limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100

	// maxTagSummary caps the facet tag summary on unfiltered queries.
	maxTagSummary = 30
)

// KeyProvider supplies the secured search key. Satisfied by
// searchkey.Provider.
type KeyProvider interface {
	Key(ctx context.Context) (string, error)
	Invalidate()
}

// Hit is a single deal record from the index.
type Hit struct {
	ObjectID string   `json:"objectID"`
	Name     string   `json:"name"`
	Tagline  string   `json:"tagline,omitempty"`
	Price    string   `json:"price,omitempty"`
	Rating   float64  `json:"rating,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// TagCount is one entry of the facet tag summary.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Result is a search response: hits, the index's total match count, and
// (for unfiltered queries) a tag summary ordered by descending count.
type Result struct {
	Hits  []Hit      `json:"hits"`
	Total int        `json:"total"`
	Tags  []TagCount `json:"tag_summary,omitempty"`
}

// Client queries the hosted deal index.
type Client struct {
	appID   string
	index   string
	keys    KeyProvider
	client  *http.Client
	logger  *slog.Logger
	baseURL string // override for tests; derived from appID when empty
}

// NewClient creates a deal search client for the given application id
// and index.
func NewClient(appID, index string, keys KeyProvider, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		appID:  appID,
		index:  index,
		keys:   keys,
		client: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
		logger: logger,
	}
}

// queryRequest is the index's query body. Field names follow the hosted
// service's API.
type queryRequest struct {
	Query        string     `json:"query"`
	HitsPerPage  int        `json:"hitsPerPage"`
	Facets       []string   `json:"facets"`
	FacetFilters [][]string `json:"facetFilters,omitempty"`
}

// queryResponse is the subset of the index's response we consume.
type queryResponse struct {
	Hits   []Hit                     `json:"hits"`
	NbHits int                       `json:"nbHits"`
	Facets map[string]map[string]int `json:"facets"`
}

// Search runs a query. An empty tag leaves the query unfiltered and
// includes the facet tag summary. limit defaults to DefaultLimit and is
// capped at MaxLimit; an over-ask is clamped, not an error.
func (c *Client) Search(ctx context.Context, query, tag string, limit int) (*Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key, err := c.keys.Key(ctx)
	if err != nil {
		return nil, err
	}

	reqBody := queryRequest{
		Query:       query,
		HitsPerPage: limit,
		Facets:      []string{"tags"},
	}
	if tag != "" {
		reqBody.FacetFilters = [][]string{{"tags:" + tag}}
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.queryURL(), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Algolia-Application-Id", c.appID)
	req.Header.Set("X-Algolia-API-Key", key)

	resp, err := c.client.Do(req)
	if err != nil {
		// The key may have expired under us; force re-acquisition.
		c.keys.Invalidate()
		return nil, fmt.Errorf("deal search: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		c.keys.Invalidate()
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("deal search: HTTP %d: %s", resp.StatusCode, body)
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		c.keys.Invalidate()
		return nil, fmt.Errorf("deal search: decode response: %w", err)
	}

	result := &Result{
		Hits:  qr.Hits,
		Total: qr.NbHits,
	}
	if tag == "" {
		result.Tags = tagSummary(qr.Facets["tags"])
	}
	return result, nil
}

func (c *Client) queryURL() string {
	base := c.baseURL
	if base == "" {
		base = fmt.Sprintf("https://%s-dsn.algolia.net", c.appID)
	}
	return fmt.Sprintf("%s/1/indexes/%s/query", base, c.index)
}

// tagSummary converts the index's facet counts into a slice sorted by
// descending count (ties broken by tag name), capped at maxTagSummary.
func tagSummary(counts map[string]int) []TagCount {
	if len(counts) == 0 {
		return nil
	}

	summary := make([]TagCount, 0, len(counts))
	for tag, count := range counts {
		summary = append(summary, TagCount{Tag: tag, Count: count})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Tag < summary[j].Tag
	})

	if len(summary) > maxTagSummary {
		summary = summary[:maxTagSummary]
	}
	return summary
}
