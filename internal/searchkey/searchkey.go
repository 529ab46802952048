// Package searchkey acquires the secured search API key the platform
// embeds in its browse page.
//
// There is no documented endpoint for the key: the platform generates a
// scoped, short-lived key server-side and ships it inside the page
// payload for its own frontend. Extraction is therefore a fallback chain
// over progressively blunter strategies, from structured deep-search
// down to a raw regex sweep. The chain is deliberately isolated behind
// the Provider type so it can be reworked against captured payloads
// without touching callers.
package searchkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
)

// ErrKeyExtraction means every extraction strategy came up empty.
var ErrKeyExtraction = errors.New("could not extract the search key from the platform page")

// Freshness is how long a scraped key is trusted. The platform issues
// keys valid for roughly 30 minutes; staying inside 25 keeps us clear of
// racing the expiry.
const Freshness = 25 * time.Minute

// Field names the key hides under, across platform frontend revisions.
var keyFieldAliases = map[string]bool{
	"searchApiKey":   true,
	"search_api_key": true,
	"searchKey":      true,
	"algoliaApiKey":  true,
	"apiKey":         true,
}

// Secured search keys are long base64-ish blobs; anything shorter is a
// different credential (e.g. the public browse key) and must not match
// the generic aliases.
const (
	minKeyLen  = 100
	minBlobLen = 200
)

var (
	assignmentRe = regexp.MustCompile(`(?:searchApiKey|search_api_key|searchKey|algoliaApiKey)["']?\s*[:=]\s*["']([A-Za-z0-9+/=]{100,})["']`)
	base64RunRe  = regexp.MustCompile(`[A-Za-z0-9+/=]{200,}`)
)

// PageFetcher fetches a raw platform page body. Satisfied by the loft
// client.
type PageFetcher interface {
	Page(ctx context.Context, path string) ([]byte, error)
}

// Provider acquires and caches the secured search key.
type Provider struct {
	fetcher PageFetcher
	path    string
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	key      string
	acquired time.Time
}

// NewProvider creates a key provider that scrapes the given platform
// page path.
func NewProvider(fetcher PageFetcher, path string, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		fetcher: fetcher,
		path:    path,
		logger:  logger,
		now:     time.Now,
	}
}

// Key returns a search key that is fresh within the Freshness window,
// scraping a new one when the cache is stale or empty.
func (p *Provider) Key(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != "" && p.now().Sub(p.acquired) < Freshness {
		return p.key, nil
	}

	body, err := p.fetcher.Page(ctx, p.path)
	if err != nil {
		return "", fmt.Errorf("fetch key page: %w", err)
	}

	key := Extract(body)
	if key == "" {
		return "", fmt.Errorf("%s: %w", p.path, ErrKeyExtraction)
	}

	p.key = key
	p.acquired = p.now()
	p.logger.Debug("search key acquired", "length", len(key))
	return key, nil
}

// Invalidate drops the cached key unconditionally. Called after a failed
// search so the next query re-acquires.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	p.key = ""
	p.mu.Unlock()
}

// Extract runs the strategy chain over a page body and returns the first
// plausible key, or "" when every strategy fails. Each strategy runs
// only if the previous yielded nothing.
func Extract(body []byte) string {
	if key := fromJSON(body); key != "" {
		return key
	}
	if key := fromMarkup(body); key != "" {
		return key
	}
	if m := assignmentRe.FindSubmatch(body); m != nil {
		return string(m[1])
	}
	return string(base64RunRe.Find(body))
}

// fromJSON treats the whole body as a JSON document and deep-searches it.
func fromJSON(body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return deepSearch(doc)
}

// fromMarkup parses the body as HTML and looks for embedded serialized
// state: either a data attribute holding JSON or an application/json
// script block. The HTML parser decodes escaped entities on the way in.
func fromMarkup(body []byte) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	return searchNode(doc)
}

func searchNode(n *html.Node) string {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if !strings.HasPrefix(attr.Key, "data-") {
				continue
			}
			if !strings.HasPrefix(strings.TrimSpace(attr.Val), "{") {
				continue
			}
			if key := fromJSON([]byte(attr.Val)); key != "" {
				return key
			}
		}
		if n.Data == "script" && scriptIsJSON(n) {
			if c := n.FirstChild; c != nil && c.Type == html.TextNode {
				if key := fromJSON([]byte(c.Data)); key != "" {
					return key
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if key := searchNode(c); key != "" {
			return key
		}
	}
	return ""
}

func scriptIsJSON(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "type" && strings.Contains(attr.Val, "json") {
			return true
		}
	}
	return false
}

// deepSearch walks all nested fields of a decoded JSON value, order
// independent, for a key field alias with a plausible value.
func deepSearch(v any) string {
	switch value := v.(type) {
	case map[string]any:
		for name, child := range value {
			if keyFieldAliases[name] {
				if s, ok := child.(string); ok && plausibleKey(name, s) {
					return s
				}
			}
		}
		for _, child := range value {
			if key := deepSearch(child); key != "" {
				return key
			}
		}
	case []any:
		for _, child := range value {
			if key := deepSearch(child); key != "" {
				return key
			}
		}
	}
	return ""
}

// plausibleKey filters out non-secured credentials. The bare "apiKey"
// alias is too generic to trust short values.
func plausibleKey(field, value string) bool {
	if value == "" {
		return false
	}
	if field == "apiKey" {
		return len(value) >= minKeyLen
	}
	return true
}
