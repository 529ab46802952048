package searchkey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

var (
	jsonKey   = strings.Repeat("J", 120)
	markupKey = strings.Repeat("M", 120)
	rawKey    = strings.Repeat("R", 120)
	blobKey   = strings.Repeat("B", 220)
)

func TestExtract_StructuredField(t *testing.T) {
	body := fmt.Sprintf(`{"page":{"search":{"searchApiKey":%q}}}`, jsonKey)
	if got := Extract([]byte(body)); got != jsonKey {
		t.Errorf("expected structured key, got %q", got)
	}
}

func TestExtract_StructuredFieldWinsOverLaterStrategies(t *testing.T) {
	// The body is valid JSON carrying the key under an alias AND contains
	// an assignment-shaped string that strategy 3 would match. Strategy 1
	// must win without the later strategies running.
	body := fmt.Sprintf(`{"search_api_key":%q,"html":"searchApiKey=\"%s\""}`, jsonKey, rawKey)
	if got := Extract([]byte(body)); got != jsonKey {
		t.Errorf("strategy 1 must short-circuit, got %q", got)
	}
}

func TestExtract_DeepNesting(t *testing.T) {
	body := fmt.Sprintf(`{"a":[1,{"b":{"c":[{"algoliaApiKey":%q}]}}]}`, jsonKey)
	if got := Extract([]byte(body)); got != jsonKey {
		t.Errorf("deep search failed, got %q", got)
	}
}

func TestExtract_GenericAliasNeedsLength(t *testing.T) {
	// A short "apiKey" is some other credential, not the secured key.
	body := `{"apiKey":"shortpublickey"}`
	if got := Extract([]byte(body)); got != "" {
		t.Errorf("short generic apiKey must not match, got %q", got)
	}

	long := strings.Repeat("K", 150)
	body = fmt.Sprintf(`{"apiKey":%q}`, long)
	if got := Extract([]byte(body)); got != long {
		t.Errorf("long generic apiKey must match, got %q", got)
	}
}

func TestExtract_MarkupDataAttribute(t *testing.T) {
	props := fmt.Sprintf(`{&quot;searchApiKey&quot;:&quot;%s&quot;}`, markupKey)
	body := `<html><body><div id="browse" data-search-props="` + props + `"></div></body></html>`
	if got := Extract([]byte(body)); got != markupKey {
		t.Errorf("expected key from markup attribute, got %q", got)
	}
}

func TestExtract_MarkupScriptBlock(t *testing.T) {
	body := fmt.Sprintf(
		`<html><head><script id="__STATE__" type="application/json">{"config":{"searchKey":%q}}</script></head></html>`,
		markupKey)
	if got := Extract([]byte(body)); got != markupKey {
		t.Errorf("expected key from script block, got %q", got)
	}
}

func TestExtract_AssignmentFragment(t *testing.T) {
	// Not valid JSON, no embedded state: only strategy 3 can match.
	body := `<html><script>window.cfg.searchApiKey = "` + rawKey + `";</script></html>`
	if got := Extract([]byte(body)); got != rawKey {
		t.Errorf("expected key from assignment fragment, got %q", got)
	}
}

func TestExtract_AssignmentRequiresLength(t *testing.T) {
	body := `searchApiKey = "tooshort"`
	if got := Extract([]byte(body)); got != "" {
		t.Errorf("short assignment value must not match, got %q", got)
	}
}

func TestExtract_Base64RunLastResort(t *testing.T) {
	body := "garbage prefix " + blobKey + " garbage suffix"
	if got := Extract([]byte(body)); got != blobKey {
		t.Errorf("expected base64 run fallback, got %q", got)
	}
}

func TestExtract_NothingMatches(t *testing.T) {
	if got := Extract([]byte("<html><body>plain page</body></html>")); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

// fakePages is a PageFetcher serving a fixed body and counting calls.
type fakePages struct {
	mu    sync.Mutex
	body  []byte
	err   error
	calls int
}

func (f *fakePages) Page(ctx context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.body, f.err
}

func (f *fakePages) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func keyPageBody(key string) []byte {
	return []byte(fmt.Sprintf(`{"searchApiKey":%q}`, key))
}

func TestProvider_CachesWithinFreshness(t *testing.T) {
	pages := &fakePages{body: keyPageBody(jsonKey)}
	p := NewProvider(pages, "/browse", nil)

	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		key, err := p.Key(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if key != jsonKey {
			t.Fatalf("unexpected key %q", key)
		}
	}
	if pages.callCount() != 1 {
		t.Errorf("expected one page fetch, got %d", pages.callCount())
	}
}

func TestProvider_RefreshesAfterFreshnessWindow(t *testing.T) {
	pages := &fakePages{body: keyPageBody(jsonKey)}
	p := NewProvider(pages, "/browse", nil)

	now := time.Unix(1700000000, 0)
	p.now = func() time.Time { return now }

	if _, err := p.Key(t.Context()); err != nil {
		t.Fatal(err)
	}

	now = now.Add(Freshness + time.Second)
	if _, err := p.Key(t.Context()); err != nil {
		t.Fatal(err)
	}
	if pages.callCount() != 2 {
		t.Errorf("expected re-acquisition after freshness window, got %d fetches", pages.callCount())
	}
}

func TestProvider_InvalidateForcesReacquire(t *testing.T) {
	pages := &fakePages{body: keyPageBody(jsonKey)}
	p := NewProvider(pages, "/browse", nil)

	if _, err := p.Key(t.Context()); err != nil {
		t.Fatal(err)
	}
	p.Invalidate()
	if _, err := p.Key(t.Context()); err != nil {
		t.Fatal(err)
	}
	if pages.callCount() != 2 {
		t.Errorf("expected re-acquisition after invalidate, got %d fetches", pages.callCount())
	}
}

func TestProvider_ExtractionFailure(t *testing.T) {
	pages := &fakePages{body: []byte("<html>no key here</html>")}
	p := NewProvider(pages, "/browse", nil)

	_, err := p.Key(t.Context())
	if !errors.Is(err, ErrKeyExtraction) {
		t.Errorf("expected ErrKeyExtraction, got %v", err)
	}
}

func TestProvider_FetchErrorPropagates(t *testing.T) {
	pages := &fakePages{err: errors.New("boom")}
	p := NewProvider(pages, "/browse", nil)

	if _, err := p.Key(t.Context()); err == nil {
		t.Error("expected fetch error to propagate")
	}
}
