package dealsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// fakeKeys is a KeyProvider with a fixed key and invalidation tracking.
type fakeKeys struct {
	mu          sync.Mutex
	key         string
	err         error
	invalidated int
}

func (f *fakeKeys) Key(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.key, nil
}

func (f *fakeKeys) Invalidate() {
	f.mu.Lock()
	f.invalidated++
	f.mu.Unlock()
}

func (f *fakeKeys) invalidations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invalidated
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *fakeKeys) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	keys := &fakeKeys{key: "secured-key"}
	c := NewClient("TESTAPP", "deals_test", keys, nil)
	c.baseURL = srv.URL
	return c, keys
}

func TestSearch_RequestShape(t *testing.T) {
	var gotPath, gotApp, gotKey string
	var gotBody queryRequest

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotApp = r.Header.Get("X-Algolia-Application-Id")
		gotKey = r.Header.Get("X-Algolia-API-Key")
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"hits":[],"nbHits":0}`)
	}))

	if _, err := client.Search(t.Context(), "crm tools", "", 0); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/1/indexes/deals_test/query" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotApp != "TESTAPP" || gotKey != "secured-key" {
		t.Errorf("auth headers missing: app=%q key=%q", gotApp, gotKey)
	}
	if gotBody.Query != "crm tools" {
		t.Errorf("query not sent: %+v", gotBody)
	}
	if gotBody.HitsPerPage != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, gotBody.HitsPerPage)
	}
	if len(gotBody.FacetFilters) != 0 {
		t.Errorf("unfiltered query must not send facetFilters: %+v", gotBody.FacetFilters)
	}
}

func TestSearch_TagFilter(t *testing.T) {
	var gotBody queryRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"hits":[],"nbHits":0,"facets":{"tags":{"crm":5}}}`)
	}))

	res, err := client.Search(t.Context(), "", "crm", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(gotBody.FacetFilters) != 1 || gotBody.FacetFilters[0][0] != "tags:crm" {
		t.Errorf("tag filter not sent: %+v", gotBody.FacetFilters)
	}
	if res.Tags != nil {
		t.Errorf("filtered query must not include tag summary, got %+v", res.Tags)
	}
}

func TestSearch_LimitClamped(t *testing.T) {
	var gotBody queryRequest
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"hits":[],"nbHits":0}`)
	}))

	if _, err := client.Search(t.Context(), "x", "", 500); err != nil {
		t.Fatal(err)
	}
	if gotBody.HitsPerPage != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, gotBody.HitsPerPage)
	}
}

func TestSearch_TagSummarySortedAndCapped(t *testing.T) {
	facets := map[string]int{}
	for i := 0; i < 40; i++ {
		facets[fmt.Sprintf("tag%02d", i)] = i
	}
	facets["top"] = 999

	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"hits":   []Hit{},
			"nbHits": 0,
			"facets": map[string]any{"tags": facets},
		})
	}))

	res, err := client.Search(t.Context(), "", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tags) != 30 {
		t.Fatalf("expected summary capped at 30, got %d", len(res.Tags))
	}
	if res.Tags[0].Tag != "top" || res.Tags[0].Count != 999 {
		t.Errorf("expected descending count order, got first %+v", res.Tags[0])
	}
	for i := 1; i < len(res.Tags); i++ {
		if res.Tags[i].Count > res.Tags[i-1].Count {
			t.Fatalf("summary not sorted at %d: %+v", i, res.Tags[i-1:i+1])
		}
	}
}

func TestSearch_FailureInvalidatesKey(t *testing.T) {
	client, keys := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid key"))
	}))

	_, err := client.Search(t.Context(), "x", "", 0)
	if err == nil {
		t.Fatal("expected error from 403")
	}
	if keys.invalidations() != 1 {
		t.Errorf("failed search must invalidate the key, got %d invalidations", keys.invalidations())
	}
}

func TestSearch_KeyErrorPropagates(t *testing.T) {
	client, keys := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no query should be issued without a key")
	}))
	keys.err = errors.New("no key")

	if _, err := client.Search(t.Context(), "x", "", 0); err == nil {
		t.Fatal("expected key acquisition error")
	}
}

func TestSearch_Hits(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"hits":[{"objectID":"d1","name":"MailWhale","tags":["email"]}],"nbHits":1}`)
	}))

	res, err := client.Search(t.Context(), "mail", "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || len(res.Hits) != 1 || res.Hits[0].Name != "MailWhale" {
		t.Errorf("unexpected result: %+v", res)
	}
}
