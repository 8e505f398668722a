package onyphe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient points a client at the given test server with an
// effectively unlimited client-side rate.
func newTestClient(srv *httptest.Server) *Client {
	c := NewClient("test-key")
	c.BaseURL = srv.URL
	c.SetRateLimit(1000)
	return c
}

func pageBody(page, maxPage int, results []Record) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"status":   "ok",
		"page":     page,
		"max_page": maxPage,
		"results":  results,
	})
	return body
}

func TestFetchSinglePage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "apikey test-key" {
			t.Errorf("Expected apikey auth header, got %q", got)
		}
		w.Write(pageBody(1, 1, []Record{{Threatlist: "blocklist.de"}}))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	pages, err := c.Fetch(context.Background(), CategoryThreatlist, "192.0.2.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("Expected 1 page, got %d", len(pages))
	}
	if pages[0].Results[0].Threatlist != "blocklist.de" {
		t.Errorf("Unexpected record: %+v", pages[0].Results[0])
	}
}

func TestFetchPaginationPaidPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var n int
		fmt.Sscanf(page, "%d", &n)
		w.Write(pageBody(n, 3, []Record{{Content: fmt.Sprintf("paste-%d", n)}}))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.PaidPlan = true
	pages, err := c.Fetch(context.Background(), CategoryPastries, "192.0.2.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(pages))
	}
	// Pages must come back in request order
	for i, p := range pages {
		want := fmt.Sprintf("paste-%d", i+1)
		if p.Results[0].Content != want {
			t.Errorf("Page %d: expected %q, got %q", i+1, want, p.Results[0].Content)
		}
	}
}

func TestFetchPaginationCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		var n int
		fmt.Sscanf(page, "%d", &n)
		w.Write(pageBody(n, 5, []Record{{Content: fmt.Sprintf("paste-%d", n)}}))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.PaidPlan = true
	c.MaxPage = 2
	pages, err := c.Fetch(context.Background(), CategoryPastries, "192.0.2.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Expected 2 pages with cap, got %d", len(pages))
	}
}

func TestFetchStuckPageNumber(t *testing.T) {
	// A provider that keeps declaring page=1 while advertising more
	// pages must not keep the fetcher paginating forever
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(pageBody(1, 3, []Record{{Content: "paste-1"}}))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.PaidPlan = true

	done := make(chan struct{})
	var pages []Page
	var err error
	go func() {
		pages, err = c.Fetch(context.Background(), CategoryPastries, "192.0.2.1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Fetch did not terminate on a stuck page number")
	}

	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	// Page 1 is fine; the response to the page-2 request still declares
	// page 1, which ends pagination with both fetched pages kept
	if len(pages) != 2 {
		t.Errorf("Expected 2 pages, got %d", len(pages))
	}
	if requests != 2 {
		t.Errorf("Expected 2 requests, got %d", requests)
	}
}

func TestFetchFreePlanIgnoresPagination(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(pageBody(1, 3, []Record{{Content: "paste-1"}}))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	pages, err := c.Fetch(context.Background(), CategoryPastries, "192.0.2.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(pages) != 1 || requests != 1 {
		t.Errorf("Expected a single request on the free plan, got %d pages, %d requests", len(pages), requests)
	}
}

func TestFetchEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	pages, err := c.Fetch(context.Background(), CategoryGeoloc, "192.0.2.1")
	if err != nil {
		t.Fatalf("Empty results should not be an error, got: %v", err)
	}
	if pages != nil {
		t.Errorf("Expected no pages, got %d", len(pages))
	}
}

func TestFetchEmptyLaterPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			w.Write(pageBody(1, 3, []Record{{Content: "paste-1"}}))
			return
		}
		w.Write([]byte(`{"status":"ok","results":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	c.PaidPlan = true
	pages, err := c.Fetch(context.Background(), CategoryPastries, "192.0.2.1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(pages) != 1 {
		t.Errorf("Expected the accumulated first page, got %d pages", len(pages))
	}
}

func TestFetchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	pages, err := c.Fetch(context.Background(), CategoryGeoloc, "192.0.2.1")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got: %v", err)
	}
	if pages != nil {
		t.Errorf("Expected no pages on rate limit")
	}
}

func TestFetchInvalidRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Fetch(context.Background(), CategoryGeoloc, "192.0.2.1")
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Expected ErrInvalidRequest, got: %v", err)
	}
}

func TestFetchNokStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"nok","text":"quota exceeded"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Fetch(context.Background(), CategoryVulnscan, "192.0.2.1")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Expected ErrProvider, got: %v", err)
	}
}

func TestFetchUnparsableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	_, err := c.Fetch(context.Background(), CategoryVulnscan, "192.0.2.1")
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("Expected ErrProvider, got: %v", err)
	}
}

func TestFetchEmptyTarget(t *testing.T) {
	c := NewClient("test-key")
	_, err := c.Fetch(context.Background(), CategoryGeoloc, "")
	if err == nil {
		t.Fatal("Expected an error for an empty target")
	}
}

func TestPageNumberUnmarshal(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"number", `{"page": 2}`, 2, false},
		{"string", `{"page": "2"}`, 2, false},
		{"null", `{"page": null}`, 0, false},
		{"absent", `{}`, 0, false},
		{"garbage", `{"page": "abc"}`, 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var p Page
			err := json.Unmarshal([]byte(tc.body), &p)
			if tc.wantErr {
				if err == nil {
					t.Fatal("Expected unmarshal error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if p.Page.Int() != tc.want {
				t.Errorf("Expected page %d, got %d", tc.want, p.Page.Int())
			}
		})
	}
}
