package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// RecordedRequest is one request seen by FakeUpstream.
type RecordedRequest struct {
	Resource string
	Token    string
	Query    url.Values
}

type failure struct {
	status     int
	retryAfter string
	remaining  int
}

// FakeUpstream is an httptest server speaking the commerce admin API's
// pagination protocol: {"<resource>": [...]} bodies and Link rel="next"
// headers carrying page_info tokens ("p2", "p3", ...).
//
// updated_at_min is applied to each record's updated_at, and a walk keeps
// the filter of its first request across page_info pages. Records without a
// parseable updated_at always pass. Pages are filtered in place, so a walk
// keeps its configured page count.
//
// Thread-safety: FakeUpstream is safe for concurrent use via internal mutex.
type FakeUpstream struct {
	server *httptest.Server

	mu       sync.Mutex
	token    string
	pages    map[string][]string
	failures map[string]*failure
	since    map[string]time.Time
	requests []RecordedRequest
}

// NewFakeUpstream starts a fake upstream that is closed with the test.
// Requests must carry token in X-Shopify-Access-Token.
func NewFakeUpstream(t testing.TB, token string) *FakeUpstream {
	t.Helper()
	f := &FakeUpstream{
		token:    token,
		pages:    make(map[string][]string),
		failures: make(map[string]*failure),
		since:    make(map[string]time.Time),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the server's base URL.
func (f *FakeUpstream) URL() string {
	return f.server.URL
}

// SetPages configures the pages of resource ("orders" or "products").
// Each page is a JSON array of records.
func (f *FakeUpstream) SetPages(resource string, pages ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages[resource] = pages
}

// FailPage makes the next times requests for page (1-based) of resource
// answer with status instead of data.
func (f *FakeUpstream) FailPage(resource string, page, status, times int) {
	f.FailPageRetryAfter(resource, page, status, times, "")
}

// FailPageRetryAfter is FailPage with a Retry-After header value.
func (f *FakeUpstream) FailPageRetryAfter(resource string, page, status, times int, retryAfter string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[failureKey(resource, page)] = &failure{status: status, retryAfter: retryAfter, remaining: times}
}

// Requests returns a copy of every request received so far.
func (f *FakeUpstream) Requests() []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]RecordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// RequestCount returns the number of requests received for resource.
func (f *FakeUpstream) RequestCount(resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Resource == resource {
			n++
		}
	}
	return n
}

func (f *FakeUpstream) serve(w http.ResponseWriter, r *http.Request) {
	resource := strings.TrimSuffix(path.Base(r.URL.Path), ".json")
	token := r.Header.Get("X-Shopify-Access-Token")

	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, RecordedRequest{
		Resource: resource,
		Token:    token,
		Query:    r.URL.Query(),
	})

	if f.token != "" && token != f.token {
		http.Error(w, `{"errors":"[API] Invalid API key or access token"}`, http.StatusUnauthorized)
		return
	}

	page := 1
	if info := r.URL.Query().Get("page_info"); info != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(info, "p"))
		if err != nil || n < 2 {
			http.Error(w, `{"errors":"invalid page_info"}`, http.StatusBadRequest)
			return
		}
		page = n
	} else {
		f.since[resource] = parseSince(r.URL.Query().Get("updated_at_min"))
	}

	if fl := f.failures[failureKey(resource, page)]; fl != nil && fl.remaining > 0 {
		fl.remaining--
		if fl.retryAfter != "" {
			w.Header().Set("Retry-After", fl.retryAfter)
		}
		http.Error(w, `{"errors":"injected failure"}`, fl.status)
		return
	}

	pages := f.pages[resource]
	body := "[]"
	if page <= len(pages) {
		body = filterUpdatedSince(pages[page-1], f.since[resource])
	}
	if page < len(pages) {
		next := *r.URL
		q := url.Values{}
		q.Set("limit", r.URL.Query().Get("limit"))
		q.Set("page_info", fmt.Sprintf("p%d", page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.RequestURI()))
	}

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{%q:%s}`, resource, body)
}

func failureKey(resource string, page int) string {
	return fmt.Sprintf("%s#%d", resource, page)
}

func parseSince(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// filterUpdatedSince drops records of a JSON array page whose updated_at is
// before since. A page that is not a JSON array is served unchanged.
func filterUpdatedSince(page string, since time.Time) string {
	if since.IsZero() {
		return page
	}
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(page), &records); err != nil {
		return page
	}

	kept := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		var meta struct {
			UpdatedAt string `json:"updated_at"`
		}
		if err := json.Unmarshal(rec, &meta); err == nil {
			if t, err := time.Parse(time.RFC3339, meta.UpdatedAt); err == nil && t.Before(since) {
				continue
			}
		}
		kept = append(kept, rec)
	}

	out, err := json.Marshal(kept)
	if err != nil {
		return page
	}
	return string(out)
}
