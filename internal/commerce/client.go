package commerce

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

	"golang.org/x/time/rate"

	"github.com/roach88/shelfwise/internal/model"
)

// Resource is an upstream collection endpoint.
type Resource string

const (
	// ResourceOrders lists orders with nested line items.
	ResourceOrders Resource = "orders"

	// ResourceProducts lists products with nested variants.
	ResourceProducts Resource = "products"
)

const (
	// MaxPageSize is the largest page the upstream will serve.
	MaxPageSize = 250

	// DefaultAPIVersion is the admin API version requested.
	DefaultAPIVersion = "2024-07"

	// DefaultRequestsPerSecond matches the upstream's REST leaky bucket refill.
	DefaultRequestsPerSecond = 2.0

	defaultTimeout = 30 * time.Second

	// maxErrorBody bounds how much of an error body is read.
	maxErrorBody = 4 << 10
)

// Credentials identify the store and carry its opaque access token.
type Credentials struct {
	StoreID string
	Token   string
}

// PageRequest selects one page of a resource.
type PageRequest struct {
	Resource Resource

	// PageToken continues a previous walk. When set, UpdatedSince is ignored
	// because the token already encodes the original filter.
	PageToken string

	// UpdatedSince filters the first page to records modified at or after it.
	UpdatedSince time.Time
}

// Page is one page of raw records.
type Page struct {
	Records []json.RawMessage

	// NextToken is the opaque token for the following page, "" on the last page.
	NextToken string
}

// HasNext reports whether upstream announced another page.
func (p *Page) HasNext() bool {
	return p.NextToken != ""
}

// Client fetches pages from the upstream admin API.
//
// Thread-safety: Client is safe for concurrent use; the rate limiter is
// shared by all callers.
type Client struct {
	httpClient *http.Client
	apiVersion string
	pageSize   int
	baseURL    string
	limiter    *rate.Limiter
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (30s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIVersion sets the admin API version path segment.
func WithAPIVersion(v string) Option {
	return func(c *Client) {
		if v = strings.TrimSpace(v); v != "" {
			c.apiVersion = v
		}
	}
}

// WithPageSize sets the requested page size, capped at MaxPageSize.
func WithPageSize(n int) Option {
	return func(c *Client) {
		c.pageSize = clampPageSize(n)
	}
}

// WithBaseURL sends every request to base instead of https://<store id>.
// Used for proxies and tests.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithRateLimit limits outgoing requests. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		apiVersion: DefaultAPIVersion,
		pageSize:   MaxPageSize,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 4),
		userAgent:  "shelfwise/" + model.Version,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchPage fetches a single page.
//
// Errors:
//   - *UpstreamError for non-2xx responses and undecodable bodies
//   - *TransientError when no response was received
//   - the context error if ctx ends while waiting for the rate limiter
func (c *Client) FetchPage(ctx context.Context, creds Credentials, req PageRequest) (*Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("fetch %s: rate limiter: %w", req.Resource, err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(creds.StoreID, req), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: build request: %w", req.Resource, err)
	}
	httpReq.Header.Set("X-Shopify-Access-Token", creds.Token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.Resource, ctxErr)
		}
		return nil, &TransientError{Resource: req.Resource, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &UpstreamError{
			Resource:   req.Resource,
			Status:     resp.StatusCode,
			Body:       excerpt(body),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	records, err := decodeEnvelope(resp.Body, req.Resource)
	if err != nil {
		return nil, &UpstreamError{
			Resource: req.Resource,
			Status:   resp.StatusCode,
			Message:  "malformed response body",
		}
	}

	return &Page{
		Records:   records,
		NextToken: nextPageToken(resp.Header.Get("Link")),
	}, nil
}

// PageSize returns the page size sent with every request.
func (c *Client) PageSize() int {
	return c.pageSize
}

func (c *Client) pageURL(storeID string, req PageRequest) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + storeID
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.pageSize))
	if req.PageToken != "" {
		// Upstream rejects any filter other than limit alongside page_info.
		q.Set("page_info", req.PageToken)
	} else {
		q.Set("order", "updated_at asc")
		if req.Resource == ResourceOrders {
			q.Set("status", "any")
		}
		if !req.UpdatedSince.IsZero() {
			q.Set("updated_at_min", req.UpdatedSince.UTC().Format(time.RFC3339))
		}
	}

	return fmt.Sprintf("%s/admin/api/%s/%s.json?%s", base, c.apiVersion, req.Resource, q.Encode())
}

// decodeEnvelope reads {"<resource>": [ ... ]} and returns the raw records.
// A missing key is an empty page.
func decodeEnvelope(r io.Reader, resource Resource) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, err
	}
	raw, ok := envelope[string(resource)]
	if !ok || string(raw) == "null" {
		return []json.RawMessage{}, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func clampPageSize(n int) int {
	if n < 1 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
