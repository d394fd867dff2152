// Package catalog provides a client for the remote Amazon product catalog
// API used by the API import driver.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client defines the catalog operations the import driver uses. The client
// performs exactly one HTTP attempt per call; retry policy belongs to the
// caller.
type Client interface {
	// CategoryRequest fetches the best-seller listing for a category node.
	CategoryRequest(ctx context.Context, nodeID, domain string) (*CategoryResponse, error)
	// ProductRequest fetches details for up to ten comma-joined ASINs.
	ProductRequest(ctx context.Context, asins string, trend bool, domain string) (*ProductResponse, error)
	// Quota reports the rate metadata captured from the latest response.
	Quota() QuotaInfo
}

// envelope is the remote response wrapper; code 0 means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// CategoryResponse holds a best-seller listing.
type CategoryResponse struct {
	CategoryName string         `json:"category_name"`
	Items        []CategoryItem `json:"items"`
}

// CategoryItem is one entry of a best-seller listing.
type CategoryItem struct {
	ASIN  string `json:"asin"`
	Title string `json:"title"`
	Rank  int    `json:"rank"`
}

// ProductResponse holds detail payloads keyed by request order.
type ProductResponse struct {
	Items []map[string]any `json:"items"`
}

// QuotaInfo carries the per-call rate metadata from response headers.
type QuotaInfo struct {
	Limit     int
	Remaining int
	ResetSecs int
}

// RemoteError is a non-zero remote status; the remote message is preserved.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return "catalog: remote code " + strconv.Itoa(e.Code) + ": " + e.Message
}

// Option configures the catalog client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit sets the sustained request rate in calls per second.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	quota   QuotaInfo
}

// NewClient creates a catalog client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.sellercatalog.io/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) CategoryRequest(ctx context.Context, nodeID, domain string) (*CategoryResponse, error) {
	q := url.Values{}
	q.Set("node_id", nodeID)
	q.Set("domain", domain)

	var out CategoryResponse
	if err := c.get(ctx, "/category", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) ProductRequest(ctx context.Context, asins string, trend bool, domain string) (*ProductResponse, error) {
	q := url.Values{}
	q.Set("asin", asins)
	q.Set("domain", domain)
	if trend {
		q.Set("trend", "1")
	}

	var out ProductResponse
	if err := c.get(ctx, "/product", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Quota() QuotaInfo {
	return c.quota
}

// get performs a single request, unwraps the envelope, and decodes data.
func (c *httpClient) get(ctx context.Context, path string, q url.Values, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "catalog: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "catalog: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "catalog: request failed")
	}
	defer resp.Body.Close()

	c.captureQuota(resp.Header)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "catalog: read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("catalog: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return eris.Wrap(err, "catalog: unmarshal envelope")
	}
	if env.Code != 0 {
		return &RemoteError{Code: env.Code, Message: env.Message}
	}

	if err := json.Unmarshal(env.Data, dest); err != nil {
		return eris.Wrap(err, "catalog: unmarshal data")
	}
	return nil
}

func (c *httpClient) captureQuota(h http.Header) {
	info := QuotaInfo{
		Limit:     headerInt(h, "X-Quota-Limit"),
		Remaining: headerInt(h, "X-Quota-Remaining"),
		ResetSecs: headerInt(h, "X-Quota-Reset"),
	}
	if info == (QuotaInfo{}) {
		return
	}
	c.quota = info
	zap.L().Debug("catalog quota",
		zap.Int("limit", info.Limit),
		zap.Int("remaining", info.Remaining),
		zap.Int("reset_secs", info.ResetSecs),
	)
}

func headerInt(h http.Header, key string) int {
	v := h.Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
