// ABOUTME: HTTP client for the Yandex Geocoder and Static Maps APIs.
// ABOUTME: Rate-limits upstream calls and caches responses by request URL.

package maps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/karlseguin/ccache/v3"
	"golang.org/x/time/rate"
)

// maxResponseSize bounds an upstream response body.
const maxResponseSize = 10 << 20

// Client errors
var (
	ErrNoResults = errors.New("no results found")
	ErrUpstream  = errors.New("upstream request failed")
)

// UpstreamError reports a non-2xx answer from a Yandex API.
type UpstreamError struct {
	API        string
	StatusCode int
	Status     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("Yandex %s API error: %s", e.API, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstream
}

// ValidationError reports tool arguments that fail a range or presence check.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Config holds the upstream endpoints, credentials and client tuning.
type Config struct {
	APIKey       string
	StaticAPIKey string // falls back to APIKey
	GeocoderURL  string
	StaticURL    string
	Timeout      time.Duration
	CacheTTL     time.Duration
	CacheSize    int64
	RateLimit    float64 // requests per second, 0 = unlimited

	// HTTPClient overrides the default client built from Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type cachedResponse struct {
	body        []byte
	contentType string
}

// Client talks to the Yandex Maps HTTP APIs.
type Client struct {
	http         *http.Client
	apiKey       string
	staticAPIKey string
	geocoderURL  *url.URL
	staticURL    *url.URL
	cache        *ccache.Cache[cachedResponse] // nil when caching is off
	cacheTTL     time.Duration
	limiter      *rate.Limiter // nil when unlimited
	logger       *slog.Logger
}

// NewClient creates a client with the given configuration.
func NewClient(cfg Config) (*Client, error) {
	geocoderURL, err := url.Parse(cfg.GeocoderURL)
	if err != nil || geocoderURL.Host == "" {
		return nil, fmt.Errorf("invalid geocoder url %q", cfg.GeocoderURL)
	}
	staticURL, err := url.Parse(cfg.StaticURL)
	if err != nil || staticURL.Host == "" {
		return nil, fmt.Errorf("invalid static url %q", cfg.StaticURL)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	staticKey := cfg.StaticAPIKey
	if staticKey == "" {
		staticKey = cfg.APIKey
	}

	c := &Client{
		http:         httpClient,
		apiKey:       cfg.APIKey,
		staticAPIKey: staticKey,
		geocoderURL:  geocoderURL,
		staticURL:    staticURL,
		cacheTTL:     cfg.CacheTTL,
		logger:       logger.With("component", "maps"),
	}

	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		c.cache = ccache.New(ccache.Configure[cachedResponse]().MaxSize(cfg.CacheSize))
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return c, nil
}

// Close stops the cache's background worker.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

// get performs a GET against base with params plus the api key. Successful
// responses are cached under the URL without the key.
func (c *Client) get(ctx context.Context, api string, base *url.URL, params url.Values, apiKey string) (cachedResponse, error) {
	u := *base
	u.RawQuery = params.Encode()
	cacheKey := u.String()

	if c.cache != nil {
		if item := c.cache.Get(cacheKey); item != nil && !item.Expired() {
			c.logger.Debug("upstream cache hit", "api", api)
			return item.Value(), nil
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return cachedResponse{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	withKey := url.Values{}
	for k, v := range params {
		withKey[k] = v
	}
	if apiKey != "" {
		withKey.Set("apikey", apiKey)
	}
	u.RawQuery = withKey.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return cachedResponse{}, fmt.Errorf("building request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return cachedResponse{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upstream request", "api", api, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return cachedResponse{}, &UpstreamError{API: api, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return cachedResponse{}, fmt.Errorf("%w: reading body: %v", ErrUpstream, err)
	}

	out := cachedResponse{body: body, contentType: resp.Header.Get("Content-Type")}
	if c.cache != nil {
		c.cache.Set(cacheKey, out, c.cacheTTL)
	}
	return out, nil
}
