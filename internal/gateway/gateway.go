// Package gateway wraps outbound GET requests with a read-through cache:
// TTL expiry, forced bypass, write-back, and stale fallback when the
// network is unreachable.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/seenimoa/tasas/internal/store"
	"github.com/seenimoa/tasas/internal/telemetry"
)

const (
	// DefaultTTL is the cache freshness window when Options.CacheTTL is zero.
	DefaultTTL = 5 * time.Minute

	// DefaultUserAgent is sent on every request.
	DefaultUserAgent = "tasas/1.0 (+https://github.com/seenimoa/tasas)"

	maxBodyBytes = 10 << 20
)

// Options controls one Fetch call.
type Options struct {
	Headers     map[string]string
	Params      map[string]string
	UseCache    bool          // serve fresh entries, fall back to stale on transport failure
	BypassCache bool          // skip the fresh-entry read even when UseCache is set
	UpdateCache bool          // write the response even when UseCache is false
	CacheTTL    time.Duration // 0 means DefaultTTL
}

// Response is a successful Fetch result. Body is always valid JSON.
type Response struct {
	Body      []byte
	URL       string
	FromCache bool
	Stale     bool      // served from an expired entry after a transport failure
	FetchedAt time.Time // when the body was obtained from upstream
}

// TokenSource yields an auth token when one is available.
type TokenSource interface {
	Token(ctx context.Context) (token string, ok bool)
}

// StaticToken is a TokenSource returning a fixed token; empty means none.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, bool) {
	return string(s), s != ""
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string // sent as X-API-Key when non-empty
	HTTPClient *http.Client
	Store      store.Store
	Tokens     TokenSource
	Tracer     telemetry.Tracer
	Reporter   telemetry.Reporter
	RateLimit  float64 // requests per second; 0 disables limiting
	Burst      int
	DefaultTTL time.Duration
	Now        func() time.Time
}

// Client is the HTTP cache gateway. It is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	http       *http.Client
	store      store.Store
	tokens     TokenSource
	tracer     telemetry.Tracer
	reporter   telemetry.Reporter
	limiter    *rate.Limiter
	defaultTTL time.Duration
	now        func() time.Time
	sf         singleflight.Group
}

// New creates a gateway client, filling in defaults for unset fields.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		http:       cfg.HTTPClient,
		store:      cfg.Store,
		tokens:     cfg.Tokens,
		tracer:     cfg.Tracer,
		reporter:   cfg.Reporter,
		defaultTTL: cfg.DefaultTTL,
		now:        cfg.Now,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.store == nil {
		c.store = store.NewMemory()
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return c
}

// URL joins the base URL, endpoint and percent-encoded params. Params are
// sorted by key so equal parameter sets give the same cache key.
func (c *Client) URL(endpoint string, params map[string]string) string {
	u := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	if len(params) == 0 {
		return u
	}
	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

// cacheEntry is the persisted shape of a cached response.
type cacheEntry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

func (e cacheEntry) time() time.Time { return time.UnixMilli(e.Timestamp) }

// Fetch performs a cached GET of endpoint.
func (c *Client) Fetch(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	fullURL := c.URL(endpoint, opts.Params)
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if opts.UseCache && !opts.BypassCache {
		if entry, ok := c.readEntry(ctx, fullURL); ok && c.now().Sub(entry.time()) < ttl {
			return &Response{Body: entry.Data, URL: fullURL, FromCache: true, FetchedAt: entry.time()}, nil
		}
	}

	body, err := c.shared(ctx, endpoint, fullURL, opts.Headers)
	if err != nil {
		if opts.UseCache && IsTransport(err) {
			if entry, ok := c.readEntry(ctx, fullURL); ok {
				age := c.now().Sub(entry.time())
				telemetry.Capture(c.reporter, err, map[string]any{
					"url":   fullURL,
					"stale": true,
					"ageMs": age.Milliseconds(),
				})
				log.Warn().Err(err).Str("url", fullURL).Dur("age", age).Msg("serving stale cache entry")
				return &Response{Body: entry.Data, URL: fullURL, FromCache: true, Stale: true, FetchedAt: entry.time()}, nil
			}
		}
		return nil, err
	}

	now := c.now()
	if opts.UseCache || opts.UpdateCache {
		c.writeEntry(ctx, fullURL, body, now)
	}
	return &Response{Body: body, URL: fullURL, FetchedAt: now}, nil
}

// Get fetches endpoint and decodes the JSON body into T.
func Get[T any](ctx context.Context, c *Client, endpoint string, opts Options) (T, error) {
	var out T
	resp, err := c.Fetch(ctx, endpoint, opts)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return out, fmt.Errorf("decode %s: %w", resp.URL, err)
	}
	return out, nil
}

// shared collapses concurrent identical requests into one upstream call.
// The call outlives any single caller's cancellation; each caller stops
// waiting when its own ctx ends.
func (c *Client) shared(ctx context.Context, endpoint, fullURL string, headers map[string]string) ([]byte, error) {
	key := fullURL
	if len(headers) > 0 {
		key += "|" + headerKey(headers)
	}
	flight := c.sf.DoChan(key, func() (any, error) {
		return c.doGet(context.WithoutCancel(ctx), endpoint, fullURL, headers)
	})
	select {
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, &TransportError{URL: fullURL, Err: ctx.Err()}
	}
}

func (c *Client) doGet(ctx context.Context, endpoint, fullURL string, headers map[string]string) ([]byte, error) {
	trace := telemetry.Start(c.tracer, "GET /"+strings.TrimLeft(endpoint, "/"))
	defer trace.Stop()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			trace.SetAttribute("status", "rate_limited")
			return nil, &TransportError{URL: fullURL, Err: err}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		trace.SetAttribute("status", "bad_request")
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("User-Agent", DefaultUserAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		trace.SetAttribute("status", "transport_error")
		return nil, &TransportError{URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		trace.SetAttribute("status", "transport_error")
		return nil, &TransportError{URL: fullURL, Err: fmt.Errorf("read body: %w", err)}
	}
	trace.SetAttribute("status", strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.StatusCode),
			URL:        fullURL,
		}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("GET %s: %w", fullURL, ErrInvalidJSON)
	}
	return body, nil
}

// errorMessage extracts a server message from a JSON error body.
func errorMessage(body []byte, status int) string {
	if len(body) > 0 && gjson.ValidBytes(body) {
		for _, path := range []string{"message", "error.message", "error", "detail"} {
			r := gjson.GetBytes(body, path)
			if r.Type == gjson.String && strings.TrimSpace(r.Str) != "" {
				return r.Str
			}
		}
	}
	return genericMessage(status)
}

func (c *Client) readEntry(ctx context.Context, key string) (cacheEntry, bool) {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		telemetry.Capture(c.reporter, err, map[string]any{"url": key, "op": "cache_read"})
		return cacheEntry{}, false
	}
	if !ok {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || len(entry.Data) == 0 {
		if err == nil {
			err = fmt.Errorf("empty cache entry")
		}
		telemetry.Capture(c.reporter, err, map[string]any{"url": key, "op": "cache_decode"})
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Client) writeEntry(ctx context.Context, key string, body []byte, at time.Time) {
	raw, err := json.Marshal(cacheEntry{Data: body, Timestamp: at.UnixMilli()})
	if err == nil {
		err = c.store.Set(context.WithoutCancel(ctx), key, string(raw))
	}
	if err != nil {
		telemetry.Capture(c.reporter, err, map[string]any{"url": key, "op": "cache_write"})
		log.Warn().Err(err).Str("url", key).Msg("cache write failed")
	}
}

func headerKey(h map[string]string) string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(h[k])
		b.WriteByte(';')
	}
	return b.String()
}
