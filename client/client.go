// Package client is the single gateway for outbound provider calls.
//
// A Client consults its content cache first. On a miss it waits for the
// provider's rate limiter, performs the call through its Transport and
// stores the body when caching is enabled for the call site. It never
// retries.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"house-finder/ratelimit"
	"house-finder/storage"
	"house-finder/utils"
)

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	// Payload is JSON-encoded as the request body when non-nil.
	Payload any
	Headers http.Header
	// Cache enables the content cache for this call.
	Cache bool
}

// Transport performs a single network exchange.
type Transport interface {
	Do(ctx context.Context, req Request, body []byte) (status int, respBody []byte, err error)
}

// Limiter paces calls per provider. *ratelimit.Registry implements it.
type Limiter interface {
	Acquire(ctx context.Context, provider string, p ratelimit.Policy) error
}

// Client sends requests for one named provider.
type Client struct {
	name      string
	transport Transport
	cache     storage.ContentCache
	limiter   Limiter
	policy    ratelimit.Policy
	provider  string
	logger    *utils.Logger
	secrets   []string
}

// Option configures a Client.
type Option func(*Client)

func WithTransport(t Transport) Option { return func(c *Client) { c.transport = t } }

func WithCache(cache storage.ContentCache) Option { return func(c *Client) { c.cache = cache } }

func WithLimiter(l Limiter) Option { return func(c *Client) { c.limiter = l } }

func WithPolicy(p ratelimit.Policy) Option { return func(c *Client) { c.policy = p } }

// WithProvider sets an explicit rate-limit key instead of the URL's main domain.
func WithProvider(provider string) Option { return func(c *Client) { c.provider = provider } }

func WithLogger(l *utils.Logger) Option { return func(c *Client) { c.logger = l } }

// New creates a Client. Without options it talks plain HTTP, caches
// nothing and is not rate limited.
func New(name string, opts ...Option) *Client {
	c := &Client{name: name}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(30 * time.Second)
	}
	if c.logger == nil {
		c.logger = utils.NewLogger()
	}
	return c
}

// Redact hides each secret wherever the client logs or reports a URL.
// It must be called before the client is shared.
func (c *Client) Redact(secrets ...string) {
	for _, s := range secrets {
		if s != "" {
			c.secrets = append(c.secrets, s)
		}
	}
}

func (c *Client) display(url string) string {
	for _, s := range c.secrets {
		url = strings.ReplaceAll(url, s, "<redacted>")
	}
	return url
}

// CacheKey is the logical cache key of a call: the URL followed by the
// exact request body bytes.
func CacheKey(url string, payload []byte) string {
	return url + string(payload)
}

// Text returns the response body as a string.
func (c *Client) Text(ctx context.Context, req Request) (string, error) {
	body, err := c.fetch(ctx, req)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// JSON fetches req and decodes the body into a T.
func JSON[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	if req.Headers == nil {
		req.Headers = http.Header{}
	} else {
		req.Headers = req.Headers.Clone()
	}
	if req.Headers.Get("Content-Type") == "" {
		req.Headers.Set("Content-Type", "application/json")
	}

	body, err := c.fetch(ctx, req)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %w", ErrDecode, c.display(req.URL), err)
	}
	return out, nil
}

// Pattern fetches req and returns the first capture group of re's first
// match in the body.
func (c *Client) Pattern(ctx context.Context, req Request, re *regexp.Regexp) (string, error) {
	body, err := c.fetch(ctx, req)
	if err != nil {
		return "", err
	}
	m := re.FindSubmatch(body)
	if len(m) < 2 {
		return "", fmt.Errorf("%w: %s in %s", ErrPatternNotFound, re.String(), c.display(req.URL))
	}
	return string(m[1]), nil
}

func (c *Client) fetch(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	if req.Payload != nil {
		var err error
		payload, err = json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: payload for %s: %w", ErrEncode, c.display(req.URL), err)
		}
	}
	if req.Method == "" {
		req.Method = http.MethodGet
		if payload != nil {
			req.Method = http.MethodPost
		}
	}

	key := CacheKey(req.URL, payload)
	shown := c.display(req.URL)
	useCache := req.Cache && c.cache != nil

	if useCache {
		body, hit, err := c.fromCache(ctx, key)
		if err != nil {
			return nil, err
		}
		if hit {
			c.logger.Debug("[client:%s] cache hit %s", c.name, shown)
			return body, nil
		}
	}

	if err := c.acquire(ctx, req.URL); err != nil {
		return nil, err
	}

	headers := http.Header{}
	if req.Headers != nil {
		headers = req.Headers.Clone()
	}
	if payload != nil && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}
	req.Headers = headers

	c.logger.Debug("[client:%s] %s %s", c.name, req.Method, shown)
	status, body, err := c.transport.Do(ctx, req, payload)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, shown, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, shown, c.redactErr(err))
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{Method: req.Method, URL: shown, Code: status}
	}

	if useCache {
		if err := c.cache.Write(ctx, key, body); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCacheIO, err)
		}
	}
	return body, nil
}

// redactErr flattens err to its redacted text when it mentions a secret.
func (c *Client) redactErr(err error) error {
	if msg := err.Error(); c.display(msg) != msg {
		return errors.New(c.display(msg))
	}
	return err
}

func (c *Client) fromCache(ctx context.Context, key string) ([]byte, bool, error) {
	ok, err := c.cache.Exists(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCacheIO, err)
	}
	if !ok {
		return nil, false, nil
	}
	body, err := c.cache.Read(ctx, key)
	if errors.Is(err, storage.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrCacheIO, err)
	}
	return body, true, nil
}

func (c *Client) acquire(ctx context.Context, url string) error {
	if c.limiter == nil {
		return nil
	}
	provider := c.provider
	if provider == "" {
		var err error
		provider, err = ratelimit.ProviderFromURL(url)
		if err != nil {
			return err
		}
	}
	return c.limiter.Acquire(ctx, provider, c.policy)
}
