package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"house-finder/ratelimit"
	"house-finder/storage"
	"house-finder/utils"
)

// countingTransport answers every call with a fixed status and body.
type countingTransport struct {
	mu     sync.Mutex
	calls  int
	status int
	body   string
	bodies [][]byte
}

func (t *countingTransport) Do(_ context.Context, _ Request, body []byte) (int, []byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.bodies = append(t.bodies, body)
	status := t.status
	if status == 0 {
		status = http.StatusOK
	}
	return status, []byte(t.body), nil
}

type countingLimiter struct {
	mu        sync.Mutex
	providers []string
}

func (l *countingLimiter) Acquire(_ context.Context, provider string, _ ratelimit.Policy) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.providers = append(l.providers, provider)
	return nil
}

type failingTransport struct{}

func (failingTransport) Do(context.Context, Request, []byte) (int, []byte, error) {
	return 0, nil, errors.New("connection refused")
}

func TestCachedRequestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{body: `{"ok":true}`}
	limiter := &countingLimiter{}
	c := New("test",
		WithTransport(transport),
		WithLimiter(limiter),
		WithCache(storage.NewFileCache(t.TempDir(), "client/test", "json")),
	)

	req := Request{Method: http.MethodPost, URL: "https://api.example.com/x", Payload: map[string]int{"a": 1}, Cache: true}

	first, err := c.Text(ctx, req)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := c.Text(ctx, req)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if first != second {
		t.Errorf("cached body differs: %q vs %q", first, second)
	}
	if transport.calls != 1 {
		t.Errorf("network calls: got %d, want 1", transport.calls)
	}
	if len(limiter.providers) != 1 {
		t.Errorf("limiter acquisitions: got %d, want 1", len(limiter.providers))
	}
}

func TestCacheKeyIncludesPayload(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{body: `{}`}
	c := New("test",
		WithTransport(transport),
		WithCache(storage.NewFileCache(t.TempDir(), "client/test", "json")),
	)

	for _, payload := range []any{map[string]int{"page": 1}, map[string]int{"page": 2}, map[string]int{"page": 1}} {
		if _, err := c.Text(ctx, Request{URL: "https://api.example.com/search", Payload: payload, Cache: true}); err != nil {
			t.Fatal(err)
		}
	}
	if transport.calls != 2 {
		t.Errorf("network calls: got %d, want 2 (one per distinct payload)", transport.calls)
	}
	if got := string(transport.bodies[0]); got != `{"page":1}` {
		t.Errorf("sent body: got %q", got)
	}
	if CacheKey("u", []byte(`{"a":1}`)) != `u{"a":1}` {
		t.Error("CacheKey should be url followed by payload")
	}
}

func TestUncachedRequestAlwaysHitsNetwork(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{body: "hi"}
	limiter := &countingLimiter{}
	c := New("test",
		WithTransport(transport),
		WithLimiter(limiter),
		WithCache(storage.NewFileCache(t.TempDir(), "client/test", "json")),
	)

	for i := 0; i < 3; i++ {
		if _, err := c.Text(ctx, Request{URL: "https://www.example.com/x"}); err != nil {
			t.Fatal(err)
		}
	}
	if transport.calls != 3 || len(limiter.providers) != 3 {
		t.Errorf("calls=%d acquisitions=%d, want 3 and 3", transport.calls, len(limiter.providers))
	}
	if limiter.providers[0] != "example.com" {
		t.Errorf("provider key: got %q, want example.com", limiter.providers[0])
	}
}

func TestExplicitProviderOverridesDomain(t *testing.T) {
	limiter := &countingLimiter{}
	c := New("test", WithTransport(&countingTransport{}), WithLimiter(limiter), WithProvider("routing"))

	if _, err := c.Text(context.Background(), Request{URL: "https://api.example.com/x"}); err != nil {
		t.Fatal(err)
	}
	if limiter.providers[0] != "routing" {
		t.Errorf("provider key: got %q, want routing", limiter.providers[0])
	}
}

func TestErrorCategories(t *testing.T) {
	ctx := context.Background()

	notFound := New("test", WithTransport(&countingTransport{status: http.StatusNotFound}))
	_, err := notFound.Text(ctx, Request{URL: "https://x.example.com/"})
	var se *StatusError
	if !errors.Is(err, ErrStatus) || !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Errorf("non-2xx: got %v, want StatusError 404", err)
	}

	broken := New("test", WithTransport(failingTransport{}))
	if _, err := broken.Text(ctx, Request{URL: "https://x.example.com/"}); !errors.Is(err, ErrTransport) {
		t.Errorf("transport failure: got %v, want ErrTransport", err)
	}

	garbage := New("test", WithTransport(&countingTransport{body: "<html>"}))
	if _, err := JSON[map[string]any](ctx, garbage, Request{URL: "https://x.example.com/"}); !errors.Is(err, ErrDecode) {
		t.Errorf("bad json: got %v, want ErrDecode", err)
	}

	limited := New("test", WithTransport(&countingTransport{}), WithLimiter(ratelimit.NewRegistry()),
		WithPolicy(ratelimit.Every(1)))
	if _, err := limited.Text(ctx, Request{URL: "http://localhost/x"}); !errors.Is(err, ratelimit.ErrInvalidProvider) {
		t.Errorf("bad host: got %v, want ErrInvalidProvider", err)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	transport := &countingTransport{status: http.StatusInternalServerError}
	c := New("test",
		WithTransport(transport),
		WithCache(storage.NewFileCache(t.TempDir(), "client/test", "json")),
	)

	for i := 0; i < 2; i++ {
		if _, err := c.Text(ctx, Request{URL: "https://x.example.com/", Cache: true}); !errors.Is(err, ErrStatus) {
			t.Fatalf("expected status error, got %v", err)
		}
	}
	if transport.calls != 2 {
		t.Errorf("failed responses must not be cached: calls=%d", transport.calls)
	}
}

func TestPattern(t *testing.T) {
	ctx := context.Background()
	c := New("test", WithTransport(&countingTransport{body: `..."postCode":"00100","floorCount":2,...`}))
	req := Request{URL: "https://www.etuovi.com/kohde/1"}

	got, err := c.Pattern(ctx, req, regexp.MustCompile(`"postCode":"([0-9]{5})"`))
	if err != nil || got != "00100" {
		t.Errorf("postCode: got (%q, %v)", got, err)
	}

	_, err = c.Pattern(ctx, req, regexp.MustCompile(`"yearBuilt":([0-9]+)`))
	if !errors.Is(err, ErrPatternNotFound) {
		t.Errorf("missing pattern: got %v, want ErrPatternNotFound", err)
	}
}

func TestJSONOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad content type", http.StatusBadRequest)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"method":"` + r.Method + `","echo":` + string(body) + `}`))
	}))
	defer srv.Close()

	type echo struct {
		Method string         `json:"method"`
		Echo   map[string]int `json:"echo"`
	}

	c := New("test", WithLimiter(ratelimit.NewRegistry()))
	got, err := JSON[echo](context.Background(), c, Request{URL: srv.URL + "/search", Payload: map[string]int{"page": 3}})
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if got.Method != http.MethodPost || got.Echo["page"] != 3 {
		t.Errorf("got %+v", got)
	}
}

func TestHTTPTransportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New("test")
	_, err := c.Text(context.Background(), Request{URL: srv.URL + "/missing"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestRedactHidesSecretInLogsAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger, err := utils.NewLoggerWithConfig(utils.LoggerConfig{Writer: &buf, Level: slog.LevelDebug})
	if err != nil {
		t.Fatal(err)
	}
	c := New("test", WithTransport(&countingTransport{status: http.StatusUnauthorized}), WithLogger(logger))
	c.Redact("s3cret", "")

	_, err = c.Text(context.Background(), Request{URL: "https://api.example.com/bots3cret/sendMessage"})
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected status error, got %v", err)
	}
	if strings.Contains(err.Error(), "s3cret") {
		t.Errorf("error leaks the secret: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "s3cret") {
		t.Errorf("log leaks the secret: %q", out)
	}
	if !strings.Contains(out, "<redacted>") {
		t.Errorf("expected the request to be logged with a placeholder: %q", out)
	}
}

func TestPayloadEncodeError(t *testing.T) {
	transport := &countingTransport{}
	c := New("test", WithTransport(transport))

	_, err := c.Text(context.Background(), Request{URL: "https://api.example.com/x", Payload: make(chan int)})
	if !errors.Is(err, ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
	if errors.Is(err, ErrDecode) {
		t.Errorf("encode failure must not be reported as a malformed response: %v", err)
	}
	if transport.calls != 0 {
		t.Errorf("transport calls: got %d, want 0", transport.calls)
	}
}
