package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// HTTPTransport performs requests with net/http. Cookies set by a provider
// are kept for the lifetime of the transport.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates an HTTPTransport with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	jar, _ := cookiejar.New(nil)
	return &HTTPTransport{client: &http.Client{Timeout: timeout, Jar: jar}}
}

func (t *HTTPTransport) Do(ctx context.Context, req Request, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			hreq.Header.Add(k, v)
		}
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", defaultUserAgent)
	}

	resp, err := t.client.Do(hreq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, data, nil
}
