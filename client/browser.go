package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserTransport renders GET pages in headless Chrome and returns the
// resulting DOM. Any other request goes to the fallback transport.
type BrowserTransport struct {
	fallback  Transport
	chromeBin string
	timeout   time.Duration

	once      sync.Once
	browser   context.Context
	cancel    context.CancelFunc
	launchErr error
}

// NewBrowserTransport creates a BrowserTransport. Chrome is started lazily
// on the first rendered request.
func NewBrowserTransport(chromeBin string, timeout time.Duration, fallback Transport) *BrowserTransport {
	if fallback == nil {
		fallback = NewHTTPTransport(timeout)
	}
	return &BrowserTransport{
		fallback:  fallback,
		chromeBin: FindChromeBinary(chromeBin),
		timeout:   timeout,
	}
}

func (b *BrowserTransport) start() (context.Context, error) {
	b.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(defaultUserAgent),
		)
		if b.chromeBin != "" {
			opts = append(opts, chromedp.ExecPath(b.chromeBin))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

		// An empty Run launches the browser.
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			b.launchErr = fmt.Errorf("launch chrome: %w", err)
			return
		}
		b.browser = browserCtx
		b.cancel = func() {
			cancelBrowser()
			cancelAlloc()
		}
	})
	return b.browser, b.launchErr
}

func (b *BrowserTransport) Do(ctx context.Context, req Request, body []byte) (int, []byte, error) {
	if req.Method != http.MethodGet || body != nil {
		return b.fallback.Do(ctx, req, body)
	}

	browserCtx, err := b.start()
	if err != nil {
		return 0, nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return 0, nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	status := responseStatus(resp)
	if status < 200 || status > 299 {
		return status, nil, nil
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("render %s: %w", req.URL, err)
	}
	return status, []byte(html), nil
}

// responseStatus is the HTTP status of the main document, or 0 when the
// navigation produced no response.
func responseStatus(resp *network.Response) int {
	if resp == nil {
		return 0
	}
	return int(resp.Status)
}

// Close shuts the browser down, if it was started.
func (b *BrowserTransport) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

// FindChromeBinary returns configured if set, otherwise the first Chrome or
// Chromium binary found on the system, or "" to let chromedp decide.
func FindChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
