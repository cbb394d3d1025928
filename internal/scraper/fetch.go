package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/rsilvagit/go-rent/internal/httpclient"
)

// HTTPFetcher loads pages through the shared throttled client.
type HTTPFetcher struct {
	client *httpclient.Client
}

func NewHTTPFetcher(client *httpclient.Client) *HTTPFetcher {
	return &HTTPFetcher{client: client}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	return f.client.Get(ctx, rawURL)
}

// ChromeFetcher renders pages in headless Chrome for sources that build
// their result list client-side.
type ChromeFetcher struct {
	chromeBin string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
}

// NewChromeFetcher creates a ChromeFetcher. An empty chromeBin searches the
// usual install locations.
func NewChromeFetcher(chromeBin, userAgent string, timeout time.Duration) *ChromeFetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChromeFetcher{
		chromeBin: chromeBin,
		userAgent: userAgent,
		timeout:   timeout,
		settle:    3 * time.Second,
	}
}

func (f *ChromeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}
	if bin := findChromeBinary(f.chromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	runCtx, cancel := context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(f.settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("scraper: chromedp render %s: %w", rawURL, err)
	}
	return []byte(html), nil
}

// findChromeBinary locates Chrome/Chromium.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}
	for _, name := range []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// ChromeAvailable reports whether a Chrome binary can be found.
func ChromeAvailable(configured string) bool {
	return findChromeBinary(configured) != ""
}
