package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultUserAgent = "go-rent/1.0"

// maxBodyBytes caps how much of a page is read into memory.
const maxBodyBytes = 8 << 20

// Options configures the polite HTTP client.
type Options struct {
	UserAgent string
	ProxyURL  string
	Timeout   time.Duration
	// HostDelay is the minimum spacing between two requests to one host.
	HostDelay time.Duration
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.Timeout == 0 {
		o.Timeout = 20 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// StatusError reports a non-2xx answer.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpclient: %s returned status %d", e.URL, e.StatusCode)
}

// Client wraps http.Client with an identifying User-Agent, per-host
// throttling and bounded timeouts. It never retries: the next scheduled run
// is the retry mechanism.
type Client struct {
	inner     *http.Client
	userAgent string
	hostDelay time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a Client with the given options.
func New(opts Options) (*Client, error) {
	opts = opts.withDefaults()

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConnsPerHost: 2,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("httpclient: invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Client{
		inner:     &http.Client{Transport: transport, Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
		hostDelay: opts.HostDelay,
		logger:    opts.Logger,
		limiters:  make(map[string]*rate.Limiter),
	}, nil
}

// UserAgent returns the User-Agent sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Do executes the request after waiting for the host's throttle slot.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)

	if err := c.wait(req.Context(), req.URL.Host); err != nil {
		return nil, err
	}

	resp, err := c.inner.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: request failed: %w", err)
	}
	return resp, nil
}

// Get fetches rawURL and returns its body. A non-2xx answer yields a
// *StatusError.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: building request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("httpclient: reading body of %s: %w", rawURL, err)
	}
	return body, nil
}

// Probe issues a lightweight existence check and returns the final status
// code. Servers that reject HEAD (405, 501) are asked again with GET and
// the body is discarded unread.
func (c *Client) Probe(ctx context.Context, rawURL string) (int, error) {
	code, err := c.probe(ctx, http.MethodHead, rawURL)
	if err != nil {
		return 0, err
	}
	if code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented {
		return c.probe(ctx, http.MethodGet, rawURL)
	}
	return code, nil
}

func (c *Client) probe(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("httpclient: building request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9,en-US;q=0.8,en;q=0.7")
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.hostDelay <= 0 {
		return nil
	}

	c.mu.Lock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Every(c.hostDelay), 1)
		c.limiters[host] = lim
	}
	c.mu.Unlock()

	r := lim.Reserve()
	if d := r.Delay(); d > 0 {
		c.logger.Debug("throttling request", "host", host, "wait", d.Round(time.Millisecond))
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			r.Cancel()
			return ctx.Err()
		}
	}
	return nil
}
