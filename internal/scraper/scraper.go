package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/sites"
)

var (
	// ErrNoSearchURL is returned for a site entry without a search page.
	ErrNoSearchURL = errors.New("scraper: site has no search URL")
	// ErrNotSearchPage is returned when a site's search URL does not match
	// its own search pattern, usually after the source moved its search.
	ErrNotSearchPage = errors.New("scraper: search URL does not match the site's search pattern")
)

// Fetcher retrieves a page body. Implementations enforce their own timeout
// and return an error for non-2xx answers.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Page is one crawled search page.
type Page struct {
	URL         string
	Body        []byte
	ListingURLs []string
}

// Crawler turns a site's search page into a bounded list of listing URLs.
type Crawler struct {
	fetcher     Fetcher
	jsFetcher   Fetcher
	maxListings int
	logger      *slog.Logger
}

// NewCrawler creates a Crawler. jsFetcher serves sites flagged RenderJS and
// may be nil, in which case those sites use fetcher too.
func NewCrawler(fetcher, jsFetcher Fetcher, maxListings int, logger *slog.Logger) *Crawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		fetcher:     fetcher,
		jsFetcher:   jsFetcher,
		maxListings: maxListings,
		logger:      logger,
	}
}

// FetcherFor returns the fetcher that should load pages of site.
func (c *Crawler) FetcherFor(site sites.Site) Fetcher {
	if site.RenderJS && c.jsFetcher != nil {
		return c.jsFetcher
	}
	return c.fetcher
}

// CrawlSource returns the deduplicated, truncated listing URLs found on the
// site's search page.
func (c *Crawler) CrawlSource(ctx context.Context, site sites.Site) ([]string, error) {
	page, err := c.CrawlPage(ctx, site)
	if err != nil {
		return nil, err
	}
	return page.ListingURLs, nil
}

// CrawlPage fetches the site's search page and resolves its listing URLs.
func (c *Crawler) CrawlPage(ctx context.Context, site sites.Site) (Page, error) {
	if site.SearchURL == "" {
		return Page{}, ErrNoSearchURL
	}
	if site.SearchPattern != nil && !site.IsSearchPage(site.SearchURL) {
		return Page{}, fmt.Errorf("%w: %s", ErrNotSearchPage, site.SearchURL)
	}

	body, err := c.FetcherFor(site).Fetch(ctx, site.SearchURL)
	if err != nil {
		return Page{}, fmt.Errorf("scraper: %s: fetching search page: %w", site.Provider, err)
	}

	urls, err := ListingURLs(site, site.SearchURL, body, c.maxListings)
	if err != nil {
		return Page{}, fmt.Errorf("scraper: %s: %w", site.Provider, err)
	}

	c.logger.Debug("search page crawled", "provider", site.Provider, "listing_urls", len(urls))
	return Page{URL: site.SearchURL, Body: body, ListingURLs: urls}, nil
}

// ListingURLs extracts the anchors of body that the site recognizes as
// listings, resolved against pageURL, canonicalized and deduplicated in
// document order. limit <= 0 means no cap.
func ListingURLs(site sites.Site, pageURL string, body []byte, limit int) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(href); err == nil {
			base = b
		}
	}

	selector := site.LinkSelector
	if selector == "" {
		selector = "a[href]"
	}

	seen := make(map[string]bool)
	var out []string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return true
		}

		abs, err := base.Parse(href)
		if err != nil {
			return true
		}
		canonical, err := model.CanonicalURL(abs.String())
		if err != nil || !site.IsListingURL(canonical) || seen[canonical] {
			return true
		}

		seen[canonical] = true
		out = append(out, canonical)
		return limit <= 0 || len(out) < limit
	})

	return out, nil
}
