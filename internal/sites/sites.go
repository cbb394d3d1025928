// Package sites holds the static per-provider configuration the crawler is
// driven by. Adding a marketplace means adding an entry here, not code.
package sites

import (
	"net/url"
	"regexp"
	"strings"
)

// Site describes one source marketplace.
type Site struct {
	// Provider is the stable identifier stored on every listing.
	Provider string
	// Name is a human-readable label for logs.
	Name string
	// SearchURL is the search/index page crawled each run.
	SearchURL string
	// Hosts are the hostnames (without "www.") served by this provider.
	Hosts []string
	// SearchPattern recognizes search/index page URLs.
	SearchPattern *regexp.Regexp
	// LinkSelector narrows the anchors considered on a search page.
	// Empty means every anchor with an href.
	LinkSelector string
	// ListingPattern recognizes individual-listing URLs.
	ListingPattern *regexp.Regexp
	// IDPattern optionally captures a stable provider-native id from a
	// listing URL (first submatch).
	IDPattern *regexp.Regexp
	// ForeignListings allows listing URLs on hosts other than Hosts, for
	// aggregators linking out to landlords' own pages.
	ForeignListings bool
	// RenderJS marks sources whose search page needs a headless browser.
	RenderJS bool
	// Disabled entries are kept for reference but never crawled.
	Disabled bool
}

// IsSearchPage reports whether rawURL looks like a search/index page of s.
func (s Site) IsSearchPage(rawURL string) bool {
	return s.SearchPattern != nil && s.SearchPattern.MatchString(rawURL)
}

// IsListingURL reports whether rawURL points at an individual listing of s.
func (s Site) IsListingURL(rawURL string) bool {
	if s.ListingPattern == nil || !s.ListingPattern.MatchString(rawURL) {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return s.ForeignListings || s.servesHost(u.Hostname())
}

// ExternalID extracts the provider-native id from a listing URL, or "".
func (s Site) ExternalID(rawURL string) string {
	if s.IDPattern == nil {
		return ""
	}
	m := s.IDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (s Site) servesHost(host string) bool {
	host = normalizeHost(host)
	for _, h := range s.Hosts {
		if normalizeHost(h) == host {
			return true
		}
	}
	return false
}

// Registry resolves URLs to site configuration.
type Registry struct {
	sites []Site
}

// New builds a registry over the given sites.
func New(sites ...Site) *Registry {
	return &Registry{sites: sites}
}

// Sites returns every enabled entry, in registration order.
func (r *Registry) Sites() []Site {
	out := make([]Site, 0, len(r.sites))
	for _, s := range r.sites {
		if !s.Disabled {
			out = append(out, s)
		}
	}
	return out
}

// Resolve returns the configuration for the provider serving rawURL. An
// unrecognized host returns false.
func (r *Registry) Resolve(rawURL string) (Site, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return Site{}, false
	}
	for _, s := range r.sites {
		if s.servesHost(u.Hostname()) {
			return s, true
		}
	}
	return Site{}, false
}

// Provider returns the entry registered under provider.
func (r *Registry) Provider(provider string) (Site, bool) {
	for _, s := range r.sites {
		if strings.EqualFold(s.Provider, provider) {
			return s, true
		}
	}
	return Site{}, false
}

// Without returns a copy of r with the named providers disabled.
func (r *Registry) Without(providers ...string) *Registry {
	off := make(map[string]bool, len(providers))
	for _, p := range providers {
		off[strings.ToLower(p)] = true
	}
	cp := make([]Site, len(r.sites))
	copy(cp, r.sites)
	for i := range cp {
		if off[strings.ToLower(cp[i].Provider)] {
			cp[i].Disabled = true
		}
	}
	return &Registry{sites: cp}
}

func normalizeHost(h string) string {
	return strings.TrimPrefix(strings.ToLower(h), "www.")
}
