package sites

import (
	"regexp"
	"testing"
)

func TestResolveKnownHosts(t *testing.T) {
	r := Default()

	tests := []struct {
		url      string
		provider string
	}{
		{"https://www.immobilienscout24.de/expose/123456", "immoscout24"},
		{"https://immowelt.de/expose/2abc3", "immowelt"},
		{"https://www.WG-Gesucht.de/wohnungen-in-Berlin-Kreuzberg.1234.html", "wg-gesucht"},
		{"https://www.kleinanzeigen.de/s-anzeige/wohnung/2900000000-203-3331", "kleinanzeigen"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			s, ok := r.Resolve(tt.url)
			if !ok {
				t.Fatalf("Resolve(%q) found no site", tt.url)
			}
			if s.Provider != tt.provider {
				t.Errorf("Resolve(%q) = %q; want %q", tt.url, s.Provider, tt.provider)
			}
		})
	}
}

func TestResolveUnknownHostFailsSoft(t *testing.T) {
	r := Default()
	if _, ok := r.Resolve("https://example.org/listing/1"); ok {
		t.Error("expected unknown host to resolve to no config")
	}
	if _, ok := r.Resolve("not a url"); ok {
		t.Error("expected garbage to resolve to no config")
	}
}

func TestSitesSkipsDisabled(t *testing.T) {
	for _, s := range Default().Sites() {
		if s.Provider == "immonet" {
			t.Error("disabled provider returned by Sites()")
		}
	}
	if _, ok := Default().Resolve("https://www.immonet.de/angebot/1"); !ok {
		t.Error("disabled provider should still resolve for stored listings")
	}
}

func TestWithoutDisablesProviders(t *testing.T) {
	r := Default().Without("Immowelt")
	for _, s := range r.Sites() {
		if s.Provider == "immowelt" {
			t.Fatal("immowelt should be disabled")
		}
	}
	for _, s := range Default().Sites() {
		if s.Provider == "immowelt" {
			return
		}
	}
	t.Error("Without must not mutate the original registry")
}

func TestListingURLAndExternalID(t *testing.T) {
	s := Site{
		Provider:       "demo",
		Hosts:          []string{"demo.test"},
		ListingPattern: regexp.MustCompile(`/offer/\d+`),
		IDPattern:      regexp.MustCompile(`/offer/(\d+)`),
	}

	if !s.IsListingURL("https://www.demo.test/offer/42") {
		t.Error("expected listing URL to match")
	}
	if s.IsListingURL("https://demo.test/blog/42") {
		t.Error("blog URL must not match")
	}
	if s.IsListingURL("https://other.test/offer/42") {
		t.Error("foreign host must not match")
	}
	if got := s.ExternalID("https://demo.test/offer/42"); got != "42" {
		t.Errorf("ExternalID = %q; want 42", got)
	}

	s.ForeignListings = true
	if !s.IsListingURL("https://other.test/offer/42") {
		t.Error("foreign host should match when ForeignListings is set")
	}
}

func TestIsSearchPage(t *testing.T) {
	s, _ := Default().Provider("wg-gesucht")
	if !s.IsSearchPage(s.SearchURL) {
		t.Errorf("search URL %q should be recognized", s.SearchURL)
	}
	if s.IsSearchPage("https://www.wg-gesucht.de/impressum.html") {
		t.Error("impressum should not be a search page")
	}
}
