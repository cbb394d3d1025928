package ingest

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/rsilvagit/go-rent/internal/model"
)

// Gate bounds.
const (
	MinTitleLen       = 10
	MinDescriptionLen = 30
	MinPrice          = 50
	MaxPrice          = 50000
	MinSurface        = 5.0
	MaxSurface        = 1000.0
	MaxRooms          = 20.0
	MinDomainKeywords = 2
)

// Rejection explains why a record failed the quality gate.
type Rejection struct {
	Rule   string
	Detail string
}

func (r Rejection) String() string {
	if r.Detail == "" {
		return r.Rule
	}
	return r.Rule + ": " + r.Detail
}

var (
	denyTerms = []string{
		"impressum", "datenschutz", "datenschutzerklärung", "privacy policy", "terms of service",
		"agb", "blog", "stellenangebot", "stellenanzeige", "job posting", "karriere", "we are hiring",
		"page not found", "seite nicht gefunden", "error 404", "404 not found",
	}
	denyPaths = []string{
		"/blog/", "/category/", "/jobs", "/karriere", "/impressum", "/tag/", "/news/", "/ratgeber/",
	}
	domainTerms = []string{
		"miete", "kaltmiete", "warmmiete", "nebenkosten", "kaution", "zimmer", "wohnfläche",
		"qm", "m²", "verfügbar", "frei ab", "bezugsfrei", "rent", "deposit", "rooms", "room",
		"bedroom", "sqm", "available",
	}

	denyPattern   = wordPattern(denyTerms)
	domainPattern = wordPattern(domainTerms)
)

// wordPattern matches any of terms where the neighbours are not letters.
// Digits may touch a term so "60m²" and "3-zimmer" count.
func wordPattern(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?:^|[^\p{L}])(` + strings.Join(quoted, "|") + `)(?:$|[^\p{L}])`)
}

// Check runs every gate rule against l and returns the first failure.
func Check(l model.Listing) (Rejection, bool) {
	title := strings.TrimSpace(l.Title)
	desc := strings.TrimSpace(l.Description)

	switch {
	case utf8.RuneCountInString(title) < MinTitleLen:
		return Rejection{Rule: "title too short", Detail: title}, false
	case utf8.RuneCountInString(desc) < MinDescriptionLen:
		return Rejection{Rule: "description too short"}, false
	case l.Price < MinPrice || l.Price > MaxPrice:
		return Rejection{Rule: "price out of range", Detail: fmt.Sprint(l.Price)}, false
	case l.Surface != nil && (*l.Surface < MinSurface || *l.Surface > MaxSurface):
		return Rejection{Rule: "surface out of range", Detail: fmt.Sprint(*l.Surface)}, false
	case l.Rooms != nil && (*l.Rooms < 0 || *l.Rooms > MaxRooms):
		return Rejection{Rule: "rooms out of range", Detail: fmt.Sprint(*l.Rooms)}, false
	}

	if path := urlPath(l.SourceURL); path != "" {
		for _, p := range denyPaths {
			if strings.Contains(path, p) {
				return Rejection{Rule: "denylisted path", Detail: p}, false
			}
		}
	}

	text := strings.ToLower(title + "\n" + desc + "\n" + urlPath(l.SourceURL))
	if m := denyPattern.FindStringSubmatch(text); m != nil {
		return Rejection{Rule: "denylisted keyword", Detail: m[1]}, false
	}

	if n := countDomainTerms(strings.ToLower(title + "\n" + desc)); n < MinDomainKeywords {
		return Rejection{Rule: "too few rental keywords", Detail: fmt.Sprint(n)}, false
	}

	return Rejection{}, true
}

func countDomainTerms(text string) int {
	seen := make(map[string]bool)
	// Matches consume their trailing separator, so scan from each match start
	// plus one rune to catch adjacent terms.
	for i := 0; i < len(text); {
		loc := domainPattern.FindStringSubmatchIndex(text[i:])
		if loc == nil {
			break
		}
		seen[text[i+loc[2]:i+loc[3]]] = true
		i += loc[3]
	}
	return len(seen)
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Path)
}
