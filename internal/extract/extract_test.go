package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rsilvagit/go-rent/internal/logger"
	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/sites"
)

type stubCompleter struct {
	answer string
	err    error
	last   Request
}

func (s *stubCompleter) Complete(_ context.Context, req Request) (string, error) {
	s.last = req
	return s.answer, s.err
}

func newService(c Completer) *Service {
	return NewService(c, Options{TargetCity: "Berlin", MaxMarkupBytes: 4000, Logger: logger.Discard()})
}

const listingPage = `<html><head><script>track()</script><style>body{}</style></head>
<body><!-- ad slot --><header><nav>menu</nav></header>
<h1 class="title">2-Zimmer-Wohnung in Kreuzberg</h1><p style="color:red">Kaltmiete 950 €</p>
<footer>Impressum</footer></body></html>`

func TestCleanMarkupStripsNoise(t *testing.T) {
	got, err := CleanMarkup([]byte(listingPage), 0)
	if err != nil {
		t.Fatalf("CleanMarkup: %v", err)
	}
	for _, gone := range []string{"track()", "body{}", "ad slot", "menu", "Impressum", "style=", "class="} {
		if strings.Contains(got, gone) {
			t.Errorf("cleaned markup still contains %q: %s", gone, got)
		}
	}
	for _, kept := range []string{"2-Zimmer-Wohnung in Kreuzberg", "Kaltmiete 950 €"} {
		if !strings.Contains(got, kept) {
			t.Errorf("cleaned markup lost %q: %s", kept, got)
		}
	}
}

func TestCleanMarkupCapsOnRuneBoundary(t *testing.T) {
	body := []byte("<p>" + strings.Repeat("ä", 100) + "</p>")
	got, err := CleanMarkup(body, 10)
	if err != nil {
		t.Fatalf("CleanMarkup: %v", err)
	}
	if len(got) > 10 {
		t.Errorf("len = %d, want <= 10", len(got))
	}
	if !strings.HasPrefix(got, "<p>") || strings.ContainsRune(got, '�') {
		t.Errorf("unexpected truncation %q", got)
	}
}

func TestValidateIndex(t *testing.T) {
	site := sites.Site{Provider: "demo", Name: "Demo", SearchURL: "https://demo.test/search"}

	tests := []struct {
		name     string
		answer   string
		err      error
		valid    bool
		failOpen bool
		count    int
	}{
		{"accepted", `{"is_listing_index": true, "listing_count": 12}`, nil, true, false, 12},
		{"refused", `{"is_listing_index": false, "reason": "login wall"}`, nil, false, false, 0},
		{"fenced answer", "```json\n{\"is_listing_index\": true, \"listing_count\": 3}\n```", nil, true, false, 3},
		{"collaborator error fails open", "", errors.New("503"), true, true, 0},
		{"malformed answer fails open", "not json", nil, true, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubCompleter{answer: tt.answer, err: tt.err}
			v := newService(c).ValidateIndex(context.Background(), site, []byte(listingPage))
			if v.Valid != tt.valid || v.FailOpen != tt.failOpen || v.ListingCount != tt.count {
				t.Errorf("got %+v; want valid=%v failOpen=%v count=%d", v, tt.valid, tt.failOpen, tt.count)
			}
		})
	}
}

const goodAnswer = `{"is_listing": true, "title": "Helle 2-Zimmer-Wohnung", "description": "Schöne Wohnung, Kaltmiete 950 €",
"price": 950, "surface": "60 m²", "rooms": 2, "bedrooms": null, "type": "Wohnung", "furnished": null,
"address": "Oranienstraße 1, 10999 Berlin", "district": "Kreuzberg", "city": "Berlin",
"latitude": 52.5, "longitude": 13.42, "features": ["Balkon", "Balkon", " "], "images": ["/img/1.jpg", "ftp://x/y"]}`

func TestExtractListingMapsFields(t *testing.T) {
	c := &stubCompleter{answer: goodAnswer}
	ex, err := newService(c).ExtractListing(context.Background(), "https://demo.test/offer/1", []byte(listingPage))
	if err != nil {
		t.Fatalf("ExtractListing: %v", err)
	}
	if !ex.Valid {
		t.Fatalf("expected valid extraction, got reason %q", ex.Reason)
	}
	if c.last.Task != TaskListing {
		t.Errorf("task = %q", c.last.Task)
	}

	f := ex.Fields
	if f.Price != 950 || f.Type != model.TypeApartment || f.City != "Berlin" {
		t.Errorf("unexpected fields %+v", f)
	}
	if f.Surface == nil || *f.Surface != 60 {
		t.Errorf("surface = %v, want 60", f.Surface)
	}
	if f.Bedrooms != nil || f.Furnished != nil {
		t.Error("missing fields must stay nil")
	}
	if f.Coordinates == nil || f.Coordinates.Lat != 52.5 {
		t.Errorf("coordinates = %v", f.Coordinates)
	}
	if len(f.Features) != 1 {
		t.Errorf("features = %v", f.Features)
	}
	if len(f.Images) != 1 || f.Images[0] != "https://demo.test/img/1.jpg" {
		t.Errorf("images = %v", f.Images)
	}
}

func TestExtractListingKeepsUnknownType(t *testing.T) {
	for _, label := range []string{"", "Schloss"} {
		answer := strings.Replace(goodAnswer, `"type": "Wohnung"`, `"type": "`+label+`"`, 1)
		ex, err := newService(&stubCompleter{answer: answer}).ExtractListing(context.Background(), "https://demo.test/offer/1", []byte(listingPage))
		if err != nil {
			t.Fatalf("ExtractListing: %v", err)
		}
		if !ex.Valid || ex.Fields.Type != model.TypeUnknown {
			t.Errorf("type %q: valid=%v type=%q, want unknown", label, ex.Valid, ex.Fields.Type)
		}
	}
}

func TestExtractListingRejections(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		answer string
		err    error
		reason string
	}{
		{"collaborator error", "https://demo.test/offer/1", "", errors.New("timeout"), "extraction failed"},
		{"malformed", "https://demo.test/offer/1", "{", nil, "malformed answer"},
		{"not a listing", "https://demo.test/offer/1", `{"is_listing": false}`, nil, "not a listing"},
		{"other city", "https://demo.test/offer/1",
			`{"is_listing": true, "title": "Wohnung", "price": 700, "city": "Hamburg"}`, nil, "out of area"},
		{"unknown city", "https://demo.test/offer/1",
			`{"is_listing": true, "title": "Wohnung", "price": 700}`, nil, "city unknown"},
		{"student housing flag ignored by collaborator", "https://demo.test/offer/1",
			`{"is_listing": true, "title": "Zimmer im Studentenwohnheim", "price": 400, "city": "Berlin"}`, nil, "student housing"},
		{"student housing marketplace", "https://student-housing.test/room/4", goodAnswer, nil, "student housing"},
		{"co-living", "https://demo.test/offer/1",
			`{"is_listing": true, "title": "Co-Living Space Mitte", "price": 800, "city": "Berlin"}`, nil, "short-term"},
		{"zwischenmiete", "https://demo.test/offer/1",
			`{"is_listing": true, "title": "Wohnung", "description": "Zwischenmiete für 3 Monate", "price": 800, "city": "Berlin"}`, nil, "short-term"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubCompleter{answer: tt.answer, err: tt.err}
			ex, err := newService(c).ExtractListing(context.Background(), tt.url, []byte(listingPage))
			if err != nil {
				t.Fatalf("ExtractListing: %v", err)
			}
			if ex.Valid {
				t.Fatal("expected rejection")
			}
			if !strings.HasPrefix(ex.Reason, tt.reason) {
				t.Errorf("reason = %q; want prefix %q", ex.Reason, tt.reason)
			}
		})
	}
}

func TestExtractListingCityFromAddress(t *testing.T) {
	c := &stubCompleter{answer: `{"is_listing": true, "title": "Wohnung", "price": 700, "address": "Kottbusser Damm 5, Berlin"}`}
	ex, _ := newService(c).ExtractListing(context.Background(), "https://demo.test/offer/1", []byte(listingPage))
	if !ex.Valid || ex.Fields.City != "Berlin" {
		t.Errorf("got %+v", ex)
	}
}

func TestExtractListingCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &stubCompleter{err: context.Canceled}
	if _, err := newService(c).ExtractListing(ctx, "https://demo.test/offer/1", []byte(listingPage)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestParseLooseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"950 €", 950, true},
		{"1.200,50 €", 1200.5, true},
		{"1,200.50", 1200.5, true},
		{"1.200", 1200, true},
		{"60,5 m²", 60.5, true},
		{"2.5", 2.5, true},
		{"auf Anfrage", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := parseLooseNumber(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("parseLooseNumber(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}
