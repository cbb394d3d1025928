package sites

import "regexp"

// Default returns the built-in Berlin rental sources.
func Default() *Registry {
	return New(
		Site{
			Provider:       "immoscout24",
			Name:           "ImmobilienScout24",
			SearchURL:      "https://www.immobilienscout24.de/Suche/de/berlin/berlin/wohnung-mieten",
			Hosts:          []string{"immobilienscout24.de"},
			SearchPattern:  regexp.MustCompile(`immobilienscout24\.de/Suche/`),
			LinkSelector:   "a[href*='/expose/']",
			ListingPattern: regexp.MustCompile(`immobilienscout24\.de/expose/\d+`),
			IDPattern:      regexp.MustCompile(`/expose/(\d+)`),
			RenderJS:       true,
		},
		Site{
			Provider:       "immowelt",
			Name:           "Immowelt",
			SearchURL:      "https://www.immowelt.de/classified-search?distributionTypes=Rent&estateTypes=Apartment&locations=AD08DE8634",
			Hosts:          []string{"immowelt.de"},
			SearchPattern:  regexp.MustCompile(`immowelt\.de/(classified-search|suche/)`),
			LinkSelector:   "a[href*='/expose/']",
			ListingPattern: regexp.MustCompile(`immowelt\.de/expose/[a-z0-9-]+`),
			IDPattern:      regexp.MustCompile(`/expose/([a-z0-9-]+)`),
		},
		Site{
			Provider:       "wg-gesucht",
			Name:           "WG-Gesucht",
			SearchURL:      "https://www.wg-gesucht.de/wohnungen-in-Berlin.8.2.1.0.html",
			Hosts:          []string{"wg-gesucht.de"},
			SearchPattern:  regexp.MustCompile(`wg-gesucht\.de/(wohnungen|wg-zimmer|1-zimmer-wohnungen)-in-Berlin`),
			LinkSelector:   "div.wgg_card a[href]",
			ListingPattern: regexp.MustCompile(`wg-gesucht\.de/(wohnungen|wg-zimmer|1-zimmer-wohnungen)-in-Berlin-[^/]+\.\d+\.html`),
			IDPattern:      regexp.MustCompile(`\.(\d+)\.html$`),
		},
		Site{
			Provider:       "kleinanzeigen",
			Name:           "Kleinanzeigen",
			SearchURL:      "https://www.kleinanzeigen.de/s-wohnung-mieten/berlin/c203l3331",
			Hosts:          []string{"kleinanzeigen.de"},
			SearchPattern:  regexp.MustCompile(`kleinanzeigen\.de/s-wohnung-mieten/`),
			LinkSelector:   "article.aditem a[href*='/s-anzeige/']",
			ListingPattern: regexp.MustCompile(`kleinanzeigen\.de/s-anzeige/[^/]+/\d+-\d+-\d+`),
			IDPattern:      regexp.MustCompile(`/s-anzeige/[^/]+/(\d+)-`),
		},
		Site{
			Provider:       "wohnungsboerse",
			Name:           "Wohnungsbörse",
			SearchURL:      "https://www.wohnungsboerse.net/searches/index?estate_marketing_types=miete%2C1&cities[]=Berlin",
			Hosts:          []string{"wohnungsboerse.net"},
			SearchPattern:  regexp.MustCompile(`wohnungsboerse\.net/searches/`),
			LinkSelector:   "a[href*='/immodetail/']",
			ListingPattern: regexp.MustCompile(`wohnungsboerse\.net/immodetail/\d+`),
			IDPattern:      regexp.MustCompile(`/immodetail/(\d+)`),
		},
		Site{
			Provider:        "inberlinwohnen",
			Name:            "inberlinwohnen",
			SearchURL:       "https://inberlinwohnen.de/wohnungsfinder/",
			Hosts:           []string{"inberlinwohnen.de"},
			SearchPattern:   regexp.MustCompile(`inberlinwohnen\.de/wohnungsfinder`),
			LinkSelector:    "li.tb-merkflat a.org-but[href]",
			ListingPattern:  regexp.MustCompile(`^https?://[^/]+/.+`),
			ForeignListings: true,
		},
		Site{
			Provider:       "immonet",
			Name:           "Immonet",
			SearchURL:      "https://www.immonet.de/immobiliensuche/sel.do?city=87372&marketingtype=2&objecttype=1",
			Hosts:          []string{"immonet.de"},
			SearchPattern:  regexp.MustCompile(`immonet\.de/immobiliensuche/`),
			LinkSelector:   "a[href*='/angebot/']",
			ListingPattern: regexp.MustCompile(`immonet\.de/angebot/\d+`),
			IDPattern:      regexp.MustCompile(`/angebot/(\d+)`),
			// Merged into Immowelt; kept so stored listings still resolve.
			Disabled: true,
		},
	)
}
