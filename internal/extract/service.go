package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/sites"
)

const indexInstruction = `You review the HTML of a rental marketplace search page.
Answer with a JSON object: {"is_listing_index": bool, "listing_count": int, "reason": string}.
is_listing_index is true only when the page lists several individual rental offers.`

const listingInstruction = `You extract one rental offer from the HTML of its detail page.
Answer with a JSON object using exactly these keys:
{"is_listing": bool, "reason": string, "title": string, "description": string,
 "price": number, "surface": number|null, "rooms": number|null, "bedrooms": int|null,
 "type": "studio"|"apartment"|"shared-room"|"house", "furnished": bool|null,
 "address": string, "district": string, "city": string,
 "latitude": number|null, "longitude": number|null,
 "features": [string], "images": [string],
 "student_housing": bool, "short_term": bool}
price is the monthly cold rent in EUR. Use null for anything the page does not state. Never guess.`

var (
	studentHousingTerms = []string{
		"studentenwohnheim", "studierendenwohnheim", "student housing", "student residence",
		"student apartment", "studentenapartment", "nur für studenten", "students only", "student-housing",
	}
	shortTermTerms = []string{
		"co-living", "coliving", "zwischenmiete", "untermiete auf zeit", "wohnen auf zeit",
		"short-term", "short term", "befristet bis", "möbliert auf zeit", "temporary stay",
	}
	fencePattern = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// Options configures a Service.
type Options struct {
	TargetCity     string
	MaxMarkupBytes int
	Logger         *slog.Logger
}

// Service wraps a Completer with the pipeline's validity rules. Index
// validation fails open; listing extraction fails closed.
type Service struct {
	completer  Completer
	targetCity string
	maxBytes   int
	logger     *slog.Logger
}

func NewService(completer Completer, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		completer:  completer,
		targetCity: strings.TrimSpace(opts.TargetCity),
		maxBytes:   opts.MaxMarkupBytes,
		logger:     opts.Logger,
	}
}

// IndexVerdict is the answer for a search page.
type IndexVerdict struct {
	Valid        bool
	ListingCount int
	// FailOpen is set when the page was accepted only because the
	// collaborator could not give a usable answer.
	FailOpen bool
	Reason   string
}

// Extraction is the answer for a listing page. Fields is meaningful only
// when Valid is true; otherwise Reason says why the page was refused.
type Extraction struct {
	Valid  bool
	Reason string
	Fields model.Descriptive
}

type indexAnswer struct {
	IsListingIndex bool   `json:"is_listing_index"`
	ListingCount   int    `json:"listing_count"`
	Reason         string `json:"reason"`
}

type listingAnswer struct {
	IsListing      bool       `json:"is_listing"`
	Reason         string     `json:"reason"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Price          flexNumber `json:"price"`
	Surface        flexNumber `json:"surface"`
	Rooms          flexNumber `json:"rooms"`
	Bedrooms       flexNumber `json:"bedrooms"`
	Type           string     `json:"type"`
	Furnished      *bool      `json:"furnished"`
	Address        string     `json:"address"`
	District       string     `json:"district"`
	City           string     `json:"city"`
	Latitude       flexNumber `json:"latitude"`
	Longitude      flexNumber `json:"longitude"`
	Features       []string   `json:"features"`
	Images         []string   `json:"images"`
	StudentHousing bool       `json:"student_housing"`
	ShortTerm      bool       `json:"short_term"`
}

// ValidateIndex asks whether markup is a search page listing rental offers.
// Any failure to get a usable answer accepts the page with FailOpen set, so
// a flaky collaborator never blocks a source.
func (s *Service) ValidateIndex(ctx context.Context, site sites.Site, markup []byte) IndexVerdict {
	cleaned, err := CleanMarkup(markup, s.maxBytes)
	if err != nil {
		return s.failOpen(site, err)
	}

	raw, err := s.completer.Complete(ctx, Request{
		Task:   TaskIndex,
		System: indexInstruction,
		User:   fmt.Sprintf("Source: %s\nURL: %s\n\nHTML:\n%s", site.Name, site.SearchURL, cleaned),
	})
	if err != nil {
		return s.failOpen(site, err)
	}

	var ans indexAnswer
	if err := decodeAnswer(raw, &ans); err != nil {
		return s.failOpen(site, err)
	}
	if ans.ListingCount < 0 {
		ans.ListingCount = 0
	}
	return IndexVerdict{
		Valid:        ans.IsListingIndex,
		ListingCount: ans.ListingCount,
		Reason:       strings.TrimSpace(ans.Reason),
	}
}

func (s *Service) failOpen(site sites.Site, err error) IndexVerdict {
	s.logger.Warn("index validation unavailable, accepting page", "provider", site.Provider, "error", err)
	return IndexVerdict{Valid: true, FailOpen: true, Reason: err.Error()}
}

// ExtractListing turns a listing page into descriptive fields. A failed or
// malformed answer yields Valid=false. The returned error is non-nil only
// when ctx is done.
func (s *Service) ExtractListing(ctx context.Context, pageURL string, markup []byte) (Extraction, error) {
	if text := strings.ToLower(pageURL); containsAny(text, studentHousingTerms) {
		return reject("student housing"), nil
	}

	cleaned, err := CleanMarkup(markup, s.maxBytes)
	if err != nil {
		return reject("unreadable markup: " + err.Error()), nil
	}

	raw, err := s.completer.Complete(ctx, Request{
		Task:   TaskListing,
		System: listingInstruction,
		User:   fmt.Sprintf("URL: %s\nTarget city: %s\n\nHTML:\n%s", pageURL, s.targetCity, cleaned),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Extraction{}, ctxErr
		}
		return reject("extraction failed: " + err.Error()), nil
	}

	var ans listingAnswer
	if err := decodeAnswer(raw, &ans); err != nil {
		return reject("malformed answer: " + err.Error()), nil
	}

	return s.enforce(pageURL, ans), nil
}

// enforce applies the rules that hold no matter what the collaborator said.
func (s *Service) enforce(pageURL string, ans listingAnswer) Extraction {
	if !ans.IsListing {
		reason := strings.TrimSpace(ans.Reason)
		if reason == "" {
			reason = "not a listing"
		}
		return reject(reason)
	}

	fields := ans.descriptive(pageURL)
	if fields.Type == model.TypeUnknown {
		s.logger.Debug("listing type not recognized, stored as unknown", "url", pageURL, "type", ans.Type)
	}
	text := strings.ToLower(fields.Title + " " + fields.Description + " " + pageURL)

	switch {
	case ans.StudentHousing || containsAny(text, studentHousingTerms):
		return reject("student housing")
	case ans.ShortTerm || containsAny(text, shortTermTerms):
		return reject("short-term or co-living")
	}

	if s.targetCity != "" {
		target := strings.ToLower(s.targetCity)
		switch {
		case fields.City == "" && strings.Contains(strings.ToLower(fields.Address), target):
			fields.City = s.targetCity
		case fields.City == "":
			return reject("city unknown")
		case !strings.Contains(strings.ToLower(fields.City), target):
			return reject("out of area: " + fields.City)
		}
	}

	return Extraction{Valid: true, Fields: fields}
}

func (a listingAnswer) descriptive(pageURL string) model.Descriptive {
	d := model.Descriptive{
		Title:       strings.TrimSpace(a.Title),
		Description: strings.TrimSpace(a.Description),
		Address:     strings.TrimSpace(a.Address),
		District:    strings.TrimSpace(a.District),
		City:        strings.TrimSpace(a.City),
		Furnished:   a.Furnished,
		Features:    cleanList(a.Features),
		Images:      absoluteURLs(pageURL, a.Images),
	}

	if p, ok := a.Price.value(); ok && p > 0 {
		d.Price = int(p + 0.5)
	}
	if v, ok := a.Surface.value(); ok && v > 0 {
		d.Surface = &v
	}
	if v, ok := a.Rooms.value(); ok && v > 0 {
		d.Rooms = &v
	}
	if v, ok := a.Bedrooms.value(); ok && v >= 0 {
		n := int(v)
		d.Bedrooms = &n
	}

	if t, ok := model.ParseListingType(a.Type); ok {
		d.Type = t
	}

	lat, okLat := a.Latitude.value()
	lng, okLng := a.Longitude.value()
	if okLat && okLng {
		if p := (model.GeoPoint{Lat: lat, Lng: lng}); p.Valid() {
			d.Coordinates = &p
		}
	}
	return d
}

func reject(reason string) Extraction {
	return Extraction{Reason: reason}
}

// decodeAnswer unmarshals a JSON answer, tolerating a surrounding code fence.
func decodeAnswer(raw string, v any) error {
	raw = strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	if raw == "" {
		return errors.New("empty answer")
	}
	return json.Unmarshal([]byte(raw), v)
}

func containsAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

func cleanList(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func absoluteURLs(pageURL string, in []string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, raw := range in {
		u, err := base.Parse(strings.TrimSpace(raw))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		s := u.String()
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// flexNumber accepts a JSON number, a numeric string in German or English
// notation ("1.200,50 €", "60 m²") or null.
type flexNumber struct {
	v     float64
	valid bool
}

var numberPattern = regexp.MustCompile(`-?\d[\d.,]*`)

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	*n = flexNumber{}
	s := strings.TrimSpace(string(b))
	if s == "null" || s == "" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		v, ok := parseLooseNumber(str)
		if ok {
			*n = flexNumber{v: v, valid: true}
		}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", s)
	}
	*n = flexNumber{v: v, valid: true}
	return nil
}

func (n flexNumber) value() (float64, bool) {
	return n.v, n.valid
}

func parseLooseNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	dot, comma := strings.LastIndex(m, "."), strings.LastIndex(m, ",")
	switch {
	case dot >= 0 && comma >= 0 && comma > dot:
		// 1.200,50
		m = strings.ReplaceAll(m, ".", "")
		m = strings.Replace(m, ",", ".", 1)
	case dot >= 0 && comma >= 0:
		// 1,200.50
		m = strings.ReplaceAll(m, ",", "")
	case comma >= 0:
		if len(m)-comma-1 == 3 {
			m = strings.ReplaceAll(m, ",", "")
		} else {
			m = strings.Replace(m, ",", ".", 1)
		}
	case dot >= 0 && len(m)-dot-1 == 3 && !strings.HasPrefix(m, "0"):
		// 1.200 as a thousands separator
		m = strings.ReplaceAll(m, ".", "")
	}
	m = strings.TrimRight(m, ".,")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
