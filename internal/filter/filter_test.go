package filter

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/store"
)

func ptr[T any](v T) *T { return &v }

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, ls ...model.Listing) *store.Memory {
	t.Helper()
	s := store.NewMemory()
	for _, l := range ls {
		if err := s.Insert(context.Background(), l); err != nil {
			t.Fatalf("Insert %s: %v", l.ID, err)
		}
	}
	return s
}

func listing(id string, price int, age time.Duration) model.Listing {
	return model.Listing{
		ID:        id,
		Provider:  "demo",
		Key:       "url:" + id,
		Price:     price,
		Type:      model.TypeApartment,
		Active:    true,
		CreatedAt: now.Add(-age),
	}
}

func ids(ls []model.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestMatchPriceRange(t *testing.T) {
	s := seed(t,
		listing("p700", 700, 4*time.Minute),
		listing("p900", 900, 3*time.Minute),
		listing("p1200", 1200, 2*time.Minute),
		listing("p1300", 1300, time.Minute),
	)
	a := model.Alert{ID: "a", Criteria: model.Criteria{MinPrice: ptr(800), MaxPrice: ptr(1200)}}

	got, err := NewEngine(s, 0).Match(context.Background(), a, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if fmt.Sprint(ids(got)) != "[p1200 p900]" {
		t.Errorf("matches = %v, want [p1200 p900]", ids(got))
	}
}

func TestMatchWindowInactiveAndLimit(t *testing.T) {
	var ls []model.Listing
	for i := 0; i < 25; i++ {
		ls = append(ls, listing(fmt.Sprintf("l%02d", i), 900, time.Duration(i)*time.Minute))
	}
	old := listing("old", 900, 48*time.Hour)
	retired := listing("retired", 900, 0)
	retired.Active = false
	s := seed(t, append(ls, old, retired)...)

	got, err := NewEngine(s, 0).Match(context.Background(), model.Alert{ID: "a"}, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != DefaultLimit || got[0].ID != "l00" {
		t.Errorf("got %d matches starting with %v", len(got), ids(got)[:1])
	}
	for _, l := range got {
		if l.ID == "old" || l.ID == "retired" {
			t.Errorf("%s must not match", l.ID)
		}
	}

	all, err := NewEngine(s, 0).Candidates(context.Background(), model.Alert{ID: "a"}, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(all) != 25 || all[24].ID != "l24" {
		t.Errorf("candidates = %d, last %v", len(all), ids(all)[len(all)-1:])
	}
}

func TestMatchCriteria(t *testing.T) {
	furnished := listing("furnished", 900, 0)
	furnished.Furnished = ptr(true)
	furnished.Bedrooms = ptr(2)
	furnished.Surface = ptr(70.0)

	bare := listing("bare", 900, 0)
	bare.Furnished = ptr(false)
	bare.Rooms = ptr(1.0)
	bare.Type = model.TypeStudio

	unknown := listing("unknown", 900, 0)

	s := seed(t, furnished, bare, unknown)
	tests := []struct {
		name     string
		criteria model.Criteria
		want     string
	}{
		{"no criteria", model.Criteria{}, "[bare furnished unknown]"},
		{"furnished", model.Criteria{Furnishing: model.FurnishingFurnished}, "[furnished]"},
		{"unfurnished", model.Criteria{Furnishing: model.FurnishingUnfurnished}, "[bare]"},
		{"type", model.Criteria{Type: model.TypeStudio}, "[bare]"},
		{"bedrooms via rooms", model.Criteria{MinBedrooms: ptr(1)}, "[bare furnished]"},
		{"surface", model.Criteria{MinSurface: ptr(50.0)}, "[furnished]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewEngine(s, 0).Match(context.Background(), model.Alert{ID: "a", Criteria: tt.criteria}, time.Time{})
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if fmt.Sprint(ids(got)) != tt.want {
				t.Errorf("matches = %v, want %s", ids(got), tt.want)
			}
		})
	}
}

// offset moves p by km along bearing (degrees from north).
func offset(p model.GeoPoint, km, bearing float64) model.GeoPoint {
	rad := bearing * math.Pi / 180
	return model.GeoPoint{
		Lat: p.Lat + km*math.Cos(rad)/111,
		Lng: p.Lng + km*math.Sin(rad)/(111*math.Cos(p.Lat*math.Pi/180)),
	}
}

func TestMatchRadius(t *testing.T) {
	center := model.GeoPoint{Lat: 52.52, Lng: 13.405}

	for _, r := range []float64{0.5, 1, 5, 10, 19} {
		for bearing := 0.0; bearing < 360; bearing += 15 {
			t.Run(fmt.Sprintf("r=%v/bearing=%v", r, bearing), func(t *testing.T) {
				same := listing("same", 900, 0)
				same.Coordinates = &model.GeoPoint{Lat: center.Lat, Lng: center.Lng}
				far := listing("far", 900, time.Minute)
				p := offset(center, 2*r+0.01, bearing)
				far.Coordinates = &p
				nowhere := listing("nowhere", 900, 2*time.Minute)

				a := model.Alert{ID: "a", Geo: &model.GeoFilter{Coordinates: &center, RadiusKm: r}}
				got, err := NewEngine(seed(t, same, far, nowhere), 0).Match(context.Background(), a, time.Time{})
				if err != nil {
					t.Fatalf("Match: %v", err)
				}
				if fmt.Sprint(ids(got)) != "[same nowhere]" {
					t.Errorf("matches = %v, want [same nowhere]", ids(got))
				}
			})
		}
	}
}

func TestOptionsIgnoresUnusableGeo(t *testing.T) {
	a := model.Alert{Geo: &model.GeoFilter{Address: "Kreuzberg, Berlin", RadiusKm: 3}}
	if q := Options(a, now, 5); q.BBox != nil {
		t.Error("address without coordinates must not constrain")
	}
}
