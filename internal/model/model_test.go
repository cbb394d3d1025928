package model

import (
	"math"
	"testing"
	"time"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"strips www and fragment", "https://www.Example.de/expose/123#photos", "https://example.de/expose/123"},
		{"drops tracking params", "https://example.de/expose/123?utm_source=x&id=7", "https://example.de/expose/123?id=7"},
		{"trims trailing slash", "https://example.de/wohnung/abc/", "https://example.de/wohnung/abc"},
		{"keeps root path", "https://example.de/", "https://example.de/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.raw)
			if err != nil {
				t.Fatalf("CanonicalURL(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("CanonicalURL(%q) = %q; want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCanonicalURLRejectsRelative(t *testing.T) {
	if _, err := CanonicalURL("/expose/123"); err == nil {
		t.Error("expected error for relative URL")
	}
}

func TestIdentityKeyPrefersExternalID(t *testing.T) {
	if got := IdentityKey("123", "https://example.de/a"); got != "id:123" {
		t.Errorf("got %q, want id:123", got)
	}
	if got := IdentityKey(" ", "https://example.de/a"); got != "url:https://example.de/a" {
		t.Errorf("got %q, want url key", got)
	}
}

func TestParseListingType(t *testing.T) {
	tests := []struct {
		in   string
		want ListingType
		ok   bool
	}{
		{"Wohnung", TypeApartment, true},
		{"WG-Zimmer", TypeSharedRoom, true},
		{"studio", TypeStudio, true},
		{"Haus", TypeHouse, true},
		{"castle", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseListingType(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseListingType(%q) = %q,%v; want %q,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAlertDue(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-2 * time.Hour)
	old := now.Add(-25 * time.Hour)
	earlyTick := now.Add(-time.Hour + 2*time.Second)
	halfHour := now.Add(-30 * time.Minute)

	tests := []struct {
		name  string
		alert Alert
		want  bool
	}{
		{"never dispatched", Alert{Active: true, Frequency: FrequencyDaily}, true},
		{"inactive", Alert{Active: false}, false},
		{"daily dispatched recently", Alert{Active: true, Frequency: FrequencyDaily, LastDispatchedAt: &recent}, false},
		{"daily dispatched yesterday", Alert{Active: true, Frequency: FrequencyDaily, LastDispatchedAt: &old}, true},
		{"hourly dispatched two hours ago", Alert{Active: true, Frequency: FrequencyHourly, LastDispatchedAt: &recent}, true},
		{"hourly tick fired slightly early", Alert{Active: true, Frequency: FrequencyHourly, LastDispatchedAt: &earlyTick}, true},
		{"hourly dispatched half an hour ago", Alert{Active: true, Frequency: FrequencyHourly, LastDispatchedAt: &halfHour}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.alert.Due(now); got != tt.want {
				t.Errorf("Due() = %v; want %v", got, tt.want)
			}
		})
	}
}

func TestBedroomCountFallsBackToRooms(t *testing.T) {
	rooms := 2.5
	l := Listing{Rooms: &rooms}
	n, ok := l.BedroomCount()
	if !ok || n != 2 {
		t.Errorf("BedroomCount() = %d,%v; want 2,true", n, ok)
	}
	if _, ok := (Listing{}).BedroomCount(); ok {
		t.Error("expected no bedroom count for empty listing")
	}
}

func TestBoundingBox(t *testing.T) {
	berlin := GeoPoint{Lat: 52.52, Lng: 13.405}
	b := BoundingBox(berlin, 10)

	if got := b.MaxLat - berlin.Lat; math.Abs(got-10.0/111) > 1e-9 {
		t.Errorf("lat half-span = %v", got)
	}
	wantLng := 10 / (111 * math.Cos(berlin.Lat*math.Pi/180))
	if got := b.MaxLng - berlin.Lng; math.Abs(got-wantLng) > 1e-9 {
		t.Errorf("lng half-span = %v, want %v", got, wantLng)
	}
	if !b.Contains(berlin) || !b.Contains(GeoPoint{Lat: b.MinLat, Lng: b.MaxLng}) {
		t.Error("box should contain its center and corners")
	}
	if b.Contains(GeoPoint{Lat: 52.8, Lng: 13.405}) {
		t.Error("point 31km north should be outside")
	}

	pole := BoundingBox(GeoPoint{Lat: 89.99, Lng: 0}, 50)
	if pole.MaxLat != 90 || pole.MinLng != -180 || pole.MaxLng != 180 {
		t.Errorf("polar box = %+v", pole)
	}
}
