package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
)

var (
	_ ListingStore = (*Memory)(nil)
	_ AlertStore   = (*Memory)(nil)
	_ EventLog     = (*Memory)(nil)
)

func ptr[T any](v T) *T { return &v }

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func listing(id string, price int, age time.Duration) model.Listing {
	return model.Listing{
		ID:        id,
		Provider:  "demo",
		Key:       "url:https://demo.test/" + id,
		Price:     price,
		Active:    true,
		CreatedAt: base.Add(-age),
		UpdatedAt: base.Add(-age),
	}
}

func TestMemoryInsertDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	l := listing("a", 900, 0)
	if err := m.Insert(ctx, l); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	l.ID = "b"
	if err := m.Insert(ctx, l); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second insert err = %v, want ErrDuplicate", err)
	}
	if _, err := m.FindByKey(ctx, "other", l.Key); !errors.Is(err, ErrNotFound) {
		t.Errorf("key lookup is scoped by provider, got %v", err)
	}
}

func TestMemoryUpdateDescriptiveKeepsLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	l := listing("a", 900, time.Hour)
	checked := base.Add(-time.Minute)
	l.StatusCheckedAt = &checked
	m.Insert(ctx, l)

	d := l.Descriptive()
	d.Price = 950
	if err := m.UpdateDescriptive(ctx, "a", d, base); err != nil {
		t.Fatalf("UpdateDescriptive: %v", err)
	}

	got, _ := m.Listing("a")
	if got.Price != 950 || !got.UpdatedAt.Equal(base) {
		t.Errorf("descriptive update not applied: %+v", got)
	}
	if !got.CreatedAt.Equal(l.CreatedAt) || got.StatusCheckedAt == nil || !got.Active {
		t.Errorf("lifecycle fields changed: %+v", got)
	}
	if err := m.UpdateDescriptive(ctx, "missing", d, base); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListActiveForCheckOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	old, recent := base.Add(-48*time.Hour), base.Add(-time.Hour)
	a := listing("a", 900, 0)
	a.LastProbeAt = &recent
	b := listing("b", 900, 0)
	b.LastProbeAt = &old
	c := listing("c", 900, 0)
	d := listing("d", 900, 0)
	d.Active = false
	for _, l := range []model.Listing{a, b, c, d} {
		m.Insert(ctx, l)
	}

	got, _ := m.ListActiveForCheck(ctx, 10)
	if order := ids(got); len(order) != 3 || order[0] != "c" || order[1] != "b" || order[2] != "a" {
		t.Errorf("order = %v, want [c b a]", order)
	}
}

func TestMemoryMarkProbedRotatesBatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		m.Insert(ctx, listing(id, 900, time.Hour))
	}

	// a and b answer ambiguously; only the attempt is recorded.
	m.MarkProbed(ctx, "a", base)
	m.MarkProbed(ctx, "b", base.Add(time.Minute))

	got, _ := m.ListActiveForCheck(ctx, 1)
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("first in batch = %+v, want c", got)
	}
	a, _ := m.Listing("a")
	if a.StatusCheckedAt != nil || a.StatusError != "" || !a.Active {
		t.Errorf("probe attempt changed status fields: %+v", a)
	}
	if a.LastProbeAt == nil || !a.LastProbeAt.Equal(base) {
		t.Errorf("lastProbeAt = %v", a.LastProbeAt)
	}
}

func TestMemoryActiveScans(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Insert(ctx, listing("c", 900, 100*24*time.Hour))
	m.Insert(ctx, listing("a", 900, 95*24*time.Hour))
	m.Insert(ctx, listing("b", 900, time.Hour))
	gone := listing("d", 900, 120*24*time.Hour)
	gone.Active = false
	m.Insert(ctx, gone)

	old, _ := m.ListActiveCreatedBefore(ctx, base.Add(-90*24*time.Hour), 10)
	if len(old) != 2 || old[0].ID != "c" || old[1].ID != "a" {
		t.Errorf("created before = %v", ids(old))
	}

	page, _ := m.ListActiveAfter(ctx, "", 2)
	if len(page) != 2 || page[0].ID != "a" || page[1].ID != "b" {
		t.Errorf("first page = %v", ids(page))
	}
	page, _ = m.ListActiveAfter(ctx, "b", 2)
	if len(page) != 1 || page[0].ID != "c" {
		t.Errorf("second page = %v", ids(page))
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	l := listing("a", 900, 0)
	l.Surface = ptr(60.0)
	l.Coordinates = &model.GeoPoint{Lat: 52.5, Lng: 13.4}
	m.Insert(ctx, l)

	*l.Surface = 1
	got, _ := m.Listing("a")
	*got.Surface = 2
	got.Coordinates.Lat = 0
	found, _ := m.FindListings(ctx, ListingQuery{})
	*found[0].Surface = 3

	stored, _ := m.Listing("a")
	if *stored.Surface != 60 || stored.Coordinates.Lat != 52.5 {
		t.Errorf("stored listing mutated through a returned pointer: surface=%v coords=%v", *stored.Surface, *stored.Coordinates)
	}
}

func ids(ls []model.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func TestListingQueryMatches(t *testing.T) {
	furnished := listing("f", 900, 0)
	furnished.Furnished = ptr(true)
	furnished.Rooms = ptr(2.0)
	furnished.Surface = ptr(60.0)
	furnished.Type = model.TypeApartment
	furnished.Coordinates = &model.GeoPoint{Lat: 52.5, Lng: 13.4}

	unknown := listing("u", 900, 0)

	box := model.BoundingBox(model.GeoPoint{Lat: 48.1, Lng: 11.5}, 5)

	tests := []struct {
		name string
		q    ListingQuery
		l    model.Listing
		want bool
	}{
		{"empty query", ListingQuery{}, unknown, true},
		{"furnished equality", ListingQuery{Furnished: ptr(true)}, furnished, true},
		{"furnished unknown excluded", ListingQuery{Furnished: ptr(false)}, unknown, false},
		{"bedrooms fall back to rooms", ListingQuery{MinBedrooms: ptr(2)}, furnished, true},
		{"bedrooms unknown excluded", ListingQuery{MinBedrooms: ptr(1)}, unknown, false},
		{"surface lower bound", ListingQuery{MinSurface: ptr(70.0)}, furnished, false},
		{"type mismatch", ListingQuery{Type: model.TypeHouse}, furnished, false},
		{"outside box", ListingQuery{BBox: &box}, furnished, false},
		{"no coordinates kept", ListingQuery{BBox: &box}, unknown, true},
		{"created before window", ListingQuery{CreatedSince: base.Add(time.Second)}, unknown, false},
		{"price bounds inclusive", ListingQuery{MinPrice: ptr(900), MaxPrice: ptr(900)}, unknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(tt.l); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryFindListingsNewestFirstAndLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i, id := range []string{"old", "mid", "new"} {
		m.Insert(ctx, listing(id, 900, time.Duration(3-i)*time.Hour))
	}

	got, err := m.FindListings(ctx, ListingQuery{ActiveOnly: true, Limit: 2})
	if err != nil {
		t.Fatalf("FindListings: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("got %v", got)
	}
}

func TestMemoryRetireAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.Insert(ctx, listing("a", 900, 0))

	if err := m.Retire(ctx, "a", model.RetireNotFound, base, "404 Not Found"); err != nil {
		t.Fatalf("Retire: %v", err)
	}
	inactive, _ := m.ListInactive(ctx, 0)
	if len(inactive) != 1 || inactive[0].RetiredReason != model.RetireNotFound || inactive[0].StatusError == "" {
		t.Fatalf("inactive = %+v", inactive)
	}

	if err := m.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.FindByKey(ctx, "demo", "url:https://demo.test/a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted listing still found: %v", err)
	}
}

func TestMemoryAlerts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.SaveAlert(ctx, model.Alert{ID: "a1", Active: true})
	m.SaveAlert(ctx, model.Alert{ID: "a2"})

	active, _ := m.ListActiveAlerts(ctx)
	if len(active) != 1 || active[0].ID != "a1" {
		t.Fatalf("active alerts = %+v", active)
	}
	if err := m.MarkDispatched(ctx, "a1", base); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	if a, _ := m.Alert("a1"); a.LastDispatchedAt == nil || !a.LastDispatchedAt.Equal(base) {
		t.Errorf("lastDispatchedAt = %v", a.LastDispatchedAt)
	}
}
