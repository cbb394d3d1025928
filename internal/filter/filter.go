// Package filter matches stored listings against an alert's criteria.
package filter

import (
	"context"
	"fmt"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/store"
)

// DefaultLimit caps the matches returned for one alert.
const DefaultLimit = 20

// Options builds the store query for an alert. Empty criteria mean
// "no filter".
func Options(a model.Alert, since time.Time, limit int) store.ListingQuery {
	c := a.Criteria
	q := store.ListingQuery{
		ActiveOnly:   true,
		CreatedSince: since,
		MinPrice:     c.MinPrice,
		MaxPrice:     c.MaxPrice,
		Type:         c.Type,
		MinBedrooms:  c.MinBedrooms,
		MinSurface:   c.MinSurface,
		Limit:        limit,
	}

	switch c.Furnishing {
	case model.FurnishingFurnished:
		v := true
		q.Furnished = &v
	case model.FurnishingUnfurnished:
		v := false
		q.Furnished = &v
	}

	if a.Geo.Usable() {
		box := model.BoundingBox(*a.Geo.Coordinates, a.Geo.RadiusKm)
		q.BBox = &box
	}
	return q
}

// Apply filters a slice of listings, returning only those that match q, in
// input order.
func Apply(listings []model.Listing, q store.ListingQuery) []model.Listing {
	var result []model.Listing
	for _, l := range listings {
		if q.Matches(l) {
			result = append(result, l)
		}
	}
	return result
}

// Engine runs alert queries against the listing store.
type Engine struct {
	listings store.ListingStore
	limit    int
}

func NewEngine(listings store.ListingStore, limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{listings: listings, limit: limit}
}

// Limit returns the number of listings one digest may carry.
func (e *Engine) Limit() int {
	return e.limit
}

// Match returns active listings created at or after since that satisfy the
// alert, newest first, capped at the engine limit. The query is pushed down
// to the store and re-checked here.
func (e *Engine) Match(ctx context.Context, a model.Alert, since time.Time) ([]model.Listing, error) {
	matched, err := e.find(ctx, a, Options(a, since, e.limit))
	if err != nil {
		return nil, err
	}
	if len(matched) > e.limit {
		matched = matched[:e.limit]
	}
	return matched, nil
}

// Candidates is Match without the cap, for callers that drop already-sent
// listings before capping.
func (e *Engine) Candidates(ctx context.Context, a model.Alert, since time.Time) ([]model.Listing, error) {
	return e.find(ctx, a, Options(a, since, 0))
}

func (e *Engine) find(ctx context.Context, a model.Alert, q store.ListingQuery) ([]model.Listing, error) {
	found, err := e.listings.FindListings(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("filter: matching alert %s: %w", a.ID, err)
	}
	return Apply(found, q), nil
}
