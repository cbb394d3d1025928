// Package store defines the persistence contracts of the pipeline and an
// in-memory implementation. The MongoDB implementation lives in
// store/mongostore.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rsilvagit/go-rent/internal/model"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

// ListingQuery is a conjunction of listing predicates. Zero fields do not
// constrain. A numeric lower bound or equality filter excludes listings
// whose value is unknown; the bounding box includes listings without
// coordinates.
type ListingQuery struct {
	ActiveOnly   bool
	CreatedSince time.Time
	MinPrice     *int
	MaxPrice     *int
	Type         model.ListingType
	Furnished    *bool
	MinBedrooms  *int
	MinSurface   *float64
	BBox         *model.BBox
	Limit        int
}

// Matches evaluates q against a single listing.
func (q ListingQuery) Matches(l model.Listing) bool {
	if q.ActiveOnly && !l.Active {
		return false
	}
	if !q.CreatedSince.IsZero() && l.CreatedAt.Before(q.CreatedSince) {
		return false
	}
	if q.MinPrice != nil && l.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && l.Price > *q.MaxPrice {
		return false
	}
	if q.Type != "" && l.Type != q.Type {
		return false
	}
	if q.Furnished != nil && (l.Furnished == nil || *l.Furnished != *q.Furnished) {
		return false
	}
	if q.MinBedrooms != nil {
		n, ok := l.BedroomCount()
		if !ok || n < *q.MinBedrooms {
			return false
		}
	}
	if q.MinSurface != nil && (l.Surface == nil || *l.Surface < *q.MinSurface) {
		return false
	}
	if q.BBox != nil && l.Coordinates != nil && !q.BBox.Contains(*l.Coordinates) {
		return false
	}
	return true
}

// ListingStore persists Listing records. Implementations enforce the
// uniqueness of (provider, key).
type ListingStore interface {
	// FindByKey returns ErrNotFound when no listing has the key.
	FindByKey(ctx context.Context, provider, key string) (model.Listing, error)
	// Insert returns ErrDuplicate when (provider, key) already exists.
	Insert(ctx context.Context, l model.Listing) error
	// UpdateDescriptive overwrites descriptive fields and updatedAt only.
	UpdateDescriptive(ctx context.Context, id string, d model.Descriptive, at time.Time) error
	// MarkChecked records a liveness check that confirmed the listing.
	// It also counts as a probe attempt.
	MarkChecked(ctx context.Context, id string, at time.Time, statusErr string) error
	// MarkProbed records a probe attempt that changed nothing else.
	MarkProbed(ctx context.Context, id string, at time.Time) error
	// Retire deactivates a listing with a reason.
	Retire(ctx context.Context, id string, reason model.RetireReason, at time.Time, statusErr string) error
	// ListActiveForCheck returns active listings, never-probed first, then
	// least recently probed.
	ListActiveForCheck(ctx context.Context, limit int) ([]model.Listing, error)
	// ListActiveCreatedBefore returns active listings created before the
	// cutoff, oldest first.
	ListActiveCreatedBefore(ctx context.Context, before time.Time, limit int) ([]model.Listing, error)
	// ListActiveAfter pages through active listings in id order, starting
	// after afterID ("" starts at the beginning).
	ListActiveAfter(ctx context.Context, afterID string, limit int) ([]model.Listing, error)
	// FindListings returns listings matching q, newest first.
	FindListings(ctx context.Context, q ListingQuery) ([]model.Listing, error)
	// ListInactive returns retired listings, oldest update first.
	ListInactive(ctx context.Context, limit int) ([]model.Listing, error)
	// Delete removes a listing for good.
	Delete(ctx context.Context, id string) error
}

// AlertStore persists Alert records.
type AlertStore interface {
	SaveAlert(ctx context.Context, a model.Alert) error
	ListActiveAlerts(ctx context.Context) ([]model.Alert, error)
	MarkDispatched(ctx context.Context, id string, at time.Time) error
}

// EventLog is the append-only retirement audit trail.
type EventLog interface {
	RecordRetirement(ctx context.Context, e model.RetirementEvent) error
}
