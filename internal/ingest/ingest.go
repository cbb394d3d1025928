// Package ingest decides whether an extracted listing is inserted, updated,
// skipped or rejected.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/store"
)

// Action is the decision taken for one candidate.
type Action string

const (
	Inserted Action = "inserted"
	Updated  Action = "updated"
	Skipped  Action = "skipped"
	Rejected Action = "rejected"
)

// Candidate is an extracted listing before persistence.
type Candidate struct {
	Provider   string
	SourceURL  string
	ExternalID string
	Fields     model.Descriptive
}

// Outcome reports what Ingest did.
type Outcome struct {
	Action    Action
	ListingID string
	Key       string
	Rejection Rejection
}

// Engine is the deduplication and upsert engine.
type Engine struct {
	store  store.ListingStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(s store.ListingStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Key returns the identity key of a listing URL within its provider.
func Key(sourceURL, externalID string) (string, string, error) {
	canonical, err := model.CanonicalURL(sourceURL)
	if err != nil {
		return "", "", err
	}
	return canonical, model.IdentityKey(externalID, canonical), nil
}

// Known reports whether a listing with this identity is already stored.
func (e *Engine) Known(ctx context.Context, provider, sourceURL, externalID string) (bool, error) {
	_, key, err := Key(sourceURL, externalID)
	if err != nil {
		return false, nil
	}
	_, err = e.store.FindByKey(ctx, provider, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("ingest: looking up %s: %w", sourceURL, err)
	}
	return true, nil
}

// Ingest applies the quality gate and then inserts a new listing, refreshes
// the descriptive fields of a known one, or skips it when nothing changed.
// Only store failures are returned as errors.
func (e *Engine) Ingest(ctx context.Context, c Candidate) (Outcome, error) {
	canonical, key, err := Key(c.SourceURL, c.ExternalID)
	if err != nil {
		out := Outcome{Action: Rejected, Rejection: Rejection{Rule: "invalid url", Detail: c.SourceURL}}
		e.logRejection(c, out.Rejection)
		return out, nil
	}

	candidate := model.Listing{
		Provider:   c.Provider,
		Key:        key,
		SourceURL:  canonical,
		ExternalID: c.ExternalID,
	}
	candidate.Apply(c.Fields)

	if r, ok := Check(candidate); !ok {
		e.logRejection(c, r)
		return Outcome{Action: Rejected, Key: key, Rejection: r}, nil
	}

	existing, err := e.store.FindByKey(ctx, c.Provider, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return e.insert(ctx, candidate)
	case err != nil:
		return Outcome{}, fmt.Errorf("ingest: looking up %s: %w", canonical, err)
	}

	if sameDescriptive(existing.Descriptive(), c.Fields) {
		return Outcome{Action: Skipped, ListingID: existing.ID, Key: key}, nil
	}
	if err := e.store.UpdateDescriptive(ctx, existing.ID, c.Fields, e.now()); err != nil {
		return Outcome{}, fmt.Errorf("ingest: updating %s: %w", existing.ID, err)
	}
	e.logger.Debug("listing updated", "provider", c.Provider, "id", existing.ID, "url", canonical)
	return Outcome{Action: Updated, ListingID: existing.ID, Key: key}, nil
}

func (e *Engine) insert(ctx context.Context, l model.Listing) (Outcome, error) {
	now := e.now()
	l.ID = e.newID()
	l.Active = true
	l.CreatedAt = now
	l.UpdatedAt = now

	err := e.store.Insert(ctx, l)
	if errors.Is(err, store.ErrDuplicate) {
		// Lost a race against another writer with the same key.
		return Outcome{Action: Skipped, Key: l.Key}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("ingest: inserting %s: %w", l.SourceURL, err)
	}
	e.logger.Info("listing inserted", "provider", l.Provider, "id", l.ID, "url", l.SourceURL, "price", l.Price)
	return Outcome{Action: Inserted, ListingID: l.ID, Key: l.Key}, nil
}

func (e *Engine) logRejection(c Candidate, r Rejection) {
	e.logger.Info("listing rejected", "provider", c.Provider, "url", c.SourceURL, "reason", r.String())
}

func sameDescriptive(a, b model.Descriptive) bool {
	if len(a.Features) == 0 && len(b.Features) == 0 {
		a.Features, b.Features = nil, nil
	}
	if len(a.Images) == 0 && len(b.Images) == 0 {
		a.Images, b.Images = nil, nil
	}
	return reflect.DeepEqual(a, b)
}
