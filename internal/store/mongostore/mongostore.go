// Package mongostore persists listings, alerts and retirement events in
// MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rsilvagit/go-rent/internal/model"
	"github.com/rsilvagit/go-rent/internal/store"
)

const (
	listingsCollection = "listings"
	alertsCollection   = "alerts"
	eventsCollection   = "retirement_events"
)

// Store implements store.ListingStore, store.AlertStore and store.EventLog.
type Store struct {
	client   *mongo.Client
	listings *mongo.Collection
	alerts   *mongo.Collection
	events   *mongo.Collection
}

// Connect opens a client, pings the server and ensures indexes.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		listings: db.Collection(listingsCollection),
		alerts:   db.Collection(alertsCollection),
		events:   db.Collection(eventsCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.listings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "provider", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("provider_key"),
		},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "active", Value: 1}, {Key: "lastProbeAt", Value: 1}}},
		{Keys: bson.D{{Key: "coordinates.lat", Value: 1}, {Key: "coordinates.lng", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: creating listing indexes: %w", err)
	}
	_, err = s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "listingId", Value: 1}, {Key: "at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("mongostore: creating event indexes: %w", err)
	}
	return nil
}

func (s *Store) FindByKey(ctx context.Context, provider, key string) (model.Listing, error) {
	var l model.Listing
	err := s.listings.FindOne(ctx, bson.M{"provider": provider, "key": key}).Decode(&l)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Listing{}, store.ErrNotFound
	}
	if err != nil {
		return model.Listing{}, fmt.Errorf("mongostore: finding %s/%s: %w", provider, key, err)
	}
	return l, nil
}

func (s *Store) Insert(ctx context.Context, l model.Listing) error {
	_, err := s.listings.InsertOne(ctx, l)
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("mongostore: inserting %s: %w", l.SourceURL, err)
	}
	return nil
}

func (s *Store) UpdateDescriptive(ctx context.Context, id string, d model.Descriptive, at time.Time) error {
	set := descriptiveSet(d)
	set["updatedAt"] = at
	return s.updateListing(ctx, id, bson.M{"$set": set})
}

func (s *Store) MarkChecked(ctx context.Context, id string, at time.Time, statusErr string) error {
	return s.updateListing(ctx, id, bson.M{"$set": bson.M{
		"statusCheckedAt": at,
		"lastProbeAt":     at,
		"statusError":     statusErr,
	}})
}

func (s *Store) MarkProbed(ctx context.Context, id string, at time.Time) error {
	return s.updateListing(ctx, id, bson.M{"$set": bson.M{"lastProbeAt": at}})
}

func (s *Store) Retire(ctx context.Context, id string, reason model.RetireReason, at time.Time, statusErr string) error {
	return s.updateListing(ctx, id, bson.M{"$set": bson.M{
		"active":          false,
		"retiredReason":   reason,
		"statusCheckedAt": at,
		"lastProbeAt":     at,
		"statusError":     statusErr,
		"updatedAt":       at,
	}})
}

func (s *Store) updateListing(ctx context.Context, id string, update bson.M) error {
	res, err := s.listings.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("mongostore: updating listing %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListActiveForCheck(ctx context.Context, limit int) ([]model.Listing, error) {
	// Ascending sort puts documents with a null lastProbeAt first.
	opts := options.Find().
		SetSort(bson.D{{Key: "lastProbeAt", Value: 1}, {Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findListings(ctx, bson.M{"active": true}, opts)
}

func (s *Store) ListActiveCreatedBefore(ctx context.Context, before time.Time, limit int) ([]model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findListings(ctx, bson.M{"active": true, "createdAt": bson.M{"$lt": before}}, opts)
}

func (s *Store) ListActiveAfter(ctx context.Context, afterID string, limit int) ([]model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findListings(ctx, bson.M{"active": true, "_id": bson.M{"$gt": afterID}}, opts)
}

func (s *Store) FindListings(ctx context.Context, q store.ListingQuery) ([]model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return s.findListings(ctx, ListingFilter(q), opts)
}

func (s *Store) ListInactive(ctx context.Context, limit int) ([]model.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.findListings(ctx, bson.M{"active": false}, opts)
}

func (s *Store) findListings(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Listing, error) {
	cur, err := s.listings.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: querying listings: %w", err)
	}
	var out []model.Listing
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decoding listings: %w", err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.listings.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongostore: deleting listing %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SaveAlert(ctx context.Context, a model.Alert) error {
	_, err := s.alerts.ReplaceOne(ctx, bson.M{"_id": a.ID}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: saving alert %s: %w", a.ID, err)
	}
	return nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]model.Alert, error) {
	cur, err := s.alerts.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: querying alerts: %w", err)
	}
	var out []model.Alert
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongostore: decoding alerts: %w", err)
	}
	return out, nil
}

func (s *Store) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	res, err := s.alerts.UpdateByID(ctx, id, bson.M{"$set": bson.M{"lastDispatchedAt": at}})
	if err != nil {
		return fmt.Errorf("mongostore: marking alert %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RecordRetirement(ctx context.Context, e model.RetirementEvent) error {
	if _, err := s.events.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongostore: recording retirement of %s: %w", e.ListingID, err)
	}
	return nil
}

func descriptiveSet(d model.Descriptive) bson.M {
	return bson.M{
		"title":       d.Title,
		"description": d.Description,
		"price":       d.Price,
		"surface":     d.Surface,
		"rooms":       d.Rooms,
		"bedrooms":    d.Bedrooms,
		"type":        d.Type,
		"furnished":   d.Furnished,
		"address":     d.Address,
		"district":    d.District,
		"city":        d.City,
		"coordinates": d.Coordinates,
		"features":    d.Features,
		"images":      d.Images,
	}
}

// ListingFilter translates q into a MongoDB filter with the same semantics
// as store.ListingQuery.Matches.
func ListingFilter(q store.ListingQuery) bson.M {
	filter := bson.M{}
	var and []bson.M

	if q.ActiveOnly {
		filter["active"] = true
	}
	if !q.CreatedSince.IsZero() {
		filter["createdAt"] = bson.M{"$gte": q.CreatedSince}
	}

	price := bson.M{}
	if q.MinPrice != nil {
		price["$gte"] = *q.MinPrice
	}
	if q.MaxPrice != nil {
		price["$lte"] = *q.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}

	if q.Type != "" {
		filter["type"] = q.Type
	}
	if q.Furnished != nil {
		filter["furnished"] = *q.Furnished
	}
	if q.MinSurface != nil {
		filter["surface"] = bson.M{"$gte": *q.MinSurface}
	}
	if q.MinBedrooms != nil {
		n := *q.MinBedrooms
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"bedrooms": bson.M{"$gte": n}},
			bson.M{"bedrooms": nil, "rooms": bson.M{"$gte": n}},
		}})
	}
	if b := q.BBox; b != nil {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{"coordinates": nil},
			bson.M{
				"coordinates.lat": bson.M{"$gte": b.MinLat, "$lte": b.MaxLat},
				"coordinates.lng": bson.M{"$gte": b.MinLng, "$lte": b.MaxLng},
			},
		}})
	}

	if len(and) > 0 {
		filter["$and"] = and
	}
	return filter
}
