package model

import "time"

// Furnishing constrains the furnished state of matched listings.
type Furnishing string

const (
	FurnishingAny         Furnishing = ""
	FurnishingFurnished   Furnishing = "furnished"
	FurnishingUnfurnished Furnishing = "unfurnished"
)

// Channel selects the delivery route for an alert.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelDiscord  Channel = "discord"
)

// Frequency is how often an alert wants a digest.
type Frequency string

const (
	FrequencyHourly Frequency = "hourly"
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// Interval returns the minimum time between two dispatches. Unknown values
// fall back to daily.
func (f Frequency) Interval() time.Duration {
	switch f {
	case FrequencyHourly:
		return time.Hour
	case FrequencyWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Criteria holds the alert filters. Nil or empty fields mean "no constraint".
type Criteria struct {
	MinPrice    *int        `json:"min_price,omitempty" bson:"minPrice,omitempty"`
	MaxPrice    *int        `json:"max_price,omitempty" bson:"maxPrice,omitempty"`
	Type        ListingType `json:"type,omitempty" bson:"type,omitempty"`
	Furnishing  Furnishing  `json:"furnishing,omitempty" bson:"furnishing,omitempty"`
	MinBedrooms *int        `json:"min_bedrooms,omitempty" bson:"minBedrooms,omitempty"`
	MinSurface  *float64    `json:"min_surface,omitempty" bson:"minSurface,omitempty"`
}

// GeoFilter restricts matches to a radius around a point.
type GeoFilter struct {
	Address     string    `json:"address,omitempty" bson:"address,omitempty"`
	Coordinates *GeoPoint `json:"coordinates,omitempty" bson:"coordinates,omitempty"`
	RadiusKm    float64   `json:"radius_km,omitempty" bson:"radiusKm,omitempty"`
}

// Usable reports whether the filter can constrain a query. An address
// without coordinates is not geocoded here and does not constrain.
func (g *GeoFilter) Usable() bool {
	return g != nil && g.Coordinates != nil && g.Coordinates.Valid() && g.RadiusKm > 0
}

// Alert is a user's standing notification request.
type Alert struct {
	ID               string     `json:"id" bson:"_id"`
	OwnerID          string     `json:"owner_id" bson:"ownerId"`
	Channel          Channel    `json:"channel" bson:"channel"`
	Recipient        string     `json:"recipient" bson:"recipient"`
	Name             string     `json:"name,omitempty" bson:"name,omitempty"`
	Criteria         Criteria   `json:"criteria" bson:"criteria"`
	Geo              *GeoFilter `json:"geo,omitempty" bson:"geo,omitempty"`
	Frequency        Frequency  `json:"frequency" bson:"frequency"`
	Active           bool       `json:"active" bson:"active"`
	CreatedAt        time.Time  `json:"created_at" bson:"createdAt"`
	LastDispatchedAt *time.Time `json:"last_dispatched_at,omitempty" bson:"lastDispatchedAt,omitempty"`
}

// dueTolerance absorbs scheduler jitter so an hourly alert run by an hourly
// ticker is not skipped when a tick fires a little early.
const dueTolerance = time.Minute

// Due reports whether the alert should be evaluated at now.
func (a Alert) Due(now time.Time) bool {
	if !a.Active {
		return false
	}
	if a.LastDispatchedAt == nil {
		return true
	}
	return now.Sub(*a.LastDispatchedAt) >= a.Frequency.Interval()-dueTolerance
}
