package model

import (
	"strings"
	"time"
)

// ListingType is the normalized kind of rental offer.
type ListingType string

// TypeUnknown is stored when the source does not state a recognizable type.
const TypeUnknown ListingType = ""

const (
	TypeStudio     ListingType = "studio"
	TypeApartment  ListingType = "apartment"
	TypeSharedRoom ListingType = "shared-room"
	TypeHouse      ListingType = "house"
)

// ParseListingType maps free-form type labels onto the enum.
// Unknown labels return false.
func ParseListingType(s string) (ListingType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "studio", "1-zimmer-apartment", "einzimmerwohnung":
		return TypeStudio, true
	case "apartment", "flat", "wohnung", "etagenwohnung", "dachgeschoss", "maisonette":
		return TypeApartment, true
	case "shared-room", "shared room", "room", "wg", "wg-zimmer", "zimmer":
		return TypeSharedRoom, true
	case "house", "haus", "einfamilienhaus", "reihenhaus", "doppelhaushälfte":
		return TypeHouse, true
	}
	return "", false
}

// RetireReason labels why a listing was deactivated.
type RetireReason string

const (
	RetireNotFound RetireReason = "not-found"
	RetireStale    RetireReason = "stale"
	RetireQuality  RetireReason = "quality"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// Valid reports whether the point lies within WGS84 bounds and is not the
// zero value that geocoders emit on failure.
func (p GeoPoint) Valid() bool {
	if p.Lat == 0 && p.Lng == 0 {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Listing is one external rental offer.
type Listing struct {
	ID         string `json:"id" bson:"_id"`
	Provider   string `json:"provider" bson:"provider"`
	Key        string `json:"key" bson:"key"`
	SourceURL  string `json:"source_url" bson:"sourceUrl"`
	ExternalID string `json:"external_id,omitempty" bson:"externalId,omitempty"`

	Title       string      `json:"title" bson:"title"`
	Description string      `json:"description" bson:"description"`
	Price       int         `json:"price" bson:"price"`
	Surface     *float64    `json:"surface,omitempty" bson:"surface"`
	Rooms       *float64    `json:"rooms,omitempty" bson:"rooms"`
	Bedrooms    *int        `json:"bedrooms,omitempty" bson:"bedrooms"`
	Type        ListingType `json:"type" bson:"type"`
	Furnished   *bool       `json:"furnished,omitempty" bson:"furnished"`
	Address     string      `json:"address,omitempty" bson:"address"`
	District    string      `json:"district,omitempty" bson:"district"`
	City        string      `json:"city,omitempty" bson:"city"`
	Coordinates *GeoPoint   `json:"coordinates,omitempty" bson:"coordinates"`
	Features    []string    `json:"features,omitempty" bson:"features"`
	Images      []string    `json:"images,omitempty" bson:"images"`

	Active          bool         `json:"active" bson:"active"`
	StatusCheckedAt *time.Time   `json:"status_checked_at,omitempty" bson:"statusCheckedAt"`
	LastProbeAt     *time.Time   `json:"last_probe_at,omitempty" bson:"lastProbeAt"`
	StatusError     string       `json:"status_error,omitempty" bson:"statusError"`
	RetiredReason   RetireReason `json:"retired_reason,omitempty" bson:"retiredReason"`
	CreatedAt       time.Time    `json:"created_at" bson:"createdAt"`
	UpdatedAt       time.Time    `json:"updated_at" bson:"updatedAt"`
}

// FullText returns the searchable text fields concatenated in lowercase.
func (l Listing) FullText() string {
	return strings.ToLower(l.Title + " " + l.Description)
}

// BedroomCount returns the bedroom count, falling back to the room count
// (German listings count bedrooms plus living room as "Zimmer").
func (l Listing) BedroomCount() (int, bool) {
	if l.Bedrooms != nil {
		return *l.Bedrooms, true
	}
	if l.Rooms != nil {
		return int(*l.Rooms), true
	}
	return 0, false
}

// Descriptive holds the fields re-extraction may refresh on an existing
// listing. Identity and lifecycle fields are deliberately absent.
type Descriptive struct {
	Title       string
	Description string
	Price       int
	Surface     *float64
	Rooms       *float64
	Bedrooms    *int
	Type        ListingType
	Furnished   *bool
	Address     string
	District    string
	City        string
	Coordinates *GeoPoint
	Features    []string
	Images      []string
}

// Descriptive returns the refreshable part of l.
func (l Listing) Descriptive() Descriptive {
	return Descriptive{
		Title:       l.Title,
		Description: l.Description,
		Price:       l.Price,
		Surface:     l.Surface,
		Rooms:       l.Rooms,
		Bedrooms:    l.Bedrooms,
		Type:        l.Type,
		Furnished:   l.Furnished,
		Address:     l.Address,
		District:    l.District,
		City:        l.City,
		Coordinates: l.Coordinates,
		Features:    l.Features,
		Images:      l.Images,
	}
}

// Apply copies d onto l.
func (l *Listing) Apply(d Descriptive) {
	l.Title = d.Title
	l.Description = d.Description
	l.Price = d.Price
	l.Surface = d.Surface
	l.Rooms = d.Rooms
	l.Bedrooms = d.Bedrooms
	l.Type = d.Type
	l.Furnished = d.Furnished
	l.Address = d.Address
	l.District = d.District
	l.City = d.City
	l.Coordinates = d.Coordinates
	l.Features = d.Features
	l.Images = d.Images
}

// RetirementEvent is one audit-log entry written when a listing is retired
// or purged.
type RetirementEvent struct {
	ID         string       `json:"id" bson:"_id"`
	ListingID  string       `json:"listing_id" bson:"listingId"`
	Provider   string       `json:"provider" bson:"provider"`
	SourceURL  string       `json:"source_url" bson:"sourceUrl"`
	Reason     RetireReason `json:"reason" bson:"reason"`
	HTTPStatus int          `json:"http_status,omitempty" bson:"httpStatus,omitempty"`
	Detail     string       `json:"detail,omitempty" bson:"detail,omitempty"`
	Purged     bool         `json:"purged,omitempty" bson:"purged,omitempty"`
	At         time.Time    `json:"at" bson:"at"`
}
