package model

import "math"

// kmPerDegree is the length of one degree of latitude.
const kmPerDegree = 111.0

// BBox is a latitude/longitude rectangle.
type BBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// BoundingBox returns the rectangle enclosing a circle of radiusKm around
// center: Δlat = r/111 and Δlng = r/(111·cos(lat)). Near the poles the
// longitude span covers the whole globe.
func BoundingBox(center GeoPoint, radiusKm float64) BBox {
	dLat := radiusKm / kmPerDegree
	b := BBox{
		MinLat: math.Max(center.Lat-dLat, -90),
		MaxLat: math.Min(center.Lat+dLat, 90),
		MinLng: -180,
		MaxLng: 180,
	}
	if cos := math.Cos(center.Lat * math.Pi / 180); cos > 1e-6 {
		dLng := radiusKm / (kmPerDegree * cos)
		if dLng < 180 {
			b.MinLng = center.Lng - dLng
			b.MaxLng = center.Lng + dLng
		}
	}
	return b
}

// Contains reports whether p lies inside b, edges included.
func (b BBox) Contains(p GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}
