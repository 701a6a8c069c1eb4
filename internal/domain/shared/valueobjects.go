// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"math"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Geographic Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// GeoPoint is a WGS84 coordinate pair in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsValid checks that the point lies within WGS84 bounds.
func (p GeoPoint) IsValid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// String returns "lat,lon".
func (p GeoPoint) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// DistanceKm returns the great-circle distance to other using the Haversine formula.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	dLat := toRadians(other.Lat - p.Lat)
	dLon := toRadians(other.Lon - p.Lon)
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(other.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// BoundingBox is a lat/lon rectangle used to prefilter geo-range queries
// before the exact Haversine check. When MinLon > MaxLon the box crosses the
// antimeridian and covers [MinLon, 180] plus [-180, MaxLon].
type BoundingBox struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// WrapsAntimeridian reports whether the longitude range is split at ±180.
func (b BoundingBox) WrapsAntimeridian() bool {
	return b.MinLon > b.MaxLon
}

// Contains reports whether p lies inside the box.
func (b BoundingBox) Contains(p GeoPoint) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	if b.WrapsAntimeridian() {
		return p.Lon >= b.MinLon || p.Lon <= b.MaxLon
	}
	return p.Lon >= b.MinLon && p.Lon <= b.MaxLon
}

// BoundingBox returns the box enclosing every point within radiusKm.
func (p GeoPoint) BoundingBox(radiusKm float64) BoundingBox {
	latDelta := radiusKm / 111.0
	box := BoundingBox{
		MinLat: math.Max(-90, p.Lat-latDelta),
		MaxLat: math.Min(90, p.Lat+latDelta),
		MinLon: -180,
		MaxLon: 180,
	}

	// A box touching a pole spans every longitude.
	if box.MinLat == -90 || box.MaxLat == 90 {
		return box
	}
	lonDelta := radiusKm / (111.0 * math.Cos(toRadians(p.Lat)))
	if lonDelta >= 180 {
		return box
	}

	box.MinLon = p.Lon - lonDelta
	box.MaxLon = p.Lon + lonDelta
	if box.MinLon < -180 {
		box.MinLon += 360
	}
	if box.MaxLon > 180 {
		box.MaxLon -= 360
	}
	return box
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

const (
	// MinPageLimit is the smallest page size a caller can get.
	MinPageLimit = 1
	// MaxPageLimit is the largest page size a caller can get.
	MaxPageLimit = 100
	// DefaultPageLimit is used when the caller does not ask for a size.
	DefaultPageLimit = 20
)

// ClampLimit bounds limit to [MinPageLimit, MaxPageLimit].
func ClampLimit(limit int) int {
	switch {
	case limit < MinPageLimit:
		return MinPageLimit
	case limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return limit
	}
}

// LimitOrDefault treats an unset (zero) limit as DefaultPageLimit and
// clamps everything else.
func LimitOrDefault(limit int) int {
	if limit == 0 {
		return DefaultPageLimit
	}
	return ClampLimit(limit)
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Limit  int
}

// NewPage normalizes a page request.
func NewPage(number, limit int) Page {
	if number < 1 {
		number = 1
	}
	return Page{Number: number, Limit: LimitOrDefault(limit)}
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// ═══════════════════════════════════════════════════════════════════════════
// Labels
// ═══════════════════════════════════════════════════════════════════════════

// NormalizeLabels trims labels, drops empty ones, and removes duplicates
// while keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
