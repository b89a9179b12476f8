// Package geometry holds the coordinate types shared by storage, the location
// registry and the aggregate service: points, boundary rings, deterministic
// location ids and spherical distance helpers.
package geometry

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/mmcloughlin/geohash"
)

// Point is a WGS84 coordinate pair.
// On the wire it is encoded as a two element array [lat, long], which is the
// shape the mobile client sends and expects back.
type Point struct {
	Lat  float64
	Long float64
}

// Ring is an ordered boundary. Order encodes winding and must survive storage.
type Ring []Point

// Location is a deduplicated coordinate record. Its ID is derived from the
// coordinates, so identical points always resolve to the same row.
type Location struct {
	ID      string  `db:"id" json:"id"`
	Lat     float64 `db:"lat" json:"lat"`
	Long    float64 `db:"long" json:"long"`
	Geohash string  `db:"geohash" json:"geohash"`
}

// MarshalJSON encodes the point as [lat, long].
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{p.Lat, p.Long})
}

// UnmarshalJSON decodes a [lat, long] pair.
func (p *Point) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("point must be a [lat, long] array: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("point must have exactly 2 values, got %d", len(pair))
	}
	p.Lat, p.Long = pair[0], pair[1]
	return nil
}

// Validate checks that the point is a finite coordinate inside WGS84 bounds.
func (p Point) Validate() error {
	if !isFinite(p.Lat) || !isFinite(p.Long) {
		return fmt.Errorf("coordinates must be finite numbers")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", p.Lat)
	}
	if p.Long < -180 || p.Long > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", p.Long)
	}
	return nil
}

// LocationID derives the dedup key of a point: "{lat}-{long}" using the
// shortest decimal form that round-trips. Negative zero is folded into zero.
func LocationID(p Point) string {
	return formatCoordinate(p.Lat) + "-" + formatCoordinate(p.Long)
}

// NewLocation builds the stored record for a point.
func NewLocation(p Point) Location {
	return Location{
		ID:      LocationID(p),
		Lat:     normalizeZero(p.Lat),
		Long:    normalizeZero(p.Long),
		Geohash: geohash.Encode(p.Lat, p.Long),
	}
}

// Point returns the coordinates of the location.
func (l Location) Point() Point {
	return Point{Lat: l.Lat, Long: l.Long}
}

// Validate checks every point of the ring and its minimum size.
func (r Ring) Validate() error {
	if len(r) < 3 {
		return fmt.Errorf("a boundary needs at least 3 points, got %d", len(r))
	}
	for i, p := range r {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
	}
	return nil
}

func formatCoordinate(v float64) string {
	return strconv.FormatFloat(normalizeZero(v), 'f', -1, 64)
}

func normalizeZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
