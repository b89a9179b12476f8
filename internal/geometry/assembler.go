package geometry

import (
	"errors"
	"fmt"
)

// ErrArrayLengthMismatch is returned when aggregated latitude and longitude
// arrays cannot be paired position by position.
var ErrArrayLengthMismatch = errors.New("latitude and longitude arrays differ in length")

// Zip pairs the parallel coordinate arrays produced by a store-side
// aggregation into an ordered ring. Both arrays must come from the same
// ordered aggregation so that index i of each refers to the same ring point.
func Zip(lats, longs []float64) (Ring, error) {
	if len(lats) != len(longs) {
		return nil, fmt.Errorf("%w: %d latitudes, %d longitudes", ErrArrayLengthMismatch, len(lats), len(longs))
	}
	ring := make(Ring, len(lats))
	for i := range lats {
		ring[i] = Point{Lat: lats[i], Long: longs[i]}
	}
	return ring, nil
}

// Unzip splits a ring into parallel latitude and longitude arrays.
func (r Ring) Unzip() (lats, longs []float64) {
	lats = make([]float64, len(r))
	longs = make([]float64, len(r))
	for i, p := range r {
		lats[i] = p.Lat
		longs[i] = p.Long
	}
	return lats, longs
}

// LocationIDs returns the dedup key of every ring point, in ring order.
func (r Ring) LocationIDs() []string {
	ids := make([]string, len(r))
	for i, p := range r {
		ids[i] = LocationID(p)
	}
	return ids
}

// Equal reports whether two rings hold the same points in the same order.
func (r Ring) Equal(other Ring) bool {
	if len(r) != len(other) {
		return false
	}
	for i := range r {
		if r[i] != other[i] {
			return false
		}
	}
	return true
}
