package geometry

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6371008.8

// RepresentativePolicy selects which single point stands for a boundary when
// measuring proximity.
type RepresentativePolicy string

const (
	// AnchorPoint uses the first boundary point (sequence 0).
	AnchorPoint RepresentativePolicy = "anchor"
	// CentroidPoint uses the area centroid of the boundary ring.
	CentroidPoint RepresentativePolicy = "centroid"
)

// ParseRepresentativePolicy validates a policy name.
func ParseRepresentativePolicy(s string) (RepresentativePolicy, error) {
	switch RepresentativePolicy(s) {
	case AnchorPoint, CentroidPoint:
		return RepresentativePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown representative point policy %q (want %q or %q)", s, AnchorPoint, CentroidPoint)
	}
}

// Representative returns the point standing for the ring under the policy.
// The second result is false for an empty ring.
func (p RepresentativePolicy) Representative(r Ring) (Point, bool) {
	if len(r) == 0 {
		return Point{}, false
	}
	if p == CentroidPoint {
		return r.Centroid(), true
	}
	return r[0], true
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	lat1 := degreesToRadians(a.Lat)
	lat2 := degreesToRadians(b.Lat)
	dLat := lat2 - lat1
	dLong := degreesToRadians(b.Long - a.Long)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLong/2)*math.Sin(dLong/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Within reports whether candidate lies within radius meters of center.
// The boundary is inclusive.
func Within(center, candidate Point, radius float64) bool {
	return Haversine(center, candidate) <= radius
}

// Centroid returns the planar area centroid of the ring, treating longitude
// as x and latitude as y. Degenerate rings (zero area) fall back to the mean
// of their vertices. A closing point equal to the first point is ignored.
func (r Ring) Centroid() Point {
	pts := r
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}
	if len(pts) == 0 {
		return Point{}
	}

	var area2, cx, cy float64
	for i := range pts {
		j := (i + 1) % len(pts)
		cross := pts[i].Long*pts[j].Lat - pts[j].Long*pts[i].Lat
		area2 += cross
		cx += (pts[i].Long + pts[j].Long) * cross
		cy += (pts[i].Lat + pts[j].Lat) * cross
	}
	if math.Abs(area2) < 1e-15 {
		return pts.vertexMean()
	}
	return Point{Lat: cy / (3 * area2), Long: cx / (3 * area2)}
}

func (r Ring) vertexMean() Point {
	var sumLat, sumLong float64
	for _, p := range r {
		sumLat += p.Lat
		sumLong += p.Long
	}
	n := float64(len(r))
	return Point{Lat: sumLat / n, Long: sumLong / n}
}

// BoundingBox is a latitude/longitude window guaranteed to contain every point
// within a radius of its center. When the window touches a pole or crosses the
// antimeridian, longitude is left unconstrained.
type BoundingBox struct {
	MinLat, MaxLat   float64
	MinLong, MaxLong float64
	AnyLong          bool
}

// boxPadding widens the window slightly so points at exactly the radius are
// not lost to rounding before the exact distance check runs.
const boxPadding = 1e-9

// BoundingBoxAround computes the search window of radius meters around center.
func BoundingBoxAround(center Point, radius float64) BoundingBox {
	angular := radius / EarthRadiusMeters
	dLat := radiansToDegrees(angular) + boxPadding

	box := BoundingBox{
		MinLat: center.Lat - dLat,
		MaxLat: center.Lat + dLat,
	}
	if box.MinLat <= -90 || box.MaxLat >= 90 {
		box.AnyLong = true
		return box
	}

	ratio := math.Sin(angular) / math.Cos(degreesToRadians(center.Lat))
	if ratio >= 1 {
		box.AnyLong = true
		return box
	}
	dLong := radiansToDegrees(math.Asin(ratio)) + boxPadding
	box.MinLong = center.Long - dLong
	box.MaxLong = center.Long + dLong
	if box.MinLong < -180 || box.MaxLong > 180 {
		box.AnyLong = true
	}
	return box
}

// Contains reports whether the point falls inside the window.
func (b BoundingBox) Contains(p Point) bool {
	if p.Lat < b.MinLat || p.Lat > b.MaxLat {
		return false
	}
	return b.AnyLong || (p.Long >= b.MinLong && p.Long <= b.MaxLong)
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180.0
}

func radiansToDegrees(r float64) float64 {
	return r * 180.0 / math.Pi
}
