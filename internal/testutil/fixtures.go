package testutil

import (
	"time"

	"github.com/realestate/server/internal/geometry"
)

// TestFixtures provides test data generators
type TestFixtures struct{}

// NewTestFixtures creates a new test fixtures helper
func NewTestFixtures() *TestFixtures {
	return &TestFixtures{}
}

// RandomString generates a random string of specified length
func RandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	seed := time.Now().UnixNano()
	for i := range b {
		seed = seed*1103515245 + 12345 // Simple LCG
		idx := int(seed % int64(len(charset)))
		if idx < 0 {
			idx = -idx
		}
		b[i] = charset[idx]
	}
	return string(b)
}

// RandomSubdivisionName generates a unique-looking subdivision name
func RandomSubdivisionName() string {
	return "Subdivision " + RandomString(8)
}

// SquareRing returns a closed-free square ring of side size degrees whose
// first point is the south-west corner at (lat, long).
func SquareRing(lat, long, size float64) geometry.Ring {
	return geometry.Ring{
		{Lat: lat, Long: long},
		{Lat: lat, Long: long + size},
		{Lat: lat + size, Long: long + size},
		{Lat: lat + size, Long: long},
	}
}

// TestLotData represents test lot data
type TestLotData struct {
	Name     string
	Boundary geometry.Ring
}

// TestSubdivisionData represents test subdivision data
type TestSubdivisionData struct {
	Name     string
	Boundary geometry.Ring
	Lots     []TestLotData
}

// NewTestSubdivision creates a subdivision around (lat, long) with two lots
// inside it. The lots share their common edge points.
func (f *TestFixtures) NewTestSubdivision(lat, long float64) TestSubdivisionData {
	return TestSubdivisionData{
		Name:     RandomSubdivisionName(),
		Boundary: SquareRing(lat, long, 0.01),
		Lots: []TestLotData{
			{Name: "Lot 1", Boundary: SquareRing(lat, long, 0.005)},
			{Name: "Lot 2", Boundary: SquareRing(lat, long+0.005, 0.005)},
		},
	}
}
