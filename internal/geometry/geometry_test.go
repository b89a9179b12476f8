package geometry

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/twpayne/go-geom/encoding/geojson"
)

func TestLocationID(t *testing.T) {
	tests := []struct {
		name  string
		point Point
		want  string
	}{
		{"integers", Point{Lat: 1, Long: 1}, "1-1"},
		{"decimals", Point{Lat: 14.5995, Long: 120.9842}, "14.5995-120.9842"},
		{"negative", Point{Lat: -33.45, Long: -70.66}, "-33.45--70.66"},
		{"negative zero folds", Point{Lat: math.Copysign(0, -1), Long: 2}, "0-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LocationID(tt.point); got != tt.want {
				t.Errorf("LocationID(%v) = %q, want %q", tt.point, got, tt.want)
			}
		})
	}
}

func TestLocationIDDeterministic(t *testing.T) {
	a := Point{Lat: 10.000001, Long: -84.1}
	b := Point{Lat: 10.000001, Long: -84.1}
	if LocationID(a) != LocationID(b) {
		t.Fatalf("identical coordinates produced different ids")
	}
	if LocationID(a) == LocationID(Point{Lat: 10.000002, Long: -84.1}) {
		t.Fatalf("distinct coordinates produced the same id")
	}
}

func TestNewLocation(t *testing.T) {
	loc := NewLocation(Point{Lat: 57.64911, Long: 10.40744})
	if loc.ID != "57.64911-10.40744" {
		t.Errorf("unexpected id %s", loc.ID)
	}
	if len(loc.Geohash) != 12 || !strings.HasPrefix(loc.Geohash, "u4pruydqqvj") {
		t.Errorf("unexpected geohash %s", loc.Geohash)
	}
	if loc.Point() != (Point{Lat: 57.64911, Long: 10.40744}) {
		t.Errorf("point round trip failed: %v", loc.Point())
	}
}

func TestPointJSON(t *testing.T) {
	var ring Ring
	if err := json.Unmarshal([]byte(`[[1,2],[3.5,-4],[5,6]]`), &ring); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	want := Ring{{1, 2}, {3.5, -4}, {5, 6}}
	if !ring.Equal(want) {
		t.Fatalf("got %v, want %v", ring, want)
	}

	out, err := json.Marshal(ring)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(out) != `[[1,2],[3.5,-4],[5,6]]` {
		t.Errorf("unexpected encoding %s", out)
	}

	var bad Point
	if err := json.Unmarshal([]byte(`[1,2,3]`), &bad); err == nil {
		t.Error("expected error for a 3 value point")
	}
}

func TestRingValidate(t *testing.T) {
	tests := []struct {
		name    string
		ring    Ring
		wantErr bool
	}{
		{"triangle", Ring{{0, 0}, {0, 1}, {1, 1}}, false},
		{"too short", Ring{{0, 0}, {0, 1}}, true},
		{"latitude out of range", Ring{{0, 0}, {91, 1}, {1, 1}}, true},
		{"longitude out of range", Ring{{0, 0}, {0, 181}, {1, 1}}, true},
		{"nan", Ring{{0, 0}, {math.NaN(), 1}, {1, 1}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ring.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestZip(t *testing.T) {
	ring, err := Zip([]float64{1, 2, 3}, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("Zip failed: %v", err)
	}
	if !ring.Equal(Ring{{1, 1}, {2, 2}, {3, 3}}) {
		t.Fatalf("unexpected ring %v", ring)
	}

	lats, longs := ring.Unzip()
	back, err := Zip(lats, longs)
	if err != nil || !back.Equal(ring) {
		t.Fatalf("unzip/zip round trip failed: %v %v", back, err)
	}

	_, err = Zip([]float64{1, 2}, []float64{1})
	if !errors.Is(err, ErrArrayLengthMismatch) {
		t.Fatalf("expected ErrArrayLengthMismatch, got %v", err)
	}
}

func TestHaversine(t *testing.T) {
	// One degree of latitude along a meridian.
	d := Haversine(Point{0, 0}, Point{1, 0})
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(d-want) > 1e-6 {
		t.Errorf("expected %f, got %f", want, d)
	}

	if Haversine(Point{12.5, 45}, Point{12.5, 45}) != 0 {
		t.Error("distance to self should be zero")
	}

	ab := Haversine(Point{40.7128, -74.006}, Point{51.5074, -0.1278})
	ba := Haversine(Point{51.5074, -0.1278}, Point{40.7128, -74.006})
	if math.Abs(ab-ba) > 1e-6 {
		t.Errorf("distance should be symmetric: %f vs %f", ab, ba)
	}
	if ab < 5.5e6 || ab > 5.6e6 {
		t.Errorf("New York to London should be ~5570km, got %f", ab)
	}
}

func TestWithinIsBoundaryInclusive(t *testing.T) {
	center := Point{Lat: 14.55, Long: 121.02}
	edge := Point{Lat: 14.56, Long: 121.03}
	r := Haversine(center, edge)

	if !Within(center, edge, r) {
		t.Error("a point at exactly the radius should be included")
	}
	beyond := Point{Lat: 14.5600001, Long: 121.03}
	if Haversine(center, beyond) <= r {
		t.Fatal("test point is not farther than the radius")
	}
	if Within(center, beyond, r) {
		t.Error("a point past the radius should be excluded")
	}
}

func TestRepresentativePolicy(t *testing.T) {
	square := Ring{{0, 0}, {0, 2}, {2, 2}, {2, 0}}

	anchor, ok := AnchorPoint.Representative(square)
	if !ok || anchor != (Point{0, 0}) {
		t.Errorf("anchor should be the first point, got %v", anchor)
	}

	centroid, ok := CentroidPoint.Representative(square)
	if !ok || math.Abs(centroid.Lat-1) > 1e-12 || math.Abs(centroid.Long-1) > 1e-12 {
		t.Errorf("centroid of the square should be (1,1), got %v", centroid)
	}

	if _, ok := CentroidPoint.Representative(nil); ok {
		t.Error("empty ring should have no representative point")
	}

	if _, err := ParseRepresentativePolicy("median"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if p, err := ParseRepresentativePolicy("centroid"); err != nil || p != CentroidPoint {
		t.Errorf("ParseRepresentativePolicy(centroid) = %v, %v", p, err)
	}
}

func TestCentroidClosedAndDegenerate(t *testing.T) {
	closed := Ring{{0, 0}, {0, 4}, {4, 4}, {4, 0}, {0, 0}}
	c := closed.Centroid()
	if math.Abs(c.Lat-2) > 1e-12 || math.Abs(c.Long-2) > 1e-12 {
		t.Errorf("closed ring centroid should be (2,2), got %v", c)
	}

	line := Ring{{1, 1}, {2, 2}, {3, 3}}
	c = line.Centroid()
	if c != (Point{2, 2}) {
		t.Errorf("collinear ring should fall back to vertex mean, got %v", c)
	}
}

func TestBoundingBoxAround(t *testing.T) {
	center := Point{Lat: 45, Long: 10}
	radius := 10000.0
	box := BoundingBoxAround(center, radius)
	if box.AnyLong {
		t.Fatal("a 10km box at 45N should constrain longitude")
	}

	// A point exactly at the radius due north must fall inside.
	north := Point{Lat: center.Lat + radiansToDegrees(radius/EarthRadiusMeters), Long: center.Long}
	if !box.Contains(north) {
		t.Errorf("north edge point %v not contained in %+v", north, box)
	}
	for _, bearingPoint := range []Point{{45, 10.12}, {44.95, 9.9}, {45.05, 10.05}} {
		if Within(center, bearingPoint, radius) && !box.Contains(bearingPoint) {
			t.Errorf("point %v within radius but outside box", bearingPoint)
		}
	}

	polar := BoundingBoxAround(Point{Lat: 89.99, Long: 0}, 5000)
	if !polar.AnyLong {
		t.Error("box touching the pole should leave longitude unconstrained")
	}
	dateline := BoundingBoxAround(Point{Lat: 0, Long: 179.99}, 5000)
	if !dateline.AnyLong {
		t.Error("box crossing the antimeridian should leave longitude unconstrained")
	}
}

func TestFeature(t *testing.T) {
	feature, err := Feature("sub-1", Ring{{1, 1}, {2, 2}, {3, 1}}, map[string]interface{}{"name": "Alpha"})
	if err != nil {
		t.Fatalf("Feature failed: %v", err)
	}

	data, err := json.Marshal(&geojson.FeatureCollection{Features: []*geojson.Feature{feature}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded struct {
		Features []struct {
			ID       string `json:"id"`
			Geometry struct {
				Type        string        `json:"type"`
				Coordinates [][][]float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(decoded.Features) != 1 || decoded.Features[0].Geometry.Type != "Polygon" {
		t.Fatalf("unexpected collection %s", data)
	}
	coords := decoded.Features[0].Geometry.Coordinates[0]
	if len(coords) != 4 {
		t.Fatalf("ring should be closed with 4 coordinates, got %d", len(coords))
	}
	if coords[1][0] != 2 || coords[1][1] != 2 || coords[2][0] != 1 || coords[2][1] != 3 {
		t.Errorf("coordinates should be [long, lat] in ring order, got %v", coords)
	}

	if _, err := Feature("bad", Ring{{1, 1}}, nil); err == nil {
		t.Error("expected error for a one point ring")
	}
}
