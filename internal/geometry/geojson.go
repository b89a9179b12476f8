package geometry

import (
	"fmt"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Polygon converts a boundary ring into a closed GeoJSON-ordered polygon
// ([long, lat] coordinates). The ring is closed if its last point differs from
// its first.
func (r Ring) Polygon() (*geom.Polygon, error) {
	if len(r) < 3 {
		return nil, fmt.Errorf("a polygon needs at least 3 points, got %d", len(r))
	}
	coords := make([]geom.Coord, 0, len(r)+1)
	for _, p := range r {
		coords = append(coords, geom.Coord{p.Long, p.Lat})
	}
	if r[0] != r[len(r)-1] {
		coords = append(coords, geom.Coord{r[0].Long, r[0].Lat})
	}
	return geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
}

// Feature wraps a ring as a GeoJSON feature carrying the given properties.
func Feature(id string, r Ring, properties map[string]interface{}) (*geojson.Feature, error) {
	polygon, err := r.Polygon()
	if err != nil {
		return nil, fmt.Errorf("feature %s: %w", id, err)
	}
	return &geojson.Feature{
		ID:         id,
		Geometry:   polygon,
		Properties: properties,
	}, nil
}
