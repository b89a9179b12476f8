package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/realestate/server/internal/geometry"
)

// Subdivision is a named land area. Boundary holds location ids in ring
// order. Ring carries the resolved coordinates when the row was read through
// an aggregating query, and is nil otherwise.
type Subdivision struct {
	ID       string
	Name     string
	Boundary []string
	Ring     geometry.Ring
}

// Lot is a parcel inside a subdivision, keyed by (Name, SubdivisionID).
type Lot struct {
	Name          string
	SubdivisionID string
	Boundary      []string
}

// ID returns the display id of the lot: "{name}-{subdivisionId}".
func (l Lot) ID() string {
	return l.Name + "-" + l.SubdivisionID
}

// SubdivisionPreview is the listing projection. It never resolves boundaries.
type SubdivisionPreview struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	LotCount int    `db:"lot_count" json:"lots_amount"`
}

// ProximityMatch is a subdivision found by SearchByLocation along with the
// point it was measured from and its distance in meters.
type ProximityMatch struct {
	*Subdivision
	Representative geometry.Point
	Distance       float64
}

type subdivisionRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	LocationIDs pq.StringArray  `db:"location_ids"`
	Lats        pq.Float64Array `db:"lats"`
	Longs       pq.Float64Array `db:"longs"`
}

func (r subdivisionRow) subdivision() (*Subdivision, error) {
	ring, err := geometry.Zip(r.Lats, r.Longs)
	if err != nil {
		return nil, fmt.Errorf("subdivision %s: %w", r.ID, err)
	}
	if len(ring) != len(r.LocationIDs) {
		return nil, fmt.Errorf("subdivision %s: %w: %d location ids, %d coordinates",
			r.ID, geometry.ErrArrayLengthMismatch, len(r.LocationIDs), len(ring))
	}
	return &Subdivision{
		ID:       r.ID,
		Name:     r.Name,
		Boundary: []string(r.LocationIDs),
		Ring:     ring,
	}, nil
}

type lotRow struct {
	Name          string         `db:"name"`
	SubdivisionID string         `db:"subdivision_id"`
	LocationIDs   pq.StringArray `db:"location_ids"`
}

// selectSubdivisions aggregates each subdivision's ring into parallel arrays.
// Every array_agg orders by seq so index i of each array is ring point i.
// Coordinates are filtered on the joined location so a dangling reference
// surfaces as a length mismatch instead of a shorter ring.
const selectSubdivisions = `
	SELECT s.id, s.name,
		COALESCE(array_agg(sl.location_id ORDER BY sl.seq) FILTER (WHERE sl.location_id IS NOT NULL), '{}') AS location_ids,
		COALESCE(array_agg(l.lat ORDER BY sl.seq) FILTER (WHERE l.id IS NOT NULL), '{}') AS lats,
		COALESCE(array_agg(l.long ORDER BY sl.seq) FILTER (WHERE l.id IS NOT NULL), '{}') AS longs
	FROM subdivision s
	LEFT JOIN subdivision_location sl ON sl.subdivision_id = s.id
	LEFT JOIN app_location l ON l.id = sl.location_id
`

const groupSubdivisions = `
	GROUP BY s.id, s.name
	ORDER BY s.name, s.id
`

var (
	subdivisionColumns         = []string{"id", "name"}
	subdivisionLocationColumns = []string{"subdivision_id", "location_id", "seq"}
	lotColumns                 = []string{"name", "subdivision_id", "ordinal"}
	lotLocationColumns         = []string{"lot_name", "subdivision_id", "location_id", "seq"}
)

// SubdivisionStorage handles subdivision and lot persistence and search.
type SubdivisionStorage struct {
	db *sqlx.DB
}

// NewSubdivisionStorage creates a new subdivision storage instance
func NewSubdivisionStorage(db *sqlx.DB) *SubdivisionStorage {
	return &SubdivisionStorage{db: db}
}

// Create writes the subdivision row, its boundary associations and any lots
// with their boundaries as a single statement. Every referenced location
// must already exist.
func (s *SubdivisionStorage) Create(ctx context.Context, sub *Subdivision, lots ...*Lot) error {
	b := NewBatchBuilder()
	if err := b.Insert("subdivision", subdivisionColumns, [][]interface{}{{sub.ID, sub.Name}}); err != nil {
		return wrapStoreError("create subdivision", err)
	}
	if len(sub.Boundary) > 0 {
		rows := make([][]interface{}, len(sub.Boundary))
		for seq, locationID := range sub.Boundary {
			rows[seq] = []interface{}{sub.ID, locationID, seq}
		}
		if err := b.Insert("subdivision_location", subdivisionLocationColumns, rows); err != nil {
			return wrapStoreError("create subdivision", err)
		}
	}
	if err := addLots(b, lots); err != nil {
		return wrapStoreError("create subdivision", err)
	}
	return s.exec(ctx, "create subdivision", b)
}

// CreateLot writes one lot and its boundary associations atomically.
func (s *SubdivisionStorage) CreateLot(ctx context.Context, lot *Lot) error {
	return s.CreateLots(ctx, []*Lot{lot})
}

// CreateLots writes every lot and all their boundary associations as one
// statement. Either all lots are stored or none are.
func (s *SubdivisionStorage) CreateLots(ctx context.Context, lots []*Lot) error {
	if len(lots) == 0 {
		return nil
	}
	b := NewBatchBuilder()
	if err := addLots(b, lots); err != nil {
		return wrapStoreError("create lots", err)
	}
	return s.exec(ctx, "create lots", b)
}

// addLots queues the lot rows and their ring rows. ordinal keeps the request
// order of lots written by one statement.
func addLots(b *BatchBuilder, lots []*Lot) error {
	if len(lots) == 0 {
		return nil
	}
	lotRows := make([][]interface{}, 0, len(lots))
	var locationRows [][]interface{}
	for i, lot := range lots {
		lotRows = append(lotRows, []interface{}{lot.Name, lot.SubdivisionID, i})
		for seq, locationID := range lot.Boundary {
			locationRows = append(locationRows, []interface{}{lot.Name, lot.SubdivisionID, locationID, seq})
		}
	}
	if err := b.Insert("lot", lotColumns, lotRows); err != nil {
		return err
	}
	if len(locationRows) == 0 {
		return nil
	}
	return b.Insert("lot_location", lotLocationColumns, locationRows)
}

func (s *SubdivisionStorage) exec(ctx context.Context, op string, b *BatchBuilder) error {
	query, args, err := b.Build()
	if err != nil {
		return wrapStoreError(op, err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrapStoreError(op, err)
	}
	return nil
}

// Get returns one subdivision with its resolved ring.
func (s *SubdivisionStorage) Get(ctx context.Context, id string) (*Subdivision, error) {
	subs, err := s.query(ctx, "get subdivision", selectSubdivisions+" WHERE s.id = $1 "+groupSubdivisions, id)
	if err != nil {
		return nil, err
	}
	if len(subs) != 1 {
		return nil, &CardinalityError{Expected: 1, Got: len(subs)}
	}
	return subs[0], nil
}

// ListLots returns every lot of a subdivision in creation order, with
// boundary location ids in ring order. Coordinates are not resolved.
func (s *SubdivisionStorage) ListLots(ctx context.Context, subdivisionID string) ([]*Lot, error) {
	var rows []lotRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT lot.name, lot.subdivision_id,
			COALESCE(array_agg(ll.location_id ORDER BY ll.seq) FILTER (WHERE ll.location_id IS NOT NULL), '{}') AS location_ids
		FROM lot
		LEFT JOIN lot_location ll ON ll.lot_name = lot.name AND ll.subdivision_id = lot.subdivision_id
		WHERE lot.subdivision_id = $1
		GROUP BY lot.name, lot.subdivision_id
		ORDER BY lot.created_at, lot.ordinal, lot.name
	`, subdivisionID)
	if err != nil {
		return nil, wrapStoreError("list lots", err)
	}

	lots := make([]*Lot, 0, len(rows))
	for _, row := range rows {
		lots = append(lots, &Lot{
			Name:          row.Name,
			SubdivisionID: row.SubdivisionID,
			Boundary:      []string(row.LocationIDs),
		})
	}
	return lots, nil
}

// SearchByName returns subdivisions whose name contains substring,
// case-insensitively. LIKE wildcards in substring match literally.
func (s *SubdivisionStorage) SearchByName(ctx context.Context, substring string) ([]*Subdivision, error) {
	pattern := "%" + escapeLike(substring) + "%"
	return s.query(ctx, "search subdivisions by name",
		selectSubdivisions+` WHERE s.name ILIKE $1 ESCAPE '\' `+groupSubdivisions, pattern)
}

// SearchByLocation returns subdivisions whose representative point lies
// within radius meters of center, nearest first. The boundary is inclusive.
func (s *SubdivisionStorage) SearchByLocation(ctx context.Context, center geometry.Point, radius float64, policy geometry.RepresentativePolicy) ([]ProximityMatch, error) {
	query := selectSubdivisions
	var args []interface{}

	// The anchor is a stored row, so the radius window can be applied in SQL
	// before the exact distance check.
	if policy == geometry.AnchorPoint {
		box := geometry.BoundingBoxAround(center, radius)
		filter := `
			WHERE s.id IN (
				SELECT a.subdivision_id
				FROM subdivision_location a
				JOIN app_location al ON al.id = a.location_id
				WHERE a.seq = 0 AND al.lat BETWEEN $1 AND $2`
		args = append(args, box.MinLat, box.MaxLat)
		if !box.AnyLong {
			filter += ` AND al.long BETWEEN $3 AND $4`
			args = append(args, box.MinLong, box.MaxLong)
		}
		query += filter + ")"
	}
	query += groupSubdivisions

	subs, err := s.query(ctx, "search subdivisions by location", query, args...)
	if err != nil {
		return nil, err
	}

	var matches []ProximityMatch
	for _, sub := range subs {
		rep, ok := policy.Representative(sub.Ring)
		if !ok {
			continue
		}
		distance := geometry.Haversine(center, rep)
		if distance <= radius {
			matches = append(matches, ProximityMatch{Subdivision: sub, Representative: rep, Distance: distance})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
	return matches, nil
}

// GetAllPreview lists every subdivision with its lot count.
func (s *SubdivisionStorage) GetAllPreview(ctx context.Context) ([]SubdivisionPreview, error) {
	var previews []SubdivisionPreview
	err := s.db.SelectContext(ctx, &previews, `
		SELECT s.id, s.name, COUNT(lot.name) AS lot_count
		FROM subdivision s
		LEFT JOIN lot ON lot.subdivision_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name, s.id
	`)
	if err != nil {
		return nil, wrapStoreError("list subdivision previews", err)
	}
	return previews, nil
}

// Rename changes the name of a subdivision.
func (s *SubdivisionStorage) Rename(ctx context.Context, id, name string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE subdivision SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return wrapStoreError("rename subdivision", err)
	}
	return expectOneRow("rename subdivision", result.RowsAffected)
}

// Delete removes a subdivision. Its lots and boundary associations cascade;
// locations are kept for reuse.
func (s *SubdivisionStorage) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM subdivision WHERE id = $1`, id)
	if err != nil {
		return wrapStoreError("delete subdivision", err)
	}
	return expectOneRow("delete subdivision", result.RowsAffected)
}

func (s *SubdivisionStorage) query(ctx context.Context, op, query string, args ...interface{}) ([]*Subdivision, error) {
	var rows []subdivisionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapStoreError(op, err)
	}
	subs := make([]*Subdivision, 0, len(rows))
	for _, row := range rows {
		sub, err := row.subdivision()
		if err != nil {
			return nil, wrapStoreError(op, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func expectOneRow(op string, rowsAffected func() (int64, error)) error {
	n, err := rowsAffected()
	if err != nil {
		return wrapStoreError(op, err)
	}
	if n != 1 {
		return &CardinalityError{Expected: 1, Got: int(n)}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
