package database

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/realestate/server/internal/geometry"
)

var locationColumns = []string{"id", "lat", "long", "geohash"}

// locationsPerStatement keeps one InsertBatch statement under MaxParameters.
var locationsPerStatement = MaxParameters / len(locationColumns)

// LocationStorage persists deduplicated coordinate records.
type LocationStorage struct {
	db *sqlx.DB
}

// NewLocationStorage creates a new location storage instance
func NewLocationStorage(db *sqlx.DB) *LocationStorage {
	return &LocationStorage{db: db}
}

// Get returns the location with the given id. It fails with a
// CardinalityError (matching ErrNotFound) unless exactly one row exists.
func (s *LocationStorage) Get(ctx context.Context, id string) (*geometry.Location, error) {
	var rows []geometry.Location
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, lat, long, geohash
		FROM app_location
		WHERE id = $1
	`, id)
	if err != nil {
		return nil, wrapStoreError("get location", err)
	}
	if len(rows) != 1 {
		return nil, &CardinalityError{Expected: 1, Got: len(rows)}
	}
	return &rows[0], nil
}

// GetMany returns the stored locations among ids, keyed by id. Missing ids
// are simply absent from the result.
func (s *LocationStorage) GetMany(ctx context.Context, ids []string) (map[string]geometry.Location, error) {
	out := make(map[string]geometry.Location, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []geometry.Location
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, lat, long, geohash
		FROM app_location
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, wrapStoreError("get locations", err)
	}
	for _, loc := range rows {
		out[loc.ID] = loc
	}
	return out, nil
}

// Insert stores loc unless a row with the same id already exists. It reports
// whether this call created the row. Concurrent inserts of one id leave
// exactly one row.
func (s *LocationStorage) Insert(ctx context.Context, loc geometry.Location) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO app_location (id, lat, long, geohash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, loc.ID, loc.Lat, loc.Long, loc.Geohash)
	if err != nil {
		return false, wrapStoreError("insert location", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, wrapStoreError("insert location", err)
	}
	return affected == 1, nil
}

// InsertBatch stores many locations with multi-row inserts and returns how
// many rows were newly created. Callers pre-dedupe the batch; ids that
// already exist are skipped rather than failing the batch.
func (s *LocationStorage) InsertBatch(ctx context.Context, locs []geometry.Location) (int, error) {
	created := 0
	for start := 0; start < len(locs); start += locationsPerStatement {
		end := start + locationsPerStatement
		if end > len(locs) {
			end = len(locs)
		}

		rows := make([][]interface{}, 0, end-start)
		for _, loc := range locs[start:end] {
			rows = append(rows, []interface{}{loc.ID, loc.Lat, loc.Long, loc.Geohash})
		}

		b := NewBatchBuilder()
		if err := b.Insert("app_location", locationColumns, rows, "ON CONFLICT (id) DO NOTHING"); err != nil {
			return created, wrapStoreError("insert locations", err)
		}
		query, args, err := b.Build()
		if err != nil {
			return created, wrapStoreError("insert locations", err)
		}

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return created, wrapStoreError("insert locations", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return created, wrapStoreError("insert locations", err)
		}
		created += int(affected)
	}
	return created, nil
}
