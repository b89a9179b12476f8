// Package location deduplicates coordinates into shared location records and
// converts boundary rings between points and location ids.
package location

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/realestate/server/internal/geometry"
	"github.com/realestate/server/internal/metrics"
)

// ErrUnresolvedPoint is returned by strict reconstruction when a ring
// references a location that cannot be found.
var ErrUnresolvedPoint = errors.New("ring point could not be resolved")

// Reconstruction selects how RingToPoints treats unresolvable ids.
type Reconstruction string

const (
	// Strict fails the whole ring.
	Strict Reconstruction = "strict"
	// Lenient drops the point and counts it.
	Lenient Reconstruction = "lenient"
)

// ParseReconstruction validates a reconstruction mode name.
func ParseReconstruction(s string) (Reconstruction, error) {
	switch Reconstruction(s) {
	case Strict, Lenient:
		return Reconstruction(s), nil
	default:
		return "", fmt.Errorf("unknown reconstruction mode %q (want %q or %q)", s, Strict, Lenient)
	}
}

// Store is the persistence the registry needs. database.LocationStorage
// implements it.
type Store interface {
	Get(ctx context.Context, id string) (*geometry.Location, error)
	GetMany(ctx context.Context, ids []string) (map[string]geometry.Location, error)
	Insert(ctx context.Context, loc geometry.Location) (bool, error)
	InsertBatch(ctx context.Context, locs []geometry.Location) (int, error)
}

// Registry is the get-or-create front for location records.
type Registry struct {
	store Store
	cache Cache
	log   *zap.Logger
	group singleflight.Group
}

// NewRegistry creates a registry over store. A nil cache disables caching.
func NewRegistry(store Store, cache Cache, log *zap.Logger) *Registry {
	if cache == nil {
		cache = NopCache{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: store, cache: cache, log: log}
}

// Get returns the location with id, or an error matching
// database.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*geometry.Location, error) {
	if loc, ok := r.cache.Get(ctx, id); ok {
		return &loc, nil
	}
	loc, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, *loc)
	return loc, nil
}

// GetOrCreate returns the location of p, creating it on first sighting.
// Concurrent calls for the same new coordinate store exactly one row and
// return the same id: the store insert is idempotent, and callers inside
// this process share a single insert.
func (r *Registry) GetOrCreate(ctx context.Context, p geometry.Point) (*geometry.Location, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.EnsurePoints(ctx, []geometry.Point{p}); err != nil {
		return nil, err
	}
	loc := geometry.NewLocation(p)
	return &loc, nil
}

// CreateBatch stores many distinct locations in one call and returns how
// many rows were new. It does not dedupe; callers pass distinct ids.
func (r *Registry) CreateBatch(ctx context.Context, locs []geometry.Location) (int, error) {
	if len(locs) == 0 {
		return 0, nil
	}
	created, err := r.store.InsertBatch(ctx, locs)
	if err != nil {
		return 0, fmt.Errorf("failed to create %d locations: %w", len(locs), err)
	}
	r.stored(ctx, locs, created)
	return created, nil
}

// EnsurePoints makes sure a location exists for every point and returns how
// many rows were new. The distinct locations always go to the store, since
// a cached location may no longer have a row behind it; the insert skips
// rows that exist. Callers asking for the same set of locations at the same
// time share one insert.
func (r *Registry) EnsurePoints(ctx context.Context, points []geometry.Point) (int, error) {
	distinct := make(map[string]geometry.Location, len(points))
	for _, p := range points {
		if err := p.Validate(); err != nil {
			return 0, err
		}
		loc := geometry.NewLocation(p)
		distinct[loc.ID] = loc
	}
	if len(distinct) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(distinct))
	for id := range distinct {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	locs := make([]geometry.Location, 0, len(ids))
	for _, id := range ids {
		locs = append(locs, distinct[id])
	}

	// The shared insert must not fail for every caller when the one that
	// started it goes away.
	shared := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(strings.Join(ids, "|"), func() (interface{}, error) {
		if len(locs) == 1 {
			inserted, err := r.store.Insert(shared, locs[0])
			if err != nil {
				return 0, fmt.Errorf("failed to create location %s: %w", locs[0].ID, err)
			}
			created := 0
			if inserted {
				created = 1
			}
			r.stored(shared, locs, created)
			return created, nil
		}
		created, err := r.CreateBatch(shared, locs)
		if err != nil {
			return 0, err
		}
		return created, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (r *Registry) stored(ctx context.Context, locs []geometry.Location, created int) {
	metrics.LocationsCreatedTotal.Add(float64(created))
	for _, loc := range locs {
		r.cache.Set(ctx, loc)
	}
}

// RingFromPoints resolves every point of ring to a stored location and
// returns the location ids in ring order.
func (r *Registry) RingFromPoints(ctx context.Context, ring geometry.Ring) ([]string, error) {
	rings, err := r.RingsFromPoints(ctx, []geometry.Ring{ring})
	if err != nil {
		return nil, err
	}
	return rings[0], nil
}

// RingsFromPoints is RingFromPoints for several rings at once. Points shared
// between rings are stored once, in a single insert.
func (r *Registry) RingsFromPoints(ctx context.Context, rings []geometry.Ring) ([][]string, error) {
	var points []geometry.Point
	for _, ring := range rings {
		points = append(points, ring...)
	}
	if _, err := r.EnsurePoints(ctx, points); err != nil {
		return nil, err
	}
	out := make([][]string, 0, len(rings))
	for _, ring := range rings {
		out = append(out, ring.LocationIDs())
	}
	return out, nil
}

// RingToPoints resolves location ids back to coordinates in order. Under
// Strict an unresolvable id fails the ring with ErrUnresolvedPoint; under
// Lenient it is skipped and counted in the second result.
func (r *Registry) RingToPoints(ctx context.Context, ids []string, mode Reconstruction) (geometry.Ring, int, error) {
	resolved := make(map[string]geometry.Location, len(ids))
	var misses []string
	for _, id := range ids {
		if _, done := resolved[id]; done {
			continue
		}
		if loc, ok := r.cache.Get(ctx, id); ok {
			resolved[id] = loc
			continue
		}
		misses = append(misses, id)
		resolved[id] = geometry.Location{}
	}

	if len(misses) > 0 {
		found, err := r.store.GetMany(ctx, misses)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to resolve ring: %w", err)
		}
		for _, id := range misses {
			if loc, ok := found[id]; ok {
				resolved[id] = loc
				r.cache.Set(ctx, loc)
			} else {
				delete(resolved, id)
			}
		}
	}

	ring := make(geometry.Ring, 0, len(ids))
	dropped := 0
	for i, id := range ids {
		loc, ok := resolved[id]
		if !ok {
			if mode != Lenient {
				return nil, 0, fmt.Errorf("%w: position %d, location %s", ErrUnresolvedPoint, i, id)
			}
			dropped++
			continue
		}
		ring = append(ring, loc.Point())
	}
	if dropped > 0 {
		metrics.DroppedPointsTotal.Add(float64(dropped))
		r.log.Warn("dropped unresolvable ring points",
			zap.Int("dropped", dropped),
			zap.Int("ring_size", len(ids)),
		)
	}
	return ring, dropped, nil
}
