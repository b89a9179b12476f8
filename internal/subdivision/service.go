package subdivision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/database"
	"github.com/realestate/server/internal/geometry"
	"github.com/realestate/server/internal/location"
	"github.com/realestate/server/internal/metrics"
)

// Repository is the subdivision store. database.SubdivisionStorage
// implements it.
type Repository interface {
	Create(ctx context.Context, sub *database.Subdivision, lots ...*database.Lot) error
	CreateLots(ctx context.Context, lots []*database.Lot) error
	Get(ctx context.Context, id string) (*database.Subdivision, error)
	ListLots(ctx context.Context, subdivisionID string) ([]*database.Lot, error)
	SearchByName(ctx context.Context, substring string) ([]*database.Subdivision, error)
	SearchByLocation(ctx context.Context, center geometry.Point, radius float64, policy geometry.RepresentativePolicy) ([]database.ProximityMatch, error)
	GetAllPreview(ctx context.Context) ([]database.SubdivisionPreview, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// LocationRegistry resolves ring coordinates. location.Registry implements it.
type LocationRegistry interface {
	RingsFromPoints(ctx context.Context, rings []geometry.Ring) ([][]string, error)
	RingToPoints(ctx context.Context, ids []string, mode location.Reconstruction) (geometry.Ring, int, error)
}

// Publisher receives an event after every successful write.
type Publisher interface {
	Publish(event Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Options configures reads and proximity search.
type Options struct {
	Reconstruction location.Reconstruction
	Policy         geometry.RepresentativePolicy
	SearchRadius   float64
}

// DefaultOptions reconstructs strictly and measures from the anchor point
// within 5 km.
func DefaultOptions() Options {
	return Options{
		Reconstruction: location.Strict,
		Policy:         geometry.AnchorPoint,
		SearchRadius:   5000,
	}
}

// Service implements creation, search and aggregate assembly.
type Service struct {
	repo      Repository
	registry  LocationRegistry
	publisher Publisher
	opts      Options
	validate  *validator.Validate
	log       *zap.Logger
}

// NewService wires a service. publisher and log may be nil.
func NewService(repo Repository, registry LocationRegistry, publisher Publisher, opts Options, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		registry:  registry,
		publisher: publisher,
		opts:      opts,
		validate:  newValidator(),
		log:       log,
	}
}

// Create stores a subdivision and any lots in the request. Every ring point
// is resolved to a location first; the subdivision, its lots and all
// boundary associations are then written as one batch. It returns the
// subdivision id.
func (s *Service) Create(ctx context.Context, req SubdivisionRequest) (string, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Lots = append([]LotRequest(nil), req.Lots...)
	for i := range req.Lots {
		req.Lots[i].Name = strings.TrimSpace(req.Lots[i].Name)
	}
	if err := s.validate.Struct(req); err != nil {
		return "", validationError(err)
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	for i := range req.Lots {
		req.Lots[i].SubdivisionID = id
	}
	if err := checkDuplicateLots(req.Lots); err != nil {
		return "", err
	}

	rings := make([]geometry.Ring, 0, len(req.Lots)+1)
	rings = append(rings, req.Boundary)
	for _, lot := range req.Lots {
		rings = append(rings, lot.Boundary)
	}
	resolved, err := s.registry.RingsFromPoints(ctx, rings)
	if err != nil {
		return "", fmt.Errorf("failed to resolve subdivision %s geometry: %w", id, err)
	}

	sub := &database.Subdivision{ID: id, Name: req.Name, Boundary: resolved[0]}
	lots := lotEntities(req.Lots, resolved[1:])
	if err := s.repo.Create(ctx, sub, lots...); err != nil {
		return "", fmt.Errorf("failed to create subdivision %s: %w", id, err)
	}

	metrics.SubdivisionsCreatedTotal.Inc()
	metrics.LotsCreatedTotal.Add(float64(len(lots)))
	s.log.Info("subdivision created",
		zap.String("subdivision_id", id),
		zap.Int("boundary_points", len(sub.Boundary)),
		zap.Int("lots", len(lots)),
	)
	s.publisher.Publish(Event{
		Type:          EventSubdivisionCreated,
		SubdivisionID: id,
		Name:          req.Name,
		LotIDs:        lotIDs(lots),
		At:            time.Now().UTC(),
	})
	return id, nil
}

// CreateLot stores one lot and returns its id "{name}-{subdivisionId}".
func (s *Service) CreateLot(ctx context.Context, req LotRequest) (string, error) {
	ids, err := s.CreateLots(ctx, []LotRequest{req})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// CreateLots stores every lot in one batch and returns their ids in request
// order. The referenced subdivisions must exist.
func (s *Service) CreateLots(ctx context.Context, reqs []LotRequest) ([]string, error) {
	if len(reqs) == 0 {
		return nil, &ValidationError{Message: "at least one lot is required"}
	}
	reqs = append([]LotRequest(nil), reqs...)
	for i := range reqs {
		reqs[i].Name = strings.TrimSpace(reqs[i].Name)
		if err := s.validate.Struct(reqs[i]); err != nil {
			return nil, validationError(err)
		}
		if strings.TrimSpace(reqs[i].SubdivisionID) == "" {
			return nil, &ValidationError{Message: fmt.Sprintf("lot %d: subdivision_id is required", i)}
		}
	}
	if err := checkDuplicateLots(reqs); err != nil {
		return nil, err
	}

	rings := make([]geometry.Ring, 0, len(reqs))
	for _, req := range reqs {
		rings = append(rings, req.Boundary)
	}
	resolved, err := s.registry.RingsFromPoints(ctx, rings)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lot geometry: %w", err)
	}

	lots := lotEntities(reqs, resolved)
	if err := s.repo.CreateLots(ctx, lots); err != nil {
		return nil, fmt.Errorf("failed to create %d lots: %w", len(lots), err)
	}
	metrics.LotsCreatedTotal.Add(float64(len(lots)))

	ids := lotIDs(lots)
	bySubdivision := make(map[string][]string)
	var order []string
	for _, lot := range lots {
		if _, ok := bySubdivision[lot.SubdivisionID]; !ok {
			order = append(order, lot.SubdivisionID)
		}
		bySubdivision[lot.SubdivisionID] = append(bySubdivision[lot.SubdivisionID], lot.ID())
	}
	now := time.Now().UTC()
	for _, subID := range order {
		s.publisher.Publish(Event{Type: EventLotsCreated, SubdivisionID: subID, LotIDs: bySubdivision[subID], At: now})
	}
	return ids, nil
}

// Search dispatches on the request: by name when a name is given, otherwise
// by coordinates. Neither is a ValidationError.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]Aggregate, error) {
	switch {
	case req.Name != nil:
		return s.SearchByName(ctx, *req.Name)
	case req.Coords != nil:
		return s.SearchByLocation(ctx, *req.Coords)
	default:
		return nil, &ValidationError{Message: "a name or coordinates are required to search"}
	}
}

// SearchByName returns the aggregates of subdivisions whose name contains
// name, case-insensitively.
func (s *Service) SearchByName(ctx context.Context, name string) ([]Aggregate, error) {
	start := time.Now()
	defer observeSearch("name", start)

	subs, err := s.repo.SearchByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to search subdivisions by name: %w", err)
	}
	out := make([]Aggregate, 0, len(subs))
	for _, sub := range subs {
		agg, err := s.ToAggregate(ctx, sub)
		if err != nil {
			return nil, err
		}
		out = append(out, *agg)
	}
	return out, nil
}

// SearchByLocation returns the aggregates of subdivisions whose
// representative point lies within the configured radius of p, nearest
// first.
func (s *Service) SearchByLocation(ctx context.Context, p geometry.Point) ([]Aggregate, error) {
	if err := p.Validate(); err != nil {
		return nil, &ValidationError{Message: err.Error()}
	}
	start := time.Now()
	defer observeSearch("location", start)

	matches, err := s.repo.SearchByLocation(ctx, p, s.opts.SearchRadius, s.opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to search subdivisions by location: %w", err)
	}
	out := make([]Aggregate, 0, len(matches))
	for _, m := range matches {
		agg, err := s.ToAggregate(ctx, m.Subdivision)
		if err != nil {
			return nil, err
		}
		distance := m.Distance
		agg.Distance = &distance
		out = append(out, *agg)
	}
	return out, nil
}

// GetAll lists every subdivision with its lot count.
func (s *Service) GetAll(ctx context.Context) ([]database.SubdivisionPreview, error) {
	previews, err := s.repo.GetAllPreview(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subdivisions: %w", err)
	}
	return previews, nil
}

// Get returns the aggregate of one subdivision.
func (s *Service) Get(ctx context.Context, id string) (*Aggregate, error) {
	sub, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get subdivision %s: %w", id, err)
	}
	return s.ToAggregate(ctx, sub)
}

// ToAggregate resolves a subdivision's lots and every ring back into
// coordinates. Any failure aborts the whole aggregate; under lenient
// reconstruction unresolvable points are dropped and counted instead.
func (s *Service) ToAggregate(ctx context.Context, sub *database.Subdivision) (*Aggregate, error) {
	lots, err := s.repo.ListLots(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots of %s: %w", sub.ID, err)
	}

	agg := &Aggregate{ID: sub.ID, Name: sub.Name, Lots: make([]LotAggregate, 0, len(lots))}
	for _, lot := range lots {
		ring, dropped, err := s.registry.RingToPoints(ctx, lot.Boundary, s.opts.Reconstruction)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve lot %s: %w", lot.ID(), err)
		}
		agg.DroppedPoints += dropped
		agg.Lots = append(agg.Lots, LotAggregate{
			ID:            lot.ID(),
			Name:          lot.Name,
			SubdivisionID: lot.SubdivisionID,
			Boundary:      ring,
		})
	}

	if sub.Ring != nil && len(sub.Ring) == len(sub.Boundary) {
		agg.Boundary = sub.Ring
	} else {
		ring, dropped, err := s.registry.RingToPoints(ctx, sub.Boundary, s.opts.Reconstruction)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve subdivision %s: %w", sub.ID, err)
		}
		agg.DroppedPoints += dropped
		agg.Boundary = ring
	}

	if agg.DroppedPoints > 0 {
		s.log.Warn("subdivision aggregate is missing ring points",
			zap.String("subdivision_id", sub.ID),
			zap.Int("dropped_points", agg.DroppedPoints),
		)
	}
	return agg, nil
}

// GeoJSON returns the subdivision and its lots as a feature collection.
// Rings left with fewer than three points by lenient reconstruction are
// omitted.
func (s *Service) GeoJSON(ctx context.Context, id string) (*geojson.FeatureCollection, error) {
	agg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	fc := &geojson.FeatureCollection{}
	if feature, err := geometry.Feature(agg.ID, agg.Boundary, map[string]interface{}{
		"kind": "subdivision",
		"name": agg.Name,
	}); err == nil {
		fc.Features = append(fc.Features, feature)
	} else {
		s.log.Warn("skipping subdivision feature", zap.String("subdivision_id", agg.ID), zap.Error(err))
	}
	for _, lot := range agg.Lots {
		feature, err := geometry.Feature(lot.ID, lot.Boundary, map[string]interface{}{
			"kind":           "lot",
			"name":           lot.Name,
			"subdivision_id": lot.SubdivisionID,
		})
		if err != nil {
			s.log.Warn("skipping lot feature", zap.String("lot_id", lot.ID), zap.Error(err))
			continue
		}
		fc.Features = append(fc.Features, feature)
	}
	return fc, nil
}

// Rename changes a subdivision's name.
func (s *Service) Rename(ctx context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if err := s.validate.Var(name, nameRules); err != nil {
		return fieldError("name", err)
	}
	if err := s.repo.Rename(ctx, id, name); err != nil {
		return fmt.Errorf("failed to rename subdivision %s: %w", id, err)
	}
	s.publisher.Publish(Event{Type: EventSubdivisionRenamed, SubdivisionID: id, Name: name, At: time.Now().UTC()})
	return nil
}

// Delete removes a subdivision and its lots.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete subdivision %s: %w", id, err)
	}
	s.publisher.Publish(Event{Type: EventSubdivisionDeleted, SubdivisionID: id, At: time.Now().UTC()})
	return nil
}

// lotEntities pairs each request with its resolved ring ids.
func lotEntities(reqs []LotRequest, boundaries [][]string) []*database.Lot {
	lots := make([]*database.Lot, 0, len(reqs))
	for i, req := range reqs {
		lots = append(lots, &database.Lot{
			Name:          req.Name,
			SubdivisionID: req.SubdivisionID,
			Boundary:      boundaries[i],
		})
	}
	return lots
}

func lotIDs(lots []*database.Lot) []string {
	ids := make([]string, 0, len(lots))
	for _, lot := range lots {
		ids = append(ids, lot.ID())
	}
	return ids
}

func checkDuplicateLots(reqs []LotRequest) error {
	seen := make(map[[2]string]bool, len(reqs))
	for _, req := range reqs {
		key := [2]string{req.Name, req.SubdivisionID}
		if seen[key] {
			return &ValidationError{Message: fmt.Sprintf("lot %q appears more than once in subdivision %s", req.Name, req.SubdivisionID)}
		}
		seen[key] = true
	}
	return nil
}

func observeSearch(kind string, start time.Time) {
	metrics.SearchDurationMs.WithLabelValues(kind).Observe(float64(time.Since(start).Microseconds()) / 1000)
}
