package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/realestate/server/internal/database"
	"github.com/realestate/server/internal/geometry"
	"github.com/realestate/server/internal/subdivision"
)

// SubdivisionService is the domain surface the handlers call.
// subdivision.Service implements it.
type SubdivisionService interface {
	Create(ctx context.Context, req subdivision.SubdivisionRequest) (string, error)
	CreateLot(ctx context.Context, req subdivision.LotRequest) (string, error)
	CreateLots(ctx context.Context, reqs []subdivision.LotRequest) ([]string, error)
	Search(ctx context.Context, req subdivision.SearchRequest) ([]subdivision.Aggregate, error)
	GetAll(ctx context.Context) ([]database.SubdivisionPreview, error)
	Get(ctx context.Context, id string) (*subdivision.Aggregate, error)
	GeoJSON(ctx context.Context, id string) (*geojson.FeatureCollection, error)
	Rename(ctx context.Context, id, name string) error
	Delete(ctx context.Context, id string) error
}

// SubdivisionHandlers manages HTTP handlers for subdivisions and lots.
type SubdivisionHandlers struct {
	service SubdivisionService
	log     *zap.Logger
}

// NewSubdivisionHandlers creates a new SubdivisionHandlers instance.
func NewSubdivisionHandlers(service SubdivisionService, log *zap.Logger) *SubdivisionHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	return &SubdivisionHandlers{service: service, log: log}
}

type renameRequest struct {
	Name string `json:"name"`
}

// CreateSubdivision handles POST /subdivisions
func (h *SubdivisionHandlers) CreateSubdivision(w http.ResponseWriter, r *http.Request) {
	var req subdivision.SubdivisionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	id, err := h.service.Create(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, id)
}

// ListSubdivisions handles GET /subdivisions
func (h *SubdivisionHandlers) ListSubdivisions(w http.ResponseWriter, r *http.Request) {
	previews, err := h.service.GetAll(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	if previews == nil {
		previews = []database.SubdivisionPreview{}
	}
	writeJSON(w, h.log, http.StatusOK, previews)
}

// SearchSubdivisions handles GET /subdivisions/search. It accepts
// ?name=..., ?lat=..&long=.. or ?coords=lat,long.
func (h *SubdivisionHandlers) SearchSubdivisions(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, err.Error())
		return
	}

	results, err := h.service.Search(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	if results == nil {
		results = []subdivision.Aggregate{}
	}
	writeJSON(w, h.log, http.StatusOK, results)
}

// GetSubdivision handles GET /subdivisions/{id}
func (h *SubdivisionHandlers) GetSubdivision(w http.ResponseWriter, r *http.Request, id string) {
	agg, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, agg)
}

// GetSubdivisionGeoJSON handles GET /subdivisions/{id}/geojson
func (h *SubdivisionHandlers) GetSubdivisionGeoJSON(w http.ResponseWriter, r *http.Request, id string) {
	fc, err := h.service.GeoJSON(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	body, err := fc.MarshalJSON()
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.log.Warn("failed to write geojson response", zap.Error(err))
	}
}

// RenameSubdivision handles PATCH /subdivisions/{id}
func (h *SubdivisionHandlers) RenameSubdivision(w http.ResponseWriter, r *http.Request, id string) {
	var req renameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if err := h.service.Rename(r.Context(), id, req.Name); err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, id)
}

// DeleteSubdivision handles DELETE /subdivisions/{id}
func (h *SubdivisionHandlers) DeleteSubdivision(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.Delete(r.Context(), id); err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateLot handles POST /subdivisions/{id}/lots
func (h *SubdivisionHandlers) CreateLot(w http.ResponseWriter, r *http.Request, subdivisionID string) {
	var req subdivision.LotRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	req.SubdivisionID = subdivisionID

	id, err := h.service.CreateLot(r.Context(), req)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, id)
}

// CreateLots handles POST /subdivisions/{id}/lots/batch-creation
func (h *SubdivisionHandlers) CreateLots(w http.ResponseWriter, r *http.Request, subdivisionID string) {
	var reqs []subdivision.LotRequest
	if err := decodeJSON(w, r, &reqs); err != nil {
		respondWithError(w, h.log, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	for i := range reqs {
		reqs[i].SubdivisionID = subdivisionID
	}

	ids, err := h.service.CreateLots(r.Context(), reqs)
	if err != nil {
		respondWithServiceError(w, r, h.log, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, h.log, http.StatusOK, ids)
}

// parseSearchRequest reads the search query. Missing criteria produce an
// empty request, which the service rejects; malformed numbers are rejected
// here.
func parseSearchRequest(r *http.Request) (subdivision.SearchRequest, error) {
	query := r.URL.Query()
	var req subdivision.SearchRequest

	if query.Has("name") {
		name := query.Get("name")
		req.Name = &name
		return req, nil
	}

	latRaw, longRaw := query.Get("lat"), query.Get("long")
	if coords := query.Get("coords"); coords != "" && latRaw == "" && longRaw == "" {
		parts := strings.Split(coords, ",")
		if len(parts) != 2 {
			return req, fmt.Errorf("coords must be \"lat,long\"")
		}
		latRaw, longRaw = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	if latRaw == "" && longRaw == "" {
		return req, nil
	}
	if latRaw == "" || longRaw == "" {
		return req, fmt.Errorf("lat and long must be given together")
	}

	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return req, fmt.Errorf("invalid lat: %q", latRaw)
	}
	long, err := strconv.ParseFloat(longRaw, 64)
	if err != nil {
		return req, fmt.Errorf("invalid long: %q", longRaw)
	}
	req.Coords = &geometry.Point{Lat: lat, Long: long}
	return req, nil
}
