package api

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/realestate/server/internal/config"
	"github.com/realestate/server/internal/logger"
	"github.com/realestate/server/internal/metrics"
)

// NewRouter builds the full HTTP handler: routes under cfg.Server.APIBase,
// /metrics, and the access log, CORS and global rate limit middleware.
func NewRouter(cfg *config.Config, service SubdivisionService, hub *EventHub, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	SetupHealthRoutes(mux, cfg.Server.APIBase, log)
	SetupSubdivisionRoutes(mux, cfg, NewSubdivisionHandlers(service, log), hub, log)
	mux.Handle("/metrics", metrics.Handler())

	var handler http.Handler = mux
	handler = RateLimitMiddleware(cfg.RateLimit.GlobalLimit, cfg.RateLimit.GlobalWindow, log)(handler)
	handler = CORSMiddleware(cfg.Server.AllowedOrigins)(handler)
	handler = logger.AccessMiddleware(log)(handler)
	return handler
}

// SetupHealthRoutes registers GET {base}/health-check.
func SetupHealthRoutes(mux *http.ServeMux, base string, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	mux.HandleFunc(base+"/health-check", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, log, http.MethodGet)
			return
		}
		writeJSON(w, log, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// SetupSubdivisionRoutes registers subdivision and lot routes. Writes get a
// tighter per-client limit on top of the global one.
func SetupSubdivisionRoutes(mux *http.ServeMux, cfg *config.Config, handlers *SubdivisionHandlers, hub *EventHub, log *zap.Logger) {
	prefix := cfg.Server.APIBase + "/subdivisions"
	writeLimit := WriteRateLimitMiddleware(cfg.RateLimit.WriteLimit, cfg.RateLimit.WriteWindow, log)

	subdivisionHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		segments, ok := pathSegments(strings.TrimPrefix(r.URL.EscapedPath(), prefix))
		if !ok {
			respondWithError(w, log, http.StatusBadRequest, "malformed path")
			return
		}

		switch len(segments) {
		case 0:
			switch r.Method {
			case http.MethodPost:
				handlers.CreateSubdivision(w, r)
			case http.MethodGet:
				handlers.ListSubdivisions(w, r)
			default:
				methodNotAllowed(w, log, http.MethodGet, http.MethodPost)
			}
		case 1:
			switch {
			case segments[0] == "search" && r.Method == http.MethodGet:
				handlers.SearchSubdivisions(w, r)
			case segments[0] == "events" && r.Method == http.MethodGet && hub != nil:
				hub.ServeWS(w, r)
			case r.Method == http.MethodGet:
				handlers.GetSubdivision(w, r, segments[0])
			case r.Method == http.MethodPatch:
				handlers.RenameSubdivision(w, r, segments[0])
			case r.Method == http.MethodDelete:
				handlers.DeleteSubdivision(w, r, segments[0])
			default:
				methodNotAllowed(w, log, http.MethodGet, http.MethodPatch, http.MethodDelete)
			}
		case 2:
			switch {
			case segments[1] == "geojson" && r.Method == http.MethodGet:
				handlers.GetSubdivisionGeoJSON(w, r, segments[0])
			case segments[1] == "lots" && r.Method == http.MethodPost:
				handlers.CreateLot(w, r, segments[0])
			default:
				respondWithError(w, log, http.StatusNotFound, "route not found")
			}
		case 3:
			if segments[1] == "lots" && segments[2] == "batch-creation" && r.Method == http.MethodPost {
				handlers.CreateLots(w, r, segments[0])
				return
			}
			respondWithError(w, log, http.StatusNotFound, "route not found")
		default:
			respondWithError(w, log, http.StatusNotFound, "route not found")
		}
	})

	limited := writeLimit(subdivisionHandler)
	mux.Handle(prefix, limited)
	mux.Handle(prefix+"/", limited)
}

// pathSegments splits an escaped path remainder into unescaped segments.
func pathSegments(rest string) ([]string, bool) {
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return nil, true
	}
	parts := strings.Split(rest, "/")
	for i, part := range parts {
		unescaped, err := url.PathUnescape(part)
		if err != nil || unescaped == "" {
			return nil, false
		}
		parts[i] = unescaped
	}
	return parts, true
}

func methodNotAllowed(w http.ResponseWriter, log *zap.Logger, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	respondWithError(w, log, http.StatusMethodNotAllowed, "method not allowed")
}
