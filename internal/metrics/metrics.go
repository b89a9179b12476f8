// Package metrics exposes the prometheus collectors of the real-estate
// service and the handler that serves them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LocationsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realestate_locations_created_total",
		Help: "Total number of location rows created",
	})
	LocationCacheHitsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realestate_location_cache_hits_total",
		Help: "Total location cache hits by tier",
	}, []string{"tier"})
	LocationCacheMissesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realestate_location_cache_misses_total",
		Help: "Total location cache misses by tier",
	}, []string{"tier"})
	SubdivisionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realestate_subdivisions_created_total",
		Help: "Total number of subdivisions created",
	})
	LotsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realestate_lots_created_total",
		Help: "Total number of lots created",
	})
	DroppedPointsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realestate_dropped_ring_points_total",
		Help: "Ring points dropped by lenient reconstruction",
	})
	SearchDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "realestate_search_duration_ms",
		Help:    "Subdivision search duration in milliseconds by kind",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	}, []string{"kind"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "realestate_http_requests_total",
		Help: "Total HTTP requests by method and status",
	}, []string{"method", "status"})
)

func init() {
	prometheus.MustRegister(LocationsCreatedTotal)
	prometheus.MustRegister(LocationCacheHitsTotal)
	prometheus.MustRegister(LocationCacheMissesTotal)
	prometheus.MustRegister(SubdivisionsCreatedTotal)
	prometheus.MustRegister(LotsCreatedTotal)
	prometheus.MustRegister(DroppedPointsTotal)
	prometheus.MustRegister(SearchDurationMs)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
