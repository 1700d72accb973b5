package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IsolineRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darkstore_isoline_requests_total",
		Help: "Total isoline REST requests by travel mode",
	}, []string{"mode"})
	IsolineSuccessTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darkstore_isoline_success_total",
		Help: "Total isoline REST successes by travel mode",
	}, []string{"mode"})
	IsolineFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "darkstore_isoline_fail_total",
		Help: "Total isoline REST failures by travel mode",
	}, []string{"mode"})
	IsolineDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "darkstore_isoline_duration_ms",
		Help:    "Isoline REST call duration in milliseconds",
		Buckets: []float64{50, 100, 200, 500, 1000, 2000, 5000, 10000},
	})
	FallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_isochrone_fallback_total",
		Help: "Total isochrones replaced by an approximate circle",
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_isochrone_cache_hits_total",
		Help: "Total isochrone cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_isochrone_cache_misses_total",
		Help: "Total isochrone cache misses",
	})
	CachePersistFailTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_isochrone_cache_persist_fail_total",
		Help: "Total failed writes of the cache snapshot to durable storage",
	})
	BatchItemsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_batch_items_total",
		Help: "Total stores processed by batch isochrone generation",
	})
	GeocodeRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "darkstore_geocode_requests_total",
		Help: "Total geocode REST requests",
	})
)

func init() {
	prometheus.MustRegister(IsolineRequestsTotal)
	prometheus.MustRegister(IsolineSuccessTotal)
	prometheus.MustRegister(IsolineFailTotal)
	prometheus.MustRegister(IsolineDurationMs)
	prometheus.MustRegister(FallbackTotal)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(CacheMissesTotal)
	prometheus.MustRegister(CachePersistFailTotal)
	prometheus.MustRegister(BatchItemsTotal)
	prometheus.MustRegister(GeocodeRequestsTotal)
}

// 文档注释：返回 Prometheus 指标处理器，在主入口挂载到 {API_BASE}/metrics
func Handler() http.Handler { return promhttp.Handler() }
