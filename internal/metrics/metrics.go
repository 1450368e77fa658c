package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goeschip_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goeschip_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	chipsExtractedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goeschip_chips_extracted_total",
			Help: "Chips extracted, by whether the window was truncated at the scene edge.",
		},
		[]string{"truncated"},
	)

	sceneFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goeschip_scene_failures_total",
			Help: "Scenes skipped, by failure reason.",
		},
		[]string{"reason"},
	)

	authFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goeschip_auth_failures_total",
			Help: "Requests rejected by bearer-token auth, by reason.",
		},
		[]string{"reason"},
	)

	extractDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goeschip_extract_duration_seconds",
			Help:    "Time to extract, rescale and write one chip.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	batchScenes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "goeschip_batch_scenes",
			Help: "Scenes in the most recent batch, by outcome.",
		},
		[]string{"outcome"},
	)

	batchDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goeschip_batch_duration_seconds",
		Help: "Wall time of the most recent batch.",
	})

	sceneCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goeschip_scene_cache_hits_total",
		Help: "Scene cache lookups served from memory.",
	})

	sceneCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "goeschip_scene_cache_misses_total",
		Help: "Scene cache lookups that loaded the bundle.",
	})

	sceneCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goeschip_scene_cache_entries",
		Help: "Scenes currently held in the cache.",
	})

	sceneCacheSizeBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "goeschip_scene_cache_size_bytes",
		Help: "Estimated memory held by cached scene samples.",
	})
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(chipsExtractedTotal)
	prometheus.MustRegister(sceneFailuresTotal)
	prometheus.MustRegister(authFailuresTotal)
	prometheus.MustRegister(extractDurationSeconds)
	prometheus.MustRegister(batchScenes)
	prometheus.MustRegister(batchDurationSeconds)
	prometheus.MustRegister(sceneCacheHitsTotal)
	prometheus.MustRegister(sceneCacheMissesTotal)
	prometheus.MustRegister(sceneCacheEntries)
	prometheus.MustRegister(sceneCacheSizeBytes)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordChip counts one extracted chip and how long it took.
func RecordChip(truncated bool, d time.Duration) {
	chipsExtractedTotal.WithLabelValues(strconv.FormatBool(truncated)).Inc()
	extractDurationSeconds.Observe(d.Seconds())
}

// RecordSceneFailure counts a skipped scene. reason should come from a
// small fixed set (load, not_visible, empty, write, ...).
func RecordSceneFailure(reason string) {
	sceneFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordAuthFailure counts a rejected request (missing, malformed, invalid).
func RecordAuthFailure(reason string) {
	authFailuresTotal.WithLabelValues(reason).Inc()
}

// SetBatchStats publishes the outcome of the latest batch run.
func SetBatchStats(success, failed int, d time.Duration) {
	batchScenes.WithLabelValues("success").Set(float64(success))
	batchScenes.WithLabelValues("failed").Set(float64(failed))
	batchDurationSeconds.Set(d.Seconds())
}

// IncSceneCacheHits increments the scene cache hit counter.
func IncSceneCacheHits() { sceneCacheHitsTotal.Inc() }

// IncSceneCacheMisses increments the scene cache miss counter.
func IncSceneCacheMisses() { sceneCacheMissesTotal.Inc() }

// SetSceneCacheEntries sets the number of cached scenes.
func SetSceneCacheEntries(n int) { sceneCacheEntries.Set(float64(n)) }

// SetSceneCacheSizeBytes sets the estimated cache footprint.
func SetSceneCacheSizeBytes(n int64) { sceneCacheSizeBytes.Set(float64(n)) }

var knownRoutes = map[string]bool{
	"/healthz":                      true,
	"/readyz":                       true,
	"/metrics":                      true,
	"/api/v1/satellites":            true,
	"/api/v1/fixedgrid/scan-angles": true,
	"/api/v1/fixedgrid/geodetic":    true,
	"/api/v1/scenes":                true,
	"/api/v1/cache/stats":           true,
}

// normalizeRoute maps a request path to a bounded label set so that scene
// names and scanner noise do not create new series.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/chips/"); ok && rest != "" {
		return "/api/v1/chips/{scene}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
