// Package metrics registers the Prometheus counters and histograms the
// HTTP layer reports through and the gauges cmd/server's poller copies
// tile cache stats into, and exposes them over
// promhttp.Handler() the way qrank-webserver's main.go registers and
// serves its own gauge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vsipyramid/internal/tilecache"
)

// Metrics holds every collector this server registers. A single instance
// is built at startup and threaded through the HTTP handlers and the
// periodic cache-stats poller.
type Metrics struct {
	TileRequests      *prometheus.CounterVec
	TileDecodeSeconds *prometheus.HistogramVec
	OpenSlides        prometheus.Gauge
	CacheHitsTotal    prometheus.Gauge
	CacheMissesTotal  prometheus.Gauge
	CacheEntries      prometheus.Gauge
}

// New constructs and registers every collector against reg. Callers
// typically pass prometheus.DefaultRegisterer so promhttp.Handler() (which
// reads from the default registry) serves them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TileRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vsipyramid",
			Name:      "tile_requests_total",
			Help:      "Tile requests served, partitioned by backend format and result.",
		}, []string{"format", "result"}),
		TileDecodeSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vsipyramid",
			Name:      "tile_decode_seconds",
			Help:      "Time spent rendering a requested tile (cache hits included), by backend format.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"format"}),
		OpenSlides: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsipyramid",
			Name:      "open_slides",
			Help:      "Number of slide handles currently open.",
		}),
		CacheHitsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsipyramid",
			Name:      "tile_cache_hits_total",
			Help:      "Cumulative tile cache hits.",
		}),
		CacheMissesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsipyramid",
			Name:      "tile_cache_misses_total",
			Help:      "Cumulative tile cache misses.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "vsipyramid",
			Name:      "tile_cache_entries",
			Help:      "Decoded tiles currently held in the cache.",
		}),
	}

	reg.MustRegister(
		m.TileRequests,
		m.TileDecodeSeconds,
		m.OpenSlides,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEntries,
	)
	return m
}

// ObserveTileDecode records the time taken to render one requested tile,
// whether its underlying slide tiles came from the cache or were decoded.
func (m *Metrics) ObserveTileDecode(format string, d time.Duration) {
	m.TileDecodeSeconds.WithLabelValues(format).Observe(d.Seconds())
}

// ObserveTileRequest increments the request counter for one tile fetch.
func (m *Metrics) ObserveTileRequest(format, result string) {
	m.TileRequests.WithLabelValues(format, result).Inc()
}

// PollCacheStats copies a tilecache.Stats snapshot into the cache gauges.
// Called periodically by cmd/server's stats poller since golang-lru has no native
// Prometheus integration in this pack.
func (m *Metrics) PollCacheStats(stats tilecache.Stats) {
	m.CacheHitsTotal.Set(float64(stats.Hits))
	m.CacheMissesTotal.Set(float64(stats.Misses))
	m.CacheEntries.Set(float64(stats.Len))
}

// Promhttp is the handler /metrics should mount.
var Promhttp = promhttp.Handler
