// Package metrics exposes the Prometheus collectors for the tile server:
// render volume and latency, ingestion outcomes, and cache disk usage.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles every metric the server records. Construct one per
// process with the registry the /metrics endpoint serves.
type Collector struct {
	tilesRendered     *prometheus.CounterVec
	tileRenderSeconds *prometheus.HistogramVec
	ingestions        *prometheus.CounterVec
	ingestionSeconds  prometheus.Histogram
}

// NewCollector registers the tile server collectors. cacheUsage reports the
// current cache footprint in bytes and is sampled at scrape time.
func NewCollector(reg prometheus.Registerer, cacheUsage func() int64) *Collector {
	c := &Collector{
		tilesRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tile_server_tiles_rendered_total",
			Help: "Tiles rendered, by tile kind, output format and outcome.",
		}, []string{"kind", "format", "outcome"}),
		tileRenderSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tile_server_tile_render_seconds",
			Help:    "Tile render latency by tile kind.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		ingestions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tile_server_ingestions_total",
			Help: "Viewpoint ingestions, by outcome and failure cause.",
		}, []string{"outcome", "cause"}),
		ingestionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tile_server_ingestion_seconds",
			Help:    "Time from claiming a viewpoint to READY or FAILED.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	reg.MustRegister(c.tilesRendered, c.tileRenderSeconds, c.ingestions, c.ingestionSeconds)

	if cacheUsage != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tile_server_cache_bytes",
			Help: "Bytes currently held in the local viewpoint cache.",
		}, func() float64 { return float64(cacheUsage()) }))
	}
	return c
}

// ObserveTile records one tile render.
func (c *Collector) ObserveTile(kind, format, outcome string, elapsed time.Duration) {
	c.tilesRendered.WithLabelValues(kind, format, outcome).Inc()
	c.tileRenderSeconds.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveIngestion records one completed ingestion attempt. cause is empty
// for successful ingestions.
func (c *Collector) ObserveIngestion(outcome, cause string, elapsed time.Duration) {
	if cause == "" {
		cause = "none"
	}
	c.ingestions.WithLabelValues(outcome, cause).Inc()
	c.ingestionSeconds.Observe(elapsed.Seconds())
}
