package shelfdb

import (
	"github.com/AlexandriaDAO/shelfdb/indexes"
	"github.com/prometheus/client_golang/prometheus"
)

var OpCount = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelfdb",
	Subsystem: "engine",
	Name:      "ops",
}, []string{"op", "result"})

var OpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "shelfdb",
	Subsystem: "engine",
	Name:      "op_duration_seconds",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
}, []string{"op"})

var FeedPages = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shelfdb",
	Subsystem: "query",
	Name:      "feed_pages",
}, []string{"feed"})

// Collectors returns everything worth registering: engine and index
// counters plus the substrate collector.
func (e *Engine) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		OpCount,
		OpDuration,
		FeedPages,
		indexes.IndexWriteCount,
		indexes.AssetBacklinkSkips,
		NewPebbleCollector(e.db),
	}
}
