package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mhtml"

// Metrics groups the collectors shared by the cache and the decoder.
type Metrics struct {
	Decodes        *prometheus.CounterVec
	DecodeDuration prometheus.Histogram
	CacheRequests  *prometheus.CounterVec
	CacheEntries   prometheus.Gauge
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Decodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decodes_total",
			Help:      "Full archive decodes by result.",
		}, []string{"result"}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent splitting, decoding and rewriting one archive.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Resource cache lookups by result.",
		}, []string{"result"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_entries",
			Help:      "Entries currently held by the resource cache.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Decodes, m.DecodeDuration, m.CacheRequests, m.CacheEntries)
	}
	return m
}

func (m *Metrics) CacheHit() {
	m.CacheRequests.WithLabelValues("hit").Inc()
}

func (m *Metrics) CacheMiss() {
	m.CacheRequests.WithLabelValues("miss").Inc()
}
