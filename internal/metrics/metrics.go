package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "spreadwatch"

// Metrics groups the counters reported by the cache and the session orchestrator.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	cacheLookups *prometheus.CounterVec
	cacheWrites  *prometheus.CounterVec
	truncations  *prometheus.CounterVec
	evictions    *prometheus.CounterVec
	fetches      *prometheus.CounterVec
	staleDrops   prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by result (hit, miss, corrupt).",
		}, []string{"result"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Cache writes by result (ok, too_large, quota, error).",
		}, []string{"result"}),
		truncations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_truncations_total",
			Help:      "Sample set reductions applied before persisting (halve, emergency).",
		}, []string{"kind"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries evicted by reclaim mode (normal, forced).",
		}, []string{"mode"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Sample fetches by result (ok, error).",
		}, []string{"result"}),
		staleDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_dropped_total",
			Help:      "Fetch results discarded because the active key changed.",
		}),
	}
	reg.MustRegister(m.cacheLookups, m.cacheWrites, m.truncations, m.evictions, m.fetches, m.staleDrops)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) CacheLookup(result string) {
	if m != nil {
		m.cacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) CacheWrite(result string) {
	if m != nil {
		m.cacheWrites.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Truncation(kind string) {
	if m != nil {
		m.truncations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Evicted(mode string, n int) {
	if m != nil && n > 0 {
		m.evictions.WithLabelValues(mode).Add(float64(n))
	}
}

func (m *Metrics) Fetch(result string) {
	if m != nil {
		m.fetches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) StaleDropped() {
	if m != nil {
		m.staleDrops.Inc()
	}
}
