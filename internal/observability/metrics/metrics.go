package metrics

import "github.com/prometheus/client_golang/prometheus"

// SlotMetrics exposes counters/histograms for slot queries, the cache and
// precompute jobs.
type SlotMetrics struct {
	cacheLookups   *prometheus.CounterVec
	queries        *prometheus.CounterVec
	computeLatency *prometheus.HistogramVec
	invalidations  prometheus.Counter
	precomputeJobs *prometheus.CounterVec
	precomputed    prometheus.Counter
}

func NewSlotMetrics(reg prometheus.Registerer) *SlotMetrics {
	m := &SlotMetrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "availability",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "availability",
			Subsystem: "slots",
			Name:      "queries_total",
			Help:      "Slot queries by mode and outcome",
		}, []string{"mode", "outcome"}),
		computeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "availability",
			Subsystem: "slots",
			Name:      "computation_seconds",
			Help:      "Time spent answering a slot query",
			Buckets:   []float64{.005, .01, .025, .05, .1, .2, .3, .5, 1, 2},
		}, []string{"mode"}),
		invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "availability",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Organizer generation bumps",
		}),
		precomputeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "availability",
			Subsystem: "precompute",
			Name:      "jobs_total",
			Help:      "Precompute requests and job outcomes",
		}, []string{"outcome"}),
		precomputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "availability",
			Subsystem: "precompute",
			Name:      "entries_total",
			Help:      "Cache entries written by precompute jobs",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.cacheLookups, m.queries, m.computeLatency, m.invalidations, m.precomputeJobs, m.precomputed)
	return m
}

func (m *SlotMetrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveQuery records one answered query. mode is "single" or "multi";
// outcome is "ok", "degraded" or "error".
func (m *SlotMetrics) ObserveQuery(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(mode, outcome).Inc()
	m.computeLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *SlotMetrics) ObserveInvalidation() {
	if m == nil {
		return
	}
	m.invalidations.Inc()
}

func (m *SlotMetrics) ObservePrecompute(outcome string, entries int) {
	if m == nil {
		return
	}
	m.precomputeJobs.WithLabelValues(outcome).Inc()
	if entries > 0 {
		m.precomputed.Add(float64(entries))
	}
}
