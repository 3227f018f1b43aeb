package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// find returns the metric of family name whose labels include want.
func find(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
	next:
		for _, m := range f.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s %v not found", name, want)
	return nil
}

func TestSlotMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSlotMetrics(reg)

	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveQuery("single", "ok", 0.02)
	m.ObserveQuery("single", "degraded", 0.35)
	m.ObserveInvalidation()
	m.ObservePrecompute("completed", 42)
	m.ObservePrecompute("already_running", 0)

	assert.Equal(t, 2.0, find(t, reg, "availability_cache_lookups_total", map[string]string{"result": "hit"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "availability_cache_lookups_total", map[string]string{"result": "miss"}).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "availability_cache_invalidations_total", nil).GetCounter().GetValue())
	assert.Equal(t, 42.0, find(t, reg, "availability_precompute_entries_total", nil).GetCounter().GetValue())
	assert.Equal(t, 1.0, find(t, reg, "availability_precompute_jobs_total", map[string]string{"outcome": "already_running"}).GetCounter().GetValue())

	hist := find(t, reg, "availability_slots_computation_seconds", map[string]string{"mode": "single"}).GetHistogram()
	assert.EqualValues(t, 2, hist.GetSampleCount())
}

func TestSlotMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewSlotMetrics(reg)
	assert.Panics(t, func() { NewSlotMetrics(reg) }, "double registration must fail loudly")
}

func TestSlotMetricsNilSafe(t *testing.T) {
	var m *SlotMetrics
	m.ObserveCacheLookup(true)
	m.ObserveQuery("multi", "error", 0.1)
	m.ObserveInvalidation()
	m.ObservePrecompute("failed", 0)
}
