package slotcache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/observability/metrics"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestInstrumentRecordsLookupsAndInvalidations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := Instrument(NewMemoryCache(), metrics.NewSlotMetrics(reg))
	ctx := context.Background()
	key := Key{OrganizerID: "org-1", EventTypeID: "et", Date: availability.MustDate("2024-01-08"), Timezone: "UTC"}

	_, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, Entry{Key: key}, time.Minute))
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.Invalidate(ctx, "org-1")
	require.NoError(t, err)

	assert.Equal(t, 1.0, counterValue(t, reg, "availability_cache_lookups_total", "result", "hit"))
	assert.Equal(t, 1.0, counterValue(t, reg, "availability_cache_lookups_total", "result", "miss"))
	assert.Equal(t, 1.0, counterValue(t, reg, "availability_cache_invalidations_total", "", ""))
}

func TestInstrumentNilMetricsReturnsCache(t *testing.T) {
	mc := NewMemoryCache()
	assert.Same(t, mc, Instrument(mc, nil))
}
