package slotcache

import (
	"context"

	"github.com/wolfman30/availability-engine/internal/observability/metrics"
)

// Instrumented records lookups and invalidations of the wrapped cache.
type Instrumented struct {
	Cache
	metrics *metrics.SlotMetrics
}

// Instrument wraps c. A nil m leaves c uninstrumented.
func Instrument(c Cache, m *metrics.SlotMetrics) Cache {
	if m == nil {
		return c
	}
	return &Instrumented{Cache: c, metrics: m}
}

func (i *Instrumented) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	e, ok, err := i.Cache.Get(ctx, key)
	if err == nil {
		i.metrics.ObserveCacheLookup(ok)
	}
	return e, ok, err
}

func (i *Instrumented) Invalidate(ctx context.Context, orgID string) (int64, error) {
	gen, err := i.Cache.Invalidate(ctx, orgID)
	if err == nil {
		i.metrics.ObserveInvalidation()
	}
	return gen, err
}
