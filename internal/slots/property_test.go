package slots

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/slotcache"
)

// Random blocked times and bookings: no returned slot overlaps either, and a
// cached answer always equals a cold one.
func TestProperty_SlotsAvoidBlocksAndCacheIsTransparent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 25; iter++ {
		f := newFixture(t)
		ctx := context.Background()

		var blocked []availability.Interval
		for i := 0; i < 1+rng.Intn(4); i++ {
			start := time.Date(2024, 1, 8, 8+rng.Intn(9), rng.Intn(4)*15, 0, 0, time.UTC)
			end := start.Add(time.Duration(15+rng.Intn(8)*15) * time.Minute)
			_, err := f.rules.CreateBlockedTime(ctx, f.org.ID, availability.BlockedTime{StartDatetime: start, EndDatetime: end, Active: true})
			require.NoError(t, err)
			blocked = append(blocked, availability.Interval{Start: start, End: end})
		}
		for i := 0; i < rng.Intn(3); i++ {
			start := time.Date(2024, 1, 8, 9+rng.Intn(7), rng.Intn(2)*30, 0, 0, time.UTC)
			end := start.Add(30 * time.Minute)
			f.bookings.Add(availability.Booking{ID: fmt.Sprintf("b%d", i), OrganizerID: f.org.ID, EventTypeID: f.et.ID, Start: start, End: end})
			blocked = append(blocked, availability.Interval{Start: start, End: end})
		}

		first, err := f.svc.Query(ctx, f.query(monday))
		require.NoError(t, err)
		second, err := f.svc.Query(ctx, f.query(monday))
		require.NoError(t, err)
		require.True(t, second.CacheHit)
		require.Equal(t, first.AvailableSlots, second.AvailableSlots)

		cold := NewService(f.rules, f.bookings, slotcache.NewMemoryCache(), testLogger(), WithClock(f.clock.Now), WithBudget(0))
		fresh, err := cold.Query(ctx, f.query(monday))
		require.NoError(t, err)
		require.Equal(t, fresh.AvailableSlots, second.AvailableSlots)

		open := availability.Interval{Start: time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 8, 17, 0, 0, 0, time.UTC)}
		for _, s := range second.AvailableSlots {
			iv := availability.Interval{Start: s.Start, End: s.End}.UTC()
			require.True(t, open.Covers(iv), "slot %s outside open hours", s.Start)
			for _, b := range blocked {
				require.False(t, iv.Overlaps(b), "iteration %d: slot %s overlaps %s-%s", iter, s.Start, b.Start, b.End)
			}
		}
	}
}
