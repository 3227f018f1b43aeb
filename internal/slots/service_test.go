package slots

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/observability/metrics"
	"github.com/wolfman30/availability-engine/internal/slotcache"
)

func TestQuery_ColdThenCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cold, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.False(t, cold.CacheHit)
	assert.Equal(t, 16, cold.TotalSlots)
	assert.Equal(t, "2024-01-08T09:00", startsOf(cold.AvailableSlots)[0])
	assert.Equal(t, "2024-01-08T16:30", startsOf(cold.AvailableSlots)[15])

	warm, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.True(t, warm.CacheHit)
	assert.Equal(t, cold.AvailableSlots, warm.AvailableSlots)
	assert.Equal(t, cold.Generation, warm.Generation)
}

func TestQuery_MutationInvalidatesBeforeAck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	before, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	require.True(t, before.CacheHit)

	_, err = f.rules.CreateBlockedTime(ctx, f.org.ID, availability.BlockedTime{
		StartDatetime: at(t, "2024-01-08T10:00:00Z"),
		EndDatetime:   at(t, "2024-01-08T11:00:00Z"),
		Active:        true,
	})
	require.NoError(t, err)

	after, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.False(t, after.CacheHit)
	assert.Greater(t, after.Generation, before.Generation)
	assert.Equal(t, 14, after.TotalSlots)
	assert.NotContains(t, startsOf(after.AvailableSlots), "2024-01-08T10:00")
	assert.NotContains(t, startsOf(after.AvailableSlots), "2024-01-08T10:30")
}

func TestQuery_EveryMutationKindInvalidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	fifteen := 15

	mutations := map[string]func() error{
		"rule": func() error {
			_, err := f.rules.CreateRule(ctx, f.org.ID, availability.AvailabilityRule{
				DayOfWeek: time.Monday, StartTime: availability.MustClock("18:00"), EndTime: availability.MustClock("19:00"), Active: true,
			})
			return err
		},
		"override": func() error {
			_, err := f.rules.CreateOverride(ctx, f.org.ID, availability.DateOverrideRule{Date: monday.AddDays(7), Active: true})
			return err
		},
		"recurring block": func() error {
			_, err := f.rules.CreateRecurringBlock(ctx, f.org.ID, availability.RecurringBlockedTime{
				Name: "lunch", DayOfWeek: time.Monday, StartTime: availability.MustClock("12:00"), EndTime: availability.MustClock("13:00"), Active: true,
			})
			return err
		},
		"buffer": func() error {
			_, err := f.rules.PatchBuffer(ctx, f.org.ID, rulesBufferPatch(&fifteen))
			return err
		},
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Query(ctx, f.query(monday))
			require.NoError(t, err)
			warm, err := f.svc.Query(ctx, f.query(monday))
			require.NoError(t, err)
			require.True(t, warm.CacheHit)

			require.NoError(t, mutate())

			after, err := f.svc.Query(ctx, f.query(monday))
			require.NoError(t, err)
			assert.False(t, after.CacheHit, "a query after %s must not be served from the old generation", name)
		})
	}
}

func TestQuery_OverrideClosesDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.rules.CreateOverride(ctx, f.org.ID, availability.DateOverrideRule{Date: monday, IsAvailable: false, Active: true})
	require.NoError(t, err)

	resp, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.Zero(t, resp.TotalSlots)
	assert.NotNil(t, resp.AvailableSlots, "no availability is an empty list, not null")
}

func TestQuery_FailedInvalidationDoesNotServeOldRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	warm, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	require.Equal(t, 16, warm.TotalSlots)

	f.inval.FailNext(1)
	_, err = f.rules.CreateOverride(ctx, f.org.ID, availability.DateOverrideRule{Date: monday, IsAvailable: false, Active: true})
	require.ErrorContains(t, err, "connection reset")

	gen, err := f.cache.Generation(ctx, f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, warm.Generation, gen, "generation did not move")

	resp, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
	assert.Zero(t, resp.TotalSlots)

	again, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.True(t, again.CacheHit, "recomputed entry carries the new rule version")
	assert.Zero(t, again.TotalSlots)
}

func TestQuery_BuffersShiftFirstSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ten := 10
	_, err := f.rules.PatchBuffer(ctx, f.org.ID, rulesBufferPatch(&ten))
	require.NoError(t, err)

	resp, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	starts := startsOf(resp.AvailableSlots)
	require.NotEmpty(t, starts)
	assert.Equal(t, "2024-01-08T09:10", starts[0])
	assert.Equal(t, "2024-01-08T16:10", starts[len(starts)-1])
}

func TestQuery_BookingsBlockSlots(t *testing.T) {
	f := newFixture(t)
	f.bookings.Add(availability.Booking{
		ID: "b1", OrganizerID: f.org.ID, EventTypeID: f.et.ID,
		Start: at(t, "2024-01-08T13:00:00Z"), End: at(t, "2024-01-08T13:30:00Z"),
	})

	resp, err := f.svc.Query(context.Background(), f.query(monday))
	require.NoError(t, err)
	assert.Equal(t, 15, resp.TotalSlots)
	assert.NotContains(t, startsOf(resp.AvailableSlots), "2024-01-08T13:00")
}

func TestQuery_BookingAfterCacheFillIsApplied(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)

	f.bookings.Add(availability.Booking{
		ID: "late", OrganizerID: f.org.ID, EventTypeID: f.et.ID,
		Start: at(t, "2024-01-08T10:00:00Z"), End: at(t, "2024-01-08T10:30:00Z"),
	})

	hit, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.True(t, hit.CacheHit)
	assert.Equal(t, 15, hit.TotalSlots)
	assert.NotContains(t, startsOf(hit.AvailableSlots), "2024-01-08T10:00")

	cold := NewService(f.rules, f.bookings, slotcache.NewMemoryCache(), testLogger(), WithClock(f.clock.Now), WithBudget(0))
	fresh, err := cold.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.Equal(t, fresh.AvailableSlots, hit.AvailableSlots)

	require.True(t, f.bookings.Cancel(f.org.ID, "late"))
	freed, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.True(t, freed.CacheHit)
	assert.Equal(t, 16, freed.TotalSlots)
}

func TestQuery_GroupCapacityAndAttendeeCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	group, err := f.rules.CreateEventType(ctx, f.org.ID, availability.EventType{Name: "Workshop", DurationMinutes: 60, Capacity: 3, Active: true})
	require.NoError(t, err)
	for _, id := range []string{"g1", "g2"} {
		f.bookings.Add(availability.Booking{
			ID: id, OrganizerID: f.org.ID, EventTypeID: group.ID, Attendees: 1,
			Start: at(t, "2024-01-08T09:00:00Z"), End: at(t, "2024-01-08T10:00:00Z"),
		})
	}

	q := Query{Organizer: f.org.Slug, EventType: group.Slug, StartDate: monday, EndDate: monday, Timezone: "UTC"}
	resp, err := f.svc.Query(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AvailableSlots)
	assert.Equal(t, "2024-01-08T09:00", startsOf(resp.AvailableSlots)[0])
	assert.Equal(t, 1, resp.AvailableSlots[0].AvailableSpots)

	q.AttendeeCount = 2
	resp, err = f.svc.Query(ctx, q)
	require.NoError(t, err)
	assert.NotContains(t, startsOf(resp.AvailableSlots), "2024-01-08T09:00")
	assert.True(t, resp.CacheHit, "attendee filtering runs on cached slots")
}

func TestQuery_MinNoticeAppliedAfterCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notice := *f.et
	notice.MinNoticeMinutes = 60
	_, err := f.rules.UpdateEventType(ctx, f.org.ID, f.et.ID, notice)
	require.NoError(t, err)

	full, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	require.Equal(t, 16, full.TotalSlots)

	f.clock.Set(time.Date(2024, 1, 8, 9, 10, 0, 0, time.UTC))
	later, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.True(t, later.CacheHit)
	assert.Equal(t, "2024-01-08T10:30", startsOf(later.AvailableSlots)[0])
}

func TestQuery_PresentsInRequestTimezone(t *testing.T) {
	f := newFixture(t)
	q := f.query(monday)
	q.Timezone = "America/New_York"

	resp, err := f.svc.Query(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, 16, resp.TotalSlots)
	first := resp.AvailableSlots[0].Start
	assert.Equal(t, "America/New_York", first.Location().String())
	assert.Equal(t, 4, first.Hour())
	assert.True(t, first.Equal(at(t, "2024-01-08T09:00:00Z")))
}

func TestQuery_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("horizon", func(t *testing.T) {
		q := f.query(monday)
		q.EndDate = availability.MustDate("2024-04-01")
		_, err := f.svc.Query(ctx, q)
		require.ErrorIs(t, err, availability.ErrOutOfRange)
		var ae *availability.Error
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, "2024-03-08", ae.Boundary)
		assert.Equal(t, f.org.Slug, ae.Organizer)
		assert.Equal(t, f.et.Slug, ae.EventType)
	})
	t.Run("timezone", func(t *testing.T) {
		q := f.query(monday)
		q.Timezone = "Mars/Olympus_Mons"
		_, err := f.svc.Query(ctx, q)
		assert.ErrorIs(t, err, availability.ErrInvalidTimezone)
	})
	t.Run("unknown event type", func(t *testing.T) {
		q := f.query(monday)
		q.EventType = "nope"
		_, err := f.svc.Query(ctx, q)
		assert.ErrorIs(t, err, availability.ErrNotFound)
	})
	t.Run("unknown organizer", func(t *testing.T) {
		q := f.query(monday)
		q.Organizer = "grace-hopper"
		_, err := f.svc.Query(ctx, q)
		assert.ErrorIs(t, err, availability.ErrNotFound)
	})
	t.Run("end before start", func(t *testing.T) {
		q := f.query(monday)
		q.EndDate = monday.AddDays(-1)
		_, err := f.svc.Query(ctx, q)
		assert.ErrorIs(t, err, availability.ErrInvalidRequest)
	})
}

func TestQuery_DegradesWhenBudgetExhausted(t *testing.T) {
	f := newFixture(t, WithBudget(time.Nanosecond))
	q := f.query(monday)
	q.EndDate = monday.AddDays(13)

	resp, err := f.svc.Query(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 16, resp.TotalSlots, "only the first day fits the budget")
	assert.GreaterOrEqual(t, resp.ComputationTimeMS, int64(0))
}

func TestQuery_MultiInviteeFairness(t *testing.T) {
	f := newFixture(t)
	q := f.query(monday)
	q.Invitees = []InviteeSpec{
		{Timezone: "UTC", ReasonableStart: 9, ReasonableEnd: 17},
		{Timezone: "UTC", ReasonableStart: 14, ReasonableEnd: 22},
	}

	resp, err := f.svc.Query(context.Background(), q)
	require.NoError(t, err)
	assert.True(t, resp.MultiInviteeMode)
	assert.Equal(t, []string{"UTC", "UTC"}, resp.InviteeTimezones)

	scores := map[string]float64{}
	for _, s := range resp.AvailableSlots {
		require.NotNil(t, s.FairnessScore)
		scores[s.Start.Format("15:04")] = *s.FairnessScore
	}
	assert.Greater(t, scores["15:00"], scores["09:00"])
	assert.Equal(t, 1.0, *resp.AvailableSlots[0].FairnessScore)
}

func TestQuery_MultiInviteeIntersectsOrganizerInvitees(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.rules.CreateOrganizer(ctx, availability.Organizer{Name: "Grace Hopper", Timezone: "UTC"})
	require.NoError(t, err)
	_, err = f.rules.CreateRule(ctx, other.ID, availability.AvailabilityRule{
		DayOfWeek: time.Monday, StartTime: availability.MustClock("12:00"), EndTime: availability.MustClock("14:00"), Active: true,
	})
	require.NoError(t, err)

	q := f.query(monday)
	q.Invitees = []InviteeSpec{{Timezone: "UTC", Organizer: other.Slug}}
	resp, err := f.svc.Query(ctx, q)
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"2024-01-08T12:00", "2024-01-08T12:30", "2024-01-08T13:00", "2024-01-08T13:30"},
		startsOf(resp.AvailableSlots))

	q.Invitees = []InviteeSpec{{Timezone: "UTC", Organizer: "nobody"}}
	_, err = f.svc.Query(ctx, q)
	assert.ErrorIs(t, err, availability.ErrNotFound)
}

// countingRules records organizer lookups.
type countingRules struct {
	RuleSource
	mu      sync.Mutex
	lookups []string
}

func (c *countingRules) ResolveOrganizer(ctx context.Context, key string) (*availability.Organizer, error) {
	c.mu.Lock()
	c.lookups = append(c.lookups, key)
	c.mu.Unlock()
	return c.RuleSource.ResolveOrganizer(ctx, key)
}

func TestQuery_InvalidInviteeRejectedBeforeLookups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other, err := f.rules.CreateOrganizer(ctx, availability.Organizer{Name: "Grace Hopper", Timezone: "UTC"})
	require.NoError(t, err)

	counting := &countingRules{RuleSource: f.rules}
	svc := NewService(counting, f.bookings, f.cache, testLogger(), WithClock(f.clock.Now), WithBudget(0))

	q := f.query(monday)
	q.Invitees = []InviteeSpec{
		{Timezone: "UTC", Organizer: other.Slug},
		{Timezone: "Mars/Olympus_Mons"},
	}
	_, err = svc.Query(ctx, q)
	assert.ErrorIs(t, err, availability.ErrInvalidTimezone)
	assert.Equal(t, []string{f.org.Slug}, counting.lookups, "no invitee organizer is resolved")
}

func TestQuery_ConcurrentColdQueriesAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := f.query(monday)
	q.EndDate = monday.AddDays(6)

	var wg sync.WaitGroup
	results := make([]*Response, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := f.svc.Query(ctx, q)
			if assert.NoError(t, err) {
				results[i] = resp
			}
		}()
	}
	wg.Wait()
	for _, r := range results[1:] {
		require.NotNil(t, r)
		assert.Equal(t, results[0].AvailableSlots, r.AvailableSlots)
	}
	assert.Equal(t, 7, f.cache.Len(f.org.ID))
}

func TestPrecompute_HitEqualsColdComputation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	written, err := f.svc.Precompute(ctx, f.org.ID, 14)
	require.NoError(t, err)
	assert.Equal(t, 14, written)

	q := f.query(monday)
	q.EndDate = monday.AddDays(13)
	warm, err := f.svc.Query(ctx, q)
	require.NoError(t, err)
	assert.True(t, warm.CacheHit)

	cold := NewService(f.rules, f.bookings, slotcache.NewMemoryCache(), testLogger(), WithClock(f.clock.Now), WithBudget(0))
	fresh, err := cold.Query(ctx, q)
	require.NoError(t, err)
	assert.False(t, fresh.CacheHit)
	assert.Equal(t, fresh.AvailableSlots, warm.AvailableSlots)
}

func TestPrecompute_ExtraTimezonesAndHorizon(t *testing.T) {
	f := newFixture(t, WithPrecomputeTimezones("Europe/Berlin", "UTC", "Not/AZone"))
	ctx := context.Background()
	short := *f.et
	short.MaxHorizonDays = 2
	_, err := f.rules.UpdateEventType(ctx, f.org.ID, f.et.ID, short)
	require.NoError(t, err)

	written, err := f.svc.Precompute(ctx, f.org.ID, 30)
	require.NoError(t, err)
	assert.Equal(t, 6, written, "3 days in UTC and Berlin, unknown zone skipped")
}

func TestPrecompute_StaleGenerationIsNotServed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Precompute(ctx, f.org.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.ClearCache(ctx, f.org.ID)
	require.NoError(t, err)

	resp, err := f.svc.Query(ctx, f.query(monday))
	require.NoError(t, err)
	assert.False(t, resp.CacheHit)
}

func TestQuery_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetrics(metrics.NewSlotMetrics(reg)))
	_, err := f.svc.Query(context.Background(), f.query(monday))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "availability_slots_queries_total" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	assert.True(t, found)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Stats(context.Background(), f.org.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Rules)
	assert.Equal(t, 1, st.ActiveEventTypes)
	assert.Equal(t, 16, st.UpcomingSlots[f.et.Slug], "one Monday in the next seven days")
	assert.Equal(t, 7, st.TotalDays)
}
