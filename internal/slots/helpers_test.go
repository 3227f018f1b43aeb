package slots

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/internal/bookings"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/internal/slotcache"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// mutableClock is a settable time source shared by a fixture.
type mutableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mutableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mutableClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// flakyInvalidator fails the next n invalidations, then delegates.
type flakyInvalidator struct {
	mu    sync.Mutex
	cache *slotcache.MemoryCache
	fail  int
}

func (f *flakyInvalidator) FailNext(n int) {
	f.mu.Lock()
	f.fail = n
	f.mu.Unlock()
}

func (f *flakyInvalidator) Invalidate(ctx context.Context, orgID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return 0, errors.New("redis: connection reset")
	}
	return f.cache.Invalidate(ctx, orgID)
}

type fixture struct {
	rules    *rules.Service
	cache    *slotcache.MemoryCache
	inval    *flakyInvalidator
	bookings *bookings.MemorySource
	svc      *Service
	clock    *mutableClock
	org      *availability.Organizer
	et       *availability.EventType
}

// monday is 2024-01-08, the first day of every fixture's week.
var monday = availability.MustDate("2024-01-08")

func testLogger() *logging.Logger { return logging.New("error") }

// newFixture builds an organizer in UTC with a 30 minute event type and a
// Monday 09:00-17:00 rule. The clock starts at Monday 06:00 UTC.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &mutableClock{now: time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC)}
	cache := slotcache.NewMemoryCache()
	inval := &flakyInvalidator{cache: cache}
	rsvc := rules.NewService(rules.NewMemoryStore(), inval, testLogger(), rules.WithClock(clock.Now))

	org, err := rsvc.CreateOrganizer(ctx, availability.Organizer{Name: "Ada Lovelace", Timezone: "UTC"})
	require.NoError(t, err)
	et, err := rsvc.CreateEventType(ctx, org.ID, availability.EventType{Name: "Intro Call", DurationMinutes: 30, Active: true})
	require.NoError(t, err)
	_, err = rsvc.CreateRule(ctx, org.ID, availability.AvailabilityRule{
		DayOfWeek: time.Monday,
		StartTime: availability.MustClock("09:00"),
		EndTime:   availability.MustClock("17:00"),
		Active:    true,
	})
	require.NoError(t, err)

	source := bookings.NewMemorySource()
	opts = append([]Option{WithClock(clock.Now), WithBudget(0)}, opts...)
	svc := NewService(rsvc, source, cache, testLogger(), opts...)
	return &fixture{rules: rsvc, cache: cache, inval: inval, bookings: source, svc: svc, clock: clock, org: org, et: et}
}

func (f *fixture) query(day availability.Date) Query {
	return Query{Organizer: f.org.Slug, EventType: f.et.Slug, StartDate: day, EndDate: day, Timezone: "UTC"}
}

func startsOf(slots []availability.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("2006-01-02T15:04")
	}
	return out
}

func at(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func rulesBufferPatch(minutes *int) rules.BufferPatch {
	return rules.BufferPatch{BufferBefore: minutes, BufferAfter: minutes}
}
