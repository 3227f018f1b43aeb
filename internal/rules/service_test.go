package rules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
)

func TestService_MutationInvalidatesBeforeReturning(t *testing.T) {
	svc, _, inv, org := newTestService(t)
	ctx := context.Background()

	rule, err := svc.CreateRule(ctx, org.ID, availability.AvailabilityRule{
		DayOfWeek: time.Monday, StartTime: availability.MustClock("09:00"), EndTime: availability.MustClock("17:00"), Active: true,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, inv.generation(org.ID))

	rule.EndTime = availability.MustClock("12:00")
	_, err = svc.UpdateRule(ctx, org.ID, rule.ID, *rule)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRule(ctx, org.ID, rule.ID))
	assert.EqualValues(t, 3, inv.generation(org.ID))
}

func TestService_InvalidationFailureFailsMutation(t *testing.T) {
	svc, store, inv, org := newTestService(t)
	inv.err = errors.New("redis down")

	_, err := svc.CreateBlockedTime(context.Background(), org.ID, availability.BlockedTime{
		StartDatetime: fixedNow(), EndDatetime: fixedNow().Add(time.Hour),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")

	// the write itself is durable; only the acknowledgement failed
	rs, err := store.Snapshot(context.Background(), org.ID)
	require.NoError(t, err)
	assert.Len(t, rs.BlockedTimes, 1)
}

func TestService_RejectedWriteDoesNotInvalidate(t *testing.T) {
	svc, _, inv, org := newTestService(t)

	_, err := svc.CreateRule(context.Background(), org.ID, availability.AvailabilityRule{
		DayOfWeek: time.Monday, StartTime: availability.MustClock("09:00"), EndTime: availability.MustClock("09:00"), Active: true,
	})
	assert.ErrorIs(t, err, availability.ErrInvalidConfiguration)
	assert.Empty(t, inv.calls)
}

func TestService_UnknownScope(t *testing.T) {
	svc, _, _, org := newTestService(t)

	_, err := svc.CreateRule(context.Background(), org.ID, availability.AvailabilityRule{
		DayOfWeek: time.Monday, StartTime: availability.MustClock("09:00"), EndTime: availability.MustClock("10:00"),
		EventTypeScope: availability.Scope{"ghost"}, Active: true,
	})
	var aerr *availability.Error
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "event_type_scope", aerr.Field)
	assert.Equal(t, "ghost", aerr.EventType)
}

func TestService_OverrideNeedsTimesWhenAvailable(t *testing.T) {
	svc, _, _, org := newTestService(t)

	_, err := svc.CreateOverride(context.Background(), org.ID, availability.DateOverrideRule{
		Date: availability.MustDate("2024-12-24"), IsAvailable: true, Active: true,
	})
	assert.ErrorIs(t, err, availability.ErrInvalidConfiguration)
}

func TestService_EventTypeSlugAndDefaults(t *testing.T) {
	svc, _, _, org := newTestService(t)

	et, err := svc.CreateEventType(context.Background(), org.ID, availability.EventType{Name: "Intro Call", DurationMinutes: 30, Active: true})
	require.NoError(t, err)
	assert.Equal(t, "intro-call", et.Slug)
	assert.Equal(t, 1, et.Capacity)
	assert.Equal(t, org.ID, et.OrganizerID)
}

func TestService_ResolveOrganizer(t *testing.T) {
	svc, _, _, org := newTestService(t)
	ctx := context.Background()

	bySlug, err := svc.ResolveOrganizer(ctx, "dr-who")
	require.NoError(t, err)
	assert.Equal(t, org.ID, bySlug.ID)

	byID, err := svc.ResolveOrganizer(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "dr-who", byID.Slug)

	_, err = svc.ResolveOrganizer(ctx, "nobody")
	assert.ErrorIs(t, err, availability.ErrNotFound)
}

func TestService_CreateOrganizerRejectsBadTimezone(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.CreateOrganizer(context.Background(), availability.Organizer{Name: "Mars Base", Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, availability.ErrInvalidConfiguration)
}

func TestService_PatchBuffer(t *testing.T) {
	svc, _, inv, org := newTestService(t)
	ctx := context.Background()

	b, err := svc.PatchBuffer(ctx, org.ID, BufferPatch{BufferBefore: intPtr(10), SlotIntervalMinutes: intPtr(15)})
	require.NoError(t, err)
	assert.Equal(t, 10, b.BufferBefore)
	assert.Equal(t, 15, b.SlotIntervalMinutes)
	assert.Equal(t, 0, b.BufferAfter)

	b, err = svc.PatchBuffer(ctx, org.ID, BufferPatch{BufferAfter: intPtr(5)})
	require.NoError(t, err)
	assert.Equal(t, 10, b.BufferBefore)
	assert.Equal(t, 5, b.BufferAfter)
	assert.EqualValues(t, 2, inv.generation(org.ID))

	_, err = svc.PatchBuffer(ctx, org.ID, BufferPatch{SlotIntervalMinutes: intPtr(0)})
	assert.ErrorIs(t, err, availability.ErrInvalidConfiguration)
}

func TestService_AuditRecordsGeneration(t *testing.T) {
	store := NewMemoryStore()
	inv := newFakeInvalidator()
	audit := &fakeAuditor{}
	svc := NewService(store, inv, testLogger(), WithAuditor(audit), WithClock(fixedNow))
	ctx := context.Background()
	org, err := svc.CreateOrganizer(ctx, availability.Organizer{Name: "Audit Org", Timezone: "UTC"})
	require.NoError(t, err)

	_, err = svc.CreateRecurringBlock(ctx, org.ID, availability.RecurringBlockedTime{
		Name: "Lunch", DayOfWeek: time.Monday, StartTime: availability.MustClock("12:00"), EndTime: availability.MustClock("13:00"), Active: true,
	})
	require.NoError(t, err)

	entries, err := svc.AuditTrail(ctx, org.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "recurring_block", entries[0].Entity)
	assert.Equal(t, "create", entries[0].Action)
	assert.EqualValues(t, 1, entries[0].CacheGen)
}

func TestService_AuditFailureDoesNotFailMutation(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, newFakeInvalidator(), testLogger(), WithAuditor(&fakeAuditor{fail: true}))
	ctx := context.Background()
	org, err := svc.CreateOrganizer(ctx, availability.Organizer{Name: "Org", Timezone: "UTC"})
	require.NoError(t, err)

	_, err = svc.PatchBuffer(ctx, org.ID, BufferPatch{MinimumGap: intPtr(15)})
	require.NoError(t, err)
}

func TestService_ImportICS(t *testing.T) {
	svc, store, inv, org := newTestService(t)
	feed := icsFeed(
		"BEGIN:VEVENT\nUID:trip\nDTSTAMP:20240101T000000Z\nDTSTART:20240110T090000Z\nDTEND:20240110T170000Z\nEND:VEVENT",
		"BEGIN:VEVENT\nUID:long-ago\nDTSTAMP:20240101T000000Z\nDTSTART:20230110T090000Z\nDTEND:20230110T170000Z\nEND:VEVENT",
	)

	n, err := svc.ImportICS(context.Background(), org.ID, strings.NewReader(feed), 60)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.EqualValues(t, 1, inv.generation(org.ID))

	rs, err := store.Snapshot(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, rs.BlockedTimes, 1)
	assert.Equal(t, "trip", rs.BlockedTimes[0].ExternalID)
}
