package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
)

func TestPostgresSource_ListBetween(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	window := availability.Interval{Start: start.Add(-48 * time.Hour), End: start.Add(48 * time.Hour)}

	rows := pgxmock.NewRows([]string{"id", "organizer_id", "event_type_id", "start_at", "end_at", "attendees"}).
		AddRow("bk-1", "org-1", "evt-a", start, start.Add(30*time.Minute), 1).
		AddRow("bk-2", "org-1", "evt-b", start.Add(time.Hour), start.Add(2*time.Hour), 3)
	mock.ExpectQuery("FROM bookings").
		WithArgs("org-1", StatusCancelled, window.Start, window.End).
		WillReturnRows(rows)

	got, err := NewPostgresSource(mock).ListBetween(context.Background(), "org-1", window)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "evt-b", got[1].EventTypeID)
	assert.Equal(t, 3, got[1].Seats())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM bookings").WillReturnError(errors.New("connection reset"))

	_, err = NewPostgresSource(mock).ListBetween(context.Background(), "org-1", availability.Interval{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bookings: list between")
}

func span(start time.Time, d time.Duration) availability.Interval {
	return availability.Interval{Start: start, End: start.Add(d)}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource()
	start := time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)
	src.Add(availability.Booking{ID: "late", OrganizerID: "org-1", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)})
	src.Add(availability.Booking{ID: "early", OrganizerID: "org-1", Start: start, End: start.Add(time.Hour)})
	src.Add(availability.Booking{ID: "other", OrganizerID: "org-2", Start: start, End: start.Add(time.Hour)})

	got, err := src.ListBetween(context.Background(), "org-1", span(start, 4*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "early", got[0].ID)

	assert.True(t, src.Cancel("org-1", "early"))
	assert.False(t, src.Cancel("org-1", "missing"))
	got, err = src.ListBetween(context.Background(), "org-1", span(start, 4*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)

	got, err = src.ListBetween(context.Background(), "org-1", span(start.Add(5*time.Hour), time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}
