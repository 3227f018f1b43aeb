package bookings

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/availability-engine/internal/availability"
)

var bookingsTracer = otel.Tracer("availability.internal.bookings")

// Querier is the subset of pgxpool.Pool used by the repository.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads bookings from the shared bookings table.
type PostgresSource struct {
	db Querier
}

// NewPostgresSource creates a booking source backed by pgx.
func NewPostgresSource(db Querier) *PostgresSource {
	if db == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresSource{db: db}
}

var _ Source = (*PostgresSource)(nil)

// ListBetween returns non-cancelled bookings overlapping window, oldest first.
func (s *PostgresSource) ListBetween(ctx context.Context, orgID string, window availability.Interval) ([]availability.Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.list_between")
	defer span.End()
	span.SetAttributes(
		attribute.String("availability.organizer_id", orgID),
		attribute.String("availability.window_start", window.Start.UTC().Format(time.RFC3339)),
	)

	rows, err := s.db.Query(ctx, `
		SELECT id, organizer_id, event_type_id, start_at, end_at, attendees
		FROM bookings
		WHERE organizer_id = $1 AND status <> $2 AND start_at < $4 AND end_at > $3
		ORDER BY start_at, id`,
		orgID, StatusCancelled, window.Start.UTC(), window.End.UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bookings: list between: %w", err)
	}
	defer rows.Close()

	var out []availability.Booking
	for rows.Next() {
		var b availability.Booking
		if err := rows.Scan(&b.ID, &b.OrganizerID, &b.EventTypeID, &b.Start, &b.End, &b.Attendees); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("bookings: scan: %w", err)
		}
		b.Start, b.End = b.Start.UTC(), b.End.UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: rows: %w", err)
	}
	span.SetAttributes(attribute.Int("availability.bookings", len(out)))
	return out, nil
}
