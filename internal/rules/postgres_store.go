package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// DB abstracts the pgx pool for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// PostgresStore persists rules in Postgres.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Postgres-backed rule store.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("rules: db required")
	}
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

var snapshotTxOptions = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

const organizerColumns = `id, slug, name, timezone, max_horizon_days, rule_version, created_at, updated_at`

func scanOrganizer(row pgx.Row) (*availability.Organizer, int64, error) {
	var o availability.Organizer
	var version int64
	if err := row.Scan(&o.ID, &o.Slug, &o.Name, &o.Timezone, &o.MaxHorizonDays, &version, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, 0, err
	}
	return &o, version, nil
}

// write runs fn in a transaction and bumps the organizer's rule version.
func (s *PostgresStore) write(ctx context.Context, orgID, action string, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("rules: begin %s: %w", action, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE organizers SET rule_version = rule_version + 1, updated_at = now() WHERE id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("rules: bump version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return availability.NotFound("organizer", orgID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("rules: commit %s: %w", action, err)
	}
	return nil
}

func execOne(ctx context.Context, tx pgx.Tx, field, id, action, sql string, args ...any) error {
	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("rules: %s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return availability.NotFound(field, id)
	}
	return nil
}

func scopeArg(s availability.Scope) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func clockArg(c *availability.Clock) pgtype.Int4 {
	if c == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*c), Valid: true}
}

func clockFrom(v pgtype.Int4) *availability.Clock {
	if !v.Valid {
		return nil
	}
	c := availability.Clock(v.Int32)
	return &c
}

func dateArg(d *availability.Date) pgtype.Date {
	if d == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: d.Time(), Valid: true}
}

func dateFrom(v pgtype.Date) *availability.Date {
	if !v.Valid {
		return nil
	}
	d := availability.DateOf(v.Time)
	return &d
}

func textArg(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func (s *PostgresStore) CreateOrganizer(ctx context.Context, o *availability.Organizer) error {
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err := s.db.Exec(ctx, `
		INSERT INTO organizers (id, slug, name, timezone, max_horizon_days, rule_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7)`,
		o.ID, o.Slug, o.Name, o.Timezone, o.MaxHorizonDays, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return availability.Invalid("slug", "slug %q is taken", o.Slug)
		}
		return fmt.Errorf("rules: insert organizer: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateOrganizer(ctx context.Context, o *availability.Organizer) error {
	return s.write(ctx, o.ID, "update organizer", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "organizer", o.ID, "update organizer", `
			UPDATE organizers SET name = $2, timezone = $3, max_horizon_days = $4
			WHERE id = $1`,
			o.ID, o.Name, o.Timezone, o.MaxHorizonDays,
		)
	})
}

func (s *PostgresStore) GetOrganizer(ctx context.Context, id string) (*availability.Organizer, error) {
	o, _, err := scanOrganizer(s.db.QueryRow(ctx, `SELECT `+organizerColumns+` FROM organizers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, availability.NotFound("organizer", id)
	}
	if err != nil {
		return nil, fmt.Errorf("rules: get organizer: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) GetOrganizerBySlug(ctx context.Context, slug string) (*availability.Organizer, error) {
	o, _, err := scanOrganizer(s.db.QueryRow(ctx, `SELECT `+organizerColumns+` FROM organizers WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, availability.NotFound("organizer", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("rules: get organizer by slug: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrganizerIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM organizers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("rules: list organizers: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("rules: scan organizer id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Snapshot reads the organizer and every rule table inside one repeatable-read
// transaction.
func (s *PostgresStore) Snapshot(ctx context.Context, orgID string) (*availability.RuleSet, error) {
	tx, err := s.db.BeginTx(ctx, snapshotTxOptions)
	if err != nil {
		return nil, fmt.Errorf("rules: begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	org, version, err := scanOrganizer(tx.QueryRow(ctx, `SELECT `+organizerColumns+` FROM organizers WHERE id = $1`, orgID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, availability.NotFound("organizer", orgID)
	}
	if err != nil {
		return nil, fmt.Errorf("rules: snapshot organizer: %w", err)
	}
	rs := &availability.RuleSet{Organizer: *org, Version: version, Buffer: availability.DefaultBuffer()}

	if rs.EventTypes, err = queryEventTypes(ctx, tx, orgID); err != nil {
		return nil, err
	}
	if rs.Rules, err = queryRules(ctx, tx, orgID); err != nil {
		return nil, err
	}
	if rs.Overrides, err = queryOverrides(ctx, tx, orgID); err != nil {
		return nil, err
	}
	if rs.BlockedTimes, err = queryBlockedTimes(ctx, tx, orgID); err != nil {
		return nil, err
	}
	if rs.RecurringBlocks, err = queryRecurringBlocks(ctx, tx, orgID); err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		SELECT buffer_before, buffer_after, minimum_gap, slot_interval_minutes
		FROM buffer_settings WHERE organizer_id = $1`, orgID,
	).Scan(&rs.Buffer.BufferBefore, &rs.Buffer.BufferAfter, &rs.Buffer.MinimumGap, &rs.Buffer.SlotIntervalMinutes)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("rules: snapshot buffer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("rules: commit snapshot: %w", err)
	}
	return rs, nil
}

func queryEventTypes(ctx context.Context, tx pgx.Tx, orgID string) ([]availability.EventType, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organizer_id, slug, name, duration_minutes, min_notice_minutes, max_horizon_days, capacity, active
		FROM event_types WHERE organizer_id = $1 ORDER BY slug`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rules: query event types: %w", err)
	}
	defer rows.Close()
	var out []availability.EventType
	for rows.Next() {
		var et availability.EventType
		if err := rows.Scan(&et.ID, &et.OrganizerID, &et.Slug, &et.Name, &et.DurationMinutes,
			&et.MinNoticeMinutes, &et.MaxHorizonDays, &et.Capacity, &et.Active); err != nil {
			return nil, fmt.Errorf("rules: scan event type: %w", err)
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

func queryRules(ctx context.Context, tx pgx.Tx, orgID string) ([]availability.AvailabilityRule, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organizer_id, day_of_week, start_minute, end_minute, event_type_scope, active
		FROM availability_rules WHERE organizer_id = $1 ORDER BY day_of_week, start_minute, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rules: query rules: %w", err)
	}
	defer rows.Close()
	var out []availability.AvailabilityRule
	for rows.Next() {
		var r availability.AvailabilityRule
		var dow, start, end int
		var scope []string
		if err := rows.Scan(&r.ID, &r.OrganizerID, &dow, &start, &end, &scope, &r.Active); err != nil {
			return nil, fmt.Errorf("rules: scan rule: %w", err)
		}
		r.DayOfWeek = time.Weekday(dow)
		r.StartTime, r.EndTime = availability.Clock(start), availability.Clock(end)
		if len(scope) > 0 {
			r.EventTypeScope = scope
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryOverrides(ctx context.Context, tx pgx.Tx, orgID string) ([]availability.DateOverrideRule, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organizer_id, override_date, is_available, start_minute, end_minute, event_type_scope, active
		FROM date_overrides WHERE organizer_id = $1 ORDER BY override_date, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rules: query overrides: %w", err)
	}
	defer rows.Close()
	var out []availability.DateOverrideRule
	for rows.Next() {
		var o availability.DateOverrideRule
		var date time.Time
		var start, end pgtype.Int4
		var scope []string
		if err := rows.Scan(&o.ID, &o.OrganizerID, &date, &o.IsAvailable, &start, &end, &scope, &o.Active); err != nil {
			return nil, fmt.Errorf("rules: scan override: %w", err)
		}
		o.Date = availability.DateOf(date)
		o.StartTime, o.EndTime = clockFrom(start), clockFrom(end)
		if len(scope) > 0 {
			o.EventTypeScope = scope
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func queryBlockedTimes(ctx context.Context, tx pgx.Tx, orgID string) ([]availability.BlockedTime, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organizer_id, title, start_at, end_at, source, external_id, active
		FROM blocked_times WHERE organizer_id = $1 ORDER BY start_at, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rules: query blocked times: %w", err)
	}
	defer rows.Close()
	var out []availability.BlockedTime
	for rows.Next() {
		var b availability.BlockedTime
		var source string
		var externalID pgtype.Text
		if err := rows.Scan(&b.ID, &b.OrganizerID, &b.Title, &b.StartDatetime, &b.EndDatetime, &source, &externalID, &b.Active); err != nil {
			return nil, fmt.Errorf("rules: scan blocked time: %w", err)
		}
		b.Source = availability.BlockSource(source)
		b.ExternalID = externalID.String
		b.StartDatetime, b.EndDatetime = b.StartDatetime.UTC(), b.EndDatetime.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func queryRecurringBlocks(ctx context.Context, tx pgx.Tx, orgID string) ([]availability.RecurringBlockedTime, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, organizer_id, name, day_of_week, start_minute, end_minute, start_date, end_date, active
		FROM recurring_blocked_times WHERE organizer_id = $1 ORDER BY day_of_week, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("rules: query recurring blocks: %w", err)
	}
	defer rows.Close()
	var out []availability.RecurringBlockedTime
	for rows.Next() {
		var r availability.RecurringBlockedTime
		var dow, start, end int
		var startDate, endDate pgtype.Date
		if err := rows.Scan(&r.ID, &r.OrganizerID, &r.Name, &dow, &start, &end, &startDate, &endDate, &r.Active); err != nil {
			return nil, fmt.Errorf("rules: scan recurring block: %w", err)
		}
		r.DayOfWeek = time.Weekday(dow)
		r.StartTime, r.EndTime = availability.Clock(start), availability.Clock(end)
		r.StartDate, r.EndDate = dateFrom(startDate), dateFrom(endDate)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateEventType(ctx context.Context, et *availability.EventType) error {
	return s.write(ctx, et.OrganizerID, "create event type", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO event_types (id, organizer_id, slug, name, duration_minutes, min_notice_minutes, max_horizon_days, capacity, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			et.ID, et.OrganizerID, et.Slug, et.Name, et.DurationMinutes, et.MinNoticeMinutes, et.MaxHorizonDays, et.Capacity, et.Active,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return availability.Invalid("slug", "event type slug %q is taken", et.Slug)
			}
			return fmt.Errorf("rules: insert event type: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateEventType(ctx context.Context, et *availability.EventType) error {
	return s.write(ctx, et.OrganizerID, "update event type", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "event_type", et.ID, "update event type", `
			UPDATE event_types SET slug = $3, name = $4, duration_minutes = $5, min_notice_minutes = $6,
				max_horizon_days = $7, capacity = $8, active = $9
			WHERE id = $1 AND organizer_id = $2`,
			et.ID, et.OrganizerID, et.Slug, et.Name, et.DurationMinutes, et.MinNoticeMinutes, et.MaxHorizonDays, et.Capacity, et.Active,
		)
	})
}

func (s *PostgresStore) DeleteEventType(ctx context.Context, orgID, id string) error {
	return s.write(ctx, orgID, "delete event type", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "event_type", id, "delete event type",
			`DELETE FROM event_types WHERE id = $1 AND organizer_id = $2`, id, orgID)
	})
}

func (s *PostgresStore) CreateRule(ctx context.Context, r *availability.AvailabilityRule) error {
	return s.write(ctx, r.OrganizerID, "create rule", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_rules (id, organizer_id, day_of_week, start_minute, end_minute, event_type_scope, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.ID, r.OrganizerID, int(r.DayOfWeek), int(r.StartTime), int(r.EndTime), scopeArg(r.EventTypeScope), r.Active,
		)
		if err != nil {
			return fmt.Errorf("rules: insert rule: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateRule(ctx context.Context, r *availability.AvailabilityRule) error {
	return s.write(ctx, r.OrganizerID, "update rule", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "rule", r.ID, "update rule", `
			UPDATE availability_rules SET day_of_week = $3, start_minute = $4, end_minute = $5, event_type_scope = $6, active = $7
			WHERE id = $1 AND organizer_id = $2`,
			r.ID, r.OrganizerID, int(r.DayOfWeek), int(r.StartTime), int(r.EndTime), scopeArg(r.EventTypeScope), r.Active,
		)
	})
}

func (s *PostgresStore) DeleteRule(ctx context.Context, orgID, id string) error {
	return s.write(ctx, orgID, "delete rule", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "rule", id, "delete rule",
			`DELETE FROM availability_rules WHERE id = $1 AND organizer_id = $2`, id, orgID)
	})
}

func (s *PostgresStore) CreateOverride(ctx context.Context, o *availability.DateOverrideRule) error {
	return s.write(ctx, o.OrganizerID, "create override", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO date_overrides (id, organizer_id, override_date, is_available, start_minute, end_minute, event_type_scope, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			o.ID, o.OrganizerID, o.Date.Time(), o.IsAvailable, clockArg(o.StartTime), clockArg(o.EndTime), scopeArg(o.EventTypeScope), o.Active,
		)
		if err != nil {
			return fmt.Errorf("rules: insert override: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateOverride(ctx context.Context, o *availability.DateOverrideRule) error {
	return s.write(ctx, o.OrganizerID, "update override", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "override", o.ID, "update override", `
			UPDATE date_overrides SET override_date = $3, is_available = $4, start_minute = $5, end_minute = $6,
				event_type_scope = $7, active = $8
			WHERE id = $1 AND organizer_id = $2`,
			o.ID, o.OrganizerID, o.Date.Time(), o.IsAvailable, clockArg(o.StartTime), clockArg(o.EndTime), scopeArg(o.EventTypeScope), o.Active,
		)
	})
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, orgID, id string) error {
	return s.write(ctx, orgID, "delete override", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "override", id, "delete override",
			`DELETE FROM date_overrides WHERE id = $1 AND organizer_id = $2`, id, orgID)
	})
}

func insertBlockedTime(ctx context.Context, tx pgx.Tx, b *availability.BlockedTime) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO blocked_times (id, organizer_id, title, start_at, end_at, source, external_id, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.OrganizerID, b.Title, b.StartDatetime.UTC(), b.EndDatetime.UTC(), string(b.Source), textArg(b.ExternalID), b.Active,
	)
	if err != nil {
		return fmt.Errorf("rules: insert blocked time: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateBlockedTime(ctx context.Context, b *availability.BlockedTime) error {
	return s.write(ctx, b.OrganizerID, "create blocked time", func(tx pgx.Tx) error {
		return insertBlockedTime(ctx, tx, b)
	})
}

func (s *PostgresStore) UpdateBlockedTime(ctx context.Context, b *availability.BlockedTime) error {
	return s.write(ctx, b.OrganizerID, "update blocked time", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "blocked_time", b.ID, "update blocked time", `
			UPDATE blocked_times SET title = $3, start_at = $4, end_at = $5, source = $6, external_id = $7, active = $8
			WHERE id = $1 AND organizer_id = $2`,
			b.ID, b.OrganizerID, b.Title, b.StartDatetime.UTC(), b.EndDatetime.UTC(), string(b.Source), textArg(b.ExternalID), b.Active,
		)
	})
}

func (s *PostgresStore) DeleteBlockedTime(ctx context.Context, orgID, id string) error {
	return s.write(ctx, orgID, "delete blocked time", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "blocked_time", id, "delete blocked time",
			`DELETE FROM blocked_times WHERE id = $1 AND organizer_id = $2`, id, orgID)
	})
}

func (s *PostgresStore) ReplaceExternalBlocks(ctx context.Context, orgID string, blocks []availability.BlockedTime) error {
	return s.write(ctx, orgID, "replace external blocks", func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM blocked_times WHERE organizer_id = $1 AND source = $2`,
			orgID, string(availability.BlockSourceExternalSync)); err != nil {
			return fmt.Errorf("rules: delete external blocks: %w", err)
		}
		for i := range blocks {
			if err := insertBlockedTime(ctx, tx, &blocks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) CreateRecurringBlock(ctx context.Context, r *availability.RecurringBlockedTime) error {
	return s.write(ctx, r.OrganizerID, "create recurring block", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO recurring_blocked_times (id, organizer_id, name, day_of_week, start_minute, end_minute, start_date, end_date, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.OrganizerID, r.Name, int(r.DayOfWeek), int(r.StartTime), int(r.EndTime), dateArg(r.StartDate), dateArg(r.EndDate), r.Active,
		)
		if err != nil {
			return fmt.Errorf("rules: insert recurring block: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) UpdateRecurringBlock(ctx context.Context, r *availability.RecurringBlockedTime) error {
	return s.write(ctx, r.OrganizerID, "update recurring block", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "recurring_block", r.ID, "update recurring block", `
			UPDATE recurring_blocked_times SET name = $3, day_of_week = $4, start_minute = $5, end_minute = $6,
				start_date = $7, end_date = $8, active = $9
			WHERE id = $1 AND organizer_id = $2`,
			r.ID, r.OrganizerID, r.Name, int(r.DayOfWeek), int(r.StartTime), int(r.EndTime), dateArg(r.StartDate), dateArg(r.EndDate), r.Active,
		)
	})
}

func (s *PostgresStore) DeleteRecurringBlock(ctx context.Context, orgID, id string) error {
	return s.write(ctx, orgID, "delete recurring block", func(tx pgx.Tx) error {
		return execOne(ctx, tx, "recurring_block", id, "delete recurring block",
			`DELETE FROM recurring_blocked_times WHERE id = $1 AND organizer_id = $2`, id, orgID)
	})
}

func (s *PostgresStore) SaveBuffer(ctx context.Context, orgID string, b availability.BufferTime) error {
	return s.write(ctx, orgID, "save buffer", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO buffer_settings (organizer_id, buffer_before, buffer_after, minimum_gap, slot_interval_minutes, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (organizer_id) DO UPDATE SET
				buffer_before = EXCLUDED.buffer_before,
				buffer_after = EXCLUDED.buffer_after,
				minimum_gap = EXCLUDED.minimum_gap,
				slot_interval_minutes = EXCLUDED.slot_interval_minutes,
				updated_at = now()`,
			orgID, b.BufferBefore, b.BufferAfter, b.MinimumGap, b.SlotIntervalMinutes,
		)
		if err != nil {
			return fmt.Errorf("rules: upsert buffer: %w", err)
		}
		return nil
	})
}
