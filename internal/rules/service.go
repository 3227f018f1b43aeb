package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

var rulesTracer = otel.Tracer("availability.internal.rules")

// Invalidator bumps the cache generation of an organizer.
type Invalidator interface {
	Invalidate(ctx context.Context, orgID string) (int64, error)
}

// Service applies rule mutations. A mutation is acknowledged only after the
// organizer's cache generation has been bumped.
type Service struct {
	store  Store
	cache  Invalidator
	audit  Auditor
	logger *logging.Logger
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithAuditor records every mutation to a.
func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService constructs a rules service.
func NewService(store Store, cache Invalidator, logger *logging.Logger, opts ...Option) *Service {
	if store == nil {
		panic("rules: store required")
	}
	if cache == nil {
		panic("rules: cache invalidator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, cache: cache, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// commit runs the store write, then invalidates, then audits.
func (s *Service) commit(ctx context.Context, orgID, entity, entityID, action string, scope availability.Scope, payload any, write func(ctx context.Context) error) error {
	ctx, span := rulesTracer.Start(ctx, "rules."+action)
	defer span.End()
	span.SetAttributes(
		attribute.String("availability.organizer_id", orgID),
		attribute.String("availability.entity", entity),
		attribute.String("availability.entity_id", entityID),
	)

	log := s.logger.WithOrganizer(orgID)
	if err := write(ctx); err != nil {
		span.RecordError(err)
		return availability.WithContext(err, orgID, "")
	}
	gen, err := s.cache.Invalidate(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		log.Error("cache invalidation failed after rule mutation",
			"entity", entity, "entity_id", entityID, "error", err)
		return fmt.Errorf("rules: invalidate after %s %s: %w", action, entity, err)
	}
	span.SetAttributes(attribute.Int64("availability.cache_generation", gen))
	log.Info("rule mutation committed",
		"entity", entity, "entity_id", entityID, "action", action, "cache_generation", gen)

	if s.audit != nil {
		raw, _ := json.Marshal(payload)
		entry := AuditEntry{
			OrganizerID:    orgID,
			Entity:         entity,
			EntityID:       entityID,
			Action:         action,
			EventTypeScope: scope,
			CacheGen:       gen,
			Payload:        raw,
		}
		if err := s.audit.Record(ctx, entry); err != nil {
			log.Warn("audit record failed", "entity", entity, "error", err)
		}
	}
	return nil
}

// checkScope rejects scopes naming event types the organizer does not have.
func (s *Service) checkScope(ctx context.Context, orgID string, scope availability.Scope) error {
	if len(scope) == 0 {
		return nil
	}
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return err
	}
	for _, id := range scope {
		if _, ok := rs.EventType(id); !ok {
			return &availability.Error{
				Kind:      availability.ErrInvalidConfiguration,
				Field:     "event_type_scope",
				Organizer: orgID,
				EventType: id,
				Detail:    "unknown event type",
			}
		}
	}
	return nil
}

func makeSlug(preferred, fallback string) string {
	if v := strings.TrimSpace(preferred); v != "" {
		return slug.Make(v)
	}
	return slug.Make(fallback)
}

// CreateOrganizer registers an organizer. The slug is derived from the name
// when not given.
func (s *Service) CreateOrganizer(ctx context.Context, o availability.Organizer) (*availability.Organizer, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	o.Slug = makeSlug(o.Slug, o.Name)
	if o.Slug == "" {
		return nil, availability.Invalid("slug", "name or slug is required")
	}
	if err := availability.ValidateOrganizer(o); err != nil {
		return nil, err
	}
	if err := s.store.CreateOrganizer(ctx, &o); err != nil {
		return nil, err
	}
	s.logger.Info("organizer created", "organizer_id", o.ID, "slug", o.Slug)
	return &o, nil
}

// UpdateOrganizer changes name, timezone or horizon.
func (s *Service) UpdateOrganizer(ctx context.Context, o availability.Organizer) (*availability.Organizer, error) {
	if err := availability.ValidateOrganizer(o); err != nil {
		return nil, availability.WithContext(err, o.ID, "")
	}
	err := s.commit(ctx, o.ID, "organizer", o.ID, "update", nil, o, func(ctx context.Context) error {
		return s.store.UpdateOrganizer(ctx, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrganizer loads an organizer by id.
func (s *Service) GetOrganizer(ctx context.Context, id string) (*availability.Organizer, error) {
	return s.store.GetOrganizer(ctx, id)
}

// ResolveOrganizer accepts a slug or an id.
func (s *Service) ResolveOrganizer(ctx context.Context, key string) (*availability.Organizer, error) {
	o, err := s.store.GetOrganizerBySlug(ctx, key)
	if err == nil {
		return o, nil
	}
	if _, parseErr := uuid.Parse(key); parseErr != nil {
		return nil, err
	}
	return s.store.GetOrganizer(ctx, key)
}

// ListOrganizerIDs returns every organizer id.
func (s *Service) ListOrganizerIDs(ctx context.Context) ([]string, error) {
	return s.store.ListOrganizerIDs(ctx)
}

// Snapshot returns the organizer's current rule set.
func (s *Service) Snapshot(ctx context.Context, orgID string) (*availability.RuleSet, error) {
	return s.store.Snapshot(ctx, orgID)
}

// ListEventTypes returns the organizer's event types.
func (s *Service) ListEventTypes(ctx context.Context, orgID string) ([]availability.EventType, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return rs.EventTypes, nil
}

func normalizeEventType(orgID string, et *availability.EventType) error {
	et.OrganizerID = orgID
	et.Slug = makeSlug(et.Slug, et.Name)
	if et.Slug == "" {
		return availability.Invalid("slug", "name or slug is required")
	}
	if et.Capacity == 0 {
		et.Capacity = 1
	}
	return availability.ValidateEventType(*et)
}

// CreateEventType adds an event type.
func (s *Service) CreateEventType(ctx context.Context, orgID string, et availability.EventType) (*availability.EventType, error) {
	et.ID = uuid.NewString()
	if err := normalizeEventType(orgID, &et); err != nil {
		return nil, availability.WithContext(err, orgID, et.Slug)
	}
	err := s.commit(ctx, orgID, "event_type", et.ID, "create", nil, et, func(ctx context.Context) error {
		return s.store.CreateEventType(ctx, &et)
	})
	if err != nil {
		return nil, err
	}
	return &et, nil
}

// UpdateEventType replaces an event type.
func (s *Service) UpdateEventType(ctx context.Context, orgID, id string, et availability.EventType) (*availability.EventType, error) {
	et.ID = id
	if err := normalizeEventType(orgID, &et); err != nil {
		return nil, availability.WithContext(err, orgID, et.Slug)
	}
	err := s.commit(ctx, orgID, "event_type", id, "update", nil, et, func(ctx context.Context) error {
		return s.store.UpdateEventType(ctx, &et)
	})
	if err != nil {
		return nil, err
	}
	return &et, nil
}

// DeleteEventType removes an event type.
func (s *Service) DeleteEventType(ctx context.Context, orgID, id string) error {
	return s.commit(ctx, orgID, "event_type", id, "delete", nil, nil, func(ctx context.Context) error {
		return s.store.DeleteEventType(ctx, orgID, id)
	})
}

// ListRules returns weekly rules.
func (s *Service) ListRules(ctx context.Context, orgID string) ([]availability.AvailabilityRule, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return rs.Rules, nil
}

// CreateRule adds a weekly rule.
func (s *Service) CreateRule(ctx context.Context, orgID string, r availability.AvailabilityRule) (*availability.AvailabilityRule, error) {
	r.ID, r.OrganizerID = uuid.NewString(), orgID
	if err := s.validateRule(ctx, r); err != nil {
		return nil, err
	}
	err := s.commit(ctx, orgID, "availability_rule", r.ID, "create", r.EventTypeScope, r, func(ctx context.Context) error {
		return s.store.CreateRule(ctx, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRule replaces a weekly rule.
func (s *Service) UpdateRule(ctx context.Context, orgID, id string, r availability.AvailabilityRule) (*availability.AvailabilityRule, error) {
	r.ID, r.OrganizerID = id, orgID
	if err := s.validateRule(ctx, r); err != nil {
		return nil, err
	}
	err := s.commit(ctx, orgID, "availability_rule", id, "update", r.EventTypeScope, r, func(ctx context.Context) error {
		return s.store.UpdateRule(ctx, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRule removes a weekly rule.
func (s *Service) DeleteRule(ctx context.Context, orgID, id string) error {
	return s.commit(ctx, orgID, "availability_rule", id, "delete", nil, nil, func(ctx context.Context) error {
		return s.store.DeleteRule(ctx, orgID, id)
	})
}

func (s *Service) validateRule(ctx context.Context, r availability.AvailabilityRule) error {
	if err := availability.ValidateRule(r); err != nil {
		return availability.WithContext(err, r.OrganizerID, "")
	}
	return s.checkScope(ctx, r.OrganizerID, r.EventTypeScope)
}

// ListOverrides returns date overrides.
func (s *Service) ListOverrides(ctx context.Context, orgID string) ([]availability.DateOverrideRule, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return rs.Overrides, nil
}

// CreateOverride adds a date override.
func (s *Service) CreateOverride(ctx context.Context, orgID string, o availability.DateOverrideRule) (*availability.DateOverrideRule, error) {
	o.ID, o.OrganizerID = uuid.NewString(), orgID
	if err := s.validateOverride(ctx, o); err != nil {
		return nil, err
	}
	err := s.commit(ctx, orgID, "date_override", o.ID, "create", o.EventTypeScope, o, func(ctx context.Context) error {
		return s.store.CreateOverride(ctx, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateOverride replaces a date override.
func (s *Service) UpdateOverride(ctx context.Context, orgID, id string, o availability.DateOverrideRule) (*availability.DateOverrideRule, error) {
	o.ID, o.OrganizerID = id, orgID
	if err := s.validateOverride(ctx, o); err != nil {
		return nil, err
	}
	err := s.commit(ctx, orgID, "date_override", id, "update", o.EventTypeScope, o, func(ctx context.Context) error {
		return s.store.UpdateOverride(ctx, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteOverride removes a date override.
func (s *Service) DeleteOverride(ctx context.Context, orgID, id string) error {
	return s.commit(ctx, orgID, "date_override", id, "delete", nil, nil, func(ctx context.Context) error {
		return s.store.DeleteOverride(ctx, orgID, id)
	})
}

func (s *Service) validateOverride(ctx context.Context, o availability.DateOverrideRule) error {
	if err := availability.ValidateOverride(o); err != nil {
		return availability.WithContext(err, o.OrganizerID, "")
	}
	return s.checkScope(ctx, o.OrganizerID, o.EventTypeScope)
}

// ListBlockedTimes returns absolute blocks.
func (s *Service) ListBlockedTimes(ctx context.Context, orgID string) ([]availability.BlockedTime, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return rs.BlockedTimes, nil
}

// CreateBlockedTime adds an absolute block.
func (s *Service) CreateBlockedTime(ctx context.Context, orgID string, b availability.BlockedTime) (*availability.BlockedTime, error) {
	b.ID, b.OrganizerID = uuid.NewString(), orgID
	if b.Source == "" {
		b.Source = availability.BlockSourceManual
	}
	if err := availability.ValidateBlockedTime(b); err != nil {
		return nil, availability.WithContext(err, orgID, "")
	}
	err := s.commit(ctx, orgID, "blocked_time", b.ID, "create", nil, b, func(ctx context.Context) error {
		return s.store.CreateBlockedTime(ctx, &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBlockedTime replaces an absolute block.
func (s *Service) UpdateBlockedTime(ctx context.Context, orgID, id string, b availability.BlockedTime) (*availability.BlockedTime, error) {
	b.ID, b.OrganizerID = id, orgID
	if b.Source == "" {
		b.Source = availability.BlockSourceManual
	}
	if err := availability.ValidateBlockedTime(b); err != nil {
		return nil, availability.WithContext(err, orgID, "")
	}
	err := s.commit(ctx, orgID, "blocked_time", id, "update", nil, b, func(ctx context.Context) error {
		return s.store.UpdateBlockedTime(ctx, &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBlockedTime removes an absolute block.
func (s *Service) DeleteBlockedTime(ctx context.Context, orgID, id string) error {
	return s.commit(ctx, orgID, "blocked_time", id, "delete", nil, nil, func(ctx context.Context) error {
		return s.store.DeleteBlockedTime(ctx, orgID, id)
	})
}

// ImportICS replaces the organizer's external-sync blocks with the busy
// events of an iCalendar feed between now and the organizer horizon.
func (s *Service) ImportICS(ctx context.Context, orgID string, feed io.Reader, horizonDays int) (int, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return 0, err
	}
	loc, err := availability.LoadLocation(rs.Organizer.Timezone)
	if err != nil {
		return 0, availability.WithContext(err, orgID, "")
	}
	if rs.Organizer.MaxHorizonDays > 0 {
		horizonDays = rs.Organizer.MaxHorizonDays
	}
	now := s.now().UTC()
	window := availability.Interval{Start: now.Add(-24 * time.Hour), End: now.AddDate(0, 0, horizonDays+1)}

	blocks, err := ParseICS(feed, orgID, loc, window)
	if err != nil {
		return 0, availability.WithContext(err, orgID, "")
	}
	summary := map[string]int{"events": len(blocks)}
	err = s.commit(ctx, orgID, "blocked_time", "", "import", nil, summary, func(ctx context.Context) error {
		return s.store.ReplaceExternalBlocks(ctx, orgID, blocks)
	})
	if err != nil {
		return 0, err
	}
	return len(blocks), nil
}

// ListRecurringBlocks returns weekly blocks.
func (s *Service) ListRecurringBlocks(ctx context.Context, orgID string) ([]availability.RecurringBlockedTime, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return rs.RecurringBlocks, nil
}

// CreateRecurringBlock adds a weekly block.
func (s *Service) CreateRecurringBlock(ctx context.Context, orgID string, r availability.RecurringBlockedTime) (*availability.RecurringBlockedTime, error) {
	r.ID, r.OrganizerID = uuid.NewString(), orgID
	if err := availability.ValidateRecurringBlock(r); err != nil {
		return nil, availability.WithContext(err, orgID, "")
	}
	err := s.commit(ctx, orgID, "recurring_block", r.ID, "create", nil, r, func(ctx context.Context) error {
		return s.store.CreateRecurringBlock(ctx, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateRecurringBlock replaces a weekly block.
func (s *Service) UpdateRecurringBlock(ctx context.Context, orgID, id string, r availability.RecurringBlockedTime) (*availability.RecurringBlockedTime, error) {
	r.ID, r.OrganizerID = id, orgID
	if err := availability.ValidateRecurringBlock(r); err != nil {
		return nil, availability.WithContext(err, orgID, "")
	}
	err := s.commit(ctx, orgID, "recurring_block", id, "update", nil, r, func(ctx context.Context) error {
		return s.store.UpdateRecurringBlock(ctx, &r)
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRecurringBlock removes a weekly block.
func (s *Service) DeleteRecurringBlock(ctx context.Context, orgID, id string) error {
	return s.commit(ctx, orgID, "recurring_block", id, "delete", nil, nil, func(ctx context.Context) error {
		return s.store.DeleteRecurringBlock(ctx, orgID, id)
	})
}

// BufferPatch carries the buffer fields to change; nil fields are kept.
type BufferPatch struct {
	BufferBefore        *int `json:"buffer_before" validate:"omitempty,min=0,max=1440"`
	BufferAfter         *int `json:"buffer_after" validate:"omitempty,min=0,max=1440"`
	MinimumGap          *int `json:"minimum_gap" validate:"omitempty,min=0,max=1440"`
	SlotIntervalMinutes *int `json:"slot_interval_minutes" validate:"omitempty,min=1,max=1440"`
}

// GetBuffer returns buffer settings, or defaults when none were saved.
func (s *Service) GetBuffer(ctx context.Context, orgID string) (availability.BufferTime, error) {
	rs, err := s.store.Snapshot(ctx, orgID)
	if err != nil {
		return availability.BufferTime{}, err
	}
	return rs.Buffer, nil
}

// PatchBuffer applies patch to the current buffer settings.
func (s *Service) PatchBuffer(ctx context.Context, orgID string, patch BufferPatch) (availability.BufferTime, error) {
	b, err := s.GetBuffer(ctx, orgID)
	if err != nil {
		return availability.BufferTime{}, err
	}
	if patch.BufferBefore != nil {
		b.BufferBefore = *patch.BufferBefore
	}
	if patch.BufferAfter != nil {
		b.BufferAfter = *patch.BufferAfter
	}
	if patch.MinimumGap != nil {
		b.MinimumGap = *patch.MinimumGap
	}
	if patch.SlotIntervalMinutes != nil {
		b.SlotIntervalMinutes = *patch.SlotIntervalMinutes
	}
	if err := availability.ValidateBuffer(b); err != nil {
		return availability.BufferTime{}, availability.WithContext(err, orgID, "")
	}
	err = s.commit(ctx, orgID, "buffer", orgID, "update", nil, b, func(ctx context.Context) error {
		return s.store.SaveBuffer(ctx, orgID, b)
	})
	if err != nil {
		return availability.BufferTime{}, err
	}
	return b, nil
}

// AuditTrail returns recent mutations, or nothing when auditing is off.
func (s *Service) AuditTrail(ctx context.Context, orgID string, limit int) ([]AuditEntry, error) {
	if s.audit == nil {
		return []AuditEntry{}, nil
	}
	return s.audit.List(ctx, orgID, limit)
}
