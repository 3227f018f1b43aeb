// Package slotcache stores computed slots per organizer, event type, date and
// timezone. Every entry carries the organizer generation it was computed
// under; bumping the generation makes all older entries misses without
// deleting them.
package slotcache

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// Key identifies one cached day of slots.
type Key struct {
	OrganizerID string            `json:"organizer_id"`
	EventTypeID string            `json:"event_type_id"`
	Date        availability.Date `json:"date"`
	Timezone    string            `json:"timezone"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.OrganizerID, k.EventTypeID, k.Date, k.Timezone)
}

// Entry is the cached value of a key. Slots are computed before bookings
// are applied. RuleVersion is the rule store version of the snapshot the
// slots came from.
type Entry struct {
	Key         Key                 `json:"key"`
	Slots       []availability.Slot `json:"slots"`
	Generation  int64               `json:"generation"`
	RuleVersion int64               `json:"rule_version"`
	ComputedAt  time.Time           `json:"computed_at"`
}

// Cache is a generation-stamped slot cache.
type Cache interface {
	// Get returns the entry for key when it exists, has not expired and was
	// computed under the organizer's current generation.
	Get(ctx context.Context, key Key) (*Entry, bool, error)
	// Put stores entry for ttl. Entries older than the current generation
	// are dropped.
	Put(ctx context.Context, entry Entry, ttl time.Duration) error
	// Generation returns the organizer's current generation, 0 if never bumped.
	Generation(ctx context.Context, orgID string) (int64, error)
	// Invalidate bumps the organizer's generation and returns the new value.
	Invalidate(ctx context.Context, orgID string) (int64, error)
}
