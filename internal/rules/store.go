// Package rules persists organizer availability configuration and applies
// mutations with cache invalidation.
package rules

import (
	"context"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// Store persists organizers and their rule entities. Every rule mutation bumps
// the organizer's rule version in the same write.
type Store interface {
	CreateOrganizer(ctx context.Context, o *availability.Organizer) error
	UpdateOrganizer(ctx context.Context, o *availability.Organizer) error
	GetOrganizer(ctx context.Context, id string) (*availability.Organizer, error)
	GetOrganizerBySlug(ctx context.Context, slug string) (*availability.Organizer, error)
	ListOrganizerIDs(ctx context.Context) ([]string, error)

	// Snapshot returns a consistent view of everything configured for orgID.
	Snapshot(ctx context.Context, orgID string) (*availability.RuleSet, error)

	CreateEventType(ctx context.Context, et *availability.EventType) error
	UpdateEventType(ctx context.Context, et *availability.EventType) error
	DeleteEventType(ctx context.Context, orgID, id string) error

	CreateRule(ctx context.Context, r *availability.AvailabilityRule) error
	UpdateRule(ctx context.Context, r *availability.AvailabilityRule) error
	DeleteRule(ctx context.Context, orgID, id string) error

	CreateOverride(ctx context.Context, o *availability.DateOverrideRule) error
	UpdateOverride(ctx context.Context, o *availability.DateOverrideRule) error
	DeleteOverride(ctx context.Context, orgID, id string) error

	CreateBlockedTime(ctx context.Context, b *availability.BlockedTime) error
	UpdateBlockedTime(ctx context.Context, b *availability.BlockedTime) error
	DeleteBlockedTime(ctx context.Context, orgID, id string) error
	// ReplaceExternalBlocks swaps every external-sync block of orgID for blocks.
	ReplaceExternalBlocks(ctx context.Context, orgID string, blocks []availability.BlockedTime) error

	CreateRecurringBlock(ctx context.Context, r *availability.RecurringBlockedTime) error
	UpdateRecurringBlock(ctx context.Context, r *availability.RecurringBlockedTime) error
	DeleteRecurringBlock(ctx context.Context, orgID, id string) error

	SaveBuffer(ctx context.Context, orgID string, b availability.BufferTime) error
}
