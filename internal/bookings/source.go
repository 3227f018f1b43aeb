// Package bookings reads confirmed meetings so the slot generator can treat
// them as blocked time. Bookings are owned by another service; this package
// never writes them outside of tests and local runs.
package bookings

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfman30/availability-engine/internal/availability"
)

// Status values of a booking row.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Source lists bookings overlapping a window.
type Source interface {
	ListBetween(ctx context.Context, orgID string, window availability.Interval) ([]availability.Booking, error)
}

type memoryBooking struct {
	availability.Booking
	status string
}

// MemorySource keeps bookings in memory.
type MemorySource struct {
	mu    sync.RWMutex
	items map[string][]memoryBooking
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{items: make(map[string][]memoryBooking)}
}

var _ Source = (*MemorySource)(nil)

// Add stores a confirmed booking.
func (m *MemorySource) Add(b availability.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.Start, b.End = b.Start.UTC(), b.End.UTC()
	m.items[b.OrganizerID] = append(m.items[b.OrganizerID], memoryBooking{Booking: b, status: StatusConfirmed})
}

// Cancel marks a booking cancelled. It reports whether the booking existed.
func (m *MemorySource) Cancel(orgID, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items[orgID] {
		if m.items[orgID][i].ID == id {
			m.items[orgID][i].status = StatusCancelled
			return true
		}
	}
	return false
}

func (m *MemorySource) ListBetween(_ context.Context, orgID string, window availability.Interval) ([]availability.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []availability.Booking
	for _, b := range m.items[orgID] {
		if b.status == StatusCancelled || !b.Interval().Overlaps(window) {
			continue
		}
		out = append(out, b.Booking)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
