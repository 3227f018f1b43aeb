package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/availability-engine/internal/availability"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// fakeInvalidator counts invalidations per organizer.
type fakeInvalidator struct {
	mu    sync.Mutex
	gens  map[string]int64
	err   error
	calls []string
}

func newFakeInvalidator() *fakeInvalidator {
	return &fakeInvalidator{gens: make(map[string]int64)}
}

func (f *fakeInvalidator) Invalidate(_ context.Context, orgID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orgID)
	if f.err != nil {
		return 0, f.err
	}
	f.gens[orgID]++
	return f.gens[orgID], nil
}

func (f *fakeInvalidator) generation(orgID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gens[orgID]
}

// fakeAuditor keeps entries in memory.
type fakeAuditor struct {
	mu      sync.Mutex
	entries []AuditEntry
	fail    bool
}

func (f *fakeAuditor) Record(_ context.Context, e AuditEntry) error {
	if f.fail {
		return errors.New("audit down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAuditor) List(_ context.Context, orgID string, _ int) ([]AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AuditEntry
	for _, e := range f.entries {
		if e.OrganizerID == orgID {
			out = append(out, e)
		}
	}
	return out, nil
}

func testLogger() *logging.Logger { return logging.New("error") }

func fixedNow() time.Time { return time.Date(2024, 1, 8, 6, 0, 0, 0, time.UTC) }

func newTestService(t *testing.T) (*Service, *MemoryStore, *fakeInvalidator, *availability.Organizer) {
	t.Helper()
	store := NewMemoryStore()
	inv := newFakeInvalidator()
	svc := NewService(store, inv, testLogger(), WithClock(fixedNow))
	org, err := svc.CreateOrganizer(context.Background(), availability.Organizer{Name: "Dr Who", Timezone: "UTC"})
	require.NoError(t, err)
	return svc, store, inv, org
}

func intPtr(v int) *int { return &v }
