package slotcache

import (
	"context"
	"slices"
	"sync"
	"time"
)

type memoryEntry struct {
	entry   Entry
	expires time.Time
}

type shard struct {
	mu         sync.RWMutex
	generation int64
	entries    map[Key]memoryEntry
}

// MemoryCache is a Cache for single-node deployments and tests. Each
// organizer owns a shard so organizers never contend on the same lock.
type MemoryCache struct {
	shards sync.Map // organizer id -> *shard
	now    func() time.Time
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

var _ Cache = (*MemoryCache)(nil)

func (c *MemoryCache) shard(orgID string) *shard {
	if s, ok := c.shards.Load(orgID); ok {
		return s.(*shard)
	}
	s, _ := c.shards.LoadOrStore(orgID, &shard{entries: make(map[Key]memoryEntry)})
	return s.(*shard)
}

func (c *MemoryCache) Get(_ context.Context, key Key) (*Entry, bool, error) {
	s := c.shard(key.OrganizerID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	me, ok := s.entries[key]
	if !ok || me.entry.Generation != s.generation || !c.now().Before(me.expires) {
		return nil, false, nil
	}
	e := me.entry
	e.Slots = slices.Clone(e.Slots)
	return &e, true, nil
}

func (c *MemoryCache) Put(_ context.Context, entry Entry, ttl time.Duration) error {
	s := c.shard(entry.Key.OrganizerID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.Generation < s.generation {
		return nil
	}
	entry.Slots = slices.Clone(entry.Slots)
	s.entries[entry.Key] = memoryEntry{entry: entry, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Generation(_ context.Context, orgID string) (int64, error) {
	s := c.shard(orgID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, nil
}

// Invalidate bumps the generation. Stale entries stay until overwritten or
// pruned.
func (c *MemoryCache) Invalidate(_ context.Context, orgID string) (int64, error) {
	s := c.shard(orgID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation, nil
}

// Prune drops expired and stale entries and returns how many were removed.
func (c *MemoryCache) Prune() int {
	now := c.now()
	removed := 0
	c.shards.Range(func(_, v any) bool {
		s := v.(*shard)
		s.mu.Lock()
		for k, me := range s.entries {
			if me.entry.Generation != s.generation || !now.Before(me.expires) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of stored entries for an organizer, stale included.
func (c *MemoryCache) Len(orgID string) int {
	s := c.shard(orgID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
