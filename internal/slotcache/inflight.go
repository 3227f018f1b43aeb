package slotcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// InFlight marks organizers with a precompute running. Acquire never blocks:
// it either takes the marker or reports the current holder.
type InFlight interface {
	// Acquire sets the marker to token unless another live token holds it.
	// On failure it returns the holder's token.
	Acquire(ctx context.Context, orgID, token string, ttl time.Duration) (bool, string, error)
	// Release clears the marker if token still holds it.
	Release(ctx context.Context, orgID, token string) error
}

type marker struct {
	token   string
	expires time.Time
}

// MemoryInFlight keeps markers in a sync.Map.
type MemoryInFlight struct {
	markers sync.Map // organizer id -> *marker
	now     func() time.Time
}

func NewMemoryInFlight() *MemoryInFlight {
	return &MemoryInFlight{now: time.Now}
}

var _ InFlight = (*MemoryInFlight)(nil)

func (m *MemoryInFlight) Acquire(_ context.Context, orgID, token string, ttl time.Duration) (bool, string, error) {
	mine := &marker{token: token, expires: m.now().Add(ttl)}
	for {
		v, loaded := m.markers.LoadOrStore(orgID, mine)
		if !loaded {
			return true, token, nil
		}
		held := v.(*marker)
		if m.now().Before(held.expires) {
			return false, held.token, nil
		}
		// expired holder; replace it unless someone else already did
		if m.markers.CompareAndSwap(orgID, held, mine) {
			return true, token, nil
		}
	}
}

func (m *MemoryInFlight) Release(_ context.Context, orgID, token string) error {
	v, ok := m.markers.Load(orgID)
	if !ok {
		return nil
	}
	if held := v.(*marker); held.token == token {
		m.markers.CompareAndDelete(orgID, held)
	}
	return nil
}

func inflightKey(orgID string) string { return fmt.Sprintf("slots:{%s}:precompute", orgID) }

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisInFlight uses SET NX PX so markers are shared across API replicas and
// expire if a worker dies mid-job.
type RedisInFlight struct {
	redis *redis.Client
}

func NewRedisInFlight(client *redis.Client) *RedisInFlight {
	if client == nil {
		panic("slotcache: redis client required")
	}
	return &RedisInFlight{redis: client}
}

var _ InFlight = (*RedisInFlight)(nil)

func (r *RedisInFlight) Acquire(ctx context.Context, orgID, token string, ttl time.Duration) (bool, string, error) {
	ok, err := r.redis.SetNX(ctx, inflightKey(orgID), token, ttl).Result()
	if err != nil {
		return false, "", fmt.Errorf("slotcache: acquire precompute marker: %w", err)
	}
	if ok {
		return true, token, nil
	}
	holder, err := r.redis.Get(ctx, inflightKey(orgID)).Result()
	if errors.Is(err, redis.Nil) {
		// holder released between SETNX and GET; try once more
		ok, err = r.redis.SetNX(ctx, inflightKey(orgID), token, ttl).Result()
		if err != nil {
			return false, "", fmt.Errorf("slotcache: acquire precompute marker: %w", err)
		}
		if ok {
			return true, token, nil
		}
		holder, _ = r.redis.Get(ctx, inflightKey(orgID)).Result()
		return false, holder, nil
	}
	if err != nil {
		return false, "", fmt.Errorf("slotcache: read precompute marker: %w", err)
	}
	return false, holder, nil
}

func (r *RedisInFlight) Release(ctx context.Context, orgID, token string) error {
	if err := releaseScript.Run(ctx, r.redis, []string{inflightKey(orgID)}, token).Err(); err != nil {
		return fmt.Errorf("slotcache: release precompute marker: %w", err)
	}
	return nil
}
