package slotcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Keys of one organizer share a hash tag so the put script stays in one slot.
func generationKey(orgID string) string { return fmt.Sprintf("slots:{%s}:gen", orgID) }

func entryKey(k Key) string {
	return fmt.Sprintf("slots:{%s}:%s:%s:%s", k.OrganizerID, k.EventTypeID, k.Date, k.Timezone)
}

// putScript writes the entry only when its generation is current.
var putScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) < current then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

// RedisCache is the production Cache. Generations are INCR counters and
// entries are JSON strings with a TTL.
type RedisCache struct {
	redis  *redis.Client
	tracer trace.Tracer
}

// NewRedisCache wraps a go-redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	if client == nil {
		panic("slotcache: redis client required")
	}
	return &RedisCache{redis: client, tracer: otel.Tracer("availability.internal.slotcache")}
}

var _ Cache = (*RedisCache)(nil)

func (c *RedisCache) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	ctx, span := c.tracer.Start(ctx, "slotcache.get")
	defer span.End()
	span.SetAttributes(attribute.String("availability.organizer_id", key.OrganizerID))

	pipe := c.redis.Pipeline()
	genCmd := pipe.Get(ctx, generationKey(key.OrganizerID))
	entryCmd := pipe.Get(ctx, entryKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, false, fmt.Errorf("slotcache: get %s: %w", key, err)
	}

	raw, err := entryCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("slotcache: read entry %s: %w", key, err)
	}
	gen, err := parseGeneration(genCmd)
	if err != nil {
		return nil, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// corrupt entries are misses; the next put overwrites them
		return nil, false, nil
	}
	hit := e.Generation == gen
	span.SetAttributes(attribute.Bool("availability.cache_hit", hit))
	if !hit {
		return nil, false, nil
	}
	return &e, true, nil
}

func parseGeneration(cmd *redis.StringCmd) (int64, error) {
	v, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("slotcache: read generation: %w", err)
	}
	gen, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("slotcache: parse generation %q: %w", v, err)
	}
	return gen, nil
}

func (c *RedisCache) Put(ctx context.Context, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("slotcache: marshal entry: %w", err)
	}
	keys := []string{generationKey(entry.Key.OrganizerID), entryKey(entry.Key)}
	if err := putScript.Run(ctx, c.redis, keys, entry.Generation, data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("slotcache: put %s: %w", entry.Key, err)
	}
	return nil
}

func (c *RedisCache) Generation(ctx context.Context, orgID string) (int64, error) {
	return parseGeneration(c.redis.Get(ctx, generationKey(orgID)))
}

func (c *RedisCache) Invalidate(ctx context.Context, orgID string) (int64, error) {
	ctx, span := c.tracer.Start(ctx, "slotcache.invalidate")
	defer span.End()
	span.SetAttributes(attribute.String("availability.organizer_id", orgID))

	gen, err := c.redis.Incr(ctx, generationKey(orgID)).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("slotcache: invalidate %s: %w", orgID, err)
	}
	return gen, nil
}
