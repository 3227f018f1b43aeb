package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/availability-engine/internal/config"
	"github.com/wolfman30/availability-engine/internal/observability/metrics"
	"github.com/wolfman30/availability-engine/internal/slotcache"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// Cache bundles the slot cache with the in-flight marker that shares its
// backend.
type Cache struct {
	Slots    slotcache.Cache
	InFlight slotcache.InFlight
	Metrics  *metrics.SlotMetrics
	Backend  string
}

// BuildCache selects the slot cache backend. The redis backend requires a
// reachable client; other values fall back to process memory.
func BuildCache(cfg *appconfig.Config, redisClient *redis.Client, reg prometheus.Registerer, logger *logging.Logger) (*Cache, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	var slotMetrics *metrics.SlotMetrics
	if reg != nil {
		slotMetrics = metrics.NewSlotMetrics(reg)
	}

	out := &Cache{Metrics: slotMetrics}
	switch cfg.CacheBackend {
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: SLOT_CACHE_BACKEND=redis but redis is unavailable at %s", cfg.RedisAddr)
		}
		out.Slots = slotcache.Instrument(slotcache.NewRedisCache(redisClient), slotMetrics)
		out.InFlight = slotcache.NewRedisInFlight(redisClient)
		out.Backend = "redis"
	default:
		if cfg.CacheBackend != "" && cfg.CacheBackend != "memory" {
			logger.Warn("unknown slot cache backend; using memory", "backend", cfg.CacheBackend)
		}
		out.Slots = slotcache.Instrument(slotcache.NewMemoryCache(), slotMetrics)
		out.InFlight = slotcache.NewMemoryInFlight()
		out.Backend = "memory"
	}
	logger.Info("slot cache ready", "backend", out.Backend, "ttl", cfg.CacheTTL.String())
	return out, nil
}
