package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/availability-engine/internal/config"
	"github.com/wolfman30/availability-engine/internal/precompute"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/internal/slots"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// Engine is the fully wired availability engine shared by the API and the
// precompute worker.
type Engine struct {
	Stores      *Stores
	Cache       *Cache
	Precompute  *Precompute
	Redis       *redis.Client
	Rules       *rules.Service
	Slots       *slots.Service
	Coordinator *precompute.Coordinator
	Scheduler   *precompute.Scheduler
}

// BuildEngine wires storage, cache, services and the precompute coordinator.
// The cache is built before the rule service so every rule mutation can
// invalidate it.
func BuildEngine(ctx context.Context, cfg *appconfig.Config, reg prometheus.Registerer, logger *logging.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := checkSharedState(cfg); err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.CacheBackend == "redis" {
		redisClient = BuildRedisClient(ctx, cfg, logger, true)
	}
	cache, err := BuildCache(cfg, redisClient, reg, logger)
	if err != nil {
		return nil, err
	}

	stores, err := BuildStores(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	pre, err := BuildPrecompute(ctx, cfg, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}

	var ruleOpts []rules.Option
	if stores.Auditor != nil {
		ruleOpts = append(ruleOpts, rules.WithAuditor(stores.Auditor))
	}
	rulesSvc := rules.NewService(stores.Rules, cache.Slots, logger, ruleOpts...)

	slotsSvc := slots.NewService(rulesSvc, stores.Bookings, cache.Slots, logger,
		slots.WithMetrics(cache.Metrics),
		slots.WithCacheTTL(cfg.CacheTTL),
		slots.WithBudget(cfg.SlotComputeBudget),
		slots.WithDefaultHorizon(cfg.DefaultHorizonDays),
		slots.WithPrecomputeTimezones(cfg.PrecomputeTimezones...),
	)

	coord := precompute.NewCoordinator(cache.InFlight, pre.Queue, pre.Jobs, slotsSvc, logger,
		precompute.WithMetrics(cache.Metrics),
	)

	return &Engine{
		Stores:      stores,
		Cache:       cache,
		Precompute:  pre,
		Redis:       redisClient,
		Rules:       rulesSvc,
		Slots:       slotsSvc,
		Coordinator: coord,
		Scheduler:   precompute.NewScheduler(coord, rulesSvc, cfg.PrecomputeDaysAhead, logger),
	}, nil
}

// checkSharedState rejects an SQS queue paired with process-local state.
// The API and the precompute worker run in separate processes there, so the
// in-flight markers, the slot cache and the rules must all be shared.
func checkSharedState(cfg *appconfig.Config) error {
	if cfg.UseMemoryQueue {
		return nil
	}
	if cfg.CacheBackend != "redis" {
		return fmt.Errorf("bootstrap: SQS precompute requires SLOT_CACHE_BACKEND=redis, got %q", cfg.CacheBackend)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("bootstrap: SQS precompute requires DATABASE_URL")
	}
	return nil
}

// Ready pings the backing stores.
func (e *Engine) Ready(ctx context.Context) error {
	if e.Redis != nil {
		if err := e.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if e.Stores != nil && e.Stores.Pool != nil {
		if err := e.Stores.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// NewWorker returns a worker draining the engine's job queue.
func (e *Engine) NewWorker(cfg *appconfig.Config, logger *logging.Logger) *precompute.Worker {
	opts := []precompute.WorkerOption{precompute.WithWorkerCount(cfg.WorkerCount)}
	if e.Precompute.Memory == nil {
		opts = append(opts, precompute.WithReceiveWaitSeconds(20), precompute.WithReceiveBatchSize(10))
	}
	return precompute.NewWorker(e.Coordinator, e.Precompute.Queue, logger, opts...)
}

// RunScheduler refreshes every organizer's cache on cfg.PrecomputeInterval
// until ctx ends. A non-positive interval disables it.
func (e *Engine) RunScheduler(ctx context.Context, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		logger.Info("precompute scheduler disabled")
		return
	}
	e.Scheduler.Run(ctx, interval)
}

// Close releases connections.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.Stores.Close()
	if e.Redis != nil {
		_ = e.Redis.Close()
	}
}
