package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/availability-engine/internal/api/router"
	"github.com/wolfman30/availability-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/availability-engine/internal/config"
	httpmiddleware "github.com/wolfman30/availability-engine/internal/http/middleware"
	"github.com/wolfman30/availability-engine/internal/precompute"
	"github.com/wolfman30/availability-engine/internal/rules"
	"github.com/wolfman30/availability-engine/internal/slots"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting availability-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"cache_backend", cfg.CacheBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, metricsHandler := setupMetrics()
	engine, err := bootstrap.BuildEngine(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	worker := setupInlineWorker(ctx, cfg, engine, logger)
	if worker != nil {
		go engine.RunScheduler(ctx, cfg.PrecomputeInterval, logger)
	}

	handler, limiter := buildRouter(cfg, engine, metricsHandler, logger)
	defer limiter.Close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	waitForInlineWorker(worker, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func setupMetrics() (*prometheus.Registry, http.Handler) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// setupInlineWorker runs precompute jobs in process when the in-memory queue
// is configured. With SQS the precompute-worker binary drains the queue.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, engine *bootstrap.Engine, logger *logging.Logger) *precompute.Worker {
	if !cfg.UseMemoryQueue || engine.Precompute.Memory == nil {
		return nil
	}
	worker := engine.NewWorker(cfg, logger)
	worker.Start(ctx)
	logger.Info("inline precompute worker started", "workers", cfg.WorkerCount)
	return worker
}

func waitForInlineWorker(worker *precompute.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("inline precompute worker stopped")
	case <-time.After(10 * time.Second):
		logger.Warn("timed out waiting for inline precompute worker")
	}
}

func buildRouter(cfg *appconfig.Config, engine *bootstrap.Engine, metricsHandler http.Handler, logger *logging.Logger) (http.Handler, *httpmiddleware.RateLimiter) {
	validate := rules.NewValidator()
	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	if cfg.OrganizerJWTSecret == "" {
		logger.Warn("ORGANIZER_JWT_SECRET not set; management routes are unauthenticated")
	}
	return router.New(&router.Config{
		Logger:             logger,
		RulesHandler:       rules.NewHandler(engine.Rules, validate, logger, cfg.DefaultHorizonDays),
		SlotsHandler:       slots.NewHandler(engine.Slots, engine.Coordinator, validate, logger),
		JWTSecret:          cfg.OrganizerJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		CORSMaxAge:         cfg.CORSMaxAge,
		RateLimiter:        limiter,
		MetricsHandler:     metricsHandler,
		Ready:              engine.Ready,
	}), limiter
}
