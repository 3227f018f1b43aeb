package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/availability-engine/internal/app/bootstrap"
	appconfig "github.com/wolfman30/availability-engine/internal/config"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// precompute-worker drains the SQS precompute queue and runs the periodic
// refresh pass. It exposes /metrics on PORT.
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.UseMemoryQueue {
		logger.Error("precompute-worker needs USE_MEMORY_QUEUE=false; the API runs jobs inline otherwise")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	engine, err := bootstrap.BuildEngine(ctx, cfg, reg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	worker := engine.NewWorker(cfg, logger)
	worker.Start(ctx)
	go engine.RunScheduler(ctx, cfg.PrecomputeInterval, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("precompute worker running",
		"workers", cfg.WorkerCount,
		"queue_url", cfg.PrecomputeQueueURL,
		"interval", cfg.PrecomputeInterval.String(),
	)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	worker.Wait()
	logger.Info("precompute worker stopped")
}
