package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/availability-engine/cmd/mainconfig"
	appconfig "github.com/wolfman30/availability-engine/internal/config"
	"github.com/wolfman30/availability-engine/internal/precompute"
	"github.com/wolfman30/availability-engine/pkg/logging"
)

// Precompute carries the job transport and status store.
type Precompute struct {
	Queue precompute.Queue
	Jobs  precompute.JobStore
	// Memory is set when jobs are queued in process; the caller must then
	// run a Worker alongside the API.
	Memory *precompute.MemoryQueue
}

// BuildPrecompute wires SQS and DynamoDB unless cfg.UseMemoryQueue is set.
func BuildPrecompute(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Precompute, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if cfg.UseMemoryQueue {
		q := precompute.NewMemoryQueue(256)
		logger.Info("precompute jobs use the in-memory queue")
		return &Precompute{
			Queue:  q,
			Jobs:   precompute.NewMemoryJobStore(cfg.PrecomputeJobTTL),
			Memory: q,
		}, nil
	}

	if strings.TrimSpace(cfg.PrecomputeQueueURL) == "" {
		return nil, fmt.Errorf("bootstrap: PRECOMPUTE_QUEUE_URL is required when USE_MEMORY_QUEUE=false")
	}
	if strings.TrimSpace(cfg.PrecomputeJobsTable) == "" {
		return nil, fmt.Errorf("bootstrap: PRECOMPUTE_JOBS_TABLE is required when USE_MEMORY_QUEUE=false")
	}

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: load aws config: %w", err)
	}
	logger.Info("precompute jobs use sqs", "queue_url", cfg.PrecomputeQueueURL, "jobs_table", cfg.PrecomputeJobsTable)
	return &Precompute{
		Queue: precompute.NewSQSQueue(mainconfig.NewSQSClient(awsCfg, cfg), cfg.PrecomputeQueueURL),
		Jobs:  precompute.NewDynamoJobStore(mainconfig.NewDynamoClient(awsCfg, cfg), cfg.PrecomputeJobsTable, cfg.PrecomputeJobTTL, logger),
	}, nil
}
