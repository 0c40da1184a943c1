// Package classifyworker runs the standalone SQS classification
// consumer. It carries the same resolution stack as the API server so
// queued queries resolve against the same tenant models, context, and
// audit trail.
package classifyworker

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/querylens/intent-platform/cmd/mainconfig"
	appbootstrap "github.com/querylens/intent-platform/internal/app/bootstrap"
	appconfig "github.com/querylens/intent-platform/internal/config"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Run starts the async classification worker and blocks until ctx is canceled.
func Run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	if cfg == nil {
		return fmt.Errorf("classify worker requires config")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.UseMemoryQueue {
		return fmt.Errorf("classify worker cannot run when USE_MEMORY_QUEUE=true; run inline workers via the API process instead")
	}
	if cfg.ClassifyQueueURL == "" {
		return fmt.Errorf("classify worker requires CLASSIFY_QUEUE_URL")
	}

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	provider, embeddingModel, completionModel, closeProvider, err := appbootstrap.BuildProvider(ctx, cfg, awsConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to build LLM provider: %w", err)
	}
	if closeProvider != nil {
		defer closeProvider()
	}

	contexts, closeContexts := appbootstrap.BuildContextStore(ctx, cfg, awsConfig, logger)
	if closeContexts != nil {
		defer closeContexts()
	}

	var (
		store intent.ModelStore
		audit intent.MisclassificationStore
	)
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("worker failed to connect to postgres: %w", err)
		}
		defer pool.Close()
		store = intent.NewDefinitionStore(pool)

		sqlDB := stdlib.OpenDBFromPool(pool)
		defer sqlDB.Close()
		audit = intent.NewPostgresAuditStore(sqlDB)
	} else {
		logger.Warn("no DATABASE_URL configured; tenant models start empty and audit records are dropped")
	}

	registry := intent.NewRegistry(intent.RegistryConfig{
		Provider:        provider,
		Contexts:        contexts,
		Audit:           audit,
		Store:           store,
		Notifier:        appbootstrap.BuildNotifier(cfg, awsConfig, logger),
		EmbeddingModel:  embeddingModel,
		CompletionModel: completionModel,
		Config:          appbootstrap.EngineConfig(cfg),
		Logger:          logger,
	})

	sqsClient := sqs.NewFromConfig(awsConfig)
	queue := intent.NewSQSQueue(sqsClient, cfg.ClassifyQueueURL)

	var jobs intent.JobUpdater
	if cfg.ClassifyJobsTable != "" {
		jobs = intent.NewJobStore(dynamodb.NewFromConfig(awsConfig), cfg.ClassifyJobsTable, logger)
	} else {
		logger.Warn("no CLASSIFY_JOBS_TABLE configured; job outcomes will not be recorded")
	}

	worker := intent.NewWorker(
		registry,
		queue,
		jobs,
		nil,
		logger,
		intent.WithWorkerCount(cfg.WorkerCount),
	)

	worker.Start(ctx)

	<-ctx.Done()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	if err := worker.Shutdown(doneCtx); err != nil {
		logger.Error("classify worker shutdown timed out", "error", err)
		return nil
	}

	logger.Info("classify worker stopped")
	return nil
}
