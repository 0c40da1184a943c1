package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/querylens/intent-platform/cmd/mainconfig"
	"github.com/querylens/intent-platform/internal/api/router"
	appbootstrap "github.com/querylens/intent-platform/internal/app/bootstrap"
	appconfig "github.com/querylens/intent-platform/internal/config"
	"github.com/querylens/intent-platform/internal/http/handlers"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/internal/session"
	"github.com/querylens/intent-platform/pkg/logging"
)

const memoryQueueBuffer = 100

func main() {
	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting intent platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	metricsHandler, intentMetrics := setupIntentMetrics()

	provider, embeddingModel, completionModel, closeProvider, err := appbootstrap.BuildProvider(ctx, cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to build LLM provider", "error", err)
		os.Exit(1)
	}
	if closeProvider != nil {
		defer closeProvider()
	}

	contexts, closeContexts := appbootstrap.BuildContextStore(ctx, cfg, awsCfg, logger)
	if closeContexts != nil {
		defer closeContexts()
	}

	// Postgres is optional: without it, definitions live in memory and
	// misclassification records are dropped.
	var (
		store       intent.ModelStore
		audit       intent.MisclassificationStore
		auditReader handlers.MisclassificationReader
	)
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
		store = intent.NewDefinitionStore(pool)

		sqlDB := stdlib.OpenDBFromPool(pool)
		defer sqlDB.Close()
		auditStore := intent.NewPostgresAuditStore(sqlDB)
		audit = auditStore
		auditReader = auditStore
	} else {
		logger.Warn("no DATABASE_URL configured; intent definitions and audit records will not persist")
	}

	registry := intent.NewRegistry(intent.RegistryConfig{
		Provider:        provider,
		Contexts:        contexts,
		Audit:           audit,
		Store:           store,
		Notifier:        appbootstrap.BuildNotifier(cfg, awsCfg, logger),
		EmbeddingModel:  embeddingModel,
		CompletionModel: completionModel,
		Config:          appbootstrap.EngineConfig(cfg),
		Metrics:         intentMetrics,
		Logger:          logger,
	})

	publisher, jobRecorder, jobUpdater, memoryQueue := setupClassifyQueue(cfg, awsCfg, logger)

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	worker := setupInlineWorker(workerCtx, cfg, registry, memoryQueue, jobUpdater, intentMetrics, logger)

	var reasoner *intent.Reasoner
	if cfg.ReasoningEnabled {
		reasoner = intent.NewReasoner(provider, contexts, completionModel, true, cfg.ReasoningMaxSteps, intentMetrics, logger)
	}

	var archive *intent.SnapshotArchive
	if cfg.ModelSnapshotBucket != "" {
		archive = intent.NewSnapshotArchive(s3.NewFromConfig(awsCfg), cfg.ModelSnapshotBucket, logger)
	}

	// Initialize handlers
	sessions := session.NewHandler(registry, contexts, logger)
	intentHandler := intent.NewHandler(registry, publisher, jobRecorder, reasoner, logger)
	adminIntents := handlers.NewAdminIntentsHandler(registry, auditReader, archive, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		IntentHandler:      intentHandler,
		SessionHandler:     sessions,
		AdminIntents:       adminIntents,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	sessions.Close()
	stopWorkers()
	waitForInlineWorker(worker, logger)

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupIntentMetrics registers the intent metric family and returns the
// scrape handler for the router.
func setupIntentMetrics() (http.Handler, *metrics.IntentMetrics) {
	return promhttp.Handler(), metrics.NewIntentMetrics(nil)
}

// connectPostgresPool opens the shared pgx pool, or returns nil when no
// database is configured.
func connectPostgresPool(ctx context.Context, databaseURL string, logger *logging.Logger) *pgxpool.Pool {
	if databaseURL == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	return pool
}

// setupClassifyQueue wires the async classification path. The memory
// queue keeps everything in process for local development; otherwise
// SQS is used when a queue URL is configured. A nil publisher leaves
// the async endpoints answering 503.
func setupClassifyQueue(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (*intent.Publisher, intent.JobRecorder, intent.JobUpdater, *intent.MemoryQueue) {
	var (
		recorder intent.JobRecorder
		updater  intent.JobUpdater
	)
	if cfg.ClassifyJobsTable != "" {
		jobs := intent.NewJobStore(dynamodb.NewFromConfig(awsCfg), cfg.ClassifyJobsTable, logger)
		recorder = jobs
		updater = jobs
	}

	if cfg.UseMemoryQueue {
		queue := intent.NewMemoryQueue(memoryQueueBuffer)
		return intent.NewPublisher(queue, recorder, logger), recorder, updater, queue
	}

	if cfg.ClassifyQueueURL == "" {
		logger.Warn("no classify queue configured; async classification disabled")
		return nil, recorder, updater, nil
	}
	queue := intent.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ClassifyQueueURL)
	return intent.NewPublisher(queue, recorder, logger), recorder, updater, nil
}

// setupInlineWorker starts in-process queue consumers when the memory
// queue is active. SQS deployments run cmd/intent-worker instead.
func setupInlineWorker(ctx context.Context, cfg *appconfig.Config, resolver intent.Resolver, queue *intent.MemoryQueue, jobs intent.JobUpdater, m *metrics.IntentMetrics, logger *logging.Logger) *intent.Worker {
	if !cfg.UseMemoryQueue || queue == nil {
		return nil
	}
	worker := intent.NewWorker(resolver, queue, jobs, m, logger,
		intent.WithWorkerCount(cfg.WorkerCount),
		intent.WithReceiveWaitSeconds(1),
	)
	worker.Start(ctx)
	logger.Info("inline classification workers started", "count", cfg.WorkerCount)
	return worker
}

// waitForInlineWorker bounds the drain after the worker context is
// cancelled.
func waitForInlineWorker(worker *intent.Worker, logger *logging.Logger) {
	if worker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := worker.Shutdown(ctx); err != nil {
		logger.Warn("inline workers did not drain before timeout", "error", err)
	}
}
