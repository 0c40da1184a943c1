package intent

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5
)

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets how many polling goroutines run.
func WithWorkerCount(n int) WorkerOption {
	return func(cfg *workerConfig) {
		if n > 0 {
			cfg.workers = n
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait, capped at the SQS
// maximum of 20 seconds.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages one receive may return,
// capped at the SQS maximum of 10.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// Worker drains classification jobs from the queue, resolves each one,
// and records the outcome in the job store.
type Worker struct {
	resolver Resolver
	queue    queueClient
	jobs     JobUpdater
	metrics  *metrics.IntentMetrics
	logger   *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

// NewWorker wires a queue consumer. jobs and m may be nil; a nil jobs
// store limits the worker to fire-and-forget payloads.
func NewWorker(resolver Resolver, queue queueClient, jobs JobUpdater, m *metrics.IntentMetrics, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if resolver == nil {
		panic("intent: resolver cannot be nil")
	}
	if queue == nil {
		panic("intent: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		resolver: resolver,
		queue:    queue,
		jobs:     jobs,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// Shutdown blocks until all worker goroutines exit or ctx is done.
// Callers cancel the Start context first, then bound the drain here.
func (w *Worker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context, workerID int) {
	defer w.wg.Done()
	w.logger.Debug("intent worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("intent worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive classification jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			w.handleMessage(ctx, msg)
		}
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode classification job", "error", err)
		w.deleteMessage(context.Background(), msg.ReceiptHandle)
		return
	}

	w.logger.Info("worker processing classification job",
		"job_id", payload.ID,
		"tenant_id", payload.Classify.TenantID,
		"msg_id", msg.ID,
	)

	res, err := w.resolver.Resolve(ctx, payload.Classify)
	if err != nil {
		w.logger.Error("classification job failed", "error", err, "job_id", payload.ID)
		w.metrics.ObserveWorkerJob("failed")
		if payload.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkFailed(ctx, payload.ID, err.Error()); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
	} else {
		w.logger.Debug("classification job processed",
			"job_id", payload.ID,
			"action", string(res.Result.RecommendedAction),
		)
		w.metrics.ObserveWorkerJob("completed")
		if payload.TrackStatus && w.jobs != nil {
			if storeErr := w.jobs.MarkCompleted(ctx, payload.ID, res.Result, res.Fallback); storeErr != nil {
				w.logger.Error("failed to update job status", "error", storeErr, "job_id", payload.ID)
			}
		}
	}

	w.deleteMessage(context.Background(), msg.ReceiptHandle)
}

func (w *Worker) deleteMessage(ctx context.Context, receiptHandle string) {
	if receiptHandle == "" {
		return
	}

	deleteCtx, cancel := context.WithTimeout(ctx, deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(deleteCtx, receiptHandle); err != nil {
		w.logger.Error("failed to delete classification job", "error", err)
	}
}
