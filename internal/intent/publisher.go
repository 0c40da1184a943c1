package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/querylens/intent-platform/pkg/logging"
)

// Publisher enqueues classification jobs for asynchronous processing.
// When job tracking is on, a pending record is written to the job store
// before the message is sent, so callers can poll for the result.
type Publisher struct {
	queue  queueClient
	jobs   JobRecorder
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher. jobs may be nil, which
// turns every enqueue into fire-and-forget.
func NewPublisher(queue queueClient, jobs JobRecorder, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("intent: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		jobs:   jobs,
		logger: logger,
	}
}

// EnqueueClassification publishes a classification job and returns the
// job id callers poll with.
func (p *Publisher) EnqueueClassification(ctx context.Context, req ResolveRequest, opts ...PublishOption) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return "", ErrEmptyTenantID
	}
	if strings.TrimSpace(req.Query) == "" {
		return "", ErrEmptyQuery
	}

	payload := queuePayload{Classify: req, TrackStatus: true}
	for _, opt := range opts {
		opt(&payload)
	}

	payload, body, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	if payload.TrackStatus && p.jobs != nil {
		job := &ClassificationJob{
			JobID:          payload.ID,
			TenantID:       req.TenantID,
			Query:          req.Query,
			ConversationID: req.ConversationID,
			Threshold:      req.Threshold,
		}
		if err := p.jobs.PutPending(ctx, job); err != nil {
			return "", fmt.Errorf("intent: failed to record pending job: %w", err)
		}
	}

	if err := p.queue.Send(ctx, body); err != nil {
		return "", fmt.Errorf("intent: failed to enqueue classification job: %w", err)
	}

	p.logger.Debug("classification job enqueued", "job_id", payload.ID, "tenant_id", req.TenantID)
	return payload.ID, nil
}
