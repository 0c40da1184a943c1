package intent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/querylens/intent-platform/pkg/logging"
)

func TestPublisher_EnqueueClassification(t *testing.T) {
	queue := &stubQueue{}
	jobs := &stubJobRecorder{}
	publisher := NewPublisher(queue, jobs, logging.Discard())

	jobID, err := publisher.EnqueueClassification(context.Background(), ResolveRequest{
		TenantID:       "tenant-a",
		Query:          "where is my order",
		ConversationID: "conv-1",
		Threshold:      0.4,
	})
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a generated job id")
	}
	if len(queue.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(queue.sent))
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.ID != jobID {
		t.Fatalf("payload ID %s, want %s", payload.ID, jobID)
	}
	if !payload.TrackStatus {
		t.Fatal("expected job tracking on by default")
	}
	if payload.Classify.TenantID != "tenant-a" || payload.Classify.Query != "where is my order" {
		t.Fatalf("unexpected classify request: %+v", payload.Classify)
	}
	if payload.Classify.Threshold != 0.4 {
		t.Fatalf("threshold = %f, want 0.4", payload.Classify.Threshold)
	}

	if len(jobs.pending) != 1 {
		t.Fatalf("expected 1 pending job record, got %d", len(jobs.pending))
	}
	rec := jobs.pending[0]
	if rec.JobID != jobID || rec.TenantID != "tenant-a" || rec.Query != "where is my order" {
		t.Fatalf("unexpected pending record: %+v", rec)
	}
}

func TestPublisher_WithoutJobTracking(t *testing.T) {
	queue := &stubQueue{}
	jobs := &stubJobRecorder{}
	publisher := NewPublisher(queue, jobs, logging.Discard())

	_, err := publisher.EnqueueClassification(context.Background(), ResolveRequest{
		TenantID: "tenant-a",
		Query:    "hello",
	}, WithoutJobTracking())
	if err != nil {
		t.Fatalf("enqueue returned error: %v", err)
	}

	if len(jobs.pending) != 0 {
		t.Fatalf("expected no pending record, got %d", len(jobs.pending))
	}

	var payload queuePayload
	if err := json.Unmarshal([]byte(queue.sent[0]), &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.TrackStatus {
		t.Fatal("expected tracking disabled")
	}
}

func TestPublisher_Validation(t *testing.T) {
	publisher := NewPublisher(&stubQueue{}, nil, logging.Discard())

	if _, err := publisher.EnqueueClassification(context.Background(), ResolveRequest{Query: "hi"}); !errors.Is(err, ErrEmptyTenantID) {
		t.Fatalf("err = %v, want ErrEmptyTenantID", err)
	}
	if _, err := publisher.EnqueueClassification(context.Background(), ResolveRequest{TenantID: "tenant-a", Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestPublisher_JobStoreFailureAborts(t *testing.T) {
	queue := &stubQueue{}
	jobs := &stubJobRecorder{putErr: errors.New("dynamo down")}
	publisher := NewPublisher(queue, jobs, logging.Discard())

	_, err := publisher.EnqueueClassification(context.Background(), ResolveRequest{
		TenantID: "tenant-a",
		Query:    "hello",
	})
	if err == nil {
		t.Fatal("expected error when the pending record cannot be written")
	}
	if len(queue.sent) != 0 {
		t.Fatalf("message enqueued despite job store failure: %v", queue.sent)
	}
}

type stubQueue struct {
	sent []string
}

func (s *stubQueue) Send(ctx context.Context, body string) error {
	s.sent = append(s.sent, body)
	return nil
}

func (s *stubQueue) Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error) {
	return nil, context.Canceled
}

func (s *stubQueue) Delete(ctx context.Context, receiptHandle string) error {
	return nil
}

type stubJobRecorder struct {
	pending []*ClassificationJob
	putErr  error
}

func (s *stubJobRecorder) PutPending(_ context.Context, job *ClassificationJob) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.pending = append(s.pending, job)
	return nil
}

func (s *stubJobRecorder) GetJob(_ context.Context, _ string) (*ClassificationJob, error) {
	return nil, ErrJobNotFound
}
