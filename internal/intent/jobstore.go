package intent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/querylens/intent-platform/pkg/logging"
)

const jobTTL = 24 * time.Hour

// JobStatus represents the lifecycle of an async classification job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ClassificationJob captures the persisted state of one async
// classification request.
type ClassificationJob struct {
	JobID          string                `dynamodbav:"jobId" json:"job_id"`
	TenantID       string                `dynamodbav:"tenantId" json:"tenant_id"`
	Status         JobStatus             `dynamodbav:"status" json:"status"`
	Query          string                `dynamodbav:"query" json:"query"`
	ConversationID string                `dynamodbav:"conversationId,omitempty" json:"conversation_id,omitempty"`
	Threshold      float64               `dynamodbav:"threshold,omitempty" json:"threshold,omitempty"`
	Result         *ClassificationResult `dynamodbav:"result,omitempty" json:"result,omitempty"`
	Fallback       *FallbackResult       `dynamodbav:"fallback,omitempty" json:"fallback,omitempty"`
	ErrorMessage   string                `dynamodbav:"errorMessage,omitempty" json:"error_message,omitempty"`
	CreatedAt      string                `dynamodbav:"createdAt" json:"created_at"`
	UpdatedAt      string                `dynamodbav:"updatedAt" json:"updated_at"`
	ExpiresAt      int64                 `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// JobRecorder creates and reads job records.
type JobRecorder interface {
	PutPending(ctx context.Context, job *ClassificationJob) error
	GetJob(ctx context.Context, jobID string) (*ClassificationJob, error)
}

// JobUpdater transitions jobs to their terminal states.
type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID string, result *ClassificationResult, fallback *FallbackResult) error
	MarkFailed(ctx context.Context, jobID string, errMsg string) error
}

// JobStore persists classification jobs to DynamoDB.
type JobStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ JobRecorder = (*JobStore)(nil)
var _ JobUpdater = (*JobStore)(nil)

// NewJobStore builds a store backed by the provided DynamoDB client.
func NewJobStore(client dynamoAPI, tableName string, logger *logging.Logger) *JobStore {
	if client == nil {
		panic("intent: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("intent: job table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &JobStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutPending inserts a new pending job record.
func (s *JobStore) PutPending(ctx context.Context, job *ClassificationJob) error {
	if job == nil {
		return errors.New("intent: job cannot be nil")
	}
	now := time.Now().UTC()
	job.Status = JobStatusPending
	job.CreatedAt = now.Format(time.RFC3339Nano)
	job.UpdatedAt = job.CreatedAt
	if job.ExpiresAt == 0 {
		job.ExpiresAt = now.Add(jobTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return fmt.Errorf("intent: failed to marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("intent: failed to persist job: %w", err)
	}
	return nil
}

// MarkCompleted updates a job with its classification outcome.
func (s *JobStore) MarkCompleted(ctx context.Context, jobID string, result *ClassificationResult, fallback *FallbackResult) error {
	if jobID == "" {
		return errors.New("intent: jobID required")
	}
	if result == nil {
		result = &ClassificationResult{}
	}
	resultAttr, err := attributevalue.Marshal(result)
	if err != nil {
		return fmt.Errorf("intent: failed to marshal result: %w", err)
	}
	var fallbackAttr types.AttributeValue = &types.AttributeValueMemberNULL{Value: true}
	if fallback != nil {
		fallbackAttr, err = attributevalue.Marshal(fallback)
		if err != nil {
			return fmt.Errorf("intent: failed to marshal fallback: %w", err)
		}
	}

	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(JobStatusCompleted)},
			":result":   resultAttr,
			":fallback": fallbackAttr,
			":error":    &types.AttributeValueMemberS{Value: ""},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":   "status",
			"#result":   "result",
			"#fallback": "fallback",
			"#error":    "errorMessage",
			"#updated":  "updatedAt",
		},
		"SET #status = :status, #result = :result, #fallback = :fallback, #error = :error, #updated = :updated",
	)
}

// MarkFailed updates a job to the failed state.
func (s *JobStore) MarkFailed(ctx context.Context, jobID string, errMsg string) error {
	if jobID == "" {
		return errors.New("intent: jobID required")
	}
	return s.updateJob(
		ctx,
		jobID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusFailed)},
			":result":  &types.AttributeValueMemberNULL{Value: true},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#result":  "result",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, #result = :result, #error = :error, #updated = :updated",
	)
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*ClassificationJob, error) {
	if jobID == "" {
		return nil, errors.New("intent: jobID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("intent: failed to fetch job: %w", err)
	}
	if out.Item == nil {
		return nil, ErrJobNotFound
	}

	var job ClassificationJob
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("intent: failed to decode job: %w", err)
	}
	return &job, nil
}

func (s *JobStore) updateJob(ctx context.Context, jobID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"jobId": &types.AttributeValueMemberS{Value: jobID},
		},
		UpdateExpression:          aws.String(expression),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(jobId)"),
	})
	if err != nil {
		return fmt.Errorf("intent: failed to update job %s: %w", jobID, err)
	}
	return nil
}
