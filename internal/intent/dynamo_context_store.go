package intent

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type contextItem struct {
	ContextID      string      `dynamodbav:"contextId"`
	TenantID       string      `dynamodbav:"tenantId"`
	ConversationID string      `dynamodbav:"conversationId"`
	Messages       []Message   `dynamodbav:"messages,omitempty"`
	Detections     []Detection `dynamodbav:"detections,omitempty"`
	UpdatedAt      string      `dynamodbav:"updatedAt"`
	ExpiresAt      int64       `dynamodbav:"expiresAt,omitempty"`
}

// DynamoContextStore keeps one item per conversation with a TTL
// attribute so stale conversations age out server side.
type DynamoContextStore struct {
	client    dynamoAPI
	tableName string
}

func NewDynamoContextStore(client dynamoAPI, tableName string) *DynamoContextStore {
	if client == nil {
		panic("intent: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("intent: context table name cannot be empty")
	}
	return &DynamoContextStore{client: client, tableName: tableName}
}

func dynamoContextID(tenantID, conversationID string) string {
	return tenantID + "#" + conversationID
}

func (s *DynamoContextStore) Get(ctx context.Context, tenantID, conversationID string) (*Context, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"contextId": &types.AttributeValueMemberS{Value: dynamoContextID(tenantID, conversationID)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("intent: load context: %w", err)
	}
	if out.Item == nil {
		return &Context{ConversationID: conversationID}, nil
	}

	var item contextItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("intent: decode context: %w", err)
	}

	updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &Context{
		ConversationID: conversationID,
		Messages:       item.Messages,
		Detections:     item.Detections,
		UpdatedAt:      updatedAt,
	}, nil
}

func (s *DynamoContextStore) AppendMessage(ctx context.Context, tenantID, conversationID string, msg Message) error {
	conv, err := s.Get(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, msg)
	if len(conv.Messages) > maxStoredMessages {
		conv.Messages = conv.Messages[len(conv.Messages)-maxStoredMessages:]
	}
	return s.put(ctx, tenantID, conversationID, conv)
}

func (s *DynamoContextStore) AppendDetection(ctx context.Context, tenantID, conversationID string, det Detection) error {
	conv, err := s.Get(ctx, tenantID, conversationID)
	if err != nil {
		return err
	}
	if det.Timestamp.IsZero() {
		det.Timestamp = time.Now().UTC()
	}
	conv.Detections = append(conv.Detections, det)
	if len(conv.Detections) > maxStoredDetections {
		conv.Detections = conv.Detections[len(conv.Detections)-maxStoredDetections:]
	}
	return s.put(ctx, tenantID, conversationID, conv)
}

func (s *DynamoContextStore) Clear(ctx context.Context, tenantID, conversationID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"contextId": &types.AttributeValueMemberS{Value: dynamoContextID(tenantID, conversationID)},
		},
	})
	if err != nil {
		return fmt.Errorf("intent: clear context: %w", err)
	}
	return nil
}

func (s *DynamoContextStore) put(ctx context.Context, tenantID, conversationID string, conv *Context) error {
	now := time.Now().UTC()
	item, err := attributevalue.MarshalMap(contextItem{
		ContextID:      dynamoContextID(tenantID, conversationID),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Messages:       conv.Messages,
		Detections:     conv.Detections,
		UpdatedAt:      now.Format(time.RFC3339Nano),
		ExpiresAt:      now.Add(contextTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("intent: marshal context: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("intent: persist context: %w", err)
	}
	return nil
}
