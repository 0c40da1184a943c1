package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type mockDynamo struct {
	putInput  *dynamodb.PutItemInput
	putErr    error
	getOutput *dynamodb.GetItemOutput
	getErr    error

	updateInputs []*dynamodb.UpdateItemInput
	updateErr    error

	deleteInput *dynamodb.DeleteItemInput
	deleteErr   error
}

func (m *mockDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = input
	return &dynamodb.PutItemOutput{}, m.putErr
}

func (m *mockDynamo) GetItem(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return m.getOutput, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.updateInputs = append(m.updateInputs, input)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(_ context.Context, input *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.deleteInput = input
	return &dynamodb.DeleteItemOutput{}, m.deleteErr
}

func TestDynamoContextStore_AppendMessagePersistsItem(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoContextStore(mock, "intent_contexts")

	err := store.AppendMessage(context.Background(), "tenant-a", "conv-1", Message{Role: RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("AppendMessage returned error: %v", err)
	}

	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}
	if *mock.putInput.TableName != "intent_contexts" {
		t.Fatalf("table = %q", *mock.putInput.TableName)
	}

	var stored contextItem
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored item: %v", err)
	}
	if stored.ContextID != "tenant-a#conv-1" || stored.TenantID != "tenant-a" {
		t.Fatalf("unexpected key fields: %#v", stored)
	}
	if len(stored.Messages) != 1 || stored.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", stored.Messages)
	}
	if stored.UpdatedAt == "" {
		t.Fatal("expected updatedAt to be populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL to be in the future")
	}
}

func TestDynamoContextStore_GetDecodesItem(t *testing.T) {
	item, err := attributevalue.MarshalMap(contextItem{
		ContextID:      "tenant-a#conv-1",
		TenantID:       "tenant-a",
		ConversationID: "conv-1",
		Messages:       []Message{{Role: RoleUser, Content: "hi", Timestamp: time.Now().UTC()}},
		Detections:     []Detection{{Intent: "greeting", Confidence: 0.9}},
		UpdatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{Item: item}}
	store := NewDynamoContextStore(mock, "intent_contexts")

	conv, err := store.Get(context.Background(), "tenant-a", "conv-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Content != "hi" {
		t.Fatalf("messages = %+v", conv.Messages)
	}
	if len(conv.Detections) != 1 || conv.Detections[0].Intent != "greeting" {
		t.Fatalf("detections = %+v", conv.Detections)
	}
	if conv.UpdatedAt.IsZero() {
		t.Fatal("expected updated at to be parsed")
	}
}

func TestDynamoContextStore_GetMissingReturnsEmpty(t *testing.T) {
	store := NewDynamoContextStore(&mockDynamo{}, "intent_contexts")

	conv, err := store.Get(context.Background(), "tenant-a", "conv-unknown")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if conv.ConversationID != "conv-unknown" || len(conv.Messages) != 0 {
		t.Fatalf("expected empty context, got %+v", conv)
	}
}

func TestDynamoContextStore_GetErrorPropagates(t *testing.T) {
	store := NewDynamoContextStore(&mockDynamo{getErr: errors.New("dynamo failed")}, "intent_contexts")

	if _, err := store.Get(context.Background(), "tenant-a", "conv-1"); err == nil {
		t.Fatal("expected dynamo error to surface")
	}
}

func TestDynamoContextStore_ClearDeletesItem(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoContextStore(mock, "intent_contexts")

	if err := store.Clear(context.Background(), "tenant-a", "conv-1"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if mock.deleteInput == nil {
		t.Fatal("expected DeleteItem to be called")
	}
	key := mock.deleteInput.Key["contextId"].(*types.AttributeValueMemberS).Value
	if key != "tenant-a#conv-1" {
		t.Fatalf("delete key = %q", key)
	}
}
