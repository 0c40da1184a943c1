package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	contextTTL = 24 * time.Hour

	// Stored history is bounded so long conversations cannot grow a
	// context document without limit.
	maxStoredMessages   = 50
	maxStoredDetections = 20
)

// RedisContextStore keeps one JSON context document per conversation,
// keyed by tenant, expiring after contextTTL of inactivity.
type RedisContextStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisContextStore(client *redis.Client) *RedisContextStore {
	if client == nil {
		panic("intent: redis client cannot be nil")
	}
	return &RedisContextStore{
		redis:  client,
		tracer: otel.Tracer("querylens.internal.intent.context"),
	}
}

func contextKey(tenantID, conversationID string) string {
	return fmt.Sprintf("intent:context:%s:%s", tenantID, conversationID)
}

func (s *RedisContextStore) Get(ctx context.Context, tenantID, conversationID string) (*Context, error) {
	ctx, span := s.tracer.Start(ctx, "intent.context_get")
	defer span.End()

	data, err := s.redis.Get(ctx, contextKey(tenantID, conversationID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return &Context{ConversationID: conversationID}, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("intent: load context: %w", err)
	}

	var conv Context
	if err := json.Unmarshal(data, &conv); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("intent: decode context: %w", err)
	}
	return &conv, nil
}

func (s *RedisContextStore) AppendMessage(ctx context.Context, tenantID, conversationID string, msg Message) error {
	ctx, span := s.tracer.Start(ctx, "intent.context_append_message")
	defer span.End()

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
	return s.save(ctx, span, tenantID, conversationID, conv)
}

func (s *RedisContextStore) AppendDetection(ctx context.Context, tenantID, conversationID string, det Detection) error {
	ctx, span := s.tracer.Start(ctx, "intent.context_append_detection")
	defer span.End()

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
	return s.save(ctx, span, tenantID, conversationID, conv)
}

func (s *RedisContextStore) Clear(ctx context.Context, tenantID, conversationID string) error {
	ctx, span := s.tracer.Start(ctx, "intent.context_clear")
	defer span.End()

	if err := s.redis.Del(ctx, contextKey(tenantID, conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intent: clear context: %w", err)
	}
	return nil
}

func (s *RedisContextStore) save(ctx context.Context, span trace.Span, tenantID, conversationID string, conv *Context) error {
	conv.ConversationID = conversationID
	conv.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(conv)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("intent: marshal context: %w", err)
	}
	if err := s.redis.Set(ctx, contextKey(tenantID, conversationID), data, contextTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("intent: persist context: %w", err)
	}
	return nil
}
