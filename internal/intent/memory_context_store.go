package intent

import (
	"context"
	"sync"
	"time"
)

// MemoryContextStore keeps conversation context in process memory.
// Intended for development and tests; state is lost on restart.
type MemoryContextStore struct {
	mu       sync.RWMutex
	contexts map[string]*Context
}

func NewMemoryContextStore() *MemoryContextStore {
	return &MemoryContextStore{contexts: make(map[string]*Context)}
}

func memoryContextKey(tenantID, conversationID string) string {
	return tenantID + "/" + conversationID
}

func (s *MemoryContextStore) Get(_ context.Context, tenantID, conversationID string) (*Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.contexts[memoryContextKey(tenantID, conversationID)]
	if !ok {
		return &Context{ConversationID: conversationID}, nil
	}
	// Copy so callers cannot mutate stored state.
	return &Context{
		ConversationID: conv.ConversationID,
		Messages:       append([]Message(nil), conv.Messages...),
		Detections:     append([]Detection(nil), conv.Detections...),
		UpdatedAt:      conv.UpdatedAt,
	}, nil
}

func (s *MemoryContextStore) AppendMessage(_ context.Context, tenantID, conversationID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(tenantID, conversationID)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	conv.Messages = append(conv.Messages, msg)
	if len(conv.Messages) > maxStoredMessages {
		conv.Messages = conv.Messages[len(conv.Messages)-maxStoredMessages:]
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryContextStore) AppendDetection(_ context.Context, tenantID, conversationID string, det Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := s.getOrCreate(tenantID, conversationID)
	if det.Timestamp.IsZero() {
		det.Timestamp = time.Now().UTC()
	}
	conv.Detections = append(conv.Detections, det)
	if len(conv.Detections) > maxStoredDetections {
		conv.Detections = conv.Detections[len(conv.Detections)-maxStoredDetections:]
	}
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryContextStore) Clear(_ context.Context, tenantID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.contexts, memoryContextKey(tenantID, conversationID))
	return nil
}

func (s *MemoryContextStore) getOrCreate(tenantID, conversationID string) *Context {
	key := memoryContextKey(tenantID, conversationID)
	conv, ok := s.contexts[key]
	if !ok {
		conv = &Context{ConversationID: conversationID}
		s.contexts[key] = conv
	}
	return conv
}
