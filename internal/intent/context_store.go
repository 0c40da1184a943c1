package intent

import (
	"context"
	"strings"
	"time"

	"github.com/querylens/intent-platform/pkg/logging"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Detection records an intent that was previously identified in a
// conversation.
type Detection struct {
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// Context is the stored state of one conversation: its turns in
// chronological order and the intents detected so far.
type Context struct {
	ConversationID string      `json:"conversation_id"`
	Messages       []Message   `json:"messages"`
	Detections     []Detection `json:"detections"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// recentTurns returns up to limit of the most recent messages,
// oldest-first, for folding into prompts.
func (c *Context) recentTurns(limit int) []Message {
	if c == nil || limit <= 0 || len(c.Messages) == 0 {
		return nil
	}
	if len(c.Messages) <= limit {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-limit:]
}

// recentDetections returns up to limit of the most recent detections,
// newest-first.
func (c *Context) recentDetections(limit int) []Detection {
	if c == nil || limit <= 0 || len(c.Detections) == 0 {
		return nil
	}
	out := make([]Detection, 0, limit)
	for i := len(c.Detections) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, c.Detections[i])
	}
	return out
}

// ContextStore persists conversation context per tenant. A missing
// conversation yields an empty Context, not an error.
type ContextStore interface {
	Get(ctx context.Context, tenantID, conversationID string) (*Context, error)
	AppendMessage(ctx context.Context, tenantID, conversationID string, msg Message) error
	AppendDetection(ctx context.Context, tenantID, conversationID string, det Detection) error
	Clear(ctx context.Context, tenantID, conversationID string) error
}

// fetchContext loads conversation context best-effort: no store, a
// blank conversation id, or a load failure all yield nil so the caller
// proceeds without context.
func fetchContext(ctx context.Context, store ContextStore, tenantID, conversationID string, logger *logging.Logger) *Context {
	if store == nil || strings.TrimSpace(conversationID) == "" {
		return nil
	}
	conv, err := store.Get(ctx, tenantID, conversationID)
	if err != nil {
		logger.Warn("context load failed, proceeding without context",
			"conversation_id", conversationID, "error", err)
		return nil
	}
	return conv
}
