package intent

import "context"

// ChatMessage is one turn handed to a completion provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries inference settings for completion calls.
// Callers can omit temperature by passing a negative value.
type GenerationParams struct {
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

// Provider is the embedding/completion backend the engine talks to.
// All calls honor context cancellation; timeout policy belongs to the
// underlying client.
type Provider interface {
	GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error)
	GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error)
	GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error)
}
