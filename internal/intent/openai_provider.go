package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openAIAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider serves embeddings and completions from the OpenAI
// API. Plain completions are sent as single-turn chat requests since
// current models no longer expose the legacy completions endpoint.
type OpenAIProvider struct {
	api openAIAPI
}

func NewOpenAIProvider(api openAIAPI) *OpenAIProvider {
	if api == nil {
		panic("intent: openai client cannot be nil")
	}
	return &OpenAIProvider{api: api}
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := p.GenerateBatchEmbeddings(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("intent: openai returned no embedding")
	}
	return vecs[0], nil
}

func (p *OpenAIProvider) GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.api.CreateEmbeddings(ctx, &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(model),
		Input: texts,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("intent: openai returned %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		out[i] = item.Embedding
	}
	return out, nil
}

func (p *OpenAIProvider) GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	return p.GenerateChatCompletion(ctx, model, []ChatMessage{{Role: RoleUser, Content: prompt}}, params)
}

func (p *OpenAIProvider) GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error) {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		var role string
		switch msg.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case RoleUser:
			role = openai.ChatMessageRoleUser
		default:
			return "", fmt.Errorf("intent: unsupported role %q", msg.Role)
		}
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    role,
			Content: content,
		})
	}
	if len(chatMessages) == 0 {
		return "", errors.New("intent: chat completion requires at least one message")
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: chatMessages,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = int(params.MaxTokens)
	}
	if params.Temperature > 0 {
		req.Temperature = params.Temperature
	}
	if params.TopP > 0 {
		req.TopP = params.TopP
	}

	resp, err := p.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("intent: openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
