package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider serves embeddings and completions from Google's
// Gemini API.
type GeminiProvider struct {
	client *genai.Client
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("intent: gemini api key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("intent: failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	em := p.client.EmbeddingModel(model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("intent: gemini embedding failed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("intent: gemini returned an empty embedding")
	}
	return res.Embedding.Values, nil
}

func (p *GeminiProvider) GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := p.client.EmbeddingModel(model)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("intent: gemini batch embedding failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("intent: gemini returned %d embeddings for %d inputs", len(res.Embeddings), len(texts))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, errors.New("intent: gemini returned an empty embedding")
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (p *GeminiProvider) GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	return p.GenerateChatCompletion(ctx, model, []ChatMessage{{Role: RoleUser, Content: prompt}}, params)
}

func (p *GeminiProvider) GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("intent: gemini requires at least one message")
	}

	gm := p.client.GenerativeModel(model)
	if params.Temperature >= 0 {
		gm.SetTemperature(params.Temperature)
	}
	if params.TopP > 0 {
		gm.SetTopP(params.TopP)
	}
	if params.MaxTokens > 0 {
		gm.SetMaxOutputTokens(params.MaxTokens)
	}

	var system []string
	for _, msg := range messages {
		if msg.Role == RoleSystem && strings.TrimSpace(msg.Content) != "" {
			system = append(system, msg.Content)
		}
	}
	if len(system) > 0 {
		gm.SystemInstruction = genai.NewUserContent(genai.Text(strings.Join(system, "\n\n")))
	}

	cs := gm.StartChat()
	for _, msg := range messages[:len(messages)-1] {
		content := strings.TrimSpace(msg.Content)
		if content == "" || msg.Role == RoleSystem {
			continue
		}
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(content)},
		})
	}

	last := messages[len(messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return "", fmt.Errorf("intent: gemini completion failed: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("intent: gemini returned no candidates")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("intent: gemini returned empty content")
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			builder.WriteString(string(text))
		}
	}
	return strings.TrimSpace(builder.String()), nil
}

// Close releases resources held by the underlying client.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}
