package intent

import (
	"context"
	"errors"
	"testing"

	"github.com/querylens/intent-platform/pkg/logging"
)

// modelRecordingProvider remembers the model id of the last call so
// routing tests can assert which name actually reached the backend.
type modelRecordingProvider struct {
	lastEmbeddingModel  string
	lastCompletionModel string
	embeddingCalls      int
	completionCalls     int
	embedErr            error
	completionErr       error
}

func (p *modelRecordingProvider) GenerateEmbedding(_ context.Context, model, _ string) ([]float32, error) {
	p.lastEmbeddingModel = model
	p.embeddingCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return []float32{1, 0}, nil
}

func (p *modelRecordingProvider) GenerateBatchEmbeddings(_ context.Context, model string, texts []string) ([][]float32, error) {
	p.lastEmbeddingModel = model
	p.embeddingCalls++
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (p *modelRecordingProvider) GenerateCompletion(_ context.Context, model, _ string, _ GenerationParams) (string, error) {
	p.lastCompletionModel = model
	p.completionCalls++
	if p.completionErr != nil {
		return "", p.completionErr
	}
	return "ok", nil
}

func (p *modelRecordingProvider) GenerateChatCompletion(_ context.Context, model string, _ []ChatMessage, _ GenerationParams) (string, error) {
	p.lastCompletionModel = model
	p.completionCalls++
	if p.completionErr != nil {
		return "", p.completionErr
	}
	return "ok", nil
}

func TestPinnedModelProviderOverridesModels(t *testing.T) {
	inner := &modelRecordingProvider{}
	p := NewPinnedModelProvider(inner, "text-embedding-004", "gemini-1.5-flash")

	if _, err := p.GenerateEmbedding(context.Background(), "titan-embed-v2", "hi"); err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	if inner.lastEmbeddingModel != "text-embedding-004" {
		t.Fatalf("embedding model = %q", inner.lastEmbeddingModel)
	}

	if _, err := p.GenerateChatCompletion(context.Background(), "claude-3", []ChatMessage{{Role: RoleUser, Content: "hi"}}, GenerationParams{}); err != nil {
		t.Fatalf("GenerateChatCompletion: %v", err)
	}
	if inner.lastCompletionModel != "gemini-1.5-flash" {
		t.Fatalf("completion model = %q", inner.lastCompletionModel)
	}
}

func TestSplitProviderRoutes(t *testing.T) {
	embeddings := &modelRecordingProvider{}
	completions := &modelRecordingProvider{}
	p := NewSplitProvider(embeddings, completions)

	if _, err := p.GenerateBatchEmbeddings(context.Background(), "titan-embed-v2", []string{"a", "b"}); err != nil {
		t.Fatalf("GenerateBatchEmbeddings: %v", err)
	}
	if embeddings.embeddingCalls != 1 || completions.embeddingCalls != 0 {
		t.Fatalf("embedding calls routed wrong: %d/%d", embeddings.embeddingCalls, completions.embeddingCalls)
	}

	if _, err := p.GenerateCompletion(context.Background(), "claude-3", "hi", GenerationParams{}); err != nil {
		t.Fatalf("GenerateCompletion: %v", err)
	}
	if completions.completionCalls != 1 || embeddings.completionCalls != 0 {
		t.Fatalf("completion calls routed wrong: %d/%d", completions.completionCalls, embeddings.completionCalls)
	}
}

// A failover secondary from another family answers with its own model
// ids while embeddings stay on the primary. This is the wiring cmd/api
// builds in auto mode.
func TestSplitProviderWithPinnedFailoverSecondary(t *testing.T) {
	primary := &modelRecordingProvider{completionErr: errors.New("throttled")}
	secondary := &modelRecordingProvider{}

	completions := NewFailoverProvider(primary, NewPinnedModelProvider(secondary, "text-embedding-004", "gemini-1.5-flash"), logging.Discard())
	p := NewSplitProvider(primary, completions)

	out, err := p.GenerateCompletion(context.Background(), "claude-3", "hi", GenerationParams{})
	if err != nil {
		t.Fatalf("GenerateCompletion: %v", err)
	}
	if out != "ok" {
		t.Fatalf("output = %q", out)
	}
	if primary.lastCompletionModel != "claude-3" {
		t.Fatalf("primary saw model %q", primary.lastCompletionModel)
	}
	if secondary.lastCompletionModel != "gemini-1.5-flash" {
		t.Fatalf("secondary saw model %q", secondary.lastCompletionModel)
	}

	if _, err := p.GenerateEmbedding(context.Background(), "titan-embed-v2", "hi"); err != nil {
		t.Fatalf("GenerateEmbedding: %v", err)
	}
	if secondary.embeddingCalls != 0 {
		t.Fatalf("secondary served %d embedding calls, want 0", secondary.embeddingCalls)
	}
}
