package intent

import "context"

// PinnedModelProvider wraps a provider with fixed model names,
// ignoring whatever the caller passes. A failover secondary from a
// different model family cannot serve the primary's model ids, so it
// carries its own.
type PinnedModelProvider struct {
	inner           Provider
	embeddingModel  string
	completionModel string
}

func NewPinnedModelProvider(inner Provider, embeddingModel, completionModel string) *PinnedModelProvider {
	if inner == nil {
		panic("intent: pinned provider requires an inner provider")
	}
	return &PinnedModelProvider{
		inner:           inner,
		embeddingModel:  embeddingModel,
		completionModel: completionModel,
	}
}

func (p *PinnedModelProvider) GenerateEmbedding(ctx context.Context, _, text string) ([]float32, error) {
	return p.inner.GenerateEmbedding(ctx, p.embeddingModel, text)
}

func (p *PinnedModelProvider) GenerateBatchEmbeddings(ctx context.Context, _ string, texts []string) ([][]float32, error) {
	return p.inner.GenerateBatchEmbeddings(ctx, p.embeddingModel, texts)
}

func (p *PinnedModelProvider) GenerateCompletion(ctx context.Context, _, prompt string, params GenerationParams) (string, error) {
	return p.inner.GenerateCompletion(ctx, p.completionModel, prompt, params)
}

func (p *PinnedModelProvider) GenerateChatCompletion(ctx context.Context, _ string, messages []ChatMessage, params GenerationParams) (string, error) {
	return p.inner.GenerateChatCompletion(ctx, p.completionModel, messages, params)
}

// SplitProvider routes embeddings and completions to different
// providers. Embeddings must stay on a single model family because
// vectors from different families are not comparable; completions can
// fail over freely.
type SplitProvider struct {
	embeddings  Provider
	completions Provider
}

func NewSplitProvider(embeddings, completions Provider) *SplitProvider {
	if embeddings == nil || completions == nil {
		panic("intent: split provider requires both providers")
	}
	return &SplitProvider{embeddings: embeddings, completions: completions}
}

func (p *SplitProvider) GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	return p.embeddings.GenerateEmbedding(ctx, model, text)
}

func (p *SplitProvider) GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return p.embeddings.GenerateBatchEmbeddings(ctx, model, texts)
}

func (p *SplitProvider) GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	return p.completions.GenerateCompletion(ctx, model, prompt, params)
}

func (p *SplitProvider) GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error) {
	return p.completions.GenerateChatCompletion(ctx, model, messages, params)
}
