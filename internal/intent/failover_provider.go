package intent

import (
	"context"

	"github.com/querylens/intent-platform/pkg/logging"
)

// FailoverProvider wraps a primary provider with an optional
// secondary. Every operation retries once against the secondary when
// the primary fails. With no secondary configured the primary's error
// is returned as is.
type FailoverProvider struct {
	primary   Provider
	secondary Provider
	logger    *logging.Logger
}

func NewFailoverProvider(primary, secondary Provider, logger *logging.Logger) *FailoverProvider {
	if primary == nil {
		panic("intent: primary provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverProvider{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

func failover[T any](p *FailoverProvider, operation string, call func(Provider) (T, error)) (T, error) {
	out, err := call(p.primary)
	if err == nil {
		return out, nil
	}

	p.logger.Warn("primary provider failed, attempting failover",
		"operation", operation,
		"error", err.Error(),
		"secondary_available", p.secondary != nil,
	)
	if p.secondary == nil {
		var zero T
		return zero, err
	}

	out, serr := call(p.secondary)
	if serr != nil {
		p.logger.Error("secondary provider also failed",
			"operation", operation,
			"primary_error", err.Error(),
			"secondary_error", serr.Error(),
		)
		var zero T
		return zero, serr
	}

	p.logger.Info("secondary provider succeeded after primary failure", "operation", operation)
	return out, nil
}

func (p *FailoverProvider) GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	return failover(p, "embedding", func(prov Provider) ([]float32, error) {
		return prov.GenerateEmbedding(ctx, model, text)
	})
}

func (p *FailoverProvider) GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	return failover(p, "batch_embeddings", func(prov Provider) ([][]float32, error) {
		return prov.GenerateBatchEmbeddings(ctx, model, texts)
	})
}

func (p *FailoverProvider) GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	return failover(p, "completion", func(prov Provider) (string, error) {
		return prov.GenerateCompletion(ctx, model, prompt, params)
	})
}

func (p *FailoverProvider) GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error) {
	return failover(p, "chat_completion", func(prov Provider) (string, error) {
		return prov.GenerateChatCompletion(ctx, model, messages, params)
	})
}
