package bootstrap

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	openai "github.com/sashabaranov/go-openai"

	appconfig "github.com/querylens/intent-platform/internal/config"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

// BuildProvider selects the embedding and completion backend. Explicit
// LLM_PROVIDER values build exactly that family; auto picks the first
// configured one and, when a second family is also configured, adds it
// as a completion failover. Embeddings never fail over across families
// because their vectors are not comparable. The returned func releases
// provider resources and may be nil.
func BuildProvider(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (intent.Provider, string, string, func(), error) {
	if cfg == nil {
		return nil, "", "", nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if cfg.LLMProvider != "auto" {
		provider, embeddingModel, completionModel, cleanup, err := buildFamilyProvider(ctx, cfg.LLMProvider, cfg, awsCfg)
		if err != nil {
			return nil, "", "", nil, err
		}
		logger.Info("llm provider selected", "provider", cfg.LLMProvider)
		return provider, embeddingModel, completionModel, cleanup, nil
	}

	families := configuredFamilies(cfg)
	if len(families) == 0 {
		return nil, "", "", nil, fmt.Errorf("no LLM provider configured: set BEDROCK_MODEL_ID and BEDROCK_EMBEDDING_MODEL_ID, OPENAI_API_KEY, or GEMINI_API_KEY")
	}

	primary, embeddingModel, completionModel, cleanup, err := buildFamilyProvider(ctx, families[0], cfg, awsCfg)
	if err != nil {
		return nil, "", "", nil, err
	}
	if len(families) == 1 {
		logger.Info("llm provider selected", "provider", families[0])
		return primary, embeddingModel, completionModel, cleanup, nil
	}

	secondary, secondaryEmbedding, secondaryCompletion, secondaryCleanup, err := buildFamilyProvider(ctx, families[1], cfg, awsCfg)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, "", "", nil, err
	}

	pinned := intent.NewPinnedModelProvider(secondary, secondaryEmbedding, secondaryCompletion)
	completions := intent.NewFailoverProvider(primary, pinned, logger)
	provider := intent.NewSplitProvider(primary, completions)

	combined := func() {
		if cleanup != nil {
			cleanup()
		}
		if secondaryCleanup != nil {
			secondaryCleanup()
		}
	}
	logger.Info("llm provider selected", "provider", families[0], "completion_failover", families[1])
	return provider, embeddingModel, completionModel, combined, nil
}

// configuredFamilies lists provider families with complete credentials,
// in the order auto mode prefers them.
func configuredFamilies(cfg *appconfig.Config) []string {
	var families []string
	if cfg.BedrockModelID != "" && cfg.BedrockEmbeddingModelID != "" {
		families = append(families, "bedrock")
	}
	if cfg.OpenAIAPIKey != "" {
		families = append(families, "openai")
	}
	if cfg.GeminiAPIKey != "" {
		families = append(families, "gemini")
	}
	return families
}

func buildFamilyProvider(ctx context.Context, family string, cfg *appconfig.Config, awsCfg aws.Config) (intent.Provider, string, string, func(), error) {
	switch family {
	case "bedrock":
		if cfg.BedrockModelID == "" || cfg.BedrockEmbeddingModelID == "" {
			return nil, "", "", nil, fmt.Errorf("bedrock provider requires BEDROCK_MODEL_ID and BEDROCK_EMBEDDING_MODEL_ID")
		}
		provider := intent.NewBedrockProvider(bedrockruntime.NewFromConfig(awsCfg))
		return provider, cfg.BedrockEmbeddingModelID, cfg.BedrockModelID, nil, nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, "", "", nil, fmt.Errorf("openai provider requires OPENAI_API_KEY")
		}
		provider := intent.NewOpenAIProvider(openai.NewClient(cfg.OpenAIAPIKey))
		return provider, cfg.OpenAIEmbeddingModel, cfg.OpenAIModel, nil, nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, "", "", nil, fmt.Errorf("gemini provider requires GEMINI_API_KEY")
		}
		provider, err := intent.NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, "", "", nil, fmt.Errorf("create gemini client: %w", err)
		}
		return provider, cfg.GeminiEmbeddingModel, cfg.GeminiModel, func() { _ = provider.Close() }, nil
	default:
		return nil, "", "", nil, fmt.Errorf("unknown LLM_PROVIDER %q", family)
	}
}
