package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type bedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider serves embeddings and completions from Amazon
// Bedrock. Completions go through the Converse API; embeddings go
// through InvokeModel with the Titan request shape.
type BedrockProvider struct {
	api bedrockAPI
}

func NewBedrockProvider(api bedrockAPI) *BedrockProvider {
	if api == nil {
		panic("intent: bedrock runtime client cannot be nil")
	}
	return &BedrockProvider{api: api}
}

func (p *BedrockProvider) GenerateEmbedding(ctx context.Context, model, text string) ([]float32, error) {
	vecs, err := p.GenerateBatchEmbeddings(ctx, model, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, errors.New("intent: bedrock returned no embedding")
	}
	return vecs[0], nil
}

// GenerateBatchEmbeddings invokes the embedding model once per text.
// Titan embedding models accept a single input per request.
func (p *BedrockProvider) GenerateBatchEmbeddings(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("intent: bedrock embedding model id is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		payload, err := json.Marshal(map[string]any{
			"inputText": text,
		})
		if err != nil {
			return nil, fmt.Errorf("intent: embedding request marshal: %w", err)
		}

		out, err := p.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        payload,
		})
		if err != nil {
			return nil, err
		}

		var decoded struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := json.Unmarshal(out.Body, &decoded); err != nil {
			return nil, fmt.Errorf("intent: embedding response parse: %w", err)
		}
		if len(decoded.Embedding) == 0 {
			return nil, errors.New("intent: embedding response was empty")
		}

		vec := make([]float32, len(decoded.Embedding))
		for i, f := range decoded.Embedding {
			vec[i] = float32(f)
		}
		embeddings = append(embeddings, vec)
	}

	return embeddings, nil
}

func (p *BedrockProvider) GenerateCompletion(ctx context.Context, model, prompt string, params GenerationParams) (string, error) {
	return p.GenerateChatCompletion(ctx, model, []ChatMessage{{Role: RoleUser, Content: prompt}}, params)
}

func (p *BedrockProvider) GenerateChatCompletion(ctx context.Context, model string, messages []ChatMessage, params GenerationParams) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", errors.New("intent: bedrock model id is required")
	}

	var systemBlocks []brtypes.SystemContentBlock
	converseMessages := make([]brtypes.Message, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}

		switch msg.Role {
		case RoleSystem:
			systemBlocks = append(systemBlocks, &brtypes.SystemContentBlockMemberText{Value: content})
		case RoleUser:
			converseMessages = append(converseMessages, brtypes.Message{
				Role: brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		case RoleAssistant:
			converseMessages = append(converseMessages, brtypes.Message{
				Role: brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{
					&brtypes.ContentBlockMemberText{Value: content},
				},
			})
		default:
			return "", fmt.Errorf("intent: unsupported role %q", msg.Role)
		}
	}

	inference := &brtypes.InferenceConfiguration{}
	if params.MaxTokens > 0 {
		inference.MaxTokens = aws.Int32(params.MaxTokens)
	}
	// Callers omit temperature by passing a negative value.
	if params.Temperature >= 0 {
		inference.Temperature = aws.Float32(params.Temperature)
	}
	if params.TopP != 0 {
		inference.TopP = aws.Float32(params.TopP)
	}
	if inference.MaxTokens == nil && inference.Temperature == nil && inference.TopP == nil {
		inference = nil
	}

	out, err := p.api.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(model),
		System:          systemBlocks,
		Messages:        converseMessages,
		InferenceConfig: inference,
	})
	if err != nil {
		return "", err
	}

	return bedrockOutputText(out)
}

func bedrockOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("intent: bedrock response is nil")
	}
	msgOut, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("intent: bedrock response did not include a message output")
	}
	if len(msgOut.Value.Content) == 0 {
		return "", errors.New("intent: bedrock response message was empty")
	}

	var builder strings.Builder
	for _, block := range msgOut.Value.Content {
		if textBlock, ok := block.(*brtypes.ContentBlockMemberText); ok {
			builder.WriteString(textBlock.Value)
		}
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("intent: bedrock response contained no text content blocks")
	}
	return text, nil
}
