package intent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

type stubOpenAIAPI struct {
	chatReq  openai.ChatCompletionRequest
	chatResp openai.ChatCompletionResponse
	chatErr  error

	embReq  *openai.EmbeddingRequest
	embResp openai.EmbeddingResponse
	embErr  error
}

func (s *stubOpenAIAPI) CreateChatCompletion(_ context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.chatReq = request
	if s.chatErr != nil {
		return openai.ChatCompletionResponse{}, s.chatErr
	}
	return s.chatResp, nil
}

func (s *stubOpenAIAPI) CreateEmbeddings(_ context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	if typed, ok := request.(*openai.EmbeddingRequest); ok {
		s.embReq = typed
	}
	if s.embErr != nil {
		return openai.EmbeddingResponse{}, s.embErr
	}
	return s.embResp, nil
}

func chatChoice(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: content}},
		},
	}
}

func TestOpenAIChatCompletion(t *testing.T) {
	api := &stubOpenAIAPI{chatResp: chatChoice("  answer  ")}
	p := NewOpenAIProvider(api)

	out, err := p.GenerateChatCompletion(context.Background(), "gpt-4o-mini", []ChatMessage{
		{Role: RoleSystem, Content: "be terse"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "   "},
	}, GenerationParams{MaxTokens: 256, Temperature: 0.3})
	if err != nil {
		t.Fatalf("GenerateChatCompletion: %v", err)
	}
	if out != "answer" {
		t.Fatalf("output = %q", out)
	}

	req := api.chatReq
	if req.Model != "gpt-4o-mini" {
		t.Fatalf("model = %q", req.Model)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want blanks dropped", len(req.Messages))
	}
	roles := []string{req.Messages[0].Role, req.Messages[1].Role, req.Messages[2].Role}
	want := []string{openai.ChatMessageRoleSystem, openai.ChatMessageRoleUser, openai.ChatMessageRoleAssistant}
	if !reflect.DeepEqual(roles, want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	if req.MaxTokens != 256 {
		t.Fatalf("max tokens = %d", req.MaxTokens)
	}
	if req.Temperature != 0.3 {
		t.Fatalf("temperature = %v", req.Temperature)
	}
}

func TestOpenAIChatCompletionErrors(t *testing.T) {
	p := NewOpenAIProvider(&stubOpenAIAPI{chatResp: chatChoice("ok")})

	if _, err := p.GenerateChatCompletion(context.Background(), "m", []ChatMessage{
		{Role: RoleUser, Content: "  "},
	}, GenerationParams{}); err == nil || !strings.Contains(err.Error(), "at least one message") {
		t.Fatalf("err = %v, want at least one message", err)
	}
	if _, err := p.GenerateChatCompletion(context.Background(), "m", []ChatMessage{
		{Role: "robot", Content: "hi"},
	}, GenerationParams{}); err == nil || !strings.Contains(err.Error(), "unsupported role") {
		t.Fatalf("err = %v, want unsupported role", err)
	}

	p = NewOpenAIProvider(&stubOpenAIAPI{chatErr: errors.New("rate limited")})
	if _, err := p.GenerateChatCompletion(context.Background(), "m", []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, GenerationParams{}); err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want api error", err)
	}

	p = NewOpenAIProvider(&stubOpenAIAPI{})
	if _, err := p.GenerateChatCompletion(context.Background(), "m", []ChatMessage{
		{Role: RoleUser, Content: "hi"},
	}, GenerationParams{}); err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Fatalf("err = %v, want no choices", err)
	}
}

func TestOpenAICompletionSentAsChat(t *testing.T) {
	api := &stubOpenAIAPI{chatResp: chatChoice("done")}
	p := NewOpenAIProvider(api)

	out, err := p.GenerateCompletion(context.Background(), "gpt-4o-mini", "summarize this", GenerationParams{})
	if err != nil {
		t.Fatalf("GenerateCompletion: %v", err)
	}
	if out != "done" {
		t.Fatalf("output = %q", out)
	}
	if len(api.chatReq.Messages) != 1 || api.chatReq.Messages[0].Role != openai.ChatMessageRoleUser {
		t.Fatalf("messages = %+v, want single user turn", api.chatReq.Messages)
	}
	if api.chatReq.Messages[0].Content != "summarize this" {
		t.Fatalf("content = %q", api.chatReq.Messages[0].Content)
	}
}

func TestOpenAIBatchEmbeddings(t *testing.T) {
	api := &stubOpenAIAPI{embResp: openai.EmbeddingResponse{
		Data: []openai.Embedding{
			{Embedding: []float32{0.1, 0.2}},
			{Embedding: []float32{0.3, 0.4}},
		},
	}}
	p := NewOpenAIProvider(api)

	vecs, err := p.GenerateBatchEmbeddings(context.Background(), "text-embedding-3-small", []string{"first", "second"})
	if err != nil {
		t.Fatalf("GenerateBatchEmbeddings: %v", err)
	}
	if len(vecs) != 2 || vecs[1][1] != float32(0.4) {
		t.Fatalf("vecs = %+v", vecs)
	}

	if api.embReq == nil {
		t.Fatal("embedding request not captured")
	}
	if api.embReq.Model != openai.EmbeddingModel("text-embedding-3-small") {
		t.Fatalf("model = %q", api.embReq.Model)
	}
	if !reflect.DeepEqual(api.embReq.Input, []string{"first", "second"}) {
		t.Fatalf("input = %+v", api.embReq.Input)
	}
}

func TestOpenAIBatchEmbeddingsEmptyInput(t *testing.T) {
	api := &stubOpenAIAPI{}
	p := NewOpenAIProvider(api)

	vecs, err := p.GenerateBatchEmbeddings(context.Background(), "model", nil)
	if err != nil {
		t.Fatalf("GenerateBatchEmbeddings: %v", err)
	}
	if vecs != nil {
		t.Fatalf("vecs = %+v, want nil", vecs)
	}
	if api.embReq != nil {
		t.Fatal("expected no api call for empty input")
	}
}

func TestOpenAIEmbeddingCountMismatch(t *testing.T) {
	api := &stubOpenAIAPI{embResp: openai.EmbeddingResponse{
		Data: []openai.Embedding{{Embedding: []float32{0.1}}},
	}}
	p := NewOpenAIProvider(api)

	_, err := p.GenerateBatchEmbeddings(context.Background(), "model", []string{"first", "second"})
	if err == nil || !strings.Contains(err.Error(), "1 embeddings for 2 inputs") {
		t.Fatalf("err = %v, want count mismatch", err)
	}
}
