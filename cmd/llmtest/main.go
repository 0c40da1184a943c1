package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/querylens/intent-platform/cmd/mainconfig"
	appbootstrap "github.com/querylens/intent-platform/internal/app/bootstrap"
	appconfig "github.com/querylens/intent-platform/internal/config"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := appconfig.Load()
	logger := logging.New("error")

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("LLM Provider Test")
	fmt.Println(strings.Repeat("=", 60))

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		fmt.Printf("❌ Failed to load AWS config: %v\n", err)
		os.Exit(1)
	}

	provider, embeddingModel, completionModel, cleanup, err := appbootstrap.BuildProvider(ctx, cfg, awsCfg, logger)
	if err != nil {
		fmt.Printf("❌ Failed to build provider: %v\n", err)
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}
	fmt.Printf("Provider mode: %s (embedding=%s, completion=%s)\n", cfg.LLMProvider, embeddingModel, completionModel)

	// Single embedding
	fmt.Println("\n[1] Testing single embedding...")
	start := time.Now()
	vec, err := provider.GenerateEmbedding(ctx, embeddingModel, "where can I find my latest invoice?")
	if err != nil {
		fmt.Printf("    ❌ Embedding error: %v\n", err)
	} else {
		fmt.Printf("    ✅ Got %d-dimensional vector (%v)\n", len(vec), time.Since(start).Round(time.Millisecond))
	}

	// Batch embeddings, the path intent registration uses
	fmt.Println("\n[2] Testing batch embeddings...")
	start = time.Now()
	vecs, err := provider.GenerateBatchEmbeddings(ctx, embeddingModel, []string{
		"I want to cancel my subscription",
		"how do I update my payment method?",
	})
	if err != nil {
		fmt.Printf("    ❌ Batch embedding error: %v\n", err)
	} else {
		fmt.Printf("    ✅ Got %d vectors (%v)\n", len(vecs), time.Since(start).Round(time.Millisecond))
	}

	// Chat completion, the path clarification and reasoning use
	fmt.Println("\n[3] Testing chat completion...")
	messages := []intent.ChatMessage{
		{Role: intent.RoleSystem, Content: "You are a concise assistant. Answer in one sentence."},
		{Role: intent.RoleUser, Content: "A user wrote: 'it is not working'. Ask one clarifying question."},
	}
	start = time.Now()
	reply, err := provider.GenerateChatCompletion(ctx, completionModel, messages, intent.GenerationParams{
		MaxTokens:   200,
		Temperature: 0.7,
	})
	if err != nil {
		fmt.Printf("    ❌ Completion error: %v\n", err)
	} else {
		fmt.Printf("    ✅ Completion response (%v):\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("    %s\n", strings.TrimSpace(reply))
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("Test Summary")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("✅ If all three calls succeeded, classification will work end to end")
	fmt.Println("✅ With two families configured, completions fail over automatically")
	fmt.Println("\nTo test the full pipeline:")
	fmt.Println("  1. Run: docker compose up")
	fmt.Println("  2. POST /v1/intents to register an intent, then POST /v1/classify")
	fmt.Println("  3. Watch logs for: 'primary provider failed, attempting failover'")
}
