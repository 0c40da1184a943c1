package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	UseMemoryQueue bool
	WorkerCount    int

	DatabaseURL    string
	AdminJWTSecret string

	CORSAllowedOrigins []string
	RateLimitPerSecond float64
	RateLimitBurst     int

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	ClassifyQueueURL  string
	ClassifyJobsTable string

	// LLMProvider selects the embedding/completion backend: bedrock,
	// openai, gemini, or auto (first configured wins).
	LLMProvider             string
	BedrockModelID          string
	BedrockEmbeddingModelID string
	OpenAIAPIKey            string
	OpenAIModel             string
	OpenAIEmbeddingModel    string
	GeminiAPIKey            string
	GeminiModel             string
	GeminiEmbeddingModel    string

	// ContextBackend selects where conversation context lives: redis,
	// dynamo, or memory.
	ContextBackend string
	ContextTable   string
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	ModelSnapshotBucket string

	// Intent engine tuning. These seed the per-model defaults; tenants
	// can still override them on individual models.
	SimilarityThreshold     float64
	HighConfidenceThreshold float64
	MismatchThreshold       float64
	AmbiguityMargin         float64
	SemanticWeight          float64
	ContextWeight           float64
	HistoryWeight           float64
	ContextBoostFactor      float64
	HistoryWindow           int
	MaxAlternatives         int
	MaxClarifyQuestions     int
	GeneralizedThreshold    float64
	PartialThreshold        float64

	ReasoningEnabled  bool
	ReasoningMaxSteps int

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// SES Email Configuration (fallback channel for handoff alerts)
	SESFromEmail string
	SESFromName  string

	HandoffAlertEmails []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ClassifyQueueURL:  getEnv("CLASSIFY_QUEUE_URL", ""),
		ClassifyJobsTable: getEnv("CLASSIFY_JOBS_TABLE", "classification_jobs"),

		LLMProvider:             strings.ToLower(strings.TrimSpace(getEnv("LLM_PROVIDER", "auto"))),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		OpenAIAPIKey:            getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:             getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIEmbeddingModel:    getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:            getEnv("GEMINI_API_KEY", ""),
		GeminiModel:             getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		GeminiEmbeddingModel:    getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		ContextBackend: strings.ToLower(strings.TrimSpace(getEnv("CONTEXT_BACKEND", "redis"))),
		ContextTable:   getEnv("CONTEXT_TABLE", "conversation_context"),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		ModelSnapshotBucket: getEnv("MODEL_SNAPSHOT_BUCKET", ""),

		SimilarityThreshold:     getEnvAsFloat("INTENT_SIMILARITY_THRESHOLD", 0.5),
		HighConfidenceThreshold: getEnvAsFloat("INTENT_HIGH_CONFIDENCE_THRESHOLD", 0.85),
		MismatchThreshold:       getEnvAsFloat("INTENT_MISMATCH_THRESHOLD", 0.3),
		AmbiguityMargin:         getEnvAsFloat("INTENT_AMBIGUITY_MARGIN", 0.15),
		SemanticWeight:          getEnvAsFloat("INTENT_SEMANTIC_WEIGHT", 0.6),
		ContextWeight:           getEnvAsFloat("INTENT_CONTEXT_WEIGHT", 0.25),
		HistoryWeight:           getEnvAsFloat("INTENT_HISTORY_WEIGHT", 0.15),
		ContextBoostFactor:      getEnvAsFloat("INTENT_CONTEXT_BOOST", 0.2),
		HistoryWindow:           getEnvAsInt("INTENT_HISTORY_WINDOW", 10),
		MaxAlternatives:         getEnvAsInt("INTENT_MAX_ALTERNATIVES", 3),
		MaxClarifyQuestions:     getEnvAsInt("INTENT_MAX_CLARIFY_QUESTIONS", 2),
		GeneralizedThreshold:    getEnvAsFloat("INTENT_GENERALIZED_THRESHOLD", 0.6),
		PartialThreshold:        getEnvAsFloat("INTENT_PARTIAL_THRESHOLD", 0.5),

		ReasoningEnabled:  getEnvAsBool("REASONING_ENABLED", false),
		ReasoningMaxSteps: getEnvAsInt("REASONING_MAX_STEPS", 5),

		// SendGrid Email Configuration
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "QueryLens"),

		// SES Email Configuration
		SESFromEmail: getEnv("SES_FROM_EMAIL", ""),
		SESFromName:  getEnv("SES_FROM_NAME", "QueryLens"),

		HandoffAlertEmails: splitCSV(getEnv("HANDOFF_ALERT_EMAILS", "")),
	}
}

// splitCSV splits a comma-separated env value, dropping empty entries.
func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

