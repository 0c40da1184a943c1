package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/querylens/intent-platform/internal/config"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/internal/notify"
	"github.com/querylens/intent-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildContextStore wires conversation context persistence. Redis that
// does not answer a ping degrades to the in-memory store so the process
// still comes up. The returned func closes the backing client and may
// be nil.
func BuildContextStore(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (intent.ContextStore, func()) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.ContextBackend {
	case "redis":
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			logger.Warn("redis not available, using in-memory context store")
			return intent.NewMemoryContextStore(), nil
		}
		return intent.NewRedisContextStore(client), func() { _ = client.Close() }
	case "dynamo":
		return intent.NewDynamoContextStore(dynamodb.NewFromConfig(awsCfg), cfg.ContextTable), nil
	case "memory":
		return intent.NewMemoryContextStore(), nil
	default:
		logger.Warn("unknown CONTEXT_BACKEND, using in-memory context store", "backend", cfg.ContextBackend)
		return intent.NewMemoryContextStore(), nil
	}
}

// BuildNotifier picks the handoff alert channel: SendGrid when an API
// key is present, SES when a from address is configured, otherwise a
// stub that only logs.
func BuildNotifier(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) intent.HandoffNotifier {
	if logger == nil {
		logger = logging.Default()
	}

	var email notify.EmailSender
	switch {
	case cfg.SendGridAPIKey != "":
		email = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case cfg.SESFromEmail != "":
		email = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	default:
		email = notify.NewStubEmailSender(logger)
	}

	var recipients notify.Recipients
	if len(cfg.HandoffAlertEmails) > 0 {
		recipients = notify.StaticRecipients(cfg.HandoffAlertEmails)
	}
	return notify.NewService(email, recipients, logger)
}

// EngineConfig maps environment tuning onto the classification config.
// Zero values fall back to the engine defaults.
func EngineConfig(cfg *appconfig.Config) intent.Config {
	return intent.Config{
		SimilarityThreshold:     cfg.SimilarityThreshold,
		HighConfidenceThreshold: cfg.HighConfidenceThreshold,
		MismatchThreshold:       cfg.MismatchThreshold,
		AmbiguityMargin:         cfg.AmbiguityMargin,
		SemanticWeight:          cfg.SemanticWeight,
		ContextWeight:           cfg.ContextWeight,
		HistoryWeight:           cfg.HistoryWeight,
		ContextBoostFactor:      cfg.ContextBoostFactor,
		HistoryWindow:           cfg.HistoryWindow,
		MaxAlternatives:         cfg.MaxAlternatives,
		MaxClarifyQuestions:     cfg.MaxClarifyQuestions,
		GeneralizedThreshold:    cfg.GeneralizedThreshold,
		PartialThreshold:        cfg.PartialThreshold,
	}
}
