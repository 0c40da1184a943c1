package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var classifierTracer = otel.Tracer("querylens.internal.intent.classifier")

// Classifier scores queries against a tenant's intent model. The model
// is read during classification and mutated only through the intent
// management methods; callers that mutate concurrently with reads must
// serialize access.
type Classifier struct {
	model    *Model
	provider Provider
	contexts ContextStore
	cfg      Config
	metrics  *metrics.IntentMetrics
	logger   *logging.Logger
}

// NewClassifier wires a classifier. contexts and m may be nil; without
// a context store the context-aware path degrades to plain
// classification.
func NewClassifier(model *Model, provider Provider, contexts ContextStore, cfg Config, m *metrics.IntentMetrics, logger *logging.Logger) *Classifier {
	if model == nil {
		panic("intent: model cannot be nil")
	}
	if provider == nil {
		panic("intent: provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		model:    model,
		provider: provider,
		contexts: contexts,
		cfg:      cfg.withDefaults(),
		metrics:  m,
		logger:   logger,
	}
}

// Config returns the active tuning.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Definitions lists the registered intents in registration order.
func (c *Classifier) Definitions() []*Definition {
	return c.model.Definitions()
}

// GetIntent returns a registered definition by name or alias.
func (c *Classifier) GetIntent(name string) (*Definition, bool) {
	return c.model.Get(name)
}

// ResolveIntentName maps a name or alias to the canonical intent name.
func (c *Classifier) ResolveIntentName(name string) (string, bool) {
	return c.model.Resolve(name)
}

// AddIntent registers a new intent and embeds its examples.
func (c *Classifier) AddIntent(ctx context.Context, name, description string, examples []string, slots []EntitySlot) (*Definition, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrInvalidIntentName
	}
	examples = trimExamples(examples)
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}
	if _, exists := c.model.Resolve(name); exists {
		return nil, ErrIntentExists
	}

	embeddings, err := c.embedExamples(ctx, examples)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		Name:              strings.TrimSpace(name),
		Description:       description,
		Examples:          examples,
		ExampleEmbeddings: embeddings,
		Slots:             slots,
		UpdatedAt:         time.Now().UTC(),
	}
	c.model.Put(def)
	c.logger.Info("intent registered", "intent", def.Name, "examples", len(examples))
	return def, nil
}

// UpdateIntent replaces an existing intent's description, examples,
// and slots, regenerating embeddings for the new examples.
func (c *Classifier) UpdateIntent(ctx context.Context, name, description string, examples []string, slots []EntitySlot) (*Definition, error) {
	canonical, ok := c.model.Resolve(name)
	if !ok {
		return nil, ErrIntentNotFound
	}
	examples = trimExamples(examples)
	if len(examples) == 0 {
		return nil, ErrNoExamples
	}

	embeddings, err := c.embedExamples(ctx, examples)
	if err != nil {
		return nil, err
	}

	existing, _ := c.model.Get(canonical)
	def := &Definition{
		Name:              existing.Name,
		Description:       description,
		Examples:          examples,
		ExampleEmbeddings: embeddings,
		Slots:             slots,
		ParentIntents:     existing.ParentIntents,
		ChildIntents:      existing.ChildIntents,
		UpdatedAt:         time.Now().UTC(),
	}
	c.model.Put(def)
	c.logger.Info("intent updated", "intent", def.Name, "examples", len(examples))
	return def, nil
}

// RemoveIntent deletes an intent and any aliases pointing at it. It
// returns false when the name does not resolve.
func (c *Classifier) RemoveIntent(name string) bool {
	removed := c.model.Remove(name)
	if removed {
		c.logger.Info("intent removed", "intent", name)
	}
	return removed
}

// AddAlias points an alias at an existing intent.
func (c *Classifier) AddAlias(alias, canonical string) error {
	return c.model.SetAlias(alias, canonical)
}

func trimExamples(examples []string) []string {
	out := make([]string, 0, len(examples))
	for _, ex := range examples {
		ex = strings.TrimSpace(ex)
		if ex == "" {
			continue
		}
		out = append(out, ex)
	}
	return out
}

func (c *Classifier) embedExamples(ctx context.Context, examples []string) ([][]float32, error) {
	embeddings, err := c.provider.GenerateBatchEmbeddings(ctx, c.model.EmbeddingModel, examples)
	if err != nil {
		c.metrics.ObserveProviderError("batch_embeddings")
		return nil, fmt.Errorf("intent: embed examples: %w", err)
	}
	if len(embeddings) != len(examples) {
		return nil, fmt.Errorf("intent: embedding count mismatch: got %d for %d examples", len(embeddings), len(examples))
	}
	return embeddings, nil
}

// Classify scores a query against the registered intents. A threshold
// of zero or less uses the model default.
func (c *Classifier) Classify(ctx context.Context, query string, threshold float64) (*ClassificationResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	return c.classify(ctx, query, threshold, nil)
}

// ClassifyWithContext scores a query with conversation context folded
// into the confidence blend, then records the winning detection. When
// no context store is configured it degrades to plain classification.
func (c *Classifier) ClassifyWithContext(ctx context.Context, query, conversationID string, threshold float64) (*ClassificationResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrEmptyConversationID
	}
	if c.contexts == nil {
		c.logger.Debug("no context store configured, classifying without context", "conversation_id", conversationID)
		return c.classify(ctx, query, threshold, nil)
	}

	tenantID, _ := tenancy.TenantIDFromContext(ctx)
	conv, err := c.contexts.Get(ctx, tenantID, conversationID)
	if err != nil {
		c.logger.Warn("context load failed, classifying without context",
			"conversation_id", conversationID, "error", err)
		conv = nil
	}

	result, err := c.classify(ctx, query, threshold, conv)
	if err != nil {
		return nil, err
	}

	if result.TopMatch != nil {
		det := Detection{
			Intent:     result.TopMatch.Intent,
			Confidence: result.TopMatch.Confidence,
			Timestamp:  time.Now().UTC(),
		}
		if err := c.contexts.AppendDetection(ctx, tenantID, conversationID, det); err != nil {
			c.logger.Warn("failed to record detection", "conversation_id", conversationID, "error", err)
		}
	}
	return result, nil
}

func (c *Classifier) classify(ctx context.Context, query string, threshold float64, conv *Context) (*ClassificationResult, error) {
	start := time.Now()

	ctx, span := classifierTracer.Start(ctx, "intent.classify")
	defer span.End()
	span.SetAttributes(
		attribute.Int("querylens.intent_count", c.model.Len()),
		attribute.Bool("querylens.contextual", conv != nil),
	)

	if threshold <= 0 {
		threshold = c.model.DefaultThreshold
	}
	if threshold <= 0 {
		threshold = c.cfg.SimilarityThreshold
	}

	result := &ClassificationResult{Query: query}

	defs := c.model.Definitions()
	if len(defs) == 0 {
		result.finalize(c.cfg)
		c.metrics.ObserveClassification(string(result.RecommendedAction), conv != nil, time.Since(start).Seconds())
		return result, nil
	}

	queryVec, err := c.provider.GenerateEmbedding(ctx, c.model.EmbeddingModel, query)
	if err != nil {
		c.metrics.ObserveProviderError("embedding")
		span.RecordError(err)
		return nil, fmt.Errorf("intent: embed query: %w", err)
	}

	var ctxRel float64
	var detections []Detection
	if conv != nil {
		ctxRel = contextRelevance(query, conv.Messages)
		detections = conv.Detections
	}

	for _, def := range defs {
		sim, example, ok := bestExample(queryVec, def)
		if !ok {
			continue
		}
		sim = c.clampSimilarity(def.Name, sim)
		if sim < threshold {
			continue
		}
		result.Matches = append(result.Matches, scoreMatch(c.cfg, def, sim, example, ctxRel, detections))
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Confidence > result.Matches[j].Confidence
	})
	if len(result.Matches) > 0 {
		result.TopMatch = &result.Matches[0]
		result.ContextRelevance = result.Matches[0].ContextRelevance
		result.HistoricalAccuracy = result.Matches[0].HistoricalAccuracy
	}

	result.finalize(c.cfg)
	c.metrics.ObserveClassification(string(result.RecommendedAction), conv != nil, time.Since(start).Seconds())
	return result, nil
}

// clampSimilarity forces provider similarity into [0, 1]. Values
// outside [-1, 1] indicate a provider defect and are logged; legal
// negative cosines are floored silently since no threshold admits
// them.
func (c *Classifier) clampSimilarity(intentName string, sim float64) float64 {
	if sim > 1 || sim < -1 {
		c.logger.Warn("similarity out of range, clamping", "intent", intentName, "similarity", sim)
	}
	return clamp01(sim)
}
