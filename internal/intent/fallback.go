package intent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// FallbackLevel names one tier of the escalation ladder.
type FallbackLevel string

const (
	LevelRequestClarification FallbackLevel = "request_clarification"
	LevelGeneralizedIntent    FallbackLevel = "generalized_intent"
	LevelPartialExtraction    FallbackLevel = "partial_extraction"
	LevelExplicitHandoff      FallbackLevel = "explicit_handoff"
)

// Alternatives below this confidence are discarded during tier one.
const minAlternativeConfidence = 0.2

// MisclassificationRecord captures one fallback attempt for audit and
// model tuning. ExpectedIntent stays empty until a reviewer labels it.
type MisclassificationRecord struct {
	ID             string        `json:"id"`
	TenantID       string        `json:"tenant_id"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Query          string        `json:"query"`
	ActualIntent   string        `json:"actual_intent"`
	ExpectedIntent string        `json:"expected_intent,omitempty"`
	Confidence     float64       `json:"confidence"`
	Level          FallbackLevel `json:"level"`
	Successful     bool          `json:"successful"`
	Details        string        `json:"details,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// MisclassificationStore is the audit sink for fallback attempts.
type MisclassificationStore interface {
	Record(ctx context.Context, rec *MisclassificationRecord) error
}

// FallbackResult is the terminal outcome of one escalation run.
type FallbackResult struct {
	Level                   FallbackLevel            `json:"level"`
	OriginalResult          *ClassificationResult    `json:"original_result"`
	FinalResult             *ClassificationResult    `json:"final_result,omitempty"`
	Alternatives            []Alternative            `json:"alternatives,omitempty"`
	ClarificationQuestions  []string                 `json:"clarification_questions,omitempty"`
	ExtractedEntities       []ExtractedEntity        `json:"extracted_entities,omitempty"`
	MissingInformation      []string                 `json:"missing_information,omitempty"`
	Successful              bool                     `json:"successful"`
	Reason                  string                   `json:"reason"`
	RequiresUserInteraction bool                     `json:"requires_user_interaction"`
	Record                  *MisclassificationRecord `json:"record,omitempty"`
}

// Controller runs the four-tier escalation ladder for queries the
// classifier could not resolve confidently. Each tier costs one
// provider round-trip; tiers fail soft and the ladder always ends in
// one of the four levels.
type Controller struct {
	provider        Provider
	model           *Model
	contexts        ContextStore
	audit           MisclassificationStore
	completionModel string
	cfg             Config
	metrics         *metrics.IntentMetrics
	logger          *logging.Logger
}

// NewController wires a fallback controller. model, contexts, audit,
// and m may be nil; a nil model just leaves the intent catalog out of
// tier-one prompts.
func NewController(provider Provider, model *Model, contexts ContextStore, audit MisclassificationStore, completionModel string, cfg Config, m *metrics.IntentMetrics, logger *logging.Logger) *Controller {
	if provider == nil {
		panic("intent: provider cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		provider:        provider,
		model:           model,
		contexts:        contexts,
		audit:           audit,
		completionModel: completionModel,
		cfg:             cfg.withDefaults(),
		metrics:         m,
		logger:          logger,
	}
}

// ApplyFallback runs the ladder for a query whose initial
// classification was too weak. It validates its arguments and then
// never fails: every internal error degrades to the next tier, and
// anything unrecoverable forces an explicit handoff.
func (f *Controller) ApplyFallback(ctx context.Context, query string, initial *ClassificationResult, conversationID string) (result *FallbackResult, err error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if initial == nil {
		return nil, ErrNilResult
	}

	tenantID, _ := tenancy.TenantIDFromContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("fallback escalation panicked, forcing handoff", "query", query, "panic", fmt.Sprint(r))
			result = f.handoff(ctx, tenantID, conversationID, query, initial, fmt.Sprintf("escalation aborted: %v", r))
			err = nil
		}
	}()

	conv := fetchContext(ctx, f.contexts, tenantID, conversationID, f.logger)

	if res, ok := f.requestClarification(ctx, tenantID, conversationID, query, initial, conv); ok {
		return res, nil
	}
	if res, ok := f.generalizedIntent(ctx, tenantID, conversationID, query, initial, conv); ok {
		return res, nil
	}
	if res, ok := f.partialExtraction(ctx, tenantID, conversationID, query, initial, conv); ok {
		return res, nil
	}
	return f.handoff(ctx, tenantID, conversationID, query, initial, "all fallback tiers exhausted"), nil
}

// requestClarification is tier one: discover alternative intents and,
// when one beats the original confidence, turn the best of them into
// clarification questions.
func (f *Controller) requestClarification(ctx context.Context, tenantID, conversationID, query string, initial *ClassificationResult, conv *Context) (*FallbackResult, bool) {
	origIntent := topIntent(initial)
	origConfidence := topConfidence(initial)

	prompt := fmt.Sprintf(alternativesPrompt, origIntent, origConfidence, formatCatalog(f.model), formatContext(conv), query)
	raw, err := f.complete(ctx, prompt, 400)
	if err != nil {
		f.logger.Warn("alternative discovery failed", "query", query, "error", err)
		f.record(ctx, tenantID, conversationID, query, initial, LevelRequestClarification, false, "provider error during alternative discovery")
		return nil, false
	}

	alternatives := f.filterAlternatives(parseAlternatives(raw), origIntent)
	if len(alternatives) == 0 {
		f.record(ctx, tenantID, conversationID, query, initial, LevelRequestClarification, false, "no usable alternatives returned")
		return nil, false
	}

	better := false
	for _, alt := range alternatives {
		if alt.Confidence > origConfidence {
			better = true
			break
		}
	}
	if !better {
		f.record(ctx, tenantID, conversationID, query, initial, LevelRequestClarification, false,
			fmt.Sprintf("%d alternatives found, none above original confidence %.2f", len(alternatives), origConfidence))
		return nil, false
	}

	questions := make([]string, 0, f.cfg.MaxClarifyQuestions)
	for _, alt := range alternatives {
		if len(questions) >= f.cfg.MaxClarifyQuestions {
			break
		}
		questions = append(questions, questionForAlternative(alt))
	}

	rec := f.record(ctx, tenantID, conversationID, query, initial, LevelRequestClarification, true,
		fmt.Sprintf("%d alternatives, best %q at %.2f", len(alternatives), alternatives[0].Intent, alternatives[0].Confidence))
	f.metrics.ObserveFallback(string(LevelRequestClarification), true)

	return &FallbackResult{
		Level:                   LevelRequestClarification,
		OriginalResult:          initial,
		Alternatives:            alternatives,
		ClarificationQuestions:  questions,
		Successful:              true,
		Reason:                  "stronger alternative intents found, asking user to clarify",
		RequiresUserInteraction: true,
		Record:                  rec,
	}, true
}

// filterAlternatives drops the original intent and weak candidates,
// ranks the rest by confidence, and caps the list.
func (f *Controller) filterAlternatives(alternatives []Alternative, origIntent string) []Alternative {
	orig := normalizeName(origIntent)
	filtered := make([]Alternative, 0, len(alternatives))
	for _, alt := range alternatives {
		if normalizeName(alt.Intent) == orig {
			continue
		}
		if alt.Confidence < minAlternativeConfidence {
			continue
		}
		filtered = append(filtered, alt)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Confidence > filtered[j].Confidence
	})
	if len(filtered) > f.cfg.MaxAlternatives {
		filtered = filtered[:f.cfg.MaxAlternatives]
	}
	return filtered
}

func questionForAlternative(alt Alternative) string {
	if alt.Reason != "" {
		return fmt.Sprintf("It sounds like you might be asking about %q (%s). Is that right?", alt.Intent, alt.Reason)
	}
	return fmt.Sprintf("It sounds like you might be asking about %q. Is that right?", alt.Intent)
}

// generalizedIntent is tier two: reclassify under a broad category not
// tied to the registered intent set.
func (f *Controller) generalizedIntent(ctx context.Context, tenantID, conversationID, query string, initial *ClassificationResult, conv *Context) (*FallbackResult, bool) {
	prompt := fmt.Sprintf(generalizedPrompt, formatContext(conv), query)
	raw, err := f.complete(ctx, prompt, 250)
	if err != nil {
		f.logger.Warn("generalized reclassification failed", "query", query, "error", err)
		f.record(ctx, tenantID, conversationID, query, initial, LevelGeneralizedIntent, false, "provider error during generalized reclassification")
		return nil, false
	}

	guess := parseGeneralized(raw)
	if guess.Confidence < f.cfg.GeneralizedThreshold {
		f.record(ctx, tenantID, conversationID, query, initial, LevelGeneralizedIntent, false,
			fmt.Sprintf("generalized intent %q at %.2f below threshold %.2f", guess.Intent, guess.Confidence, f.cfg.GeneralizedThreshold))
		return nil, false
	}

	rec := f.record(ctx, tenantID, conversationID, query, initial, LevelGeneralizedIntent, true,
		fmt.Sprintf("generalized to %q at %.2f", guess.Intent, guess.Confidence))
	f.metrics.ObserveFallback(string(LevelGeneralizedIntent), true)

	reason := fmt.Sprintf("reclassified under broader intent %q", guess.Intent)
	if guess.Reasoning != "" {
		reason = fmt.Sprintf("%s: %s", reason, guess.Reasoning)
	}

	return &FallbackResult{
		Level:          LevelGeneralizedIntent,
		OriginalResult: initial,
		FinalResult:    f.synthesizeResult(query, guess.Intent, guess.Confidence),
		Successful:     true,
		Reason:         reason,
		Record:         rec,
	}, true
}

// partialExtraction is tier three: salvage whatever entities and
// partial intent the provider can identify and report what is missing.
func (f *Controller) partialExtraction(ctx context.Context, tenantID, conversationID, query string, initial *ClassificationResult, conv *Context) (*FallbackResult, bool) {
	prompt := fmt.Sprintf(partialPrompt, formatContext(conv), query)
	raw, err := f.complete(ctx, prompt, 400)
	if err != nil {
		f.logger.Warn("partial extraction failed", "query", query, "error", err)
		f.record(ctx, tenantID, conversationID, query, initial, LevelPartialExtraction, false, "provider error during partial extraction")
		return nil, false
	}

	extraction := parsePartial(raw)
	best := 0.0
	for _, ent := range extraction.Entities {
		if ent.Confidence > best {
			best = ent.Confidence
		}
	}
	if best < f.cfg.PartialThreshold {
		f.record(ctx, tenantID, conversationID, query, initial, LevelPartialExtraction, false,
			fmt.Sprintf("%d entities extracted, best %.2f below threshold %.2f", len(extraction.Entities), best, f.cfg.PartialThreshold))
		return nil, false
	}

	rec := f.record(ctx, tenantID, conversationID, query, initial, LevelPartialExtraction, true,
		fmt.Sprintf("%d entities extracted, best %.2f, missing %d items", len(extraction.Entities), best, len(extraction.Missing)))
	f.metrics.ObserveFallback(string(LevelPartialExtraction), true)

	var final *ClassificationResult
	if strings.TrimSpace(extraction.Intent) != "" {
		final = f.synthesizeResult(query, extraction.Intent, best)
	}

	reason := fmt.Sprintf("partially understood with %d entities", len(extraction.Entities))
	if len(extraction.Missing) > 0 {
		reason = fmt.Sprintf("%s; missing: %s", reason, strings.Join(extraction.Missing, ", "))
	}

	return &FallbackResult{
		Level:                   LevelPartialExtraction,
		OriginalResult:          initial,
		FinalResult:             final,
		ExtractedEntities:       extraction.Entities,
		MissingInformation:      extraction.Missing,
		Successful:              true,
		Reason:                  reason,
		RequiresUserInteraction: true,
		Record:                  rec,
	}, true
}

// handoff is the terminal tier: the query goes to a human or another
// system, carrying the original classification unchanged.
func (f *Controller) handoff(ctx context.Context, tenantID, conversationID, query string, initial *ClassificationResult, reason string) *FallbackResult {
	rec := f.record(ctx, tenantID, conversationID, query, initial, LevelExplicitHandoff, false, reason)
	f.metrics.ObserveFallback(string(LevelExplicitHandoff), false)
	return &FallbackResult{
		Level:                   LevelExplicitHandoff,
		OriginalResult:          initial,
		FinalResult:             initial,
		Successful:              false,
		Reason:                  reason,
		RequiresUserInteraction: true,
		Record:                  rec,
	}
}

func (f *Controller) complete(ctx context.Context, prompt string, maxTokens int32) (string, error) {
	raw, err := f.provider.GenerateChatCompletion(ctx, f.completionModel, []ChatMessage{
		{Role: RoleUser, Content: prompt},
	}, GenerationParams{MaxTokens: maxTokens, Temperature: 0.2})
	if err != nil {
		f.metrics.ObserveProviderError("chat_completion")
		return "", err
	}
	return raw, nil
}

// synthesizeResult builds a single-candidate classification result for
// intents produced by escalation rather than the embedding path.
func (f *Controller) synthesizeResult(query, intentName string, confidence float64) *ClassificationResult {
	result := &ClassificationResult{
		Query: query,
		Matches: []Match{{
			Intent:     intentName,
			Confidence: clamp01(confidence),
			RawScore:   clamp01(confidence),
		}},
	}
	result.TopMatch = &result.Matches[0]
	result.finalize(f.cfg)
	return result
}

// record builds the audit record for a tier attempt and persists it
// best-effort when an audit sink is configured.
func (f *Controller) record(ctx context.Context, tenantID, conversationID, query string, initial *ClassificationResult, level FallbackLevel, successful bool, details string) *MisclassificationRecord {
	rec := &MisclassificationRecord{
		ID:             uuid.NewString(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Query:          query,
		ActualIntent:   topIntent(initial),
		Confidence:     topConfidence(initial),
		Level:          level,
		Successful:     successful,
		Details:        details,
		CreatedAt:      time.Now().UTC(),
	}
	if f.audit != nil {
		if err := f.audit.Record(ctx, rec); err != nil {
			f.logger.Warn("failed to persist misclassification record", "level", level, "error", err)
		}
	}
	return rec
}

func topIntent(result *ClassificationResult) string {
	if result == nil || result.TopMatch == nil {
		return ""
	}
	return result.TopMatch.Intent
}

func topConfidence(result *ClassificationResult) float64 {
	if result == nil || result.TopMatch == nil {
		return 0
	}
	return result.TopMatch.Confidence
}
