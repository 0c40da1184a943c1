package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// ReasoningStep is one step of a chain-of-thought run.
type ReasoningStep struct {
	Number      int    `json:"number"`
	Description string `json:"description"`
	Outcome     string `json:"outcome"`
}

// ReasoningResult is the outcome of a chain-of-thought run, possibly
// revised by a self-verification pass.
type ReasoningResult struct {
	Query            string            `json:"query"`
	Steps            []ReasoningStep   `json:"steps"`
	Entities         []ExtractedEntity `json:"entities,omitempty"`
	SuggestedActions []string          `json:"suggested_actions,omitempty"`
	Conclusion       string            `json:"conclusion"`
	Confidence       float64           `json:"confidence"`
	Verified         bool              `json:"verified"`
}

// Reasoner runs the multi-step reasoning workflow for complex queries:
// a structured draft pass and an optional self-verification pass that
// can splice corrections into the draft.
type Reasoner struct {
	provider        Provider
	contexts        ContextStore
	completionModel string
	selfVerify      bool
	maxSteps        int
	metrics         *metrics.IntentMetrics
	logger          *logging.Logger
}

// NewReasoner wires a reasoning engine. contexts and m may be nil.
func NewReasoner(provider Provider, contexts ContextStore, completionModel string, selfVerify bool, maxSteps int, m *metrics.IntentMetrics, logger *logging.Logger) *Reasoner {
	if provider == nil {
		panic("intent: provider cannot be nil")
	}
	if maxSteps <= 0 {
		maxSteps = 5
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reasoner{
		provider:        provider,
		contexts:        contexts,
		completionModel: completionModel,
		selfVerify:      selfVerify,
		maxSteps:        maxSteps,
		metrics:         m,
		logger:          logger,
	}
}

// Reason drafts a structured chain of thought for the query and, when
// self-verification is enabled, reconciles the draft against a second
// critique pass. A malformed critique leaves the draft untouched.
func (r *Reasoner) Reason(ctx context.Context, query, conversationID string) (*ReasoningResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	tenantID, _ := tenancy.TenantIDFromContext(ctx)
	conv := fetchContext(ctx, r.contexts, tenantID, conversationID, r.logger)

	draft, err := r.draft(ctx, query, conv)
	if err != nil {
		return nil, err
	}

	if !r.selfVerify {
		r.metrics.ObserveReasoning(false)
		return draft, nil
	}

	verification, ok := r.verify(ctx, query, draft)
	if !ok {
		r.logger.Warn("verification response unusable, keeping draft", "query", query)
		r.metrics.ObserveReasoning(false)
		return draft, nil
	}

	final := reconcile(draft, verification)
	r.metrics.ObserveReasoning(true)
	return final, nil
}

func (r *Reasoner) draft(ctx context.Context, query string, conv *Context) (*ReasoningResult, error) {
	prompt := fmt.Sprintf(reasoningPrompt, formatContext(conv), query)
	raw, err := r.provider.GenerateChatCompletion(ctx, r.completionModel, []ChatMessage{
		{Role: RoleUser, Content: prompt},
	}, GenerationParams{MaxTokens: 800, Temperature: 0.2})
	if err != nil {
		r.metrics.ObserveProviderError("chat_completion")
		return nil, fmt.Errorf("intent: reasoning draft: %w", err)
	}

	payload, ok := parseReasoning(raw)
	if !ok {
		return nil, fmt.Errorf("intent: reasoning response could not be parsed")
	}

	steps := make([]ReasoningStep, 0, len(payload.Steps))
	for i, step := range payload.Steps {
		if len(steps) >= r.maxSteps {
			break
		}
		number := step.Step
		if number <= 0 {
			number = i + 1
		}
		steps = append(steps, ReasoningStep{
			Number:      number,
			Description: step.Description,
			Outcome:     step.Outcome,
		})
	}

	return &ReasoningResult{
		Query:            query,
		Steps:            steps,
		Entities:         payload.Entities,
		SuggestedActions: payload.SuggestedActions,
		Conclusion:       payload.Conclusion,
		Confidence:       payload.Confidence,
	}, nil
}

func (r *Reasoner) verify(ctx context.Context, query string, draft *ReasoningResult) (verificationPayload, bool) {
	prompt := fmt.Sprintf(verificationPrompt, query, formatSteps(draft.Steps), draft.Conclusion)
	raw, err := r.provider.GenerateChatCompletion(ctx, r.completionModel, []ChatMessage{
		{Role: RoleUser, Content: prompt},
	}, GenerationParams{MaxTokens: 500, Temperature: 0})
	if err != nil {
		r.metrics.ObserveProviderError("chat_completion")
		r.logger.Warn("verification pass failed", "query", query, "error", err)
		return verificationPayload{}, false
	}
	return parseVerification(raw)
}

// reconcile merges a verification pass into a draft without mutating
// either. A valid critique keeps the draft with the higher of the two
// confidences; an invalid one splices per-step corrections in by their
// 1-based index and replaces the conclusion and confidence.
func reconcile(draft *ReasoningResult, v verificationPayload) *ReasoningResult {
	out := *draft
	out.Steps = append([]ReasoningStep(nil), draft.Steps...)
	out.Verified = true

	if v.IsValid {
		if v.Confidence > out.Confidence {
			out.Confidence = v.Confidence
		}
		return &out
	}

	for _, corr := range v.Corrections {
		idx := corr.Step - 1
		if idx < 0 || idx >= len(out.Steps) {
			continue
		}
		out.Steps[idx].Outcome = corr.Outcome
	}
	if strings.TrimSpace(v.Conclusion) != "" {
		out.Conclusion = v.Conclusion
	}
	out.Confidence = v.Confidence
	return &out
}
