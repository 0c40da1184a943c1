package intent

import (
	"fmt"
	"strings"
)

// Action is what the caller should do with a classification result.
type Action string

const (
	ActionProceed            Action = "proceed"
	ActionProceedWithCaution Action = "proceed_with_caution"
	ActionClarify            Action = "clarify"
	ActionFallback           Action = "fallback"
	ActionNoMatch            Action = "no_match"
)

// Match is one candidate intent with its score breakdown.
type Match struct {
	Intent             string  `json:"intent"`
	MatchedExample     string  `json:"matched_example"`
	Similarity         float64 `json:"similarity"`
	ContextRelevance   float64 `json:"context_relevance"`
	HistoricalAccuracy float64 `json:"historical_accuracy"`
	ContextualBoost    float64 `json:"contextual_boost"`
	RawScore           float64 `json:"raw_score"`
	Confidence         float64 `json:"confidence"`
}

// ClassificationResult is the outcome of classifying one query:
// candidates ranked by confidence, the ambiguity verdict, and the
// recommended action.
type ClassificationResult struct {
	Query                  string  `json:"query"`
	Matches                []Match `json:"matches"`
	TopMatch               *Match  `json:"top_match,omitempty"`
	IsAmbiguous            bool    `json:"is_ambiguous"`
	ConfidenceDifferential float64 `json:"confidence_differential"`
	RecommendedAction      Action  `json:"recommended_action"`
	ClarificationQuestion  string  `json:"clarification_question,omitempty"`
	Explanation            string  `json:"explanation"`
	ContextRelevance       float64 `json:"context_relevance"`
	HistoricalAccuracy     float64 `json:"historical_accuracy"`
}

// NeedsFallback reports whether the result is weak enough that the
// fallback ladder should run: no candidates at all, or a top match the
// builder routed to fallback.
func (r *ClassificationResult) NeedsFallback() bool {
	if r == nil {
		return true
	}
	return r.RecommendedAction == ActionNoMatch || r.RecommendedAction == ActionFallback
}

// calculateAmbiguity sets the confidence differential between the top
// two candidates. Fewer than two candidates means a differential of 1
// and no ambiguity.
func (r *ClassificationResult) calculateAmbiguity(margin float64) {
	if len(r.Matches) < 2 {
		r.ConfidenceDifferential = 1.0
		r.IsAmbiguous = false
		return
	}
	r.ConfidenceDifferential = r.Matches[0].Confidence - r.Matches[1].Confidence
	r.IsAmbiguous = r.ConfidenceDifferential < margin
}

// determineRecommendedAction derives the action from the ranked
// candidates. Precedence: no match, then mismatch, then ambiguous,
// then high confidence, then caution. Must run after
// calculateAmbiguity.
func (r *ClassificationResult) determineRecommendedAction(cfg Config) {
	if r.TopMatch == nil {
		r.RecommendedAction = ActionNoMatch
		return
	}

	top := r.TopMatch.Confidence
	switch {
	case top < cfg.MismatchThreshold:
		r.RecommendedAction = ActionFallback
	case r.IsAmbiguous && top < cfg.HighConfidenceThreshold:
		r.RecommendedAction = ActionClarify
		r.ClarificationQuestion = clarificationQuestion(r.Matches)
	case top >= cfg.HighConfidenceThreshold:
		r.RecommendedAction = ActionProceed
	default:
		r.RecommendedAction = ActionProceedWithCaution
	}
}

// clarificationQuestion builds a disambiguation question from the
// ranked candidates: a two-way question for exactly two, otherwise a
// three-way question over the top three.
func clarificationQuestion(matches []Match) string {
	switch {
	case len(matches) < 2:
		return ""
	case len(matches) == 2:
		return fmt.Sprintf("Did you mean %q or %q?", matches[0].Intent, matches[1].Intent)
	default:
		return fmt.Sprintf("I want to make sure I understand. Are you asking about %q, %q, or %q?",
			matches[0].Intent, matches[1].Intent, matches[2].Intent)
	}
}

// buildExplanation writes the audit trail for the decision: each
// contributing factor with its value, boost and ambiguity lines only
// when they apply, ending with the final confidence and action. Must
// run after determineRecommendedAction.
func (r *ClassificationResult) buildExplanation() {
	if r.TopMatch == nil {
		r.Explanation = fmt.Sprintf("no intent matched the similarity threshold; recommended action %s", r.RecommendedAction)
		return
	}

	top := r.TopMatch
	var b strings.Builder
	fmt.Fprintf(&b, "top intent %q via example %q; ", top.Intent, top.MatchedExample)
	fmt.Fprintf(&b, "semantic similarity %.2f; ", top.Similarity)
	fmt.Fprintf(&b, "context relevance %.2f; ", top.ContextRelevance)
	fmt.Fprintf(&b, "historical accuracy %.2f; ", top.HistoricalAccuracy)
	if top.ContextualBoost != 0 {
		fmt.Fprintf(&b, "contextual boost +%.2f; ", top.ContextualBoost)
	}
	if r.IsAmbiguous {
		fmt.Fprintf(&b, "ambiguous with differential %.2f; ", r.ConfidenceDifferential)
	}
	fmt.Fprintf(&b, "final confidence %.2f; recommended action %s", top.Confidence, r.RecommendedAction)
	r.Explanation = b.String()
}

// finalize runs the builder steps in their required order.
func (r *ClassificationResult) finalize(cfg Config) {
	r.calculateAmbiguity(cfg.AmbiguityMargin)
	r.determineRecommendedAction(cfg)
	r.buildExplanation()
}
