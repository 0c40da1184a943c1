package intent

import (
	"strings"
	"testing"
)

func TestCalculateAmbiguityFewMatches(t *testing.T) {
	for _, matches := range [][]Match{nil, {{Intent: "a", Confidence: 0.7}}} {
		r := &ClassificationResult{Matches: matches}
		if len(matches) > 0 {
			r.TopMatch = &r.Matches[0]
		}
		r.calculateAmbiguity(0.15)
		if r.IsAmbiguous {
			t.Fatalf("expected %d matches to never be ambiguous", len(matches))
		}
		if r.ConfidenceDifferential != 1.0 {
			t.Fatalf("differential = %f, want 1.0", r.ConfidenceDifferential)
		}
	}
}

func TestCalculateAmbiguityDifferential(t *testing.T) {
	r := &ClassificationResult{
		Matches: []Match{
			{Intent: "a", Confidence: 0.62},
			{Intent: "b", Confidence: 0.55},
		},
	}
	r.TopMatch = &r.Matches[0]
	r.calculateAmbiguity(0.15)

	if !r.IsAmbiguous {
		t.Fatal("expected differential 0.07 under margin 0.15 to be ambiguous")
	}

	r.calculateAmbiguity(0.05)
	if r.IsAmbiguous {
		t.Fatal("expected differential 0.07 over margin 0.05 to not be ambiguous")
	}
}

func TestDetermineRecommendedActionPrecedence(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name        string
		matches     []Match
		isAmbiguous bool
		want        Action
	}{
		{
			name: "no matches",
			want: ActionNoMatch,
		},
		{
			name:    "below mismatch threshold",
			matches: []Match{{Intent: "a", Confidence: 0.2}},
			want:    ActionFallback,
		},
		{
			name:        "ambiguous below high confidence",
			matches:     []Match{{Intent: "a", Confidence: 0.6}, {Intent: "b", Confidence: 0.55}},
			isAmbiguous: true,
			want:        ActionClarify,
		},
		{
			name:        "ambiguous but high confidence proceeds",
			matches:     []Match{{Intent: "a", Confidence: 0.9}, {Intent: "b", Confidence: 0.88}},
			isAmbiguous: true,
			want:        ActionProceed,
		},
		{
			name:    "high confidence",
			matches: []Match{{Intent: "a", Confidence: 0.9}},
			want:    ActionProceed,
		},
		{
			name:    "middle ground proceeds with caution",
			matches: []Match{{Intent: "a", Confidence: 0.6}},
			want:    ActionProceedWithCaution,
		},
		{
			name:        "mismatch wins over ambiguity",
			matches:     []Match{{Intent: "a", Confidence: 0.25}, {Intent: "b", Confidence: 0.24}},
			isAmbiguous: true,
			want:        ActionFallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &ClassificationResult{Matches: tt.matches, IsAmbiguous: tt.isAmbiguous}
			if len(tt.matches) > 0 {
				r.TopMatch = &r.Matches[0]
			}
			r.determineRecommendedAction(cfg)
			if r.RecommendedAction != tt.want {
				t.Fatalf("action = %s, want %s", r.RecommendedAction, tt.want)
			}
		})
	}
}

func TestClarifyGeneratesQuestion(t *testing.T) {
	cfg := DefaultConfig()

	r := &ClassificationResult{
		Matches: []Match{
			{Intent: "cancel_subscription", Confidence: 0.6},
			{Intent: "billing_inquiry", Confidence: 0.55},
		},
		IsAmbiguous: true,
	}
	r.TopMatch = &r.Matches[0]
	r.determineRecommendedAction(cfg)

	if r.ClarificationQuestion == "" {
		t.Fatal("expected a clarification question")
	}
	if !strings.Contains(r.ClarificationQuestion, "cancel_subscription") || !strings.Contains(r.ClarificationQuestion, "billing_inquiry") {
		t.Fatalf("question should name both intents, got %q", r.ClarificationQuestion)
	}
}

func TestClarificationQuestionThreeWay(t *testing.T) {
	matches := []Match{
		{Intent: "a", Confidence: 0.6},
		{Intent: "b", Confidence: 0.58},
		{Intent: "c", Confidence: 0.57},
		{Intent: "d", Confidence: 0.2},
	}
	q := clarificationQuestion(matches)
	for _, name := range []string{"a", "b", "c"} {
		if !strings.Contains(q, `"`+name+`"`) {
			t.Fatalf("three-way question should name %q, got %q", name, q)
		}
	}
	if strings.Contains(q, `"d"`) {
		t.Fatalf("three-way question should stop at three intents, got %q", q)
	}
}

func TestBuildExplanation(t *testing.T) {
	cfg := DefaultConfig()

	r := &ClassificationResult{
		Query: "hello there",
		Matches: []Match{{
			Intent:             "greeting",
			MatchedExample:     "hello",
			Similarity:         0.92,
			ContextRelevance:   0.4,
			HistoricalAccuracy: 0.2,
			Confidence:         0.68,
		}},
	}
	r.TopMatch = &r.Matches[0]
	r.finalize(cfg)

	for _, want := range []string{"greeting", "0.92", "final confidence 0.68", string(ActionProceedWithCaution)} {
		if !strings.Contains(r.Explanation, want) {
			t.Fatalf("explanation missing %q: %s", want, r.Explanation)
		}
	}
	if strings.Contains(r.Explanation, "contextual boost") {
		t.Fatalf("zero boost should not appear in explanation: %s", r.Explanation)
	}
	if strings.Contains(r.Explanation, "ambiguous") {
		t.Fatalf("unambiguous result should not mention ambiguity: %s", r.Explanation)
	}
}

func TestBuildExplanationIncludesBoostAndAmbiguity(t *testing.T) {
	cfg := DefaultConfig()

	r := &ClassificationResult{
		Query: "hello",
		Matches: []Match{
			{Intent: "greeting", Confidence: 0.62, ContextualBoost: 0.2},
			{Intent: "farewell", Confidence: 0.6},
		},
	}
	r.TopMatch = &r.Matches[0]
	r.finalize(cfg)

	if !strings.Contains(r.Explanation, "contextual boost +0.20") {
		t.Fatalf("expected boost line, got %s", r.Explanation)
	}
	if !strings.Contains(r.Explanation, "ambiguous") {
		t.Fatalf("expected ambiguity line, got %s", r.Explanation)
	}
}

func TestBuildExplanationNoMatch(t *testing.T) {
	r := &ClassificationResult{Query: "gibberish"}
	r.finalize(DefaultConfig())

	if !strings.Contains(r.Explanation, string(ActionNoMatch)) {
		t.Fatalf("no-match explanation should name the action, got %s", r.Explanation)
	}
}

func TestNeedsFallback(t *testing.T) {
	if !(&ClassificationResult{RecommendedAction: ActionNoMatch}).NeedsFallback() {
		t.Fatal("no_match should need fallback")
	}
	if !(&ClassificationResult{RecommendedAction: ActionFallback}).NeedsFallback() {
		t.Fatal("fallback action should need fallback")
	}
	if (&ClassificationResult{RecommendedAction: ActionClarify}).NeedsFallback() {
		t.Fatal("clarify should not need fallback")
	}
	var nilResult *ClassificationResult
	if !nilResult.NeedsFallback() {
		t.Fatal("nil result should need fallback")
	}
}
