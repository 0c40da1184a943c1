package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/querylens/intent-platform/pkg/logging"
)

const planDraft = `{"steps":[
	{"step":1,"description":"parse the query","outcome":"user asks for a plan comparison"},
	{"step":2,"description":"identify entities","outcome":"plans: basic, pro"}
],"entities":[{"name":"plan","value":"pro","confidence":0.9}],
"suggested_actions":["show comparison table"],
"conclusion":"compare basic and pro plans","confidence":0.7}`

func newTestReasoner(provider Provider, contexts ContextStore, selfVerify bool, maxSteps int) *Reasoner {
	return NewReasoner(provider, contexts, "gpt-4o-mini", selfVerify, maxSteps, nil, logging.Discard())
}

func TestReasonValidation(t *testing.T) {
	r := newTestReasoner(&fakeProvider{}, nil, false, 0)
	if _, err := r.Reason(context.Background(), "  ", ""); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestReasonDraftOnly(t *testing.T) {
	provider := &fakeProvider{completions: []string{planDraft}}
	r := newTestReasoner(provider, nil, false, 0)

	result, err := r.Reason(context.Background(), "compare the basic and pro plans", "")
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}

	if len(result.Steps) != 2 {
		t.Fatalf("steps = %+v", result.Steps)
	}
	if result.Steps[0].Number != 1 || result.Steps[1].Description != "identify entities" {
		t.Fatalf("steps = %+v", result.Steps)
	}
	if result.Conclusion != "compare basic and pro plans" || result.Confidence != 0.7 {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Entities) != 1 || result.Entities[0].Name != "plan" {
		t.Fatalf("entities = %+v", result.Entities)
	}
	if len(result.SuggestedActions) != 1 {
		t.Fatalf("actions = %+v", result.SuggestedActions)
	}
	if result.Verified {
		t.Fatal("verification disabled, result must not claim to be verified")
	}
	if provider.calls != 1 {
		t.Fatalf("expected a single provider call, got %d", provider.calls)
	}
}

func TestReasonVerifiedValidKeepsHigherConfidence(t *testing.T) {
	provider := &fakeProvider{completions: []string{
		planDraft,
		`{"is_valid":true,"confidence":0.9}`,
	}}
	r := newTestReasoner(provider, nil, true, 0)

	result, err := r.Reason(context.Background(), "compare the basic and pro plans", "")
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if !result.Verified {
		t.Fatal("expected a verified result")
	}
	if result.Confidence != 0.9 {
		t.Fatalf("confidence = %f, want the higher of draft and verification", result.Confidence)
	}
	if result.Conclusion != "compare basic and pro plans" {
		t.Fatalf("a valid verification must not rewrite the conclusion, got %q", result.Conclusion)
	}
	if provider.calls != 2 {
		t.Fatalf("expected draft plus verification calls, got %d", provider.calls)
	}
}

func TestReasonInvalidSplicesCorrections(t *testing.T) {
	provider := &fakeProvider{completions: []string{
		planDraft,
		`{"is_valid":false,"corrections":[
			{"step":2,"outcome":"plans: basic, pro, enterprise"},
			{"step":7,"outcome":"out of range, ignored"}
		],"conclusion":"compare all three plans","confidence":0.8}`,
	}}
	r := newTestReasoner(provider, nil, true, 0)

	result, err := r.Reason(context.Background(), "compare all the plans", "")
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}

	if !result.Verified {
		t.Fatal("expected a verified result")
	}
	if result.Steps[1].Outcome != "plans: basic, pro, enterprise" {
		t.Fatalf("correction not applied: %+v", result.Steps[1])
	}
	if result.Steps[0].Outcome != "user asks for a plan comparison" {
		t.Fatalf("uncorrected step changed: %+v", result.Steps[0])
	}
	if result.Conclusion != "compare all three plans" {
		t.Fatalf("conclusion = %q", result.Conclusion)
	}
	if result.Confidence != 0.8 {
		t.Fatalf("confidence = %f, want the verification confidence", result.Confidence)
	}
}

func TestReasonMalformedVerificationKeepsDraft(t *testing.T) {
	provider := &fakeProvider{completions: []string{
		planDraft,
		"the reasoning looks fine to me",
	}}
	r := newTestReasoner(provider, nil, true, 0)

	result, err := r.Reason(context.Background(), "compare the basic and pro plans", "")
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if result.Verified {
		t.Fatal("an unusable critique must not mark the result verified")
	}
	if result.Conclusion != "compare basic and pro plans" || result.Confidence != 0.7 {
		t.Fatalf("draft should survive unchanged: %+v", result)
	}
}

func TestReasonVerificationProviderErrorKeepsDraft(t *testing.T) {
	// Only the draft is scripted, so the verification call fails.
	provider := &fakeProvider{completions: []string{planDraft}}
	r := newTestReasoner(provider, nil, true, 0)

	result, err := r.Reason(context.Background(), "compare the basic and pro plans", "")
	if err != nil {
		t.Fatalf("a verification failure must not fail the run: %v", err)
	}
	if result.Verified {
		t.Fatal("result must not claim verification after a failed pass")
	}
	if result.Confidence != 0.7 {
		t.Fatalf("confidence = %f, want the draft value", result.Confidence)
	}
}

func TestReasonDraftErrors(t *testing.T) {
	r := newTestReasoner(&fakeProvider{completionErr: errors.New("provider down")}, nil, false, 0)
	if _, err := r.Reason(context.Background(), "anything", ""); err == nil {
		t.Fatal("expected a draft failure to surface")
	} else if !strings.Contains(err.Error(), "reasoning draft") {
		t.Fatalf("err = %v", err)
	}

	r = newTestReasoner(&fakeProvider{completions: []string{"no json here"}}, nil, false, 0)
	if _, err := r.Reason(context.Background(), "anything", ""); err == nil {
		t.Fatal("expected an unparseable draft to surface")
	}
}

func TestReasonCapsStepsAndNumbersThem(t *testing.T) {
	provider := &fakeProvider{completions: []string{`{"steps":[
		{"description":"first","outcome":"a"},
		{"description":"second","outcome":"b"},
		{"description":"third","outcome":"c"}
	],"conclusion":"done","confidence":0.5}`}}
	r := newTestReasoner(provider, nil, false, 2)

	result, err := r.Reason(context.Background(), "walk me through it", "")
	if err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if len(result.Steps) != 2 {
		t.Fatalf("steps should cap at the configured maximum, got %d", len(result.Steps))
	}
	if result.Steps[0].Number != 1 || result.Steps[1].Number != 2 {
		t.Fatalf("missing step numbers should default to position: %+v", result.Steps)
	}
}

func TestReasonPromptCarriesContext(t *testing.T) {
	provider := &fakeProvider{completions: []string{planDraft}}
	store := &fakeContextStore{contexts: map[string]*Context{
		storeKey("", "conv-9"): {
			ConversationID: "conv-9",
			Messages: []Message{
				{Role: RoleUser, Content: "I am on the basic plan"},
			},
		},
	}}
	r := newTestReasoner(provider, store, false, 0)

	if _, err := r.Reason(context.Background(), "what would pro get me?", "conv-9"); err != nil {
		t.Fatalf("Reason: %v", err)
	}
	if len(provider.prompts) == 0 || !strings.Contains(provider.prompts[0], "I am on the basic plan") {
		t.Fatalf("draft prompt should carry conversation history, got %q", provider.prompts)
	}
}

func TestReconcileDoesNotMutateDraft(t *testing.T) {
	draft := &ReasoningResult{
		Steps: []ReasoningStep{
			{Number: 1, Description: "a", Outcome: "original"},
		},
		Conclusion: "original conclusion",
		Confidence: 0.7,
	}

	v, ok := parseVerification(`{"is_valid":false,"corrections":[{"step":1,"outcome":"corrected"}],"conclusion":"","confidence":0.4}`)
	if !ok {
		t.Fatal("verification fixture should parse")
	}

	out := reconcile(draft, v)
	if out.Steps[0].Outcome != "corrected" {
		t.Fatalf("out = %+v", out.Steps)
	}
	if draft.Steps[0].Outcome != "original" {
		t.Fatal("reconcile mutated the draft steps")
	}
	if out.Conclusion != "original conclusion" {
		t.Fatalf("a blank corrected conclusion should keep the draft's, got %q", out.Conclusion)
	}
	if out.Confidence != 0.4 {
		t.Fatalf("confidence = %f", out.Confidence)
	}
}
