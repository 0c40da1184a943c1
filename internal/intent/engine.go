package intent

import (
	"context"
	"strings"
	"time"

	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Resolver turns one query into a classification outcome, fallback
// included. Engine is the production implementation; the worker and the
// HTTP handler both consume this interface.
type Resolver interface {
	Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error)
}

// ResolveRequest addresses one query to a tenant's intent model.
type ResolveRequest struct {
	TenantID       string  `json:"tenant_id"`
	Query          string  `json:"query"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Threshold      float64 `json:"threshold,omitempty"`
}

// Resolution is the combined pipeline outcome: the classification
// result, plus the fallback outcome when the classifier could not
// settle the query.
type Resolution struct {
	Result   *ClassificationResult `json:"result"`
	Fallback *FallbackResult       `json:"fallback,omitempty"`
}

// HandoffEvent describes a query that exhausted the fallback ladder and
// needs a human.
type HandoffEvent struct {
	TenantID       string
	ConversationID string
	Query          string
	Reason         string
	OccurredAt     time.Time
}

// HandoffNotifier alerts operators about explicit handoffs.
// Notifications are best-effort; failures never fail the resolution.
type HandoffNotifier interface {
	NotifyHandoff(ctx context.Context, ev HandoffEvent) error
}

// Engine chains the classifier and the fallback controller. A weak
// classification runs the ladder; an explicit handoff notifies
// operators. Generated clarification questions pass the output guard
// before they reach the caller.
type Engine struct {
	classifier *Classifier
	fallback   *Controller
	notifier   HandoffNotifier
	logger     *logging.Logger
}

// NewEngine wires the resolution pipeline. fallback and notifier may be
// nil; a nil fallback returns weak classifications as-is.
func NewEngine(classifier *Classifier, fallback *Controller, notifier HandoffNotifier, logger *logging.Logger) *Engine {
	if classifier == nil {
		panic("intent: classifier cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		classifier: classifier,
		fallback:   fallback,
		notifier:   notifier,
		logger:     logger,
	}
}

var _ Resolver = (*Engine)(nil)

// Resolve classifies the query, escalates through the fallback ladder
// when the result is too weak to act on, and fires the handoff notifier
// when the ladder terminates in an explicit handoff.
func (e *Engine) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if strings.TrimSpace(req.TenantID) != "" {
		ctx = tenancy.WithTenantID(ctx, req.TenantID)
	}

	result, err := e.classify(ctx, req)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Result: result}
	if e.fallback == nil || !result.NeedsFallback() {
		return res, nil
	}

	fb, err := e.fallback.ApplyFallback(ctx, req.Query, result, req.ConversationID)
	if err != nil {
		return nil, err
	}
	fb.ClarificationQuestions = guardQuestions(fb.ClarificationQuestions)
	res.Fallback = fb

	if fb.Level == LevelExplicitHandoff {
		e.notifyHandoff(ctx, req, fb)
	}
	return res, nil
}

func (e *Engine) classify(ctx context.Context, req ResolveRequest) (*ClassificationResult, error) {
	if strings.TrimSpace(req.ConversationID) == "" {
		return e.classifier.Classify(ctx, req.Query, req.Threshold)
	}
	return e.classifier.ClassifyWithContext(ctx, req.Query, req.ConversationID, req.Threshold)
}

func (e *Engine) notifyHandoff(ctx context.Context, req ResolveRequest, fb *FallbackResult) {
	if e.notifier == nil {
		return
	}

	ev := HandoffEvent{
		TenantID:       req.TenantID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Reason:         fb.Reason,
		OccurredAt:     time.Now().UTC(),
	}

	notifyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := e.notifier.NotifyHandoff(notifyCtx, ev); err != nil {
		e.logger.Warn("handoff notification failed",
			"error", err, "tenant_id", req.TenantID, "conversation_id", req.ConversationID)
	}
}
