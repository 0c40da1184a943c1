package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/querylens/intent-platform/internal/observability/metrics"
	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// ModelStore persists intent definitions and aliases per tenant.
// *DefinitionStore is the production implementation.
type ModelStore interface {
	LoadModel(ctx context.Context, tenantID, embeddingModel string, defaultThreshold float64) (*Model, error)
	UpsertDefinition(ctx context.Context, tenantID string, def *Definition) error
	DeleteDefinition(ctx context.Context, tenantID, name string) error
	UpsertAlias(ctx context.Context, tenantID, alias, canonical string) error
}

// RegistryConfig collects the shared pieces a per-tenant pipeline is
// built from.
type RegistryConfig struct {
	Provider        Provider
	Contexts        ContextStore
	Audit           MisclassificationStore
	Store           ModelStore
	Notifier        HandoffNotifier
	EmbeddingModel  string
	CompletionModel string
	Config          Config
	Metrics         *metrics.IntentMetrics
	Logger          *logging.Logger
}

// Registry serves per-tenant resolution pipelines. A pipeline is built
// lazily on the first request for a tenant: definitions load from the
// store and a classifier, fallback controller, and engine are wired
// around the shared provider. Mutations write through to the store and
// update the cached model; a failed write drops the cached pipeline so
// the next request rebuilds from storage.
//
// The model carries no internal locking, so the registry serializes
// access: mutations hold a pipeline-level write lock, resolution holds
// a read lock for the duration of the call.
type Registry struct {
	cfg RegistryConfig

	mu        sync.RWMutex
	pipelines map[string]*pipeline
	locks     sync.Map // tenantID -> *sync.Mutex, serializes pipeline builds
}

type pipeline struct {
	mu         sync.RWMutex
	model      *Model
	classifier *Classifier
	fallback   *Controller
	engine     *Engine
}

// NewRegistry wires a tenant registry. Store may be nil, which keeps
// every tenant's model in memory only.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Provider == nil {
		panic("intent: provider cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Registry{
		cfg:       cfg,
		pipelines: make(map[string]*pipeline),
	}
}

var _ Resolver = (*Registry)(nil)

// Resolve dispatches the request to the tenant's engine. A blank
// TenantID falls back to the tenant carried in ctx.
func (r *Registry) Resolve(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	if strings.TrimSpace(req.TenantID) == "" {
		if fromCtx, ok := tenancy.TenantIDFromContext(ctx); ok {
			req.TenantID = fromCtx
		}
	}
	if strings.TrimSpace(req.TenantID) == "" {
		return nil, ErrEmptyTenantID
	}

	p, err := r.pipelineFor(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine.Resolve(ctx, req)
}

// ApplyFallback runs the escalation ladder for a caller-supplied
// classification. Generated clarification questions pass the output
// guard, same as on the engine path.
func (r *Registry) ApplyFallback(ctx context.Context, tenantID, query string, initial *ClassificationResult, conversationID string) (*FallbackResult, error) {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ctx = tenancy.WithTenantID(ctx, tenantID)

	p.mu.RLock()
	defer p.mu.RUnlock()
	fb, err := p.fallback.ApplyFallback(ctx, query, initial, conversationID)
	if err != nil {
		return nil, err
	}
	fb.ClarificationQuestions = guardQuestions(fb.ClarificationQuestions)
	return fb, nil
}

// AddIntent registers an intent for the tenant and persists it.
func (r *Registry) AddIntent(ctx context.Context, tenantID, name, description string, examples []string, slots []EntitySlot) (*Definition, error) {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	def, err := p.classifier.AddIntent(ctx, name, description, examples, slots)
	if err != nil {
		return nil, err
	}
	if r.cfg.Store != nil {
		if err := r.cfg.Store.UpsertDefinition(ctx, tenantID, def); err != nil {
			r.invalidate(tenantID)
			return nil, err
		}
	}
	return def, nil
}

// UpdateIntent replaces an intent's description, examples, and slots
// and persists the result.
func (r *Registry) UpdateIntent(ctx context.Context, tenantID, name, description string, examples []string, slots []EntitySlot) (*Definition, error) {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	def, err := p.classifier.UpdateIntent(ctx, name, description, examples, slots)
	if err != nil {
		return nil, err
	}
	if r.cfg.Store != nil {
		if err := r.cfg.Store.UpsertDefinition(ctx, tenantID, def); err != nil {
			r.invalidate(tenantID)
			return nil, err
		}
	}
	return def, nil
}

// RemoveIntent deletes an intent and its aliases for the tenant.
func (r *Registry) RemoveIntent(ctx context.Context, tenantID, name string) error {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.classifier.RemoveIntent(name) {
		return ErrIntentNotFound
	}
	if r.cfg.Store != nil {
		err := r.cfg.Store.DeleteDefinition(ctx, tenantID, name)
		if err != nil && !errors.Is(err, ErrIntentNotFound) {
			r.invalidate(tenantID)
			return err
		}
	}
	return nil
}

// AddAlias points an alias at an existing intent for the tenant.
func (r *Registry) AddAlias(ctx context.Context, tenantID, alias, canonical string) error {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.classifier.AddAlias(alias, canonical); err != nil {
		return err
	}
	if r.cfg.Store != nil {
		// Persist the resolved canonical so a reload keeps the mapping.
		resolved, _ := p.model.Resolve(canonical)
		if err := r.cfg.Store.UpsertAlias(ctx, tenantID, alias, resolved); err != nil {
			r.invalidate(tenantID)
			return err
		}
	}
	return nil
}

// Definitions lists the tenant's registered intents in registration
// order.
func (r *Registry) Definitions(ctx context.Context, tenantID string) ([]*Definition, error) {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.classifier.Definitions(), nil
}

// ModelSnapshot returns a copy of the tenant's model safe to serialize
// outside the registry's locks. Definitions are shared; they are
// replaced, never mutated, on update.
func (r *Registry) ModelSnapshot(ctx context.Context, tenantID string) (*Model, error) {
	p, err := r.pipelineFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	clone := NewModel(p.model.EmbeddingModel, p.model.DefaultThreshold)
	for _, def := range p.model.Definitions() {
		clone.Put(def)
	}
	for alias, canonical := range p.model.Aliases() {
		if err := clone.SetAlias(alias, canonical); err != nil {
			r.cfg.Logger.Warn("skipping dangling alias in snapshot",
				"tenant_id", tenantID, "alias", alias, "error", err)
		}
	}
	return clone, nil
}

// Restore replaces the tenant's model, persisting every definition and
// alias so a later reload serves the restored state. It returns the
// number of intents installed.
func (r *Registry) Restore(ctx context.Context, tenantID string, model *Model) (int, error) {
	if model == nil {
		return 0, errors.New("intent: restore requires a model")
	}

	if r.cfg.Store != nil {
		for _, def := range model.Definitions() {
			if err := r.cfg.Store.UpsertDefinition(ctx, tenantID, def); err != nil {
				return 0, fmt.Errorf("intent: persist restored intent %q: %w", def.Name, err)
			}
		}
		for alias, canonical := range model.Aliases() {
			if err := r.cfg.Store.UpsertAlias(ctx, tenantID, alias, canonical); err != nil {
				return 0, fmt.Errorf("intent: persist restored alias %q: %w", alias, err)
			}
		}
	}

	p := r.build(model)
	r.mu.Lock()
	r.pipelines[tenantID] = p
	r.mu.Unlock()

	r.cfg.Logger.Info("model restored", "tenant_id", tenantID, "intents", model.Len())
	return model.Len(), nil
}

// Invalidate drops the tenant's cached pipeline. The next request
// rebuilds it from storage.
func (r *Registry) Invalidate(tenantID string) {
	r.invalidate(tenantID)
}

func (r *Registry) invalidate(tenantID string) {
	r.mu.Lock()
	delete(r.pipelines, tenantID)
	r.mu.Unlock()
}

func (r *Registry) pipelineFor(ctx context.Context, tenantID string) (*pipeline, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, ErrEmptyTenantID
	}

	r.mu.RLock()
	p, ok := r.pipelines[tenantID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	// Per-tenant build lock so one slow load does not stall other
	// tenants.
	lock := r.lockFor(tenantID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	p, ok = r.pipelines[tenantID]
	r.mu.RUnlock()
	if ok {
		return p, nil
	}

	model, err := r.loadModel(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	p = r.build(model)
	r.mu.Lock()
	r.pipelines[tenantID] = p
	r.mu.Unlock()

	r.cfg.Logger.Debug("pipeline built", "tenant_id", tenantID, "intents", model.Len())
	return p, nil
}

func (r *Registry) loadModel(ctx context.Context, tenantID string) (*Model, error) {
	if r.cfg.Store == nil {
		return NewModel(r.cfg.EmbeddingModel, r.cfg.Config.SimilarityThreshold), nil
	}
	model, err := r.cfg.Store.LoadModel(ctx, tenantID, r.cfg.EmbeddingModel, r.cfg.Config.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("intent: load model for tenant %s: %w", tenantID, err)
	}
	return model, nil
}

func (r *Registry) build(model *Model) *pipeline {
	classifier := NewClassifier(model, r.cfg.Provider, r.cfg.Contexts, r.cfg.Config, r.cfg.Metrics, r.cfg.Logger)
	fallback := NewController(r.cfg.Provider, model, r.cfg.Contexts, r.cfg.Audit, r.cfg.CompletionModel, r.cfg.Config, r.cfg.Metrics, r.cfg.Logger)
	engine := NewEngine(classifier, fallback, r.cfg.Notifier, r.cfg.Logger)
	return &pipeline{
		model:      model,
		classifier: classifier,
		fallback:   fallback,
		engine:     engine,
	}
}

func (r *Registry) lockFor(tenantID string) *sync.Mutex {
	lockAny, _ := r.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return lockAny.(*sync.Mutex)
}
