package intent

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Handler wires the tenant-facing HTTP API to the resolution pipeline.
// Tenant identity comes from the request context; the router's org
// middleware puts it there.
type Handler struct {
	registry  *Registry
	publisher *Publisher
	jobs      JobRecorder
	reasoner  *Reasoner
	logger    *logging.Logger
}

// NewHandler creates the intent API handler. publisher, jobs, and
// reasoner may be nil; the routes that need them answer 503 until they
// are configured.
func NewHandler(registry *Registry, publisher *Publisher, jobs JobRecorder, reasoner *Reasoner, logger *logging.Logger) *Handler {
	if registry == nil {
		panic("intent: registry cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		registry:  registry,
		publisher: publisher,
		jobs:      jobs,
		reasoner:  reasoner,
		logger:    logger,
	}
}

// ClassifyRequest is the body of the classify endpoints. The tenant is
// never taken from the body.
type ClassifyRequest struct {
	Query          string  `json:"query"`
	ConversationID string  `json:"conversation_id,omitempty"`
	Threshold      float64 `json:"threshold,omitempty"`
}

// FallbackRequest reruns the fallback ladder for a classification
// result the caller already holds.
type FallbackRequest struct {
	Query          string                `json:"query"`
	Result         *ClassificationResult `json:"result"`
	ConversationID string                `json:"conversation_id,omitempty"`
}

// ReasonRequest is the body of POST /v1/reason.
type ReasonRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// IntentRequest creates or updates an intent definition. On updates the
// name in the URL wins over the one in the body.
type IntentRequest struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Examples    []string     `json:"examples"`
	Slots       []EntitySlot `json:"slots,omitempty"`
}

// AliasRequest registers an alternate name for an intent.
type AliasRequest struct {
	Alias string `json:"alias"`
}

// Classify handles POST /v1/classify.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode classify request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	res, err := h.registry.Resolve(r.Context(), ResolveRequest{
		TenantID:       tenantID,
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Threshold:      req.Threshold,
	})
	if err != nil {
		h.respondError(w, err, "Failed to classify query")
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// ClassifyAsync handles POST /v1/classify/async. The returned job id is
// what GET /v1/jobs/{jobID} polls.
func (h *Handler) ClassifyAsync(w http.ResponseWriter, r *http.Request) {
	if h.publisher == nil {
		http.Error(w, "Async classification is not configured", http.StatusServiceUnavailable)
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode async classify request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	jobID, err := h.publisher.EnqueueClassification(r.Context(), ResolveRequest{
		TenantID:       tenantID,
		Query:          req.Query,
		ConversationID: req.ConversationID,
		Threshold:      req.Threshold,
	})
	if err != nil {
		h.respondError(w, err, "Failed to enqueue classification")
		return
	}

	h.writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

// JobStatus handles GET /v1/jobs/{jobID}. A job belonging to another
// tenant reads as missing.
func (h *Handler) JobStatus(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		http.Error(w, "Job tracking is not configured", http.StatusServiceUnavailable)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		http.Error(w, "Missing job id", http.StatusBadRequest)
		return
	}

	tenantID, _ := tenancy.TenantIDFromContext(r.Context())

	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.respondError(w, err, "Failed to load job")
		return
	}
	if job.TenantID != tenantID {
		http.Error(w, ErrJobNotFound.Error(), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, job)
}

// Fallback handles POST /v1/fallback: it runs the ladder for a result
// the caller already holds, without reclassifying.
func (h *Handler) Fallback(w http.ResponseWriter, r *http.Request) {
	var req FallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode fallback request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	fb, err := h.registry.ApplyFallback(r.Context(), tenantID, req.Query, req.Result, req.ConversationID)
	if err != nil {
		h.respondError(w, err, "Failed to apply fallback")
		return
	}

	h.writeJSON(w, http.StatusOK, fb)
}

// Reason handles POST /v1/reason. The conclusion passes the output
// guard before it reaches the caller, same as generated clarification
// questions do.
func (h *Handler) Reason(w http.ResponseWriter, r *http.Request) {
	if h.reasoner == nil {
		http.Error(w, "Reasoning is not configured", http.StatusServiceUnavailable)
		return
	}

	var req ReasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode reason request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, ok := tenancy.TenantIDFromContext(r.Context()); !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	result, err := h.reasoner.Reason(r.Context(), req.Query, req.ConversationID)
	if err != nil {
		h.respondError(w, err, "Failed to reason about query")
		return
	}

	if scan := ScanOutputForLeaks(result.Conclusion); scan.Leaked {
		h.logger.Warn("reasoning conclusion failed output guard", "reasons", scan.Reasons)
		result.Conclusion = scan.Sanitized
	}

	h.writeJSON(w, http.StatusOK, result)
}

// CreateIntent handles POST /v1/intents.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode intent request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	def, err := h.registry.AddIntent(r.Context(), tenantID, req.Name, req.Description, req.Examples, req.Slots)
	if err != nil {
		h.respondError(w, err, "Failed to create intent")
		return
	}

	h.writeJSON(w, http.StatusCreated, def)
}

// UpdateIntent handles PUT /v1/intents/{name}.
func (h *Handler) UpdateIntent(w http.ResponseWriter, r *http.Request) {
	var req IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode intent request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	name := chi.URLParam(r, "name")
	def, err := h.registry.UpdateIntent(r.Context(), tenantID, name, req.Description, req.Examples, req.Slots)
	if err != nil {
		h.respondError(w, err, "Failed to update intent")
		return
	}

	h.writeJSON(w, http.StatusOK, def)
}

// DeleteIntent handles DELETE /v1/intents/{name}.
func (h *Handler) DeleteIntent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	if err := h.registry.RemoveIntent(r.Context(), tenantID, chi.URLParam(r, "name")); err != nil {
		h.respondError(w, err, "Failed to delete intent")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListIntents handles GET /v1/intents.
func (h *Handler) ListIntents(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	defs, err := h.registry.Definitions(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, err, "Failed to list intents")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"intents": defs})
}

// AddAlias handles POST /v1/intents/{name}/aliases.
func (h *Handler) AddAlias(w http.ResponseWriter, r *http.Request) {
	var req AliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode alias request", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing org context", http.StatusBadRequest)
		return
	}

	name := chi.URLParam(r, "name")
	if err := h.registry.AddAlias(r.Context(), tenantID, req.Alias, name); err != nil {
		h.respondError(w, err, "Failed to add alias")
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]string{"alias": req.Alias, "intent": name})
}

// respondError maps domain sentinels onto client statuses. Anything
// unrecognized is internal: it logs with msg and answers 500 with the
// same text so provider detail never leaks to callers.
func (h *Handler) respondError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, ErrEmptyQuery),
		errors.Is(err, ErrEmptyConversationID),
		errors.Is(err, ErrEmptyTenantID),
		errors.Is(err, ErrNilResult),
		errors.Is(err, ErrInvalidIntentName),
		errors.Is(err, ErrNoExamples):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrIntentNotFound),
		errors.Is(err, ErrJobNotFound),
		errors.Is(err, ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrIntentExists):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
