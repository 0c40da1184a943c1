package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

// MisclassificationReader is the audit surface the admin API reads and
// labels. *intent.PostgresAuditStore satisfies it.
type MisclassificationReader interface {
	ListRecords(ctx context.Context, filter intent.AuditFilter) ([]intent.MisclassificationRecord, error)
	LabelExpected(ctx context.Context, tenantID, recordID, expectedIntent string) error
}

// AdminIntentsHandler serves the operator surface: the
// misclassification review queue and model snapshot management. Every
// endpoint takes an explicit org because operators work across
// tenants.
type AdminIntentsHandler struct {
	registry *intent.Registry
	audit    MisclassificationReader
	archive  *intent.SnapshotArchive
	logger   *logging.Logger
}

// NewAdminIntentsHandler creates the admin intents handler. audit and
// archive may be nil; their endpoints answer 503 until configured.
func NewAdminIntentsHandler(registry *intent.Registry, audit MisclassificationReader, archive *intent.SnapshotArchive, logger *logging.Logger) *AdminIntentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminIntentsHandler{
		registry: registry,
		audit:    audit,
		archive:  archive,
		logger:   logger,
	}
}

// ListMisclassifications handles GET /admin/misclassifications.
// Query parameters: org (required), conversation_id, level, since
// (RFC 3339), unlabeled, limit.
func (h *AdminIntentsHandler) ListMisclassifications(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "audit store not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	orgID := strings.TrimSpace(q.Get("org"))
	if orgID == "" {
		http.Error(w, "missing org parameter", http.StatusBadRequest)
		return
	}

	filter := intent.AuditFilter{
		TenantID:       orgID,
		ConversationID: strings.TrimSpace(q.Get("conversation_id")),
		Level:          intent.FallbackLevel(strings.TrimSpace(q.Get("level"))),
		Unlabeled:      q.Get("unlabeled") == "true",
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			http.Error(w, "since must be RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Since = ts
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	records, err := h.audit.ListRecords(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list misclassifications", "org_id", orgID, "error", err)
		http.Error(w, "failed to list misclassifications", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []intent.MisclassificationRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"records": records})
}

type labelRequest struct {
	OrgID          string `json:"org_id"`
	ExpectedIntent string `json:"expected_intent"`
}

// LabelMisclassification handles POST /admin/misclassifications/{recordID}/label.
// An empty expected_intent clears the label.
func (h *AdminIntentsHandler) LabelMisclassification(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		http.Error(w, "audit store not configured", http.StatusServiceUnavailable)
		return
	}

	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		http.Error(w, "missing record id", http.StatusBadRequest)
		return
	}

	var req labelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	if err := h.audit.LabelExpected(r.Context(), req.OrgID, recordID, req.ExpectedIntent); err != nil {
		if errors.Is(err, intent.ErrRecordNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to label misclassification", "record_id", recordID, "error", err)
		http.Error(w, "failed to label misclassification", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type snapshotRequest struct {
	OrgID string `json:"org_id"`
	Key   string `json:"key,omitempty"`
}

// ExportSnapshot handles POST /admin/snapshot: it archives the
// tenant's current model and returns the object key.
func (h *AdminIntentsHandler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil || !h.archive.Enabled() {
		http.Error(w, "snapshot archive not configured", http.StatusServiceUnavailable)
		return
	}

	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	model, err := h.registry.ModelSnapshot(r.Context(), req.OrgID)
	if err != nil {
		h.logger.Error("failed to snapshot model", "org_id", req.OrgID, "error", err)
		http.Error(w, "failed to snapshot model", http.StatusInternalServerError)
		return
	}

	key, err := h.archive.Export(r.Context(), req.OrgID, model)
	if err != nil {
		h.logger.Error("failed to export snapshot", "org_id", req.OrgID, "error", err)
		http.Error(w, "failed to export snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"org_id": req.OrgID, "key": key, "intents": model.Len()})
}

// RestoreSnapshot handles POST /admin/snapshot/restore. An empty key
// restores the tenant's latest snapshot.
func (h *AdminIntentsHandler) RestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil || !h.archive.Enabled() {
		http.Error(w, "snapshot archive not configured", http.StatusServiceUnavailable)
		return
	}

	var req snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OrgID) == "" {
		http.Error(w, "missing org_id", http.StatusBadRequest)
		return
	}

	model, err := h.archive.Import(r.Context(), req.OrgID, req.Key)
	if err != nil {
		h.logger.Error("failed to import snapshot", "org_id", req.OrgID, "key", req.Key, "error", err)
		http.Error(w, "failed to import snapshot", http.StatusInternalServerError)
		return
	}

	n, err := h.registry.Restore(r.Context(), req.OrgID, model)
	if err != nil {
		h.logger.Error("failed to restore model", "org_id", req.OrgID, "error", err)
		http.Error(w, "failed to restore model", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"org_id": req.OrgID, "intents": n})
}
