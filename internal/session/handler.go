package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/internal/tenancy"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Handler serves the interactive resolution channel. A client connects
// over WebSocket, sends queries, and receives classification results and
// clarification questions on the same socket. Clarification answers
// arrive as ordinary turns and resolve against the accumulated
// conversation context.
type Handler struct {
	resolver intent.Resolver
	contexts intent.ContextStore
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*wsConn // session id -> active connection
}

type wsConn struct {
	conn *websocket.Conn
	done chan struct{}
}

// InboundMessage is what the client sends.
type InboundMessage struct {
	Type      string  `json:"type"` // "query", "clarify", "ping"
	Text      string  `json:"text"`
	Threshold float64 `json:"threshold,omitempty"`
}

// OutboundMessage is what we send to the client.
type OutboundMessage struct {
	Type      string                       `json:"type"` // "session", "history", "typing", "result", "pong", "error"
	Text      string                       `json:"text,omitempty"`
	SessionID string                       `json:"session_id,omitempty"`
	Timestamp string                       `json:"timestamp,omitempty"`
	Result    *intent.ClassificationResult `json:"result,omitempty"`
	Fallback  *intent.FallbackResult       `json:"fallback,omitempty"`
	Messages  []HistoryTurn                `json:"messages,omitempty"`
}

// HistoryTurn is a simplified turn for history replay.
type HistoryTurn struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// NewHandler creates the session handler. contexts may be nil; sessions
// then run without history replay or multi-turn memory.
func NewHandler(resolver intent.Resolver, contexts intent.ContextStore, logger *logging.Logger) *Handler {
	if resolver == nil {
		panic("session: resolver cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		resolver: resolver,
		contexts: contexts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sessions: make(map[string]*wsConn),
	}
}

// ConversationID builds the canonical conversation id for a session.
func ConversationID(tenantID, sessionID string) string {
	return fmt.Sprintf("session:%s:%s", tenantID, sessionID)
}

// generateSessionID creates a random session identifier.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()
	}
	return hex.EncodeToString(b)
}

// HandleSession upgrades the request and serves resolution over the
// socket. The tenant comes from the org query parameter or, when the
// tenancy middleware ran, from the request context.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("org")
	if tenantID == "" {
		tenantID, _ = tenancy.TenantIDFromContext(r.Context())
	}
	if tenantID == "" {
		http.Error(w, "org parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("session: upgrade failed", "error", err, "tenant_id", tenantID)
		return
	}
	defer conn.Close()

	h.serve(r.Context(), conn, tenantID, r.URL.Query().Get("session"))
}

func (h *Handler) serve(ctx context.Context, conn *websocket.Conn, tenantID, sessionID string) {
	if sessionID == "" {
		sessionID = generateSessionID()
	}
	convID := ConversationID(tenantID, sessionID)

	_ = conn.WriteJSON(OutboundMessage{Type: "session", SessionID: sessionID})

	h.sendHistory(ctx, conn, tenantID, convID)

	wsc := &wsConn{conn: conn, done: make(chan struct{})}
	h.mu.Lock()
	h.sessions[sessionID] = wsc
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		if h.sessions[sessionID] == wsc {
			delete(h.sessions, sessionID)
		}
		h.mu.Unlock()
		close(wsc.done)
	}()

	h.logger.Info("session: connection opened", "tenant_id", tenantID, "session_id", sessionID)

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			h.logger.Debug("session: connection closed", "tenant_id", tenantID, "error", err)
			return
		}

		switch msg.Type {
		case "ping":
			_ = conn.WriteJSON(OutboundMessage{Type: "pong"})
			continue
		case "query", "clarify":
		default:
			continue
		}
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}

		h.handleQuery(ctx, conn, tenantID, convID, msg)
	}
}

func (h *Handler) sendHistory(ctx context.Context, conn *websocket.Conn, tenantID, convID string) {
	if h.contexts == nil {
		return
	}
	conv, err := h.contexts.Get(ctx, tenantID, convID)
	if err != nil || conv == nil || len(conv.Messages) == 0 {
		return
	}
	history := make([]HistoryTurn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, HistoryTurn{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}
	_ = conn.WriteJSON(OutboundMessage{Type: "history", Messages: history})
}

func (h *Handler) handleQuery(ctx context.Context, conn *websocket.Conn, tenantID, convID string, msg InboundMessage) {
	_ = conn.WriteJSON(OutboundMessage{Type: "typing"})

	res, err := h.resolver.Resolve(ctx, intent.ResolveRequest{
		TenantID:       tenantID,
		Query:          msg.Text,
		ConversationID: convID,
		Threshold:      msg.Threshold,
	})
	if err != nil {
		h.logger.Error("session: resolution failed", "error", err, "tenant_id", tenantID)
		_ = conn.WriteJSON(OutboundMessage{
			Type: "error",
			Text: "Sorry, something went wrong. Please try again.",
		})
		return
	}

	h.recordTurns(ctx, tenantID, convID, msg.Text, res)

	_ = conn.WriteJSON(OutboundMessage{
		Type:      "result",
		Result:    res.Result,
		Fallback:  res.Fallback,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// recordTurns appends the exchange to the conversation so later turns
// resolve against it. Turns are written after resolution; a query must
// not appear in its own context.
func (h *Handler) recordTurns(ctx context.Context, tenantID, convID, text string, res *intent.Resolution) {
	if h.contexts == nil {
		return
	}

	now := time.Now().UTC()
	if err := h.contexts.AppendMessage(ctx, tenantID, convID, intent.Message{
		Role:      intent.RoleUser,
		Content:   text,
		Timestamp: now,
	}); err != nil {
		h.logger.Warn("session: failed to record turn", "error", err, "tenant_id", tenantID)
	}

	if res.Fallback == nil || len(res.Fallback.ClarificationQuestions) == 0 {
		return
	}
	if err := h.contexts.AppendMessage(ctx, tenantID, convID, intent.Message{
		Role:      intent.RoleAssistant,
		Content:   res.Fallback.ClarificationQuestions[0],
		Timestamp: now,
	}); err != nil {
		h.logger.Warn("session: failed to record clarification", "error", err, "tenant_id", tenantID)
	}
}

// HandleHistory returns the stored conversation for a session.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("org")
	sessionID := r.URL.Query().Get("session")
	if tenantID == "" || sessionID == "" {
		http.Error(w, "org and session parameters required", http.StatusBadRequest)
		return
	}

	if h.contexts == nil {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []HistoryTurn{}})
		return
	}

	conv, err := h.contexts.Get(r.Context(), tenantID, ConversationID(tenantID, sessionID))
	if err != nil {
		h.logger.Error("session: failed to load history", "error", err, "tenant_id", tenantID)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	history := make([]HistoryTurn, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		history = append(history, HistoryTurn{
			Role:      m.Role,
			Text:      m.Content,
			Timestamp: m.Timestamp.Format(time.RFC3339),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"messages": history})
}

// Close drops all active sessions and waits briefly for their read
// loops to exit. Used during server shutdown.
func (h *Handler) Close() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.sessions))
	for _, wsc := range h.sessions {
		conns = append(conns, wsc)
	}
	h.sessions = make(map[string]*wsConn)
	h.mu.Unlock()

	for _, wsc := range conns {
		_ = wsc.conn.Close()
	}
	for _, wsc := range conns {
		select {
		case <-wsc.done:
		case <-time.After(2 * time.Second):
			return
		}
	}
}
