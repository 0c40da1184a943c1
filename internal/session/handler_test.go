package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedResolver returns canned resolutions and records requests.
type scriptedResolver struct {
	mu       sync.Mutex
	requests []intent.ResolveRequest
	resolve  func(req intent.ResolveRequest) (*intent.Resolution, error)
}

func (r *scriptedResolver) Resolve(_ context.Context, req intent.ResolveRequest) (*intent.Resolution, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()

	if r.resolve != nil {
		return r.resolve(req)
	}
	return &intent.Resolution{
		Result: &intent.ClassificationResult{
			Query:             req.Query,
			TopMatch:          &intent.Match{Intent: "billing_question", Confidence: 0.91},
			RecommendedAction: intent.ActionProceed,
		},
	}, nil
}

func (r *scriptedResolver) recorded() []intent.ResolveRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]intent.ResolveRequest(nil), r.requests...)
}

func newSessionServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleSession))
	t.Cleanup(srv.Close)
	return srv
}

func dialSession(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg OutboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestConversationID(t *testing.T) {
	assert.Equal(t, "session:org1:sess456", ConversationID("org1", "sess456"))
}

func TestGenerateSessionID(t *testing.T) {
	s1 := generateSessionID()
	s2 := generateSessionID()
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)
	assert.Len(t, s1, 32) // 16 bytes = 32 hex chars
}

func TestHandleSession_MissingOrg(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/session", nil)
	w := httptest.NewRecorder()

	h.HandleSession(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSession_AssignsSessionID(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")

	frame := readFrame(t, conn)
	assert.Equal(t, "session", frame.Type)
	assert.Len(t, frame.SessionID, 32)
}

func TestHandleSession_ReusesSessionID(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1&session=sess-7")

	frame := readFrame(t, conn)
	assert.Equal(t, "session", frame.Type)
	assert.Equal(t, "sess-7", frame.SessionID)
}

func TestHandleSession_ResolvesQuery(t *testing.T) {
	resolver := &scriptedResolver{}
	h := NewHandler(resolver, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")
	sessionFrame := readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{
		Type:      "query",
		Text:      "where is my invoice",
		Threshold: 0.7,
	}))

	assert.Equal(t, "typing", readFrame(t, conn).Type)

	result := readFrame(t, conn)
	assert.Equal(t, "result", result.Type)
	require.NotNil(t, result.Result)
	require.NotNil(t, result.Result.TopMatch)
	assert.Equal(t, "billing_question", result.Result.TopMatch.Intent)
	assert.Nil(t, result.Fallback)
	assert.NotEmpty(t, result.Timestamp)

	reqs := resolver.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "org1", reqs[0].TenantID)
	assert.Equal(t, "where is my invoice", reqs[0].Query)
	assert.Equal(t, ConversationID("org1", sessionFrame.SessionID), reqs[0].ConversationID)
	assert.Equal(t, 0.7, reqs[0].Threshold)
}

func TestHandleSession_PingPong(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestHandleSession_IgnoresBlankAndUnknownMessages(t *testing.T) {
	resolver := &scriptedResolver{}
	h := NewHandler(resolver, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "query", Text: "   "}))
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "subscribe", Text: "hello"}))
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))

	// The pong arriving first proves the earlier frames produced nothing.
	assert.Equal(t, "pong", readFrame(t, conn).Type)
	assert.Empty(t, resolver.recorded())
}

func TestHandleSession_ResolverErrorKeepsSessionOpen(t *testing.T) {
	resolver := &scriptedResolver{
		resolve: func(intent.ResolveRequest) (*intent.Resolution, error) {
			return nil, errors.New("provider unavailable")
		},
	}
	h := NewHandler(resolver, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "query", Text: "where is my invoice"}))

	assert.Equal(t, "typing", readFrame(t, conn).Type)

	errFrame := readFrame(t, conn)
	assert.Equal(t, "error", errFrame.Type)
	assert.Contains(t, errFrame.Text, "try again")

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn).Type)
}

func TestHandleSession_ReplaysHistory(t *testing.T) {
	contexts := intent.NewMemoryContextStore()
	convID := ConversationID("org1", "known")
	require.NoError(t, contexts.AppendMessage(context.Background(), "org1", convID,
		intent.Message{Role: intent.RoleUser, Content: "where is my invoice"}))
	require.NoError(t, contexts.AppendMessage(context.Background(), "org1", convID,
		intent.Message{Role: intent.RoleAssistant, Content: `Did you mean "billing_question"?`}))

	h := NewHandler(&scriptedResolver{}, contexts, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1&session=known")
	readFrame(t, conn)

	history := readFrame(t, conn)
	assert.Equal(t, "history", history.Type)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "user", history.Messages[0].Role)
	assert.Equal(t, "where is my invoice", history.Messages[0].Text)
	assert.Equal(t, "assistant", history.Messages[1].Role)
}

func TestHandleSession_ClarificationRoundTrip(t *testing.T) {
	question := `It sounds like you might be asking about "billing_question" (mentions an invoice). Is that right?`
	calls := 0
	resolver := &scriptedResolver{}
	resolver.resolve = func(req intent.ResolveRequest) (*intent.Resolution, error) {
		calls++
		if calls > 1 {
			// The clarification answer resolves cleanly.
			return &intent.Resolution{
				Result: &intent.ClassificationResult{
					Query:             req.Query,
					TopMatch:          &intent.Match{Intent: "billing_question", Confidence: 0.88},
					RecommendedAction: intent.ActionProceed,
				},
			}, nil
		}
		result := &intent.ClassificationResult{Query: req.Query, RecommendedAction: intent.ActionFallback}
		return &intent.Resolution{
			Result: result,
			Fallback: &intent.FallbackResult{
				Level:                   intent.LevelRequestClarification,
				OriginalResult:          result,
				ClarificationQuestions:  []string{question},
				Successful:              true,
				RequiresUserInteraction: true,
			},
		}, nil
	}

	contexts := intent.NewMemoryContextStore()
	h := NewHandler(resolver, contexts, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1&session=sess-clar")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "query", Text: "the thing about the charge"}))
	readFrame(t, conn) // typing

	first := readFrame(t, conn)
	assert.Equal(t, "result", first.Type)
	require.NotNil(t, first.Fallback)
	require.Len(t, first.Fallback.ClarificationQuestions, 1)

	require.NoError(t, conn.WriteJSON(InboundMessage{Type: "clarify", Text: "yes, the billing one"}))
	readFrame(t, conn) // typing

	second := readFrame(t, conn)
	assert.Equal(t, "result", second.Type)
	require.NotNil(t, second.Result.TopMatch)
	assert.Equal(t, "billing_question", second.Result.TopMatch.Intent)

	reqs := resolver.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].ConversationID, reqs[1].ConversationID)
	assert.Equal(t, "yes, the billing one", reqs[1].Query)

	// Both turns and the clarification question were recorded.
	convID := ConversationID("org1", "sess-clar")
	conv, err := contexts.Get(context.Background(), "org1", convID)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, "user", conv.Messages[0].Role)
	assert.Equal(t, "the thing about the charge", conv.Messages[0].Content)
	assert.Equal(t, "assistant", conv.Messages[1].Role)
	assert.Equal(t, question, conv.Messages[1].Content)
	assert.Equal(t, "user", conv.Messages[2].Role)
	assert.Equal(t, "yes, the billing one", conv.Messages[2].Content)
}

func TestHandleHistory(t *testing.T) {
	contexts := intent.NewMemoryContextStore()
	convID := ConversationID("org1", "sess1")
	require.NoError(t, contexts.AppendMessage(context.Background(), "org1", convID,
		intent.Message{Role: intent.RoleUser, Content: "where is my invoice"}))
	require.NoError(t, contexts.AppendMessage(context.Background(), "org1", convID,
		intent.Message{Role: intent.RoleAssistant, Content: `Did you mean "billing_question"?`}))

	h := NewHandler(&scriptedResolver{}, contexts, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/session/history?org=org1&session=sess1", nil)
	w := httptest.NewRecorder()

	h.HandleHistory(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []HistoryTurn `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "user", resp.Messages[0].Role)
	assert.Equal(t, "where is my invoice", resp.Messages[0].Text)
	assert.Equal(t, "assistant", resp.Messages[1].Role)
}

func TestHandleHistory_MissingParams(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/session/history?org=org1", nil)
	w := httptest.NewRecorder()

	h.HandleHistory(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHistory_NoContextStore(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/session/history?org=org1&session=sess1", nil)
	w := httptest.NewRecorder()

	h.HandleHistory(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []HistoryTurn `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Messages)
}

func TestClose_DisconnectsSessions(t *testing.T) {
	h := NewHandler(&scriptedResolver{}, nil, logging.Discard())
	srv := newSessionServer(t, h)

	conn := dialSession(t, srv, "?org=org1")
	readFrame(t, conn)

	h.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg OutboundMessage
	assert.Error(t, conn.ReadJSON(&msg))
}
