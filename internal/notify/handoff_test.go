package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

type mockEmailSender struct {
	sent    []EmailMessage
	failOn  string // fail if To matches this
	callErr error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if m.callErr != nil {
		return m.callErr
	}
	if m.failOn != "" && msg.To == m.failOn {
		return errors.New("mock email error")
	}
	m.sent = append(m.sent, msg)
	return nil
}

type mockRecipients struct {
	byTenant map[string][]string
	err      error
}

func (m *mockRecipients) HandoffRecipients(_ context.Context, tenantID string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.byTenant[tenantID], nil
}

func handoffEvent() intent.HandoffEvent {
	return intent.HandoffEvent{
		TenantID:       "tenant-a",
		ConversationID: "conv-1",
		Query:          "the thing from before is broken",
		Reason:         "all fallback tiers exhausted",
		OccurredAt:     time.Date(2025, time.March, 4, 15, 30, 0, 0, time.UTC),
	}
}

func TestNotifyHandoffSendsToAllRecipients(t *testing.T) {
	email := &mockEmailSender{}
	recipients := &mockRecipients{byTenant: map[string][]string{
		"tenant-a": {"ops1@example.com", "ops2@example.com"},
	}}
	svc := NewService(email, recipients, logging.Discard())

	if err := svc.NotifyHandoff(context.Background(), handoffEvent()); err != nil {
		t.Fatalf("NotifyHandoff: %v", err)
	}

	if len(email.sent) != 2 {
		t.Fatalf("expected 2 emails, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "ops1@example.com" {
		t.Errorf("unexpected recipient: %s", msg.To)
	}
	if !strings.Contains(msg.Subject, "tenant-a") {
		t.Errorf("subject missing tenant: %q", msg.Subject)
	}
	for _, want := range []string{"tenant-a", "conv-1", "the thing from before is broken", "all fallback tiers exhausted"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	if msg.HTML == "" {
		t.Error("expected an HTML body")
	}
}

func TestNotifyHandoffOmitsEmptyConversation(t *testing.T) {
	email := &mockEmailSender{}
	recipients := &mockRecipients{byTenant: map[string][]string{"tenant-a": {"ops@example.com"}}}
	svc := NewService(email, recipients, logging.Discard())

	ev := handoffEvent()
	ev.ConversationID = ""
	if err := svc.NotifyHandoff(context.Background(), ev); err != nil {
		t.Fatalf("NotifyHandoff: %v", err)
	}

	if strings.Contains(email.sent[0].Body, "Conversation:") {
		t.Errorf("body should omit conversation line:\n%s", email.sent[0].Body)
	}
}

func TestNotifyHandoffEscapesQueryInHTML(t *testing.T) {
	email := &mockEmailSender{}
	recipients := &mockRecipients{byTenant: map[string][]string{"tenant-a": {"ops@example.com"}}}
	svc := NewService(email, recipients, logging.Discard())

	ev := handoffEvent()
	ev.Query = `<script>alert("x")</script>`
	if err := svc.NotifyHandoff(context.Background(), ev); err != nil {
		t.Fatalf("NotifyHandoff: %v", err)
	}

	html := email.sent[0].HTML
	if strings.Contains(html, "<script>") {
		t.Errorf("HTML body contains unescaped markup:\n%s", html)
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Errorf("HTML body missing escaped query:\n%s", html)
	}
}

func TestNotifyHandoffNoRecipients(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, &mockRecipients{byTenant: map[string][]string{}}, logging.Discard())

	if err := svc.NotifyHandoff(context.Background(), handoffEvent()); err != nil {
		t.Fatalf("NotifyHandoff: %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatalf("expected no emails, got %d", len(email.sent))
	}
}

func TestNotifyHandoffWithoutSenderIsNoop(t *testing.T) {
	svc := NewService(nil, StaticRecipients{"ops@example.com"}, logging.Discard())

	if err := svc.NotifyHandoff(context.Background(), handoffEvent()); err != nil {
		t.Fatalf("NotifyHandoff: %v", err)
	}
}

func TestNotifyHandoffPartialFailure(t *testing.T) {
	email := &mockEmailSender{failOn: "ops1@example.com"}
	recipients := &mockRecipients{byTenant: map[string][]string{
		"tenant-a": {"ops1@example.com", "ops2@example.com"},
	}}
	svc := NewService(email, recipients, logging.Discard())

	err := svc.NotifyHandoff(context.Background(), handoffEvent())
	if err == nil {
		t.Fatal("expected error for the failed recipient")
	}
	if len(email.sent) != 1 || email.sent[0].To != "ops2@example.com" {
		t.Fatalf("expected the second recipient to still get the email, sent = %+v", email.sent)
	}
}

func TestNotifyHandoffRecipientLookupError(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, &mockRecipients{err: errors.New("directory down")}, logging.Discard())

	if err := svc.NotifyHandoff(context.Background(), handoffEvent()); err == nil {
		t.Fatal("expected recipient lookup error to propagate")
	}
}

func TestStaticRecipients(t *testing.T) {
	r := StaticRecipients{"ops@example.com"}
	got, err := r.HandoffRecipients(context.Background(), "any-tenant")
	if err != nil {
		t.Fatalf("HandoffRecipients: %v", err)
	}
	if len(got) != 1 || got[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients: %v", got)
	}
}
