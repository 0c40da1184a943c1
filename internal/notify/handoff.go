package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Recipients resolves the operator addresses that should hear about
// handoffs for a tenant.
type Recipients interface {
	HandoffRecipients(ctx context.Context, tenantID string) ([]string, error)
}

// StaticRecipients serves the same recipient list for every tenant.
type StaticRecipients []string

// HandoffRecipients returns the configured list regardless of tenant.
func (r StaticRecipients) HandoffRecipients(_ context.Context, _ string) ([]string, error) {
	return r, nil
}

// Service emails operators when the fallback ladder ends in an explicit
// handoff, so an unresolvable query gets human eyes.
type Service struct {
	email      EmailSender
	recipients Recipients
	logger     *logging.Logger
}

// NewService creates a handoff notification service.
func NewService(email EmailSender, recipients Recipients, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		recipients: recipients,
		logger:     logger,
	}
}

var _ intent.HandoffNotifier = (*Service)(nil)

// NotifyHandoff sends the handoff email to every recipient configured
// for the tenant. Partial failures are reported but do not stop the
// remaining sends.
func (s *Service) NotifyHandoff(ctx context.Context, ev intent.HandoffEvent) error {
	if s.email == nil || s.recipients == nil {
		s.logger.Debug("notify: email sender not configured, skipping handoff notification")
		return nil
	}

	recipients, err := s.recipients.HandoffRecipients(ctx, ev.TenantID)
	if err != nil {
		s.logger.Error("notify: failed to resolve handoff recipients", "error", err, "tenant_id", ev.TenantID)
		return fmt.Errorf("notify: resolve recipients: %w", err)
	}
	if len(recipients) == 0 {
		s.logger.Debug("notify: no handoff recipients for tenant", "tenant_id", ev.TenantID)
		return nil
	}

	subject := fmt.Sprintf("Unresolved query needs review - %s", ev.TenantID)

	conversationInfo := ""
	if ev.ConversationID != "" {
		conversationInfo = fmt.Sprintf("\nConversation: %s", ev.ConversationID)
	}

	body := fmt.Sprintf(`A query could not be resolved automatically and needs a human.

Tenant: %s%s
Query: %s
Reason: %s
When: %s

The full classification record is in the misclassification audit log.`,
		ev.TenantID, conversationInfo, ev.Query, ev.Reason,
		ev.OccurredAt.Format("January 2, 2006 at 3:04 PM MST"))

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #ef4444;">Unresolved query needs review</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Tenant:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  %s<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Query:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Reason:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>When:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
</table>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">The full classification record is in the misclassification audit log.</p>
</div>`,
		htmlEscape(ev.TenantID), s.formatConversationHTML(ev.ConversationID),
		htmlEscape(ev.Query), htmlEscape(ev.Reason),
		ev.OccurredAt.Format("January 2, 2006 at 3:04 PM MST"))

	var errs []error
	for _, recipient := range recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
			HTML:    html,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send handoff email", "error", err, "to", recipient)
			errs = append(errs, err)
		} else {
			s.logger.Info("notify: handoff email sent", "to", recipient, "tenant_id", ev.TenantID)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func (s *Service) formatConversationHTML(conversationID string) string {
	if conversationID == "" {
		return ""
	}
	return fmt.Sprintf(`<tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Conversation:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  `, htmlEscape(conversationID))
}

// htmlEscape keeps user-controlled query text from injecting markup
// into the HTML body.
func htmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
