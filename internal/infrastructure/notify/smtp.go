package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/pkg/utils"
)

// Config holds SMTP delivery settings
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
}

// RecipientResolver maps user ids to deliverable addresses. The user
// directory lives outside the moderation core.
type RecipientResolver interface {
	EmailsFor(ctx context.Context, userIDs []string) ([]string, error)
}

// SMTPNotifier implements port.Notifier over plain SMTP. Templates are
// rendered as short plain-text messages; the surrounding platform owns
// rich formatting.
type SMTPNotifier struct {
	cfg      Config
	resolver RecipientResolver
	logger   *zap.Logger
}

// NewSMTPNotifier creates the notifier
func NewSMTPNotifier(cfg Config, resolver RecipientResolver, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg, resolver: resolver, logger: logger}
}

// Notify delivers one template to the recipients. Recipients that cannot
// be resolved to an address are skipped, not failed.
func (n *SMTPNotifier) Notify(ctx context.Context, template string, recipients []string, context map[string]any) error {
	if len(recipients) == 0 {
		n.logger.Debug("Notification has no direct recipients", zap.String("template", template))
		return nil
	}

	resolved, err := n.resolver.EmailsFor(ctx, recipients)
	if err != nil {
		return fmt.Errorf("failed to resolve recipients: %w", err)
	}
	addresses := make([]string, 0, len(resolved))
	for _, addr := range resolved {
		if err := utils.ValidateEmail(addr); err != nil {
			n.logger.Warn("Skipping undeliverable address", zap.Error(err))
			continue
		}
		addresses = append(addresses, addr)
	}
	if len(addresses) == 0 {
		n.logger.Warn("No deliverable addresses for notification",
			zap.String("template", template),
			zap.Int("recipients", len(recipients)))
		return nil
	}

	msg := n.buildMessage(template, addresses, context)
	auth := smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	if err := smtp.SendMail(addr, auth, n.cfg.FromAddress, addresses, msg); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}

	n.logger.Info("Notification sent",
		zap.String("template", template),
		zap.Int("recipients", len(addresses)))
	return nil
}

func (n *SMTPNotifier) buildMessage(template string, to []string, context map[string]any) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.FromAddress)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: [moderation] %s\r\n", subjectFor(template))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n")

	b.WriteString(bodyFor(template))
	b.WriteString("\r\n\r\n")
	for key, value := range context {
		fmt.Fprintf(&b, "%s: %v\r\n", key, value)
	}
	return []byte(b.String())
}

var subjects = map[string]string{
	"reviews_submission_confirmation":   "Your submission was received",
	"reviews_resubmission_confirmation": "Your resubmission was received",
	"reviews_submission_status":         "Your submission's status changed",
	"reviews_update_comment":            "A moderator comment was updated",
	"reviews_submission_withdrawn":      "Your submission was withdrawn",
	"access_request_submitted":          "New access request",
	"access_request_decided":            "Your access request was decided",
	"preprint_withdrawal_requested":     "Withdrawal request received",
	"preprint_withdrawal_decided":       "Your withdrawal request was decided",
	"sanction_approval_requested":       "Your approval is required",
	"sanction_pending_moderation":       "A registration awaits moderation",
	"sanction_decided":                  "Registration decision recorded",
	"collection_submission_pending":     "New collection submission",
	"collection_submission_accepted":    "Collection submission accepted",
	"collection_submission_rejected":    "Collection submission rejected",
	"collection_submission_removed":     "Submission removed from collection",
	"collection_submission_resubmitted": "Collection submission resubmitted",
	"collection_submission_cancelled":   "Collection submission cancelled",
}

func subjectFor(template string) string {
	if s, ok := subjects[template]; ok {
		return s
	}
	return template
}

func bodyFor(template string) string {
	switch {
	case strings.HasPrefix(template, "sanction_approval"):
		return "A pending change to a registration you administer needs your approval. " +
			"Use the links below to approve or reject. If you do nothing the change " +
			"is approved when the approval window closes."
	case strings.HasPrefix(template, "reviews_"):
		return "There was activity on a submission you are involved with. Details follow."
	default:
		return "There was moderation activity relevant to you. Details follow."
	}
}

// Verify interface compliance
var _ port.Notifier = (*SMTPNotifier)(nil)
