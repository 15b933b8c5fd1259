// Package notify sends fire-and-forget notifications such as the welcome
// email of a new tenant.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/suteetoe/shopfleet/internal/storage"
	"github.com/suteetoe/shopfleet/internal/tenancy"
	"github.com/suteetoe/shopfleet/internal/tenantctx"
	"github.com/suteetoe/shopfleet/pkg/logger"
)

// Message is one outbound notification.
type Message struct {
	TenantID string `json:"tenantId"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Message) error {
	logger.FromContext(ctx).Info("Notification",
		zap.String("tenant_id", m.TenantID),
		zap.String("to", m.To),
		zap.String("subject", m.Subject))
	return nil
}

// HTTPSender posts messages to a mail relay.
type HTTPSender struct {
	client *resty.Client
}

// NewHTTPSender creates a relay sender.
func NewHTTPSender(relayURL string, timeout time.Duration) *HTTPSender {
	client := resty.New().
		SetBaseURL(relayURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &HTTPSender{client: client}
}

func (s *HTTPSender) Send(ctx context.Context, m Message) error {
	resp, err := s.client.R().SetContext(ctx).SetBody(m).Post("/messages")
	if err != nil {
		return fmt.Errorf("failed to call mail relay: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail relay returned status %d", resp.StatusCode())
	}
	return nil
}

// WelcomeTemplateKey is the email template used for new tenants.
const WelcomeTemplateKey = "welcome"

const (
	defaultWelcomeSubject = "Welcome to {{businessName}}"
	defaultWelcomeBody    = "Your store is live at {{subdomain}}."
)

// Welcome describes a freshly provisioned tenant.
type Welcome struct {
	TenantID     string
	Email        string
	BusinessName string
	Subdomain    string
}

// Notifier renders and sends tenant notifications.
type Notifier struct {
	sender    Sender
	templates storage.Client
	timeout   time.Duration
}

// NewNotifier creates a Notifier. templates is a tenant-scoped client used to
// look up email templates; shared templates apply when a tenant has none.
func NewNotifier(sender Sender, templates storage.Client, timeout time.Duration) *Notifier {
	return &Notifier{sender: sender, templates: templates, timeout: timeout}
}

// SendWelcome renders and sends the welcome message of w.TenantID. The
// tenant is bound for the template lookup only.
func (n *Notifier) SendWelcome(ctx context.Context, w Welcome) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	scoped, err := tenantctx.Bind(ctx, w.TenantID)
	if err != nil {
		return err
	}
	subject, body, err := n.welcomeTemplate(scoped)
	if err != nil {
		return err
	}

	r := strings.NewReplacer("{{businessName}}", w.BusinessName, "{{subdomain}}", w.Subdomain)
	return n.sender.Send(ctx, Message{
		TenantID: w.TenantID,
		To:       w.Email,
		Subject:  r.Replace(subject),
		Body:     r.Replace(body),
	})
}

// welcomeTemplate prefers the tenant's own template over the shared one.
func (n *Notifier) welcomeTemplate(ctx context.Context) (string, string, error) {
	if n.templates == nil {
		return defaultWelcomeSubject, defaultWelcomeBody, nil
	}
	rows, err := n.templates.FindMany(ctx, tenancy.ModelEmailTemplates, storage.Query{
		Where: storage.Eq{Field: "key", Value: WelcomeTemplateKey},
	})
	if err != nil {
		return "", "", err
	}

	var chosen storage.Record
	for _, row := range rows {
		if row.String(tenancy.TenantColumn) != "" {
			chosen = row
			break
		}
		if chosen == nil {
			chosen = row
		}
	}
	if chosen == nil {
		return defaultWelcomeSubject, defaultWelcomeBody, nil
	}
	return chosen.String("subject"), chosen.String("body"), nil
}
