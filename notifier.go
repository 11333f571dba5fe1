package seatwatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jpalmerr/seatwatch/internal/mailer"
)

// Notifier delivers alerts.
//
// Notify is called at most once per [Watcher] run with one or more open
// results. SendTest sends a message that does not depend on any course
// being open, so credentials can be verified before unattended operation.
// SendFailureAlert tells the user the watcher gave up.
type Notifier interface {
	Notify(ctx context.Context, open []CheckResult) error
	SendTest(ctx context.Context) error
	SendFailureAlert(ctx context.Context, cause error) error
}

// MailConfig configures a [MailNotifier].
type MailConfig struct {
	// Host and Port address the outbound SMTP relay. Port defaults to 587.
	Host string
	Port int

	// TLS is "starttls", "implicit" or "none". Empty picks implicit TLS on
	// port 465 and STARTTLS otherwise.
	TLS string

	// Username defaults to From. An empty Password disables AUTH.
	Username string
	Password string

	// From is the sender address.
	From string

	// Recipients receive the full alert.
	Recipients []string

	// SMSGateway is an optional carrier e-mail-to-SMS address. Blank disables
	// the SMS message.
	SMSGateway string

	// Timeout bounds one SMTP session. Defaults to 30s.
	Timeout time.Duration
}

type mailSender interface {
	Send(ctx context.Context, msgs ...mailer.Message) error
}

// MailNotifier is a [Notifier] that sends e-mail, plus a short copy to an
// SMS gateway address when one is configured.
type MailNotifier struct {
	sender     mailSender
	recipients []string
	smsGateway string
}

// NewMailNotifier creates a [MailNotifier].
//
// Returns a *[ConfigError] for a missing host, sender or recipient, or an
// unknown TLS mode.
func NewMailNotifier(cfg MailConfig) (*MailNotifier, error) {
	if cfg.Host == "" {
		return nil, &ConfigError{Field: "smtp_host", Err: errors.New("is required")}
	}
	if cfg.From == "" {
		return nil, &ConfigError{Field: "sender_email", Err: errors.New("is required")}
	}
	if len(cfg.Recipients) == 0 {
		return nil, &ConfigError{Field: "recipients", Err: errors.New("at least one recipient is required")}
	}

	mode := mailer.TLSMode(strings.ToLower(cfg.TLS))
	switch mode {
	case "", mailer.TLSStartTLS, mailer.TLSImplicit, mailer.TLSNone:
	default:
		return nil, &ConfigError{Field: "tls", Err: fmt.Errorf("unknown mode %q (expected starttls, implicit or none)", cfg.TLS)}
	}

	port := cfg.Port
	if port == 0 {
		port = 587
	}

	m := mailer.New(mailer.Settings{
		Host:     cfg.Host,
		Port:     port,
		TLS:      mode,
		Username: cfg.Username,
		Password: cfg.Password,
		From:     cfg.From,
		Timeout:  cfg.Timeout,
	})

	return newMailNotifier(m, cfg.Recipients, cfg.SMSGateway), nil
}

func newMailNotifier(sender mailSender, recipients []string, smsGateway string) *MailNotifier {
	return &MailNotifier{
		sender:     sender,
		recipients: append([]string(nil), recipients...),
		smsGateway: strings.TrimSpace(smsGateway),
	}
}

// Notify sends the open-seat alert for open.
//
// One e-mail goes to the recipients. When an SMS gateway is configured a
// second message, whose body is the alert subject, goes to the gateway.
func (n *MailNotifier) Notify(ctx context.Context, open []CheckResult) error {
	if len(open) == 0 {
		return &NotificationError{Op: "compose", Err: errors.New("no open courses to report")}
	}

	subject := alertSubject(open)
	msgs := []mailer.Message{{
		To:      n.recipients,
		Subject: subject,
		Body:    alertBody(open),
	}}
	if n.smsGateway != "" {
		msgs = append(msgs, mailer.Message{
			To:   []string{n.smsGateway},
			Body: subject,
		})
	}

	return asNotificationError(n.sender.Send(ctx, msgs...))
}

// SendTest sends a configuration test message to the recipients.
func (n *MailNotifier) SendTest(ctx context.Context) error {
	return asNotificationError(n.sender.Send(ctx, mailer.Message{
		To:      n.recipients,
		Subject: "seatwatch test email",
		Body: "This is a test of your seatwatch notification settings.\n" +
			"If you received this, seat alerts can be delivered.\n",
	}))
}

// SendFailureAlert tells the recipients that the watcher stopped.
func (n *MailNotifier) SendFailureAlert(ctx context.Context, cause error) error {
	return asNotificationError(n.sender.Send(ctx, mailer.Message{
		To:      n.recipients,
		Subject: "seatwatch has stopped",
		Body: fmt.Sprintf("seatwatch stopped checking for open seats.\n\nReason: %v\n\n"+
			"Please check the logs and restart it.\n", cause),
	}))
}

func alertSubject(open []CheckResult) string {
	if len(open) == 1 {
		return "Seat available for " + open[0].Course.Label()
	}
	return fmt.Sprintf("Seats available for %d courses", len(open))
}

func alertBody(open []CheckResult) string {
	var sb strings.Builder
	for i, r := range open {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "A spot has opened up for %s\n", r.Course.Label())
		if r.Title != "" {
			fmt.Fprintf(&sb, "Title: %s\n", r.Title)
		}
		fmt.Fprintf(&sb, "Seats available: %d\n", r.SeatsAvailable)
		if r.Capacity > 0 {
			fmt.Fprintf(&sb, "Total capacity: %d\n", r.Capacity)
		}
		if !r.CheckedAt.IsZero() {
			fmt.Fprintf(&sb, "Checked at: %s\n", r.CheckedAt.Format(time.DateTime))
		}
	}
	sb.WriteString("\nRegister as soon as possible!\n")
	return sb.String()
}

// asNotificationError wraps err as a *NotificationError, keeping the
// failed SMTP step when known.
func asNotificationError(err error) error {
	if err == nil {
		return nil
	}
	var notifErr *NotificationError
	if errors.As(err, &notifErr) {
		return err
	}
	var mailErr *mailer.Error
	if errors.As(err, &mailErr) {
		return &NotificationError{Op: mailErr.Op, Err: err}
	}
	return &NotificationError{Op: "send", Err: err}
}
