package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"time"
)

const defaultTimeout = 30 * time.Second

// TLSMode selects how the SMTP connection is secured.
type TLSMode string

const (
	// TLSStartTLS upgrades a plain connection with STARTTLS (port 587).
	TLSStartTLS TLSMode = "starttls"

	// TLSImplicit connects with TLS from the first byte (port 465).
	TLSImplicit TLSMode = "implicit"

	// TLSNone sends in the clear. Only meant for local relays.
	TLSNone TLSMode = "none"
)

// Operation names used in [Error].
const (
	OpAddress  = "address"
	OpDial     = "dial"
	OpStartTLS = "starttls"
	OpAuth     = "auth"
	OpSend     = "send"
)

// Error describes which step of a submission failed.
type Error struct {
	Op        string
	Recipient string
	Err       error
}

func (e *Error) Error() string {
	if e.Recipient != "" {
		return fmt.Sprintf("smtp %s (%s): %v", e.Op, e.Recipient, e.Err)
	}
	return fmt.Sprintf("smtp %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Settings configures a [Mailer].
type Settings struct {
	Host     string
	Port     int
	TLS      TLSMode
	Username string
	Password string

	// From is the envelope and header sender.
	From string

	// Timeout bounds the whole session when ctx has no deadline.
	Timeout time.Duration

	// TLSConfig overrides the TLS client configuration. Tests use it to
	// trust a local certificate.
	TLSConfig *tls.Config
}

// Message is one e-mail to deliver.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Mailer delivers messages through one SMTP relay.
type Mailer struct {
	settings Settings
	now      func() time.Time
}

// New creates a [Mailer]. An empty TLS mode defaults to implicit TLS on
// port 465 and STARTTLS otherwise.
func New(s Settings) *Mailer {
	if s.TLS == "" {
		if s.Port == 465 {
			s.TLS = TLSImplicit
		} else {
			s.TLS = TLSStartTLS
		}
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	return &Mailer{settings: s, now: time.Now}
}

// Send delivers msgs in order over a single SMTP session.
//
// Every address is validated before connecting, so a malformed recipient
// fails without any network traffic. The first failure aborts the batch;
// messages before it have already been handed to the relay.
func (m *Mailer) Send(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}

	from, err := mail.ParseAddress(m.settings.From)
	if err != nil {
		return &Error{Op: OpAddress, Recipient: m.settings.From, Err: err}
	}

	envelopes := make([][]string, len(msgs))
	for i, msg := range msgs {
		if len(msg.To) == 0 {
			return &Error{Op: OpAddress, Err: errors.New("message has no recipients")}
		}
		for _, to := range msg.To {
			addr, err := mail.ParseAddress(to)
			if err != nil {
				return &Error{Op: OpAddress, Recipient: to, Err: err}
			}
			envelopes[i] = append(envelopes[i], addr.Address)
		}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.settings.Timeout)
		defer cancel()
	}

	c, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	if err := m.authenticate(c); err != nil {
		return err
	}

	for i, msg := range msgs {
		data, err := compose(from, msg, m.now())
		if err != nil {
			return &Error{Op: OpSend, Err: err}
		}
		if err := deliver(c, from.Address, envelopes[i], data); err != nil {
			return err
		}
	}

	if err := c.Quit(); err != nil {
		return &Error{Op: OpSend, Err: fmt.Errorf("quit: %w", err)}
	}
	return nil
}

// dial connects, reads the greeting and secures the session.
func (m *Mailer) dial(ctx context.Context) (*smtp.Client, error) {
	addr := net.JoinHostPort(m.settings.Host, strconv.Itoa(m.settings.Port))
	dialer := &net.Dialer{}

	var (
		conn net.Conn
		err  error
	)
	if m.settings.TLS == TLSImplicit {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: m.tlsConfig()}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &Error{Op: OpDial, Err: err}
	}

	// net/smtp has no context support; bound the session with a deadline
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.settings.Host)
	if err != nil {
		_ = conn.Close()
		return nil, &Error{Op: OpDial, Err: err}
	}

	if m.settings.TLS == TLSStartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			_ = c.Close()
			return nil, &Error{Op: OpStartTLS, Err: errors.New("server does not offer STARTTLS")}
		}
		if err := c.StartTLS(m.tlsConfig()); err != nil {
			_ = c.Close()
			return nil, &Error{Op: OpStartTLS, Err: err}
		}
	}

	return c, nil
}

func (m *Mailer) authenticate(c *smtp.Client) error {
	if m.settings.Password == "" {
		return nil
	}
	user := m.settings.Username
	if user == "" {
		user = m.settings.From
	}
	if ok, _ := c.Extension("AUTH"); !ok {
		return &Error{Op: OpAuth, Err: errors.New("server does not offer AUTH")}
	}
	if err := c.Auth(smtp.PlainAuth("", user, m.settings.Password, m.settings.Host)); err != nil {
		return &Error{Op: OpAuth, Err: err}
	}
	return nil
}

func (m *Mailer) tlsConfig() *tls.Config {
	if m.settings.TLSConfig != nil {
		return m.settings.TLSConfig.Clone()
	}
	return &tls.Config{ServerName: m.settings.Host, MinVersion: tls.VersionTLS12}
}

func deliver(c *smtp.Client, from string, to []string, data []byte) error {
	if err := c.Mail(from); err != nil {
		return &Error{Op: OpSend, Recipient: from, Err: err}
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return &Error{Op: OpSend, Recipient: rcpt, Err: err}
		}
	}
	w, err := c.Data()
	if err != nil {
		return &Error{Op: OpSend, Err: err}
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return &Error{Op: OpSend, Err: err}
	}
	if err := w.Close(); err != nil {
		return &Error{Op: OpSend, Err: err}
	}
	return nil
}
