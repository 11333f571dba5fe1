package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"mime/quotedprintable"
	"net"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

type receivedMail struct {
	From string
	To   []string
	Data []byte
}

// fakeSMTP is a minimal in-process SMTP server speaking just enough of the
// protocol for net/smtp.
type fakeSMTP struct {
	ln net.Listener

	advertiseAuth     bool
	advertiseStartTLS bool
	authFail          bool
	rejectRcpt        string

	mu       sync.Mutex
	messages []receivedMail
	auths    []string
	sessions int
	wg       sync.WaitGroup
}

func startFakeSMTP(t *testing.T, configure func(*fakeSMTP)) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeSMTP{ln: ln, advertiseAuth: true}
	if configure != nil {
		configure(f)
	}
	go f.serve()
	t.Cleanup(func() {
		_ = ln.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeSMTP) port() int {
	return f.ln.Addr().(*net.TCPAddr).Port
}

func (f *fakeSMTP) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			f.handle(conn)
		}()
	}
}

func (f *fakeSMTP) handle(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	f.mu.Lock()
	f.sessions++
	f.mu.Unlock()

	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 fake.test ESMTP")

	var cur receivedMail
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb := strings.ToUpper(line)
		if i := strings.IndexByte(line, ' '); i != -1 {
			verb = strings.ToUpper(line[:i])
		}

		switch verb {
		case "EHLO":
			_ = tp.PrintfLine("250-fake.test")
			if f.advertiseStartTLS {
				_ = tp.PrintfLine("250-STARTTLS")
			}
			if f.advertiseAuth {
				_ = tp.PrintfLine("250-AUTH PLAIN")
			}
			_ = tp.PrintfLine("250 HELP")
		case "HELO", "RSET", "NOOP":
			_ = tp.PrintfLine("250 ok")
		case "AUTH":
			f.mu.Lock()
			f.auths = append(f.auths, line)
			f.mu.Unlock()
			if f.authFail {
				_ = tp.PrintfLine("535 5.7.8 authentication failed")
			} else {
				_ = tp.PrintfLine("235 2.7.0 accepted")
			}
		case "MAIL":
			cur = receivedMail{From: angleAddr(line)}
			_ = tp.PrintfLine("250 ok")
		case "RCPT":
			addr := angleAddr(line)
			if addr == f.rejectRcpt {
				_ = tp.PrintfLine("550 5.1.1 no such user")
				continue
			}
			cur.To = append(cur.To, addr)
			_ = tp.PrintfLine("250 ok")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			data, err := tp.ReadDotBytes()
			if err != nil {
				return
			}
			cur.Data = data
			f.mu.Lock()
			f.messages = append(f.messages, cur)
			f.mu.Unlock()
			_ = tp.PrintfLine("250 2.0.0 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("502 5.5.2 not implemented")
		}
	}
}

func (f *fakeSMTP) Messages() []receivedMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]receivedMail(nil), f.messages...)
}

func (f *fakeSMTP) Auths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.auths...)
}

func (f *fakeSMTP) Sessions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions
}

func angleAddr(line string) string {
	start := strings.IndexByte(line, '<')
	end := strings.IndexByte(line, '>')
	if start == -1 || end < start {
		return ""
	}
	return line[start+1 : end]
}

func testSettings(f *fakeSMTP) Settings {
	return Settings{
		Host:     "127.0.0.1",
		Port:     f.port(),
		TLS:      TLSNone,
		Username: "watcher@example.edu",
		Password: "hunter2",
		From:     "watcher@example.edu",
		Timeout:  5 * time.Second,
	}
}

// parsed decodes a received message into its headers and plain body.
func parsed(t *testing.T, data []byte) (*mail.Message, string) {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return msg, string(body)
}

func TestMailer_Send_SingleMessage(t *testing.T) {
	srv := startFakeSMTP(t, nil)
	m := New(testSettings(srv))

	err := m.Send(context.Background(), Message{
		To:      []string{"student@example.edu"},
		Subject: "Seat available for CS 101 (CRN: 12345)",
		Body:    "A spot has opened up.\nSeats available: 3\n",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs := srv.Messages()
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}
	got := msgs[0]
	if got.From != "watcher@example.edu" {
		t.Errorf("envelope from = %q", got.From)
	}
	if len(got.To) != 1 || got.To[0] != "student@example.edu" {
		t.Errorf("envelope to = %v", got.To)
	}

	msg, body := parsed(t, got.Data)
	if s := msg.Header.Get("Subject"); s != "Seat available for CS 101 (CRN: 12345)" {
		t.Errorf("Subject = %q", s)
	}
	if id := msg.Header.Get("Message-ID"); !strings.HasSuffix(id, "@example.edu>") {
		t.Errorf("Message-ID = %q, want sender domain", id)
	}
	if ct := msg.Header.Get("Content-Type"); ct != "text/plain; charset=UTF-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(body, "Seats available: 3") {
		t.Errorf("body = %q", body)
	}

	auths := srv.Auths()
	if len(auths) != 1 {
		t.Fatalf("auth attempts = %d, want 1", len(auths))
	}
	fields := strings.Fields(auths[0])
	if len(fields) != 3 || fields[1] != "PLAIN" {
		t.Fatalf("auth line = %q", auths[0])
	}
	creds, err := base64.StdEncoding.DecodeString(fields[2])
	if err != nil {
		t.Fatalf("decode credentials: %v", err)
	}
	if string(creds) != "\x00watcher@example.edu\x00hunter2" {
		t.Errorf("credentials = %q", creds)
	}
}

func TestMailer_Send_BatchUsesOneSession(t *testing.T) {
	srv := startFakeSMTP(t, nil)
	m := New(testSettings(srv))

	err := m.Send(context.Background(),
		Message{To: []string{"student@example.edu"}, Subject: "alert", Body: "details"},
		Message{To: []string{"5551234567@txt.example.com"}, Body: "alert"},
	)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if srv.Sessions() != 1 {
		t.Errorf("sessions = %d, want 1", srv.Sessions())
	}
	msgs := srv.Messages()
	if len(msgs) != 2 {
		t.Fatalf("received %d messages, want 2", len(msgs))
	}
	sms, body := parsed(t, msgs[1].Data)
	if _, ok := sms.Header["Subject"]; ok {
		t.Errorf("SMS message should have no Subject header, got %q", sms.Header.Get("Subject"))
	}
	if strings.TrimSpace(body) != "alert" {
		t.Errorf("SMS body = %q, want %q", body, "alert")
	}
}

func TestMailer_Send_NoPasswordSkipsAuth(t *testing.T) {
	srv := startFakeSMTP(t, nil)
	settings := testSettings(srv)
	settings.Password = ""

	if err := New(settings).Send(context.Background(), Message{To: []string{"a@example.edu"}, Body: "x"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n := len(srv.Auths()); n != 0 {
		t.Errorf("auth attempts = %d, want 0", n)
	}
}

func TestMailer_Send_Failures(t *testing.T) {
	tests := []struct {
		name          string
		configure     func(*fakeSMTP)
		mutate        func(*Settings)
		to            []string
		wantOp        string
		wantRecipient string
	}{
		{
			name:      "auth rejected",
			configure: func(f *fakeSMTP) { f.authFail = true },
			to:        []string{"a@example.edu"},
			wantOp:    OpAuth,
		},
		{
			name:      "auth not offered",
			configure: func(f *fakeSMTP) { f.advertiseAuth = false },
			to:        []string{"a@example.edu"},
			wantOp:    OpAuth,
		},
		{
			name:          "recipient rejected",
			configure:     func(f *fakeSMTP) { f.rejectRcpt = "ghost@example.edu" },
			to:            []string{"ghost@example.edu"},
			wantOp:        OpSend,
			wantRecipient: "ghost@example.edu",
		},
		{
			name:          "malformed recipient",
			to:            []string{"not an address"},
			wantOp:        OpAddress,
			wantRecipient: "not an address",
		},
		{
			name:   "malformed sender",
			mutate: func(s *Settings) { s.From = "@@" },
			to:     []string{"a@example.edu"},
			wantOp: OpAddress,
		},
		{
			name:   "no recipients",
			wantOp: OpAddress,
		},
		{
			name:   "starttls not offered",
			mutate: func(s *Settings) { s.TLS = TLSStartTLS },
			to:     []string{"a@example.edu"},
			wantOp: OpStartTLS,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := startFakeSMTP(t, tt.configure)
			settings := testSettings(srv)
			if tt.mutate != nil {
				tt.mutate(&settings)
			}

			err := New(settings).Send(context.Background(), Message{To: tt.to, Subject: "s", Body: "b"})
			var mErr *Error
			if !errors.As(err, &mErr) {
				t.Fatalf("Send() error = %v, want *Error", err)
			}
			if mErr.Op != tt.wantOp {
				t.Errorf("Op = %q, want %q (err: %v)", mErr.Op, tt.wantOp, err)
			}
			if tt.wantRecipient != "" && mErr.Recipient != tt.wantRecipient {
				t.Errorf("Recipient = %q, want %q", mErr.Recipient, tt.wantRecipient)
			}
			if len(srv.Messages()) != 0 {
				t.Errorf("no message should be delivered")
			}
		})
	}
}

func TestMailer_Send_AddressErrorsDoNotConnect(t *testing.T) {
	srv := startFakeSMTP(t, nil)

	_ = New(testSettings(srv)).Send(context.Background(), Message{To: []string{"bad"}, Body: "b"})

	if srv.Sessions() != 0 {
		t.Errorf("sessions = %d, want 0", srv.Sessions())
	}
}

func TestMailer_Send_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	m := New(Settings{Host: "127.0.0.1", Port: port, TLS: TLSNone, From: "a@example.edu", Timeout: time.Second})
	err = m.Send(context.Background(), Message{To: []string{"b@example.edu"}, Body: "x"})

	var mErr *Error
	if !errors.As(err, &mErr) || mErr.Op != OpDial {
		t.Errorf("Send() error = %v, want dial error", err)
	}
}

func TestMailer_Send_Empty(t *testing.T) {
	m := New(Settings{Host: "127.0.0.1", Port: 1, From: "a@example.edu"})
	if err := m.Send(context.Background()); err != nil {
		t.Errorf("Send() with no messages error = %v", err)
	}
}

func TestNew_TLSDefaults(t *testing.T) {
	tests := []struct {
		port int
		mode TLSMode
		want TLSMode
	}{
		{587, "", TLSStartTLS},
		{25, "", TLSStartTLS},
		{465, "", TLSImplicit},
		{465, TLSNone, TLSNone},
	}

	for _, tt := range tests {
		m := New(Settings{Port: tt.port, TLS: tt.mode})
		if m.settings.TLS != tt.want {
			t.Errorf("New(port %d, %q).TLS = %q, want %q", tt.port, tt.mode, m.settings.TLS, tt.want)
		}
		if m.settings.Timeout != defaultTimeout {
			t.Errorf("Timeout = %v, want %v", m.settings.Timeout, defaultTimeout)
		}
	}
}

func TestCompose(t *testing.T) {
	from := &mail.Address{Name: "Seat Watch", Address: "watch@example.edu"}
	now := time.Date(2025, 8, 1, 9, 30, 0, 0, time.UTC)

	data, err := compose(from, Message{
		To:      []string{"a@example.edu", "b@example.edu"},
		Subject: "Plätze frei\r\nBcc: evil@example.com",
		Body:    "line one\nline two",
	}, now)
	if err != nil {
		t.Fatalf("compose() error = %v", err)
	}

	msg, body := parsed(t, data)
	if got := msg.Header.Get("To"); got != "a@example.edu, b@example.edu" {
		t.Errorf("To = %q", got)
	}
	if got := msg.Header.Get("Bcc"); got != "" {
		t.Errorf("header injection produced Bcc %q", got)
	}
	if got := msg.Header.Get("Date"); got != "Fri, 01 Aug 2025 09:30:00 +0000" {
		t.Errorf("Date = %q", got)
	}
	if got := msg.Header.Get("From"); !strings.Contains(got, "watch@example.edu") {
		t.Errorf("From = %q", got)
	}
	if !strings.Contains(body, "line one") || !strings.Contains(body, "line two") {
		t.Errorf("body = %q", body)
	}
}

func TestMessageID(t *testing.T) {
	a := messageID("me@example.edu")
	b := messageID("me@example.edu")
	if a == b {
		t.Error("message ids should be unique")
	}
	if !strings.HasPrefix(a, "<") || !strings.HasSuffix(a, "@example.edu>") {
		t.Errorf("messageID = %q", a)
	}
	if got := messageID("nodomain"); !strings.HasSuffix(got, "@localhost>") {
		t.Errorf("messageID(nodomain) = %q", got)
	}
}
