// Package mailer submits plain-text e-mail over SMTP.
//
// A [Mailer] opens one SMTP session per [Mailer.Send] call, negotiates TLS
// (STARTTLS, implicit TLS, or none for local relays), authenticates with
// PLAIN when credentials are configured and delivers every message of the
// batch before quitting.
package mailer
