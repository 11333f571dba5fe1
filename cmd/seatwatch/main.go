// Package main is the entry point for the seatwatch CLI.
//
// seatwatch polls a university registration backend until one of the
// configured course sections has an open seat, sends one e-mail (and an
// optional SMS-via-email) alert, then exits.
//
// Usage:
//
//	seatwatch           # watch using ./config.yaml
//	seatwatch --debug   # verbose tracing, sends a test e-mail first
//
// The configuration file path can be changed with SEATWATCH_CONFIG.
//
// Exit codes: 0 alert delivered, 1 run failed, 2 configuration error,
// 130 interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/seatwatch"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
)

const (
	exitDone        = 0
	exitFailed      = 1
	exitConfig      = 2
	exitInterrupted = 130
)

// rootCmd is the only command; seatwatch has no subcommands.
var rootCmd = &cobra.Command{
	Use:   "seatwatch",
	Short: "Get an alert when a full course section opens up",
	Long: `seatwatch checks the registration backend for every configured course
section, one request at a time, and waits between passes. As soon as a
section has an open seat it sends one alert by e-mail (and SMS-via-email
if configured) and exits.

Quick start:
  1. Create config.yaml (or point SEATWATCH_CONFIG at one)
  2. Put the SMTP password in .env next to it
  3. Run: seatwatch --debug   # verifies e-mail delivery first

Example config:
  interval: 60s
  term: "202509"
  university:
    base_url: https://reg.example.edu
  courses:
    - crn: "12345"
      subject: CS
      course_number: "101"
  email:
    smtp_host: smtp.gmail.com
    sender_email: me@example.com
    sender_password: ${SMTP_PASSWORD}
    recipients: [me@example.com]`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) > 0 {
			return &seatwatch.ConfigError{Field: "args", Err: fmt.Errorf("unexpected arguments %q", args)}
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runWatch,
}

func init() {
	rootCmd.Flags().Bool("debug", false, "verbose logging and an e-mail self-test before polling")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &seatwatch.ConfigError{Field: "flags", Err: err}
	})
}

// exitCode maps the error returned by the root command to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitDone
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var cfgErr *seatwatch.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfig
	}
	return exitFailed
}

// Execute runs the root command and exits with the mapped code.
func Execute() {
	err := rootCmd.Execute()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "seatwatch:", err)
	}
	os.Exit(exitCode(err))
}

func main() {
	Execute()
}
