// Package config provides YAML configuration parsing for seatwatch.
//
// This package lets seatwatch run as a standalone binary driven by a
// configuration file, as an alternative to building a Watcher in code.
//
// Example configuration:
//
//	interval: 60s
//	course_delay: 2s
//	term: "202509"
//
//	university:
//	  base_url: https://reg.example.edu
//
//	courses:
//	  - crn: "12345"
//	    subject: CS
//	    course_number: "101"
//
//	email:
//	  smtp_host: smtp.gmail.com
//	  sender_email: me@example.com
//	  sender_password: ${SMTP_PASSWORD}
//	  recipients: [me@example.com]
//	  sms_gateway: 5551234567@vtext.com
//
// Secrets can be kept in a .env file next to the configuration file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/seatwatch"
)

// minInterval is the smallest wait allowed between two passes.
// The registration backend is shared by every student; keep load low.
const minInterval = 1 * time.Second

const (
	defaultSMTPPort     = 587
	implicitTLSSMTPPort = 465
)

// Config is the root configuration structure for seatwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Interval is the wait between two passes over the courses.
	// Accepts duration strings like "90s" or a bare number of seconds.
	// Required, at least 1s.
	Interval Duration `yaml:"interval"`

	// Schedule is an optional five-field cron expression. When set, passes
	// run at its activation times instead of every Interval.
	Schedule string `yaml:"schedule"`

	// CourseDelay is the pause between two checks in the same pass.
	CourseDelay Duration `yaml:"course_delay"`

	// ErrorLimit stops the run after this many consecutive failed checks.
	// Zero disables the limit.
	ErrorLimit int `yaml:"error_limit"`

	// Term is the default term code for every course.
	Term string `yaml:"term"`

	University UniversityConfig `yaml:"university"`
	Courses    []CourseConfig   `yaml:"courses"`
	Email      EmailConfig      `yaml:"email"`
}

// UniversityConfig describes the registration backend.
type UniversityConfig struct {
	// BaseURL is the backend root. Supports ${VAR} and ${VAR:-default}.
	BaseURL string `yaml:"base_url"`

	// TermSearchPath and CourseSearchPath override the Banner endpoints.
	TermSearchPath   string `yaml:"term_search_path"`
	CourseSearchPath string `yaml:"course_search_path"`

	// PageSize is the number of sections requested per search.
	PageSize int `yaml:"page_size"`

	// Timeout bounds each backend request. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`
}

// CourseConfig defines one watched section.
type CourseConfig struct {
	CRN          string `yaml:"crn"`
	Subject      string `yaml:"subject"`
	CourseNumber string `yaml:"course_number"`

	// Term overrides the top-level term for this course.
	Term string `yaml:"term"`

	// Label is the name used in notifications.
	// Defaults to "SUBJ NUM (CRN: n)".
	Label string `yaml:"label"`
}

// EmailConfig holds the notification settings. Every string field supports
// environment variable substitution.
type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`

	// SMTPPort defaults to 587, or 465 when TLS is "implicit".
	SMTPPort int `yaml:"smtp_port"`

	// TLS is "starttls", "implicit" or "none". Defaults to "starttls",
	// or "implicit" when SMTPPort is 465.
	TLS string `yaml:"tls"`

	SenderEmail string `yaml:"sender_email"`

	// Username defaults to SenderEmail.
	Username string `yaml:"username"`

	// SenderPassword is the SMTP password. Blank disables authentication.
	SenderPassword string `yaml:"sender_password"`

	// Recipient is a single alert recipient, merged into Recipients.
	Recipient  string   `yaml:"recipient"`
	Recipients []string `yaml:"recipients"`

	// SMSGateway is an optional e-mail-to-SMS address. Blank disables SMS.
	SMSGateway string `yaml:"sms_gateway"`

	// Timeout bounds one SMTP session. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`
}

// Duration wraps time.Duration for YAML unmarshalling.
//
// It accepts Go duration strings ("90s", "2m") and bare integers, which are
// read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)

	if secs, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(secs) * time.Second)
		return nil
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// A .env file in the same directory is loaded first; variables already set
// in the environment win. A missing .env file is not an error.
// All errors are returned as *seatwatch.ConfigError.
func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &seatwatch.ConfigError{Field: ".env", Err: err}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &seatwatch.ConfigError{Err: fmt.Errorf("failed to read config file: %w", err)}
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the base URL and all e-mail fields.
// Defaults are applied to the SMTP port, TLS mode and username, and the
// top-level term is copied to courses without one.
// All errors are returned as *seatwatch.ConfigError.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &seatwatch.ConfigError{Err: fmt.Errorf("failed to parse YAML: %w", err)}
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, &seatwatch.ConfigError{Err: err}
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables, applies defaults and
// validates the config.
func (c *Config) expandAndValidate() error {
	if c.Interval == 0 {
		return errors.New("interval is required")
	}
	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.Schedule != "" {
		if _, err := cron.ParseStandard(c.Schedule); err != nil {
			return fmt.Errorf("schedule %q: %w", c.Schedule, err)
		}
	}
	if c.CourseDelay < 0 {
		return fmt.Errorf("course_delay cannot be negative, got %s", c.CourseDelay.Duration())
	}
	if c.ErrorLimit < 0 {
		return fmt.Errorf("error_limit cannot be negative, got %d", c.ErrorLimit)
	}

	if err := c.University.expandAndValidate(); err != nil {
		return err
	}
	if err := c.validateCourses(); err != nil {
		return err
	}
	return c.Email.expandAndValidate()
}

func (u *UniversityConfig) expandAndValidate() error {
	if u.BaseURL == "" {
		return errors.New("university: base_url is required")
	}
	expanded, err := expandEnvVars(u.BaseURL)
	if err != nil {
		return fmt.Errorf("university: base_url: %w", err)
	}
	u.BaseURL = expanded

	parsedURL, err := url.Parse(u.BaseURL)
	if err != nil {
		return fmt.Errorf("university: invalid base_url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("university: base_url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("university: base_url must include a host")
	}

	if u.PageSize < 0 {
		return fmt.Errorf("university: page_size cannot be negative, got %d", u.PageSize)
	}
	if u.Timeout != 0 && u.Timeout.Duration() < time.Second {
		return fmt.Errorf("university: timeout must be at least 1s if specified, got %s", u.Timeout.Duration())
	}
	return nil
}

func (c *Config) validateCourses() error {
	if len(c.Courses) == 0 {
		return errors.New("at least one course must be defined")
	}

	c.Term = strings.TrimSpace(c.Term)
	seen := make(map[string]int, len(c.Courses))

	for i := range c.Courses {
		cc := &c.Courses[i]
		cc.CRN = strings.TrimSpace(cc.CRN)
		cc.Subject = strings.TrimSpace(cc.Subject)
		cc.CourseNumber = strings.TrimSpace(cc.CourseNumber)
		cc.Term = strings.TrimSpace(cc.Term)

		if cc.CRN == "" {
			return fmt.Errorf("courses[%d]: crn is required", i)
		}
		if cc.Subject == "" {
			return fmt.Errorf("courses[%d] (%s): subject is required", i, cc.CRN)
		}
		if cc.CourseNumber == "" {
			return fmt.Errorf("courses[%d] (%s): course_number is required", i, cc.CRN)
		}
		if cc.Term == "" {
			cc.Term = c.Term
		}
		if cc.Term == "" {
			return fmt.Errorf("courses[%d] (%s): term is required (set it on the course or at the top level)", i, cc.CRN)
		}

		key := cc.Term + "/" + cc.CRN
		if prev, dup := seen[key]; dup {
			return fmt.Errorf("courses[%d] (%s): duplicate of courses[%d]", i, cc.CRN, prev)
		}
		seen[key] = i
	}
	return nil
}

func (e *EmailConfig) expandAndValidate() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"smtp_host", &e.SMTPHost},
		{"tls", &e.TLS},
		{"sender_email", &e.SenderEmail},
		{"username", &e.Username},
		{"sender_password", &e.SenderPassword},
		{"recipient", &e.Recipient},
		{"sms_gateway", &e.SMSGateway},
	}
	for _, f := range fields {
		expanded, err := expandEnvVars(*f.ptr)
		if err != nil {
			return fmt.Errorf("email: %s: %w", f.name, err)
		}
		*f.ptr = strings.TrimSpace(expanded)
	}

	var recipients []string
	if e.Recipient != "" {
		recipients = append(recipients, e.Recipient)
	}
	for i, r := range e.Recipients {
		expanded, err := expandEnvVars(r)
		if err != nil {
			return fmt.Errorf("email: recipients[%d]: %w", i, err)
		}
		if expanded = strings.TrimSpace(expanded); expanded != "" {
			recipients = append(recipients, expanded)
		}
	}
	e.Recipients = recipients
	e.Recipient = ""

	if e.SMTPHost == "" {
		return errors.New("email: smtp_host is required")
	}
	if e.SenderEmail == "" {
		return errors.New("email: sender_email is required")
	}
	if _, err := mail.ParseAddress(e.SenderEmail); err != nil {
		return fmt.Errorf("email: sender_email %q: %w", e.SenderEmail, err)
	}
	if len(e.Recipients) == 0 {
		return errors.New("email: at least one recipient is required")
	}
	for i, r := range e.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return fmt.Errorf("email: recipients[%d] %q: %w", i, r, err)
		}
	}
	if e.SMSGateway != "" {
		if _, err := mail.ParseAddress(e.SMSGateway); err != nil {
			return fmt.Errorf("email: sms_gateway %q: %w", e.SMSGateway, err)
		}
	}

	e.TLS = strings.ToLower(e.TLS)
	switch e.TLS {
	case "":
		if e.SMTPPort == implicitTLSSMTPPort {
			e.TLS = "implicit"
		} else {
			e.TLS = "starttls"
		}
	case "starttls", "implicit", "none":
	default:
		return fmt.Errorf("email: tls must be starttls, implicit or none, got %q", e.TLS)
	}

	if e.SMTPPort == 0 {
		e.SMTPPort = defaultSMTPPort
		if e.TLS == "implicit" {
			e.SMTPPort = implicitTLSSMTPPort
		}
	}
	if e.SMTPPort < 1 || e.SMTPPort > 65535 {
		return fmt.Errorf("email: smtp_port must be between 1 and 65535, got %d", e.SMTPPort)
	}

	if e.Username == "" {
		e.Username = e.SenderEmail
	}
	if e.Timeout != 0 && e.Timeout.Duration() < time.Second {
		return fmt.Errorf("email: timeout must be at least 1s if specified, got %s", e.Timeout.Duration())
	}
	return nil
}
