package seatwatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/seatwatch/internal/poller"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Checker reports the availability of one course.
//
// Check issues the backend queries for a single course and never retries.
// It returns a [CheckResult] classified as [StatusOpen] or [StatusFull], or
// fails with a *[TransportError] or *[RateLimitedError].
type Checker interface {
	Check(ctx context.Context, course Course) (CheckResult, error)
}

// CheckerFunc adapts an ordinary function to the [Checker] interface.
type CheckerFunc func(ctx context.Context, course Course) (CheckResult, error)

// Check calls f(ctx, course).
func (f CheckerFunc) Check(ctx context.Context, course Course) (CheckResult, error) {
	return f(ctx, course)
}

// BannerConfig configures a [BannerChecker].
//
// Only BaseURL is required; other zero values take Banner 9 defaults.
type BannerConfig struct {
	// BaseURL is the root of the registration backend,
	// e.g. "https://reg.example.edu".
	BaseURL string

	// TermSearchPath is the term selection endpoint.
	// Defaults to "/StudentRegistrationSsb/ssb/term/search".
	TermSearchPath string

	// CourseSearchPath is the course search endpoint.
	// Defaults to "/StudentRegistrationSsb/ssb/searchResults/searchResults".
	CourseSearchPath string

	// PageSize is the number of sections requested per search. Defaults to 50.
	PageSize int

	// Timeout bounds each backend request. Defaults to 30s.
	Timeout time.Duration

	// UserAgent is sent on every request. Defaults to a desktop browser string.
	UserAgent string

	// Logger receives request tracing at debug level. Defaults to slog.Default().
	Logger *slog.Logger
}

// BannerChecker is a [Checker] for Ellucian Banner class search backends.
//
// Each check selects the course's term on a cookie session and then
// searches by subject and course number, picking the section by CRN.
// A section missing from the results is reported as [StatusFull].
type BannerChecker struct {
	client *poller.Client
	banner *poller.Banner
	logger *slog.Logger
}

// NewBannerChecker creates a [BannerChecker].
//
// Returns a *[ConfigError] if the base URL is missing or invalid.
func NewBannerChecker(cfg BannerConfig) (*BannerChecker, error) {
	if cfg.BaseURL == "" {
		return nil, &ConfigError{Field: "base_url", Err: errors.New("is required")}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	client := poller.NewClient(userAgent, logger)
	banner, err := poller.NewBanner(client, poller.BannerConfig{
		BaseURL:          cfg.BaseURL,
		TermSearchPath:   cfg.TermSearchPath,
		CourseSearchPath: cfg.CourseSearchPath,
		PageSize:         cfg.PageSize,
		Timeout:          cfg.Timeout,
	})
	if err != nil {
		return nil, &ConfigError{Field: "base_url", Err: err}
	}

	return &BannerChecker{client: client, banner: banner, logger: logger}, nil
}

// Check implements [Checker].
func (b *BannerChecker) Check(ctx context.Context, course Course) (CheckResult, error) {
	if course.Term() == "" || course.Subject() == "" || course.CourseNumber() == "" {
		return CheckResult{}, &TransportError{
			Course: course.Label(),
			Err:    errors.New("banner search needs term, subject and course number"),
		}
	}

	lookup, err := b.banner.Lookup(ctx, poller.Query{
		Term:         course.Term(),
		Subject:      course.Subject(),
		CourseNumber: course.CourseNumber(),
		CRN:          course.CRN(),
	})
	if err != nil {
		var httpErr *poller.HTTPError
		if errors.As(err, &httpErr) && httpErr.Throttled() {
			return CheckResult{}, &RateLimitedError{
				Course:     course.Label(),
				StatusCode: httpErr.StatusCode,
				RetryAfter: httpErr.RetryAfter,
			}
		}
		return CheckResult{}, &TransportError{Course: course.Label(), Err: err}
	}

	result := CheckResult{
		Course:         course,
		Status:         StatusFull,
		SectionFound:   lookup.Found,
		SeatsKnown:     lookup.SeatsKnown,
		SeatsAvailable: lookup.SeatsAvailable,
		Capacity:       lookup.Capacity,
		Enrolled:       lookup.Enrolled,
		Title:          lookup.Title,
		CheckedAt:      time.Now(),
		Latency:        lookup.Latency,
		StatusCode:     lookup.StatusCode,
		RawResponse:    lookup.Body,
	}

	switch {
	case !lookup.Found:
		b.logger.Debug("section not in search results, treating as full",
			"course", course.Label(),
			"term", course.Term(),
		)
	case !lookup.SeatsKnown:
		b.logger.Debug("section has no seat counts, treating as full",
			"course", course.Label(),
		)
	case lookup.SeatsAvailable > 0:
		result.Status = StatusOpen
	}

	return result, nil
}

// Close releases idle backend connections.
func (b *BannerChecker) Close() {
	b.client.Close()
}
