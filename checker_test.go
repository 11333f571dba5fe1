package seatwatch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// bannerStub serves the term and search endpoints with a fixed answer.
func bannerStub(t *testing.T, status int, body string, header http.Header) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/StudentRegistrationSsb/ssb/term/search", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/StudentRegistrationSsb/ssb/searchResults/searchResults", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			t.Errorf("search request without session cookie")
		}
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestChecker(t *testing.T, baseURL string, logger *slog.Logger) *BannerChecker {
	t.Helper()
	if logger == nil {
		logger = testLogger()
	}
	c, err := NewBannerChecker(BannerConfig{BaseURL: baseURL, Timeout: 5 * time.Second, Logger: logger})
	if err != nil {
		t.Fatalf("NewBannerChecker() error = %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func bannerCourse(t *testing.T) Course {
	t.Helper()
	c, err := NewCourse("12345", WithTerm("202509"), WithSubject("CS", "101"))
	if err != nil {
		t.Fatalf("NewCourse() error = %v", err)
	}
	return c
}

func TestBannerChecker_Classification(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus Status
		wantFound  bool
		wantSeats  int
	}{
		{
			name:       "open",
			body:       `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"12345","courseTitle":"Intro","seatsAvailable":2,"maximumEnrollment":30,"enrollment":28}]}`,
			wantStatus: StatusOpen,
			wantFound:  true,
			wantSeats:  2,
		},
		{
			name:       "full",
			body:       `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"12345","seatsAvailable":0,"maximumEnrollment":30,"enrollment":30}]}`,
			wantStatus: StatusFull,
			wantFound:  true,
		},
		{
			name:       "section absent",
			body:       `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"99999","seatsAvailable":5}]}`,
			wantStatus: StatusFull,
		},
		{
			name:       "no results",
			body:       `{"success":false,"totalCount":0,"data":null}`,
			wantStatus: StatusFull,
		},
		{
			name:       "no seat counts",
			body:       `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"12345"}]}`,
			wantStatus: StatusFull,
			wantFound:  true,
		},
		{
			name:       "over-enrolled",
			body:       `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"12345","seatsAvailable":-3,"maximumEnrollment":30,"enrollment":33}]}`,
			wantStatus: StatusFull,
			wantFound:  true,
			wantSeats:  -3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := bannerStub(t, http.StatusOK, tt.body, nil)
			checker := newTestChecker(t, server.URL, nil)

			result, err := checker.Check(context.Background(), bannerCourse(t))
			if err != nil {
				t.Fatalf("Check() error = %v", err)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("Status = %v, want %v", result.Status, tt.wantStatus)
			}
			if result.SectionFound != tt.wantFound {
				t.Errorf("SectionFound = %v, want %v", result.SectionFound, tt.wantFound)
			}
			if result.SeatsAvailable != tt.wantSeats {
				t.Errorf("SeatsAvailable = %d, want %d", result.SeatsAvailable, tt.wantSeats)
			}
			if result.Course.CRN() != "12345" {
				t.Errorf("Course = %v", result.Course)
			}
			if result.CheckedAt.IsZero() {
				t.Error("CheckedAt not set")
			}
			if len(result.RawResponse) == 0 {
				t.Error("RawResponse not set")
			}
		})
	}
}

func TestBannerChecker_AbsentSectionLoggedDistinctly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	absent := bannerStub(t, http.StatusOK, `{"success":true,"totalCount":0,"data":[]}`, nil)
	if _, err := newTestChecker(t, absent.URL, logger).Check(context.Background(), bannerCourse(t)); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !strings.Contains(buf.String(), "section not in search results") {
		t.Errorf("absent section not logged distinctly, log:\n%s", buf.String())
	}

	buf.Reset()
	full := bannerStub(t, http.StatusOK, `{"success":true,"totalCount":1,"data":[{"courseReferenceNumber":"12345","seatsAvailable":0}]}`, nil)
	if _, err := newTestChecker(t, full.URL, logger).Check(context.Background(), bannerCourse(t)); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if strings.Contains(buf.String(), "section not in search results") {
		t.Errorf("confirmed full section logged as absent, log:\n%s", buf.String())
	}
}

func TestBannerChecker_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		header        http.Header
		wantThrottled bool
		wantRetry     time.Duration
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"120"}}, wantThrottled: true, wantRetry: 2 * time.Minute},
		{name: "service unavailable", status: http.StatusServiceUnavailable, wantThrottled: true},
		{name: "server error", status: http.StatusInternalServerError},
		{name: "not found", status: http.StatusNotFound},
		{name: "forbidden", status: http.StatusForbidden, wantThrottled: true},
		{name: "html body", status: http.StatusOK, body: "<html>maintenance</html>"},
		{name: "unexpected schema", status: http.StatusOK, body: `{"rows":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := bannerStub(t, tt.status, tt.body, tt.header)
			checker := newTestChecker(t, server.URL, nil)

			_, err := checker.Check(context.Background(), bannerCourse(t))
			if err == nil {
				t.Fatal("Check() expected error, got nil")
			}

			var rateErr *RateLimitedError
			var transportErr *TransportError
			switch {
			case tt.wantThrottled:
				if !errors.As(err, &rateErr) {
					t.Fatalf("error = %v, want *RateLimitedError", err)
				}
				if rateErr.StatusCode != tt.status {
					t.Errorf("StatusCode = %d, want %d", rateErr.StatusCode, tt.status)
				}
				if rateErr.RetryAfter != tt.wantRetry {
					t.Errorf("RetryAfter = %v, want %v", rateErr.RetryAfter, tt.wantRetry)
				}
			default:
				if !errors.As(err, &transportErr) {
					t.Fatalf("error = %v, want *TransportError", err)
				}
			}
		})
	}
}

func TestBannerChecker_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	checker := newTestChecker(t, url, nil)
	_, err := checker.Check(context.Background(), bannerCourse(t))

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
}

func TestBannerChecker_IncompleteCourse(t *testing.T) {
	server := bannerStub(t, http.StatusOK, `{"success":true}`, nil)
	checker := newTestChecker(t, server.URL, nil)

	_, err := checker.Check(context.Background(), mustCourse(t, "12345"))
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
}

func TestNewBannerChecker_Invalid(t *testing.T) {
	for _, base := range []string{"", "ftp://reg.example.edu", "://bad"} {
		_, err := NewBannerChecker(BannerConfig{BaseURL: base})
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Errorf("NewBannerChecker(%q) error = %v, want *ConfigError", base, err)
		}
	}
}

func TestCheckerFunc(t *testing.T) {
	var c Checker = CheckerFunc(func(_ context.Context, course Course) (CheckResult, error) {
		return CheckResult{Course: course, Status: StatusOpen}, nil
	})
	result, err := c.Check(context.Background(), mustCourse(t, "1"))
	if err != nil || !result.Open() {
		t.Errorf("CheckerFunc result = %+v, %v", result, err)
	}
}
