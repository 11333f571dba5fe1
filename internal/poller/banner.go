package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Banner endpoint defaults. These match a stock Ellucian Banner 9
// Student Registration Self-Service deployment.
const (
	DefaultTermSearchPath   = "/StudentRegistrationSsb/ssb/term/search"
	DefaultCourseSearchPath = "/StudentRegistrationSsb/ssb/searchResults/searchResults"
	DefaultPageSize         = 50
	DefaultRequestTimeout   = 30 * time.Second
)

// ErrMalformedResponse reports a response body that is not the expected
// search result document.
var ErrMalformedResponse = errors.New("malformed search response")

// HTTPError reports a non-2xx response from the backend.
type HTTPError struct {
	// Stage names the protocol step: "term" or "search".
	Stage string

	StatusCode int

	// RetryAfter is the parsed Retry-After header, zero if absent.
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s request returned HTTP %d", e.Stage, e.StatusCode)
}

// Throttled reports whether the status code is one the backend uses to
// shed load or block abusive clients. Banner answers 403 once a client
// trips its abuse protection.
func (e *HTTPError) Throttled() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusForbidden, http.StatusServiceUnavailable:
		return true
	}
	return false
}

// Query identifies the section to look up.
type Query struct {
	Term         string
	Subject      string
	CourseNumber string
	CRN          string
}

// Section is one entry of the search result "data" array.
//
// Seat fields are pointers so a missing field can be told apart from zero.
type Section struct {
	CRN               string `json:"courseReferenceNumber"`
	Term              string `json:"term"`
	Subject           string `json:"subject"`
	CourseNumber      string `json:"courseNumber"`
	Title             string `json:"courseTitle"`
	SeatsAvailable    *int   `json:"seatsAvailable"`
	MaximumEnrollment *int   `json:"maximumEnrollment"`
	Enrollment        *int   `json:"enrollment"`
	WaitAvailable     *int   `json:"waitAvailable"`
	OpenSection       *bool  `json:"openSection"`
}

// SearchResponse is the document returned by the course search endpoint.
type SearchResponse struct {
	Success    bool      `json:"success"`
	TotalCount int       `json:"totalCount"`
	Data       []Section `json:"data"`
}

// Lookup is the outcome of one successful section lookup.
type Lookup struct {
	// Found is false when the search came back empty or without the CRN.
	Found bool

	// SeatsKnown is false when the section carried no usable seat fields.
	SeatsKnown bool

	SeatsAvailable int
	Capacity       int
	Enrolled       int
	Title          string

	StatusCode int
	Body       []byte
	Latency    time.Duration
}

// BannerConfig configures a [Banner] backend.
type BannerConfig struct {
	BaseURL          string
	TermSearchPath   string
	CourseSearchPath string
	PageSize         int
	Timeout          time.Duration
}

// Banner speaks the Banner class search protocol over a [Client] session.
type Banner struct {
	client    *Client
	termURL   string
	searchURL string
	pageSize  int
	timeout   time.Duration
}

// NewBanner creates a [Banner] using client for all requests.
// Zero-valued config fields take the package defaults.
func NewBanner(client *Client, cfg BannerConfig) (*Banner, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme must be http or https, got %q", base.Scheme)
	}

	termPath := cfg.TermSearchPath
	if termPath == "" {
		termPath = DefaultTermSearchPath
	}
	searchPath := cfg.CourseSearchPath
	if searchPath == "" {
		searchPath = DefaultCourseSearchPath
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Banner{
		client:    client,
		termURL:   base.String() + ensureLeadingSlash(termPath),
		searchURL: base.String() + ensureLeadingSlash(searchPath),
		pageSize:  pageSize,
		timeout:   timeout,
	}, nil
}

// Lookup authorises the session for q.Term, searches for the course and
// picks the section matching q.CRN out of the results.
//
// Lookup makes exactly one term request and one search request and never
// retries. Failures are returned as *[HTTPError], [ErrMalformedResponse]
// (wrapped) or the underlying transport error.
func (b *Banner) Lookup(ctx context.Context, q Query) (Lookup, error) {
	start := time.Now()

	termResp := b.client.Fetch(ctx, Request{
		Method:  http.MethodPost,
		URL:     b.termURL,
		Query:   url.Values{"mode": {"search"}},
		Form:    url.Values{"term": {q.Term}},
		Timeout: b.timeout,
	})
	if termResp.Error != nil {
		return Lookup{}, fmt.Errorf("term request: %w", termResp.Error)
	}
	if !isSuccess(termResp.StatusCode) {
		return Lookup{}, newHTTPError("term", termResp)
	}

	resp := b.client.Fetch(ctx, Request{
		Method: http.MethodGet,
		URL:    b.searchURL,
		Query: url.Values{
			"txt_subject":      {q.Subject},
			"txt_courseNumber": {q.CourseNumber},
			"txt_term":         {q.Term},
			"pageOffset":       {"0"},
			"pageMaxSize":      {strconv.Itoa(b.pageSize)},
		},
		Timeout: b.timeout,
	})
	if resp.Error != nil {
		return Lookup{}, fmt.Errorf("search request: %w", resp.Error)
	}
	if !isSuccess(resp.StatusCode) {
		return Lookup{}, newHTTPError("search", resp)
	}

	search, err := ParseSearchResponse(resp.Body)
	if err != nil {
		return Lookup{}, err
	}

	lookup := Lookup{
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Latency:    time.Since(start),
	}

	section, ok := search.Find(q.CRN)
	if !ok {
		return lookup, nil
	}

	lookup.Found = true
	lookup.Title = section.Title
	lookup.SeatsAvailable, lookup.SeatsKnown = section.Seats()
	if section.MaximumEnrollment != nil {
		lookup.Capacity = *section.MaximumEnrollment
	}
	if section.Enrollment != nil {
		lookup.Enrolled = *section.Enrollment
	}
	return lookup, nil
}

// ParseSearchResponse decodes a search result document.
func ParseSearchResponse(body []byte) (SearchResponse, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return SearchResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if _, ok := raw["success"]; !ok {
		return SearchResponse{}, fmt.Errorf("%w: missing \"success\" field", ErrMalformedResponse)
	}

	var sr SearchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return SearchResponse{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return sr, nil
}

// Find returns the section with the given CRN. An unsuccessful or empty
// search finds nothing.
func (sr SearchResponse) Find(crn string) (Section, bool) {
	if !sr.Success || sr.TotalCount == 0 {
		return Section{}, false
	}
	for _, s := range sr.Data {
		if s.CRN == crn {
			return s, true
		}
	}
	return Section{}, false
}

// Seats returns the number of open seats and whether it could be determined.
//
// seatsAvailable is preferred; otherwise capacity minus enrollment is used.
func (s Section) Seats() (int, bool) {
	if s.SeatsAvailable != nil {
		return *s.SeatsAvailable, true
	}
	if s.MaximumEnrollment != nil && s.Enrollment != nil {
		return *s.MaximumEnrollment - *s.Enrollment, true
	}
	return 0, false
}

func newHTTPError(stage string, resp Response) *HTTPError {
	return &HTTPError{
		Stage:      stage,
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

func ensureLeadingSlash(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
