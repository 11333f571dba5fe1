package seatwatch

import "time"

// Status classifies a section's availability.
type Status string

const (
	// StatusOpen indicates at least one seat is available.
	StatusOpen Status = "open"

	// StatusFull indicates no seat is available, or that availability could
	// not be confirmed.
	StatusFull Status = "full"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// CheckResult holds the outcome of one availability check.
//
// A CheckResult is created fresh for every check and is not retained across
// passes.
type CheckResult struct {
	// Course is the section that was checked.
	Course Course

	// Status is the classification of the section.
	Status Status

	// SectionFound is false when the backend response did not contain the
	// section. Such results are always [StatusFull].
	SectionFound bool

	// SeatsKnown is false when the section carried no usable seat counts.
	// Such results are always [StatusFull].
	SeatsKnown bool

	// SeatsAvailable is the number of open seats reported by the backend.
	SeatsAvailable int

	// Capacity is the maximum enrollment of the section.
	Capacity int

	// Enrolled is the current enrollment of the section.
	Enrolled int

	// Title is the course title reported by the backend, if any.
	Title string

	// CheckedAt is the timestamp when the check completed.
	CheckedAt time.Time

	// Latency is the time taken by the backend requests.
	Latency time.Duration

	// StatusCode is the HTTP status code of the search response.
	StatusCode int

	// RawResponse contains the search response body, limited to 1MB.
	RawResponse []byte
}

// Open reports whether the result is [StatusOpen].
func (r CheckResult) Open() bool {
	return r.Status == StatusOpen
}
