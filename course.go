package seatwatch

import (
	"errors"
	"fmt"
	"strings"
)

// Course identifies one course section to watch.
//
// Course is immutable after creation via [NewCourse]. All fields are private
// with getter methods. Optional attributes are set with [CourseOption]
// functions such as [WithTerm], [WithSubject] and [WithLabel].
type Course struct {
	crn          string
	term         string
	subject      string
	courseNumber string
	label        string
}

// CRN returns the course reference number that identifies the section
// within its term.
func (c Course) CRN() string {
	return c.crn
}

// Term returns the registration term code, e.g. "202509".
func (c Course) Term() string {
	return c.term
}

// Subject returns the subject code, e.g. "CS". Empty if not set.
func (c Course) Subject() string {
	return c.subject
}

// CourseNumber returns the catalogue number, e.g. "101". Empty if not set.
func (c Course) CourseNumber() string {
	return c.courseNumber
}

// Label returns the human-readable name used in logs and notifications.
//
// Defaults to "SUBJ NUM (CRN: n)" when subject and number are known and to
// "CRN n" otherwise.
func (c Course) Label() string {
	return c.label
}

// String implements fmt.Stringer.
func (c Course) String() string {
	return c.label
}

// key identifies the course for duplicate detection.
func (c Course) key() string {
	return c.term + "/" + c.crn
}

// NewCourse creates a [Course] for the section with the given CRN.
//
// Returns an error if the CRN is empty or any option is invalid.
//
// Example:
//
//	c, err := seatwatch.NewCourse("12345",
//	    seatwatch.WithTerm("202509"),
//	    seatwatch.WithSubject("CS", "101"),
//	)
func NewCourse(crn string, opts ...CourseOption) (Course, error) {
	crn = strings.TrimSpace(crn)
	if crn == "" {
		return Course{}, errors.New("course reference number cannot be empty")
	}

	cfg := &courseConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Course{}, err
		}
	}

	label := cfg.label
	if label == "" {
		label = defaultLabel(crn, cfg.subject, cfg.courseNumber)
	}

	return Course{
		crn:          crn,
		term:         cfg.term,
		subject:      cfg.subject,
		courseNumber: cfg.courseNumber,
		label:        label,
	}, nil
}

func defaultLabel(crn, subject, number string) string {
	if subject != "" && number != "" {
		return fmt.Sprintf("%s %s (CRN: %s)", subject, number, crn)
	}
	return "CRN " + crn
}
