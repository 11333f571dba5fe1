package seatwatch

import (
	"errors"
	"strings"
)

// courseConfig holds mutable state during course construction.
type courseConfig struct {
	term         string
	subject      string
	courseNumber string
	label        string
}

// CourseOption is a function that configures a [Course] during construction.
type CourseOption func(*courseConfig) error

// WithTerm sets the registration term the section belongs to.
//
// Returns an error if term is blank.
func WithTerm(term string) CourseOption {
	return func(cfg *courseConfig) error {
		term = strings.TrimSpace(term)
		if term == "" {
			return errors.New("term cannot be empty")
		}
		cfg.term = term
		return nil
	}
}

// WithSubject sets the subject code and course number used to narrow the
// backend search, e.g. WithSubject("CS", "101").
//
// Returns an error if either value is blank.
func WithSubject(subject, courseNumber string) CourseOption {
	return func(cfg *courseConfig) error {
		subject = strings.TrimSpace(subject)
		courseNumber = strings.TrimSpace(courseNumber)
		if subject == "" || courseNumber == "" {
			return errors.New("subject and course number cannot be empty")
		}
		cfg.subject = subject
		cfg.courseNumber = courseNumber
		return nil
	}
}

// WithLabel overrides the human-readable course name used in notifications.
// A blank label keeps the default.
func WithLabel(label string) CourseOption {
	return func(cfg *courseConfig) error {
		cfg.label = strings.TrimSpace(label)
		return nil
	}
}
