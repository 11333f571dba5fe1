package config

import (
	"fmt"
	"log/slog"

	"github.com/jpalmerr/seatwatch"
)

// BuildCourses converts the course list into SDK Course objects, keeping
// the configured order.
func BuildCourses(cfg *Config) ([]seatwatch.Course, error) {
	courses := make([]seatwatch.Course, 0, len(cfg.Courses))

	for i, cc := range cfg.Courses {
		term := cc.Term
		if term == "" {
			term = cfg.Term
		}

		opts := []seatwatch.CourseOption{
			seatwatch.WithTerm(term),
			seatwatch.WithSubject(cc.Subject, cc.CourseNumber),
		}
		if cc.Label != "" {
			opts = append(opts, seatwatch.WithLabel(cc.Label))
		}

		c, err := seatwatch.NewCourse(cc.CRN, opts...)
		if err != nil {
			return nil, &seatwatch.ConfigError{Field: fmt.Sprintf("courses[%d]", i), Err: err}
		}
		courses = append(courses, c)
	}

	return courses, nil
}

// BuildChecker creates the Banner checker described by the university
// section. The caller must Close it.
func BuildChecker(cfg *Config, logger *slog.Logger) (*seatwatch.BannerChecker, error) {
	u := cfg.University
	return seatwatch.NewBannerChecker(seatwatch.BannerConfig{
		BaseURL:          u.BaseURL,
		TermSearchPath:   u.TermSearchPath,
		CourseSearchPath: u.CourseSearchPath,
		PageSize:         u.PageSize,
		Timeout:          u.Timeout.Duration(),
		UserAgent:        u.UserAgent,
		Logger:           logger,
	})
}

// BuildNotifier creates the e-mail notifier described by the email section.
func BuildNotifier(cfg *Config) (*seatwatch.MailNotifier, error) {
	e := cfg.Email
	return seatwatch.NewMailNotifier(seatwatch.MailConfig{
		Host:       e.SMTPHost,
		Port:       e.SMTPPort,
		TLS:        e.TLS,
		Username:   e.Username,
		Password:   e.SenderPassword,
		From:       e.SenderEmail,
		Recipients: e.Recipients,
		SMSGateway: e.SMSGateway,
		Timeout:    e.Timeout.Duration(),
	})
}

// BuildOptions converts the polling settings and course list into Watcher
// options. Checker, notifier and logger are added by the caller.
func BuildOptions(cfg *Config) ([]seatwatch.Option, error) {
	courses, err := BuildCourses(cfg)
	if err != nil {
		return nil, err
	}

	opts := []seatwatch.Option{
		seatwatch.WithCourses(courses...),
		seatwatch.WithInterval(cfg.Interval.Duration()),
	}
	if cfg.Schedule != "" {
		opts = append(opts, seatwatch.WithSchedule(cfg.Schedule))
	}
	if cfg.CourseDelay != 0 {
		opts = append(opts, seatwatch.WithCourseDelay(cfg.CourseDelay.Duration()))
	}
	if cfg.ErrorLimit != 0 {
		opts = append(opts, seatwatch.WithErrorLimit(cfg.ErrorLimit))
	}

	return opts, nil
}
