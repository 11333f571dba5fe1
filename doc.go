// Package seatwatch watches course sections on a university registration
// backend and sends one alert when a seat opens.
//
// A [Watcher] checks every configured [Course] in order, one request at a
// time. The first course reported open is handed to the [Notifier] and the
// run ends. Courses that fail to check are logged and skipped until the
// next pass; courses that cannot be found are treated as full.
//
// Basic usage:
//
//	course, err := seatwatch.NewCourse("12345",
//	    seatwatch.WithTerm("202509"),
//	    seatwatch.WithSubject("CS", "101"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	checker, err := seatwatch.NewBannerChecker(seatwatch.BannerConfig{
//	    BaseURL: "https://reg.example.edu",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer checker.Close()
//
//	notifier, err := seatwatch.NewMailNotifier(seatwatch.MailConfig{
//	    Host:       "smtp.example.com",
//	    From:       "me@example.com",
//	    Password:   os.Getenv("SMTP_PASSWORD"),
//	    Recipients: []string{"me@example.com"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	w, err := seatwatch.New(
//	    seatwatch.WithCourse(course),
//	    seatwatch.WithInterval(time.Minute),
//	    seatwatch.WithChecker(checker),
//	    seatwatch.WithNotifier(notifier),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	result, err := w.Run(ctx) // blocks until a seat opens
//
// # Errors
//
// Configuration problems are reported as *[ConfigError]. A failed check is
// a *[TransportError] or *[RateLimitedError] and never ends the run unless
// [WithErrorLimit] is set. A failed alert is a *[NotificationError] and ends
// the run in [StateFailed].
//
// # Rate respect
//
// Checks are strictly sequential. Use [WithInterval], [WithSchedule] and
// [WithCourseDelay] to keep load on the registration backend low.
package seatwatch
