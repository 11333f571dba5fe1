package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/seatwatch"
)

// consoleNotifier prints alerts instead of sending e-mail.
type consoleNotifier struct{}

func (consoleNotifier) Notify(_ context.Context, open []seatwatch.CheckResult) error {
	for _, r := range open {
		fmt.Printf("\n  >>> %s has %d open seat(s). Register now!\n\n", r.Course.Label(), r.SeatsAvailable)
	}
	return nil
}

func (consoleNotifier) SendTest(context.Context) error {
	fmt.Println("  (test notification)")
	return nil
}

func (consoleNotifier) SendFailureAlert(_ context.Context, cause error) error {
	fmt.Printf("  seatwatch stopped: %v\n", cause)
	return nil
}

func main() {
	// start mock backend (see mock_banner.go)
	go StartMockBanner(":9999")
	time.Sleep(100 * time.Millisecond)

	cs, err := seatwatch.NewCourse("12345",
		seatwatch.WithTerm("202509"),
		seatwatch.WithSubject("CS", "101"),
	)
	if err != nil {
		slog.Error("failed to create course", "error", err)
		os.Exit(1)
	}

	checker, err := seatwatch.NewBannerChecker(seatwatch.BannerConfig{
		BaseURL: "http://localhost:9999",
	})
	if err != nil {
		slog.Error("failed to create checker", "error", err)
		os.Exit(1)
	}
	defer checker.Close()

	w, err := seatwatch.New(
		seatwatch.WithCourse(cs),
		seatwatch.WithInterval(2*time.Second),
		seatwatch.WithChecker(checker),
		seatwatch.WithNotifier(consoleNotifier{}),
		seatwatch.WithResultCallback(func(r seatwatch.CheckResult) {
			fmt.Printf("  %s: %s (%d/%d enrolled)\n", r.Course.Label(), r.Status, r.Enrolled, r.Capacity)
		}),
	)
	if err != nil {
		slog.Error("failed to create watcher", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  seatwatch demo: polling a mock backend every 2s")
	fmt.Println("  CS 101 opens after a few searches. Press Ctrl+C to stop")
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := w.Run(ctx); err != nil {
		slog.Error("seatwatch error", "error", err)
		os.Exit(1)
	}
}
