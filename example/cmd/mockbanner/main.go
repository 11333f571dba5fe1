// Standalone mock registration backend for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockbanner
//
// Then in another terminal:
//
//	SEATWATCH_CONFIG=example/config.yaml go run ./cmd/seatwatch --debug
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
)

// opensAfter is the number of searches before a section gains a seat.
const opensAfter = 5

func main() {
	fmt.Println("Mock Banner backend starting on :9999")
	fmt.Printf("Every section opens after %d searches\n", opensAfter)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		searches = make(map[string]int)
		mu       sync.Mutex
	)

	http.HandleFunc("/StudentRegistrationSsb/ssb/term/search", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: r.FormValue("term"), Path: "/"})
		w.WriteHeader(http.StatusOK)
	})

	http.HandleFunc("/StudentRegistrationSsb/ssb/searchResults/searchResults", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("JSESSIONID"); err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		key := q.Get("txt_term") + "/" + q.Get("txt_subject") + q.Get("txt_courseNumber")

		mu.Lock()
		searches[key]++
		n := searches[key]
		mu.Unlock()

		seats := 0
		if n >= opensAfter {
			seats = 1
		}
		slog.Info("search", "course", key, "count", n, "seats", seats)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"totalCount": 1,
			"data": []map[string]any{{
				"courseReferenceNumber": "12345",
				"maximumEnrollment":     30,
				"enrollment":            30 - seats,
				"seatsAvailable":        seats,
			}},
		})
	})

	if err := http.ListenAndServe(":9999", nil); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
