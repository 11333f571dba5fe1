package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// mockSection tracks how many searches a section has seen and when it opens.
type mockSection struct {
	searches  int
	opensAt   int
	capacity  int
	announced bool
}

// StartMockBanner runs a fake Banner class search backend.
// Every section is full until it has been searched 3-6 times, then one
// seat opens. Call this in a goroutine before starting the watcher.
func StartMockBanner(addr string) {
	var (
		sections = make(map[string]*mockSection)
		mu       sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/StudentRegistrationSsb/ssb/term/search", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: r.FormValue("term"), Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/StudentRegistrationSsb/ssb/searchResults/searchResults", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		key := q.Get("txt_term") + "/" + q.Get("txt_subject") + q.Get("txt_courseNumber")

		// simulate small latency variance
		time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

		mu.Lock()
		s, ok := sections[key]
		if !ok {
			s = &mockSection{opensAt: 3 + rand.Intn(4), capacity: 30}
			sections[key] = s
		}
		s.searches++
		enrolled := s.capacity
		if s.searches >= s.opensAt {
			enrolled = s.capacity - 1
			if !s.announced {
				s.announced = true
				slog.Info("seat opened", "course", key, "after_searches", s.searches)
			}
		}
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{
			"success":    true,
			"totalCount": 1,
			"data": []map[string]any{{
				"courseReferenceNumber": "12345",
				"courseTitle":           q.Get("txt_subject") + " " + q.Get("txt_courseNumber"),
				"maximumEnrollment":     s.capacity,
				"enrollment":            enrolled,
				"seatsAvailable":        s.capacity - enrolled,
			}},
		}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock banner error", "error", err)
	}
}
