// Greeting - Visit Counter and Profile Card Badges
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/greeting

package middleware

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/greeting/internal/logging"
)

// RequestSample is one served request.
type RequestSample struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
}

// EndpointStats aggregates the samples of one route.
type EndpointStats struct {
	Route        string  `json:"route"`
	RequestCount int64   `json:"request_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        float64 `json:"p50_ms"`
	P95MS        float64 `json:"p95_ms"`
	P99MS        float64 `json:"p99_ms"`
	MaxMS        float64 `json:"max_ms"`
}

// PerformanceMonitor keeps a sliding window of recent request durations,
// sets the Server-Timing response header and logs slow requests.
type PerformanceMonitor struct {
	mu        sync.RWMutex
	samples   []RequestSample
	next      int
	full      bool
	slowAfter time.Duration
	now       func() time.Time
}

// DefaultSlowRequestThreshold is the duration after which a request is
// logged as slow. Uncached profile cards wait for two rate-limited upstream
// calls, so this is generous.
const DefaultSlowRequestThreshold = 3 * time.Second

// NewPerformanceMonitor keeps the last window samples.
func NewPerformanceMonitor(window int, slowAfter time.Duration) *PerformanceMonitor {
	if window <= 0 {
		window = 1000
	}
	if slowAfter <= 0 {
		slowAfter = DefaultSlowRequestThreshold
	}
	return &PerformanceMonitor{
		samples:   make([]RequestSample, window),
		slowAfter: slowAfter,
		now:       time.Now,
	}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (pm *PerformanceMonitor) Record(s RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.samples[pm.next] = s
	pm.next++
	if pm.next == len(pm.samples) {
		pm.next = 0
		pm.full = true
	}
}

// Len returns the number of samples in the window.
func (pm *PerformanceMonitor) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	if pm.full {
		return len(pm.samples)
	}
	return pm.next
}

// Stats aggregates the window per route, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	n := pm.next
	if pm.full {
		n = len(pm.samples)
	}
	byRoute := make(map[string][]time.Duration)
	for _, s := range pm.samples[:n] {
		key := s.Method + " " + s.Route
		byRoute[key] = append(byRoute[key], s.Duration)
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byRoute))
	for route, durations := range byRoute {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

		var sum time.Duration
		for _, d := range durations {
			sum += d
		}

		stats = append(stats, EndpointStats{
			Route:        route,
			RequestCount: int64(len(durations)),
			AvgMS:        ms(sum / time.Duration(len(durations))),
			P50MS:        ms(percentile(durations, 0.50)),
			P95MS:        ms(percentile(durations, 0.95)),
			P99MS:        ms(percentile(durations, 0.99)),
			MaxMS:        ms(durations[len(durations)-1]),
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Route < stats[j].Route
	})
	return stats
}

// Middleware times each request. The Server-Timing header is written just
// before the status line, so it covers the handler up to its first write.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := pm.now()
		wrapper := &timingWriter{
			statusRecorder: statusRecorder{ResponseWriter: w, statusCode: http.StatusOK},
			start:          start,
			now:            pm.now,
		}

		next.ServeHTTP(wrapper, r)

		duration := pm.now().Sub(start)
		route := routePattern(r)
		pm.Record(RequestSample{
			Route:      route,
			Method:     r.Method,
			Duration:   duration,
			StatusCode: wrapper.statusCode,
		})

		if duration > pm.slowAfter {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Dur("duration", duration).
				Dur("threshold", pm.slowAfter).
				Msg("Slow request detected")
		}
	})
}

// timingWriter adds Server-Timing when the header is written.
type timingWriter struct {
	statusRecorder
	start time.Time
	now   func() time.Time
}

func (tw *timingWriter) WriteHeader(code int) {
	if !tw.wroteHeader {
		elapsed := tw.now().Sub(tw.start)
		tw.Header().Set("Server-Timing", fmt.Sprintf("app;dur=%.3f", ms(elapsed)))
	}
	tw.statusRecorder.WriteHeader(code)
}

func (tw *timingWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
