package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

const responseTimeWindow = 100

// Stats aggregates in-process request counters for the /stats endpoint. It is
// reset on process restart.
type Stats struct {
	mu  sync.Mutex
	now func() time.Time

	startedAt             time.Time
	totalRequests         int64
	successfulGenerations int64
	failedGenerations     int64
	endpointHits          map[string]int64
	errorCounts           map[string]int64
	responseTimes         []float64
}

// NewStats creates a Stats collector anchored at the current time.
func NewStats() *Stats {
	s := &Stats{
		now:          time.Now,
		endpointHits: make(map[string]int64),
		errorCounts:  make(map[string]int64),
	}
	s.startedAt = s.now()
	return s
}

// RecordRequest counts one incoming request against an endpoint.
func (s *Stats) RecordRequest(method, endpoint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalRequests++
	s.endpointHits[method+" "+endpoint]++
}

// RecordOutcome records a finished generation and its response time.
func (s *Stats) RecordOutcome(d time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if success {
		s.successfulGenerations++
	} else {
		s.failedGenerations++
	}
	s.responseTimes = append(s.responseTimes, d.Seconds())
	if len(s.responseTimes) > responseTimeWindow {
		s.responseTimes = s.responseTimes[len(s.responseTimes)-responseTimeWindow:]
	}
}

// RecordError counts an error by kind.
func (s *Stats) RecordError(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCounts[kind]++
}

// Snapshot returns the current aggregate view as a JSON-ready map.
func (s *Stats) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	uptime := s.now().Sub(s.startedAt)

	total := s.successfulGenerations + s.failedGenerations
	successRate := 0.0
	if total > 0 {
		successRate = float64(s.successfulGenerations) / float64(total)
	}

	avg := 0.0
	for _, v := range s.responseTimes {
		avg += v
	}
	if len(s.responseTimes) > 0 {
		avg /= float64(len(s.responseTimes))
	}

	recent := s.responseTimes
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	recentCopy := make([]float64, len(recent))
	copy(recentCopy, recent)

	endpoints := make(map[string]int64, len(s.endpointHits))
	for k, v := range s.endpointHits {
		endpoints[k] = v
	}
	errs := make(map[string]int64, len(s.errorCounts))
	for k, v := range s.errorCounts {
		errs[k] = v
	}

	status := "healthy"
	if total > 0 && s.failedGenerations >= s.successfulGenerations {
		status = "degraded"
	}

	return map[string]any{
		"status":                 status,
		"uptime_seconds":         uptime.Seconds(),
		"uptime_formatted":       formatUptime(uptime),
		"total_requests":         s.totalRequests,
		"successful_generations": s.successfulGenerations,
		"failed_generations":     s.failedGenerations,
		"success_rate":           successRate,
		"average_response_time":  avg,
		"recent_response_times":  recentCopy,
		"error_breakdown":        errs,
		"most_common_errors":     topErrors(errs, 5),
		"endpoint_usage":         endpoints,
	}
}

// topErrors returns the n most frequent error kinds.
func topErrors(counts map[string]int64, n int) map[string]int64 {
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if counts[kinds[i]] != counts[kinds[j]] {
			return counts[kinds[i]] > counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	if len(kinds) > n {
		kinds = kinds[:n]
	}
	top := make(map[string]int64, len(kinds))
	for _, k := range kinds {
		top[k] = counts[k]
	}
	return top
}

func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, sec)
}
