package stresstest

import (
	"cmp"
	"slices"
	"time"
)

// Stats aggregates request outcomes of a run or of one of its operations.
// It is not safe for concurrent use; the executor hands out clones.
type Stats struct {
	TotalRequests        int // Expected requests, 0 when the run is duration bound
	CompletedRequests    int
	SuccessCount         int
	ErrorCount           int // Network errors (timeouts, connection failures)
	ValidationErrorCount int // Reported failures (unexpected status, bad body, cart not found)
	ActiveUsers          int

	durations []int64
	sorted    bool
	sumMs     int64
	minMs     int64
	maxMs     int64
}

// NewStats returns empty statistics
func NewStats() *Stats {
	return &Stats{durations: make([]int64, 0, 1024), sorted: true}
}

// AddResult records one request. A network error takes precedence over a
// validation error.
func (s *Stats) AddResult(durationMs int64, isNetworkError bool, isValidationError bool) {
	switch {
	case isNetworkError:
		s.ErrorCount++
	case isValidationError:
		s.ValidationErrorCount++
	default:
		s.SuccessCount++
	}

	if s.CompletedRequests == 0 {
		s.minMs, s.maxMs = durationMs, durationMs
	} else {
		s.minMs = min(s.minMs, durationMs)
		s.maxMs = max(s.maxMs, durationMs)
	}
	if n := len(s.durations); n > 0 && durationMs < s.durations[n-1] {
		s.sorted = false
	}

	s.CompletedRequests++
	s.sumMs += durationMs
	s.durations = append(s.durations, durationMs)
}

// AvgDurationMs returns the mean duration in milliseconds
func (s *Stats) AvgDurationMs() float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(s.sumMs) / float64(s.CompletedRequests)
}

// Min returns the fastest duration, 0 without results
func (s *Stats) Min() int64 { return s.minMs }

// Max returns the slowest duration, 0 without results
func (s *Stats) Max() int64 { return s.maxMs }

// Sort orders the recorded durations; Percentile calls it lazily
func (s *Stats) Sort() {
	if !s.sorted {
		slices.Sort(s.durations)
		s.sorted = true
	}
}

// Percentile returns the p-th percentile (0..100) with linear interpolation
// between the two closest ranks
func (s *Stats) Percentile(p float64) int64 {
	n := len(s.durations)
	if n == 0 {
		return 0
	}
	s.Sort()

	rank := p / 100 * float64(n-1)
	lo := int(rank)
	if lo >= n-1 {
		return s.durations[n-1]
	}
	frac := rank - float64(lo)
	return int64(float64(s.durations[lo])*(1-frac) + float64(s.durations[lo+1])*frac)
}

func (s *Stats) P50() int64 { return s.Percentile(50) }
func (s *Stats) P95() int64 { return s.Percentile(95) }
func (s *Stats) P99() int64 { return s.Percentile(99) }

func (s *Stats) percentOf(n int) float64 {
	if s.CompletedRequests == 0 {
		return 0
	}
	return float64(n) / float64(s.CompletedRequests) * 100
}

// SuccessRate is the share of successful requests in percent
func (s *Stats) SuccessRate() float64 { return s.percentOf(s.SuccessCount) }

// ErrorRate is the share of network errors in percent
func (s *Stats) ErrorRate() float64 { return s.percentOf(s.ErrorCount) }

// FailureRate is the share of all unsuccessful requests in percent
func (s *Stats) FailureRate() float64 {
	return s.percentOf(s.ErrorCount + s.ValidationErrorCount)
}

// RequestsPerSecond returns the throughput over elapsed
func (s *Stats) RequestsPerSecond(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(s.CompletedRequests) / elapsed.Seconds()
}

// Progress returns completed over expected requests in percent, 0 when
// the run has no expected total
func (s *Stats) Progress() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.CompletedRequests) / float64(s.TotalRequests) * 100
}

// Clone returns an independent copy
func (s *Stats) Clone() *Stats {
	c := *s
	c.durations = slices.Clone(s.durations)
	return &c
}

// FailureCount is the number of times a failure message was reported for a request name
type FailureCount struct {
	Name    string
	Message string
	Count   int
}

// sortFailures orders failures by count, most frequent first
func sortFailures(failures []FailureCount) {
	slices.SortFunc(failures, func(a, b FailureCount) int {
		return cmp.Or(
			cmp.Compare(b.Count, a.Count),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Message, b.Message),
		)
	})
}
