package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects and aggregates metrics for chat requests.
type Metrics struct {
	mu sync.Mutex

	// Counters
	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	lastRequest   atomic.Int64 // unix nanoseconds

	// Failures keyed by error code
	failuresByCode map[string]int64

	// Duration window (simplified for internal use)
	durations    []time.Duration
	maxDurations int
}

// NewMetrics creates a new metrics collector keeping the last maxDurations durations.
func NewMetrics(maxDurations int) *Metrics {
	if maxDurations <= 0 {
		maxDurations = 1000
	}
	return &Metrics{
		failuresByCode: make(map[string]int64),
		durations:      make([]time.Duration, 0, maxDurations),
		maxDurations:   maxDurations,
	}
}

// RecordRequest records a chat request.
func (m *Metrics) RecordRequest() {
	m.requestTotal.Add(1)
	m.lastRequest.Store(time.Now().UnixNano())
}

// RecordFailure records a failed chat request under its error code.
func (m *Metrics) RecordFailure(code string) {
	m.requestFailed.Add(1)

	m.mu.Lock()
	m.failuresByCode[code]++
	m.mu.Unlock()
}

// RecordDuration records a request duration.
func (m *Metrics) RecordDuration(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.durations) >= m.maxDurations {
		// Drop oldest (FIFO)
		m.durations = m.durations[1:]
	}
	m.durations = append(m.durations, duration)
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	byCode := make(map[string]int64, len(m.failuresByCode))
	for code, n := range m.failuresByCode {
		byCode[code] = n
	}

	snap := &MetricsSnapshot{
		RequestTotal:   m.requestTotal.Load(),
		RequestFailed:  m.requestFailed.Load(),
		FailuresByCode: byCode,
		DurationCount:  len(m.durations),
	}
	if ns := m.lastRequest.Load(); ns > 0 {
		snap.LastRequest = time.Unix(0, ns)
	}
	if len(m.durations) > 0 {
		sorted := make([]time.Duration, len(m.durations))
		copy(sorted, m.durations)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		snap.AverageDuration = total / time.Duration(len(sorted))
		snap.P95Duration = sorted[(len(sorted)*95-1)/100]
	}
	return snap
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal    int64
	RequestFailed   int64
	FailuresByCode  map[string]int64
	LastRequest     time.Time
	DurationCount   int
	AverageDuration time.Duration
	P95Duration     time.Duration
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}
