// Package stats provides simple local usage statistics for the chat relay.
// This is a lightweight alternative to enterprise monitoring solutions.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/lily/server/internal/observability"
)

// DefaultInterval is the period of the background collection.
const DefaultInterval = time.Hour

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Len() int
}

// ExchangeCounter reports the number of archived exchanges.
type ExchangeCounter interface {
	CountChatExchanges(ctx context.Context) (int64, error)
}

// Stats represents usage statistics.
type Stats struct {
	// Session stats
	Sessions int

	// Request stats
	Requests       int64
	Failures       int64
	SuccessRate    float64 // percent, 100 when there were no requests
	FailuresByCode map[string]int64
	AverageLatency time.Duration
	P95Latency     time.Duration

	// Archive stats (-1 when no archive is configured)
	ArchivedExchanges int64

	LastActivityTime time.Time
	LastUpdated      time.Time
}

// Collector collects and manages usage statistics.
type Collector struct {
	sessions SessionCounter
	metrics  *observability.Metrics
	archive  ExchangeCounter // optional

	mu       sync.Mutex
	archived int64

	stopOnce sync.Once
	tickStop chan struct{}
	done     chan struct{}
}

// NewCollector creates a new statistics collector. archive may be nil.
func NewCollector(sessions SessionCounter, metrics *observability.Metrics, archive ExchangeCounter) *Collector {
	archived := int64(-1)
	if archive != nil {
		archived = 0
	}
	return &Collector{
		sessions: sessions,
		metrics:  metrics,
		archive:  archive,
		archived: archived,
		tickStop: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start begins periodic statistics collection and logs a summary each interval.
// It returns immediately; Stop or ctx cancellation ends the loop.
func (c *Collector) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	go func() {
		defer close(c.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				slog.Info(c.Collect(ctx).GetSummary())
			case <-ctx.Done():
				return
			case <-c.tickStop:
				return
			}
		}
	}()
}

// Stop stops the statistics collector and waits for the loop to exit.
// Must only be called after Start.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.tickStop) })
	<-c.done
}

// Collect refreshes the statistics, including the archive count, and returns a copy.
func (c *Collector) Collect(ctx context.Context) *Stats {
	if c.archive != nil {
		if count, err := c.archive.CountChatExchanges(ctx); err != nil {
			slog.Warn("failed to count archived exchanges", slog.String("error", err.Error()))
		} else {
			c.mu.Lock()
			c.archived = count
			c.mu.Unlock()
		}
	}
	return c.Current()
}

// Current returns fresh statistics from in-memory sources only; the archive
// count is the one from the last Collect.
func (c *Collector) Current() *Stats {
	c.mu.Lock()
	archived := c.archived
	c.mu.Unlock()

	snap := c.metrics.Snapshot()
	return &Stats{
		Sessions:          c.sessions.Len(),
		Requests:          snap.RequestTotal,
		Failures:          snap.RequestFailed,
		SuccessRate:       snap.SuccessRate(),
		FailuresByCode:    snap.FailuresByCode,
		AverageLatency:    snap.AverageDuration,
		P95Latency:        snap.P95Duration,
		ArchivedExchanges: archived,
		LastActivityTime:  snap.LastRequest,
		LastUpdated:       time.Now(),
	}
}

// GetSummary returns a human-readable summary.
func (s *Stats) GetSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Usage statistics (updated %s)\n", s.LastUpdated.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "  Sessions: %d\n", s.Sessions)
	fmt.Fprintf(&b, "  Requests: %d (failed: %d, success rate %.1f%%)\n", s.Requests, s.Failures, s.SuccessRate)

	codes := make([]string, 0, len(s.FailuresByCode))
	for code := range s.FailuresByCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(&b, "    %s: %d\n", code, s.FailuresByCode[code])
	}

	fmt.Fprintf(&b, "  Latency: avg %s, p95 %s\n", s.AverageLatency.Round(time.Millisecond), s.P95Latency.Round(time.Millisecond))
	if s.ArchivedExchanges >= 0 {
		fmt.Fprintf(&b, "  Archived exchanges: %d\n", s.ArchivedExchanges)
	}
	fmt.Fprintf(&b, "  Last activity: %s", formatLastActivity(s.LastActivityTime))
	return b.String()
}

func formatLastActivity(t time.Time) string {
	if t.IsZero() {
		return "none"
	}
	duration := time.Since(t)
	if duration < time.Hour {
		return "just now"
	}
	if duration < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(duration.Hours()))
	}
	if duration < 7*24*time.Hour {
		return fmt.Sprintf("%d days ago", int(duration.Hours()/24))
	}
	return t.Format("2006-01-02")
}
