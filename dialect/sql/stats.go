// Package sql provides query statistics and slow query detection utilities.
package sql

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.TotalQueries + s.TotalExecs
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// QueryStats returns the adapter's statistics for reading.
func (a *Adapter) QueryStats() *QueryStats {
	return a.stats
}

// Stats returns a snapshot of the adapter's statistics.
func (a *Adapter) Stats() StatsSnapshot {
	return a.stats.Stats()
}

// SlowThreshold returns the current slow query threshold.
func (a *Adapter) SlowThreshold() time.Duration {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()
	return a.slowThreshold
}

// SetSlowThreshold updates the slow query threshold.
func (a *Adapter) SetSlowThreshold(threshold time.Duration) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	a.slowThreshold = threshold
}

// record updates counters for one statement and fires the slow query
// hook when the duration exceeds the threshold.
func (a *Adapter) record(ctx context.Context, query string, args []any, start time.Time, err error, isQuery bool) {
	duration := time.Since(start)
	if isQuery {
		a.stats.TotalQueries.Add(1)
	} else {
		a.stats.TotalExecs.Add(1)
	}
	a.stats.TotalDuration.Add(int64(duration))

	if err != nil {
		a.stats.Errors.Add(1)
	}

	a.statsMu.RLock()
	threshold := a.slowThreshold
	hook := a.slowHook
	a.statsMu.RUnlock()

	if duration > threshold {
		a.stats.SlowQueries.Add(1)
		if hook != nil {
			hook(ctx, query, args, duration)
		}
	}
}
