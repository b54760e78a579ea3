// Package observability provides windowed engine counters: WAL write
// volume, checkpoint activity, and full-text index cache effectiveness,
// tracked the same way the teacher tracked predicate/JSON-path query
// frequency — a mutex-guarded frequency map with time-windowed pruning.
package observability

import (
	"sort"
	"sync"
	"time"
)

// EngineStats tracks named counters (WAL entries written per command
// type, checkpoint attempts per kind, index cache hits/misses per
// column) with last-seen timestamps for windowed pruning.
type EngineStats struct {
	mu       sync.RWMutex
	counters map[string]*CounterStats
	window   time.Duration
}

// CounterStats holds the running total and per-label breakdown for one
// named counter (e.g. "wal_entries_written" broken down by command type).
type CounterStats struct {
	Name     string
	Total    int64
	LastSeen time.Time
	Labels   map[string]int64 // label -> count, e.g. command type or checkpoint kind
}

// NewEngineStats creates a new engine statistics tracker.
// window: time duration for pruning counters gone idle (e.g. 1 hour).
func NewEngineStats(window time.Duration) *EngineStats {
	return &EngineStats{
		counters: make(map[string]*CounterStats),
		window:   window,
	}
}

// Record increments the named counter's total and its label breakdown.
// This method is O(1) and thread-safe — the writer goroutine calls it
// once per flushed entry, and it must never become a contention point.
func (s *EngineStats) Record(name, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.counters[name]
	if !exists {
		stats = &CounterStats{Name: name, Labels: make(map[string]int64)}
		s.counters[name] = stats
	}

	stats.Total++
	stats.LastSeen = time.Now()
	if label != "" {
		stats.Labels[label]++
	}
}

// AddBytes increments a byte-counted metric (e.g. bytes fsynced) by n,
// without a label breakdown.
func (s *EngineStats) AddBytes(name string, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, exists := s.counters[name]
	if !exists {
		stats = &CounterStats{Name: name, Labels: make(map[string]int64)}
		s.counters[name] = stats
	}
	stats.Total += n
	stats.LastSeen = time.Now()
}

// Snapshot returns a point-in-time copy of every tracked counter,
// sorted by total descending.
func (s *EngineStats) Snapshot() []CounterStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]CounterStats, 0, len(s.counters))
	for _, c := range s.counters {
		cp := CounterStats{Name: c.Name, Total: c.Total, LastSeen: c.LastSeen, Labels: make(map[string]int64, len(c.Labels))}
		for k, v := range c.Labels {
			cp.Labels[k] = v
		}
		out = append(out, cp)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

// Get returns one counter's current state, or false if it has never
// been recorded.
func (s *EngineStats) Get(name string) (CounterStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counters[name]
	if !ok {
		return CounterStats{}, false
	}
	return *c, true
}

// Prune removes counters idle longer than the configured window. A
// background caller invokes this periodically (e.g. every 5 minutes);
// nothing else in the engine calls it on the hot path.
func (s *EngineStats) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for name, stats := range s.counters {
		if stats.LastSeen.Before(threshold) {
			delete(s.counters, name)
		}
	}
}
