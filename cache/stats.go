package cache

import "sync/atomic"

// Stats tracks cache effectiveness counters. All methods are safe for
// concurrent use; Snapshot returns a plain value for reporting.
type Stats struct {
	hits      atomic.Uint64
	misses    atomic.Uint64
	sets      atomic.Uint64
	errors    atomic.Uint64
	evictions atomic.Uint64
	discarded atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Errors    uint64
	Evictions uint64
	Discarded uint64
}

// HitRate returns hits as a fraction of all lookups, or 0 when no lookup
// has been recorded yet.
func (s StatsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// RecordHit counts a lookup served from cached data.
func (s *Stats) RecordHit() { s.hits.Add(1) }

// RecordMiss counts a lookup that required a fetch.
func (s *Stats) RecordMiss() { s.misses.Add(1) }

func (s *Stats) recordSet()       { s.sets.Add(1) }
func (s *Stats) recordError()     { s.errors.Add(1) }
func (s *Stats) recordEviction()  { s.evictions.Add(1) }
func (s *Stats) recordDiscarded() { s.discarded.Add(1) }

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Sets:      s.sets.Load(),
		Errors:    s.errors.Load(),
		Evictions: s.evictions.Load(),
		Discarded: s.discarded.Load(),
	}
}
