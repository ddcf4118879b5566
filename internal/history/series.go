// Package history keeps the time-ordered hashrate samples the dashboard
// averages over, trims them to a retention horizon and round-trips them
// through an opaque persisted blob.
package history

import (
	"sync"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Sample is one poll tick worth of readings. Timestamp is unix seconds.
type Sample struct {
	Timestamp       int64   `json:"timestamp"`
	MyHashrate      float64 `json:"myHash"`
	PoolHashrate    float64 `json:"poolHash"`
	NetworkHashrate float64 `json:"netHash"`
	Price           float64 `json:"price"`
}

// Series is an append-only sample store ordered by non-decreasing timestamp.
type Series struct {
	mu        sync.RWMutex
	samples   []Sample
	retention time.Duration
	now       func() time.Time
}

// NewSeries creates an empty series that keeps samples for retention
func NewSeries(retention time.Duration) *Series {
	return &Series{
		retention: retention,
		now:       time.Now,
	}
}

// SetClock replaces the wall clock used for trimming and slicing
func (s *Series) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Now returns the series clock reading
func (s *Series) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now()
}

// Retention returns the configured horizon
func (s *Series) Retention() time.Duration {
	return s.retention
}

// Append adds a sample at the tail. A sample older than the current tail is
// rejected and false is returned; the stored order is never changed.
func (s *Series) Append(sample Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.samples); n > 0 && sample.Timestamp < s.samples[n-1].Timestamp {
		util.Warnf("Rejected out-of-order sample at %d (tail is %d)", sample.Timestamp, s.samples[n-1].Timestamp)
		return false
	}

	s.samples = append(s.samples, sample)
	s.trimLocked(s.retention)
	return true
}

// Trim drops every sample older than now minus retention and returns how
// many were removed.
func (s *Series) Trim(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trimLocked(retention)
}

func (s *Series) trimLocked(retention time.Duration) int {
	if retention <= 0 || len(s.samples) == 0 {
		return 0
	}

	cutoff := s.now().Add(-retention).Unix()
	idx := firstAtOrAfter(s.samples, cutoff)
	if idx == 0 {
		return 0
	}

	kept := make([]Sample, len(s.samples)-idx)
	copy(kept, s.samples[idx:])
	s.samples = kept
	return idx
}

// Replace swaps the stored samples for the given ones, dropping any that
// break the time order, then trims to retention.
func (s *Series) Replace(samples []Sample) {
	ordered := make([]Sample, 0, len(samples))
	for _, sm := range samples {
		if n := len(ordered); n > 0 && sm.Timestamp < ordered[n-1].Timestamp {
			continue
		}
		ordered = append(ordered, sm)
	}

	s.mu.Lock()
	s.samples = ordered
	s.trimLocked(s.retention)
	s.mu.Unlock()
}

// Reset empties the series
func (s *Series) Reset() {
	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()
}

// Len returns the number of stored samples
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// Samples returns a copy of the stored samples
func (s *Series) Samples() []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Last returns the newest sample
func (s *Series) Last() (Sample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Span returns the time covered between the oldest and newest samples
func (s *Series) Span() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.samples) < 2 {
		return 0
	}
	first := s.samples[0].Timestamp
	last := s.samples[len(s.samples)-1].Timestamp
	return time.Duration(last-first) * time.Second
}
