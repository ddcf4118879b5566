package history

import (
	"sort"
	"time"
)

// View is a suffix of a series as parallel ordered sequences. Labels are
// the timestamps in milliseconds for chart axes.
type View struct {
	Labels          []int64   `json:"labels"`
	Timestamps      []int64   `json:"timestamps"`
	MyHashrate      []float64 `json:"myHash"`
	PoolHashrate    []float64 `json:"poolHash"`
	NetworkHashrate []float64 `json:"netHash"`
	Price           []float64 `json:"price"`
}

// Len returns the number of samples in the view
func (v View) Len() int {
	return len(v.Timestamps)
}

// Slice returns the samples newer than now minus window. When no sample is
// that recent the whole series is returned.
func Slice(samples []Sample, window time.Duration, now time.Time) View {
	cutoff := now.Add(-window).Unix()
	idx := firstAtOrAfter(samples, cutoff)
	if idx >= len(samples) {
		idx = 0
	}
	return newView(samples[idx:])
}

// Slice returns the view of samples newer than now minus window
func (s *Series) Slice(window time.Duration) View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Slice(s.samples, window, s.now())
}

// All returns every stored sample as a view
func (s *Series) All() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newView(s.samples)
}

func newView(samples []Sample) View {
	n := len(samples)
	v := View{
		Labels:          make([]int64, n),
		Timestamps:      make([]int64, n),
		MyHashrate:      make([]float64, n),
		PoolHashrate:    make([]float64, n),
		NetworkHashrate: make([]float64, n),
		Price:           make([]float64, n),
	}
	for i, sm := range samples {
		v.Labels[i] = sm.Timestamp * 1000
		v.Timestamps[i] = sm.Timestamp
		v.MyHashrate[i] = sm.MyHashrate
		v.PoolHashrate[i] = sm.PoolHashrate
		v.NetworkHashrate[i] = sm.NetworkHashrate
		v.Price[i] = sm.Price
	}
	return v
}

// firstAtOrAfter returns the index of the first sample with timestamp >= ts,
// or len(samples) if there is none.
func firstAtOrAfter(samples []Sample, ts int64) int {
	return sort.Search(len(samples), func(i int) bool {
		return samples[i].Timestamp >= ts
	})
}
