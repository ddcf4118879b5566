package analytics

import (
	"fmt"
	"time"
)

// Smooth returns the trailing moving average at every index. The window for
// index i is [ts[i]-windowSeconds, ts[i]] over samples 0..i, inclusive at the
// lower bound. Timestamps must be non-decreasing. Values beyond len(ts) are
// ignored.
func Smooth(ts []int64, values []float64, windowSeconds int64) []float64 {
	n := min(len(ts), len(values))
	out := make([]float64, n)

	var (
		sum  float64
		left int
	)
	for i := 0; i < n; i++ {
		sum += values[i]
		start := ts[i] - windowSeconds
		for left < i && ts[left] < start {
			sum -= values[left]
			left++
		}
		out[i] = sum / float64(i-left+1)
	}
	return out
}

// MovingAverage returns the latest trailing-window average, or 0 for an
// empty series.
func MovingAverage(ts []int64, values []float64, windowSeconds int64) float64 {
	smoothed := Smooth(ts, values, windowSeconds)
	if len(smoothed) == 0 {
		return 0
	}
	return smoothed[len(smoothed)-1]
}

// Averaging policies
const (
	PolicyDynamic = "dynamic"
	PolicyFixed   = "fixed"
)

// AveragingPolicy decides which trailing window the hashrate averages use
type AveragingPolicy struct {
	Kind        string
	FixedWindow time.Duration
	MaxWindow   time.Duration
}

// Window returns the averaging window for a history spanning available.
// Dynamic uses min(MaxWindow, available); fixed always uses FixedWindow.
// A zero result means there is no history to average over.
func (p AveragingPolicy) Window(available time.Duration) time.Duration {
	if p.Kind == PolicyFixed {
		return p.FixedWindow
	}
	if available <= 0 {
		return 0
	}
	if p.MaxWindow > 0 && available > p.MaxWindow {
		return p.MaxWindow
	}
	return available
}

// Label describes the window in the form shown beside the estimates
func (p AveragingPolicy) Label(window time.Duration) string {
	if window <= 0 {
		return "instantaneous"
	}
	if window >= 24*time.Hour {
		return "24h moving average"
	}
	if window < time.Hour {
		return fmt.Sprintf("%dm moving average", int(window.Minutes()))
	}
	return fmt.Sprintf("%.1fh moving average", window.Hours())
}

// Hashrates are the three tracked hashrates in H/s
type Hashrates struct {
	Own     float64 `json:"own"`
	Pool    float64 `json:"pool"`
	Network float64 `json:"network"`
}

// SmoothHashrates averages each tracked series over window. With no window
// or no samples the instantaneous readings are returned unchanged.
func SmoothHashrates(ts []int64, own, pool, network []float64, window time.Duration, instant Hashrates) Hashrates {
	if window <= 0 || len(ts) == 0 {
		return instant
	}
	w := int64(window / time.Second)
	return Hashrates{
		Own:     MovingAverage(ts, own, w),
		Pool:    MovingAverage(ts, pool, w),
		Network: MovingAverage(ts, network, w),
	}
}
