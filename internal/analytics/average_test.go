package analytics

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/stat"
)

// naiveAverage recomputes the trailing window for the last index directly
func naiveAverage(ts []int64, vals []float64, w int64) float64 {
	if len(ts) == 0 {
		return 0
	}
	last := len(ts) - 1
	start := ts[last] - w
	var window []float64
	for j := 0; j <= last; j++ {
		if ts[j] >= start {
			window = append(window, vals[j])
		}
	}
	return stat.Mean(window, nil)
}

func TestMovingAverageEmpty(t *testing.T) {
	if got := MovingAverage(nil, nil, 600); got != 0 {
		t.Errorf("MovingAverage(empty) = %v, want 0", got)
	}
}

func TestMovingAverageConstant(t *testing.T) {
	ts := []int64{0, 10, 20, 30, 40, 50, 60}
	vals := []float64{42, 42, 42, 42, 42, 42, 42}

	for _, w := range []int64{0, 5, 10, 25, 600, 86400} {
		if got := MovingAverage(ts, vals, w); got != 42 {
			t.Errorf("MovingAverage(constant, %d) = %v, want 42", w, got)
		}
	}
}

func TestMovingAverageBoundaryInclusive(t *testing.T) {
	ts := []int64{0, 10, 20}
	vals := []float64{3, 6, 9}

	// window 20 covers [0, 20] so the sample at 0 is included
	if got := MovingAverage(ts, vals, 20); got != 6 {
		t.Errorf("MovingAverage = %v, want 6", got)
	}
	// window 19 covers [1, 20]
	if got := MovingAverage(ts, vals, 19); got != 7.5 {
		t.Errorf("MovingAverage = %v, want 7.5", got)
	}
}

func TestMovingAverageMatchesNaive(t *testing.T) {
	ts := []int64{0, 3, 3, 7, 12, 20, 21, 22, 40, 41, 90}
	vals := []float64{5, 1, 8, 2, 9, 4, 4, 7, 1, 3, 6}

	for _, w := range []int64{0, 1, 5, 10, 30, 100} {
		for n := 1; n <= len(ts); n++ {
			got := MovingAverage(ts[:n], vals[:n], w)
			want := naiveAverage(ts[:n], vals[:n], w)
			if math.Abs(got-want) > 1e-9 {
				t.Errorf("w=%d n=%d: got %v, want %v", w, n, got, want)
			}
		}
	}
}

func TestSmoothIsCausal(t *testing.T) {
	ts := []int64{0, 10, 20, 30}
	vals := []float64{1, 2, 3, 4}
	before := Smooth(ts, vals, 15)

	after := Smooth(append(ts, 40), append(vals, 100), 15)
	for i := range before {
		if before[i] != after[i] {
			t.Errorf("index %d changed from %v to %v after append", i, before[i], after[i])
		}
	}
	if after[len(after)-1] == before[len(before)-1] {
		t.Error("tail should reflect the new sample")
	}
}

func TestAveragingPolicyWindow(t *testing.T) {
	dynamic := AveragingPolicy{Kind: PolicyDynamic, MaxWindow: 24 * time.Hour}
	fixed := AveragingPolicy{Kind: PolicyFixed, FixedWindow: 600 * time.Second}

	tests := []struct {
		name      string
		policy    AveragingPolicy
		available time.Duration
		want      time.Duration
	}{
		{"dynamic short history", dynamic, 3 * time.Hour, 3 * time.Hour},
		{"dynamic capped", dynamic, 72 * time.Hour, 24 * time.Hour},
		{"dynamic no history", dynamic, 0, 0},
		{"fixed ignores history", fixed, 72 * time.Hour, 600 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Window(tt.available); got != tt.want {
				t.Errorf("Window() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAveragingPolicyLabel(t *testing.T) {
	p := AveragingPolicy{Kind: PolicyDynamic}

	tests := []struct {
		window time.Duration
		want   string
	}{
		{0, "instantaneous"},
		{10 * time.Minute, "10m moving average"},
		{90 * time.Minute, "1.5h moving average"},
		{24 * time.Hour, "24h moving average"},
	}
	for _, tt := range tests {
		if got := p.Label(tt.window); got != tt.want {
			t.Errorf("Label(%v) = %q, want %q", tt.window, got, tt.want)
		}
	}
}

func TestSmoothHashrates(t *testing.T) {
	instant := Hashrates{Own: 1, Pool: 2, Network: 3}

	if got := SmoothHashrates(nil, nil, nil, nil, time.Hour, instant); got != instant {
		t.Errorf("empty history = %+v, want instantaneous", got)
	}

	ts := []int64{0, 60}
	got := SmoothHashrates(ts, []float64{10, 20}, []float64{100, 100}, []float64{1000, 3000}, time.Hour, instant)
	want := Hashrates{Own: 15, Pool: 100, Network: 2000}
	if got != want {
		t.Errorf("SmoothHashrates() = %+v, want %+v", got, want)
	}
}
