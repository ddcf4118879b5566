package analytics

import (
	"math"
	"testing"
)

func TestCalculateLuck(t *testing.T) {
	in := LuckInput{
		Window:           Window{Start: 1000, End: 2000, TotalWeight: 1_000_000},
		PoolWindowWeight: 2_000_000,
		OwnShares: []Share{
			{Timestamp: 900, Difficulty: 50_000, Inclusion: 1},
			{Timestamp: 1000, Difficulty: 50_000, Inclusion: 1},
			{Timestamp: 1500, Difficulty: 50_000, Inclusion: 0},
		},
		SmoothedOwnHashrate: 50,
		EffortAverage:       80,
		BlockReward:         0.6,
		Price:               200,
	}

	got := CalculateLuck(in)
	if !got.Available {
		t.Fatalf("CalculateLuck() unavailable: %+v", got)
	}
	if got.WindowShares != 2 || got.WindowUncles != 1 {
		t.Errorf("shares = %d, uncles = %d; want 2, 1", got.WindowShares, got.WindowUncles)
	}
	if got.WindowDifficulty != 100_000 {
		t.Errorf("WindowDifficulty = %v, want 100000", got.WindowDifficulty)
	}
	if got.DifficultyShare != 0.05 {
		t.Errorf("DifficultyShare = %v, want 0.05", got.DifficultyShare)
	}
	if got.WindowHashrate != 100 {
		t.Errorf("WindowHashrate = %v, want 100", got.WindowHashrate)
	}
	if got.Factor != 2 {
		t.Errorf("Factor = %v, want 2", got.Factor)
	}
	if math.Abs(got.Adjusted-2.5) > 1e-12 || !got.EffortAdjusted {
		t.Errorf("Adjusted = %v (%v), want 2.5", got.Adjusted, got.EffortAdjusted)
	}
	if math.Abs(got.AccumulatedXMR-0.03) > 1e-12 {
		t.Errorf("AccumulatedXMR = %v, want 0.03", got.AccumulatedXMR)
	}
	if math.Abs(got.AccumulatedFiat-6) > 1e-9 {
		t.Errorf("AccumulatedFiat = %v, want 6", got.AccumulatedFiat)
	}
	if got.Text != "2.50x" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCalculateLuckUnclePenalty(t *testing.T) {
	in := LuckInput{
		Window:              Window{Start: 0, End: 100, TotalWeight: 1000},
		OwnShares:           []Share{{Timestamp: 10, Difficulty: 100, Inclusion: 0}},
		SmoothedOwnHashrate: 1,
		UnclePenaltyPercent: 20,
	}

	got := CalculateLuck(in)
	if got.WindowDifficulty != 80 {
		t.Errorf("WindowDifficulty = %v, want 80", got.WindowDifficulty)
	}
	// pool weight falls back to the reconstructed total
	if got.DifficultyShare != 0.08 {
		t.Errorf("DifficultyShare = %v, want 0.08", got.DifficultyShare)
	}
	if got.EffortAdjusted || got.Adjusted != got.Factor {
		t.Errorf("no effort average should leave the factor unadjusted: %+v", got)
	}
}

func TestCalculateLuckDegenerate(t *testing.T) {
	tests := []struct {
		name string
		in   LuckInput
	}{
		{"empty window", LuckInput{Window: Window{Start: 100, End: 100}, SmoothedOwnHashrate: 10}},
		{"no smoothed hashrate", LuckInput{Window: Window{Start: 0, End: 100}}},
		{"zero pool weight", LuckInput{Window: Window{Start: 0, End: 0}, OwnShares: []Share{{Timestamp: 1, Difficulty: 5, Inclusion: 1}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateLuck(tt.in)
			if got.Available {
				t.Error("Available = true, want false")
			}
			if got.Text != Unavailable {
				t.Errorf("Text = %q, want %q", got.Text, Unavailable)
			}
			for _, v := range []float64{got.Factor, got.Adjusted, got.DifficultyShare, got.AccumulatedXMR} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("non-finite value in %+v", got)
				}
			}
		})
	}
}
