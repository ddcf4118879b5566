package analytics

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// LuckInput carries everything the window luck factor is derived from
type LuckInput struct {
	Window Window
	// PoolWindowWeight is the pool-reported weight of the current window.
	// When zero the reconstructed window's own total is used.
	PoolWindowWeight uint64
	OwnShares        []Share
	// SmoothedOwnHashrate is the own hashrate averaged over the window's
	// duration.
	SmoothedOwnHashrate float64
	EffortCurrent       float64
	EffortAverage       float64
	BlockReward         float64
	Price               float64
	UnclePenaltyPercent float64
}

// Luck is the miner's performance inside the current PPLNS window
type Luck struct {
	Available        bool    `json:"available"`
	WindowShares     int     `json:"window_shares"`
	WindowUncles     int     `json:"window_uncles"`
	WindowDifficulty float64 `json:"window_difficulty"`
	DifficultyShare  float64 `json:"difficulty_share"`
	WindowHashrate   float64 `json:"window_hashrate"`
	Factor           float64 `json:"factor"`
	Adjusted         float64 `json:"adjusted"`
	EffortAdjusted   bool    `json:"effort_adjusted"`
	EffortCurrent    float64 `json:"effort_current"`
	EffortAverage    float64 `json:"effort_average"`
	AccumulatedXMR   float64 `json:"accumulated_xmr"`
	AccumulatedFiat  float64 `json:"accumulated_fiat"`
	Text             string  `json:"text"`
}

// CalculateLuck compares the hashrate implied by the miner's shares in the
// window with their smoothed hashrate over the same span, normalized by the
// pool's long-run effort.
func CalculateLuck(in LuckInput) Luck {
	out := Luck{
		EffortCurrent: in.EffortCurrent,
		EffortAverage: in.EffortAverage,
		Text:          Unavailable,
	}

	weights := make([]float64, 0, len(in.OwnShares))
	for _, s := range in.OwnShares {
		if s.Timestamp < in.Window.Start {
			continue
		}
		w := float64(s.Difficulty)
		if s.IsUncle() {
			out.WindowUncles++
			w = w * (100 - in.UnclePenaltyPercent) / 100
		}
		out.WindowShares++
		weights = append(weights, w)
	}
	if len(weights) > 0 {
		out.WindowDifficulty = floats.Sum(weights)
	}

	poolWeight := in.PoolWindowWeight
	if poolWeight == 0 {
		poolWeight = in.Window.TotalWeight
	}
	out.DifficultyShare = util.SafeDiv(out.WindowDifficulty, float64(poolWeight))
	out.AccumulatedXMR = out.DifficultyShare * in.BlockReward
	out.AccumulatedFiat = out.AccumulatedXMR * in.Price

	duration := in.Window.Duration()
	if duration <= 0 || in.SmoothedOwnHashrate <= 0 {
		return out
	}

	out.WindowHashrate = out.WindowDifficulty / float64(duration)
	out.Factor = out.WindowHashrate / in.SmoothedOwnHashrate
	out.Adjusted = out.Factor
	if in.EffortAverage > 0 {
		out.Adjusted = out.Factor * (100 / in.EffortAverage)
		out.EffortAdjusted = true
	}
	if !util.Finite(out.Adjusted) {
		return out
	}

	out.Available = true
	out.Text = fmt.Sprintf("%.2fx", out.Adjusted)
	return out
}
