package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Unavailable is the display text for a figure that cannot be computed
const Unavailable = "unavailable"

// maxIntervalDays keeps the duration text inside time.Duration range
const maxIntervalDays = 36500

// Payout interval strategies
const (
	StrategyThreshold = "threshold"
	StrategyBlockTime = "blocktime"
)

// PayoutInput carries the smoothed values a payout interval is derived from
type PayoutInput struct {
	Hashrates
	BlockReward    float64
	BlocksPerDay   float64
	BlockTime      time.Duration
	Threshold      float64
	LastBlockFound int64
	Now            time.Time
}

// PayoutInterval is an estimated payout cadence. Days is +Inf when no payout
// is expected; Hours is nil in that case so it encodes as JSON null.
type PayoutInterval struct {
	Strategy    string   `json:"strategy"`
	Available   bool     `json:"available"`
	Days        float64  `json:"-"`
	Hours       *float64 `json:"hours"`
	PerDay      float64  `json:"per_day"`
	NextSeconds *float64 `json:"next_seconds,omitempty"`
	Every       string   `json:"every"`
	Text        string   `json:"text"`
}

// PayoutIntervalEstimator projects the time between payouts
type PayoutIntervalEstimator interface {
	Name() string
	Estimate(in PayoutInput) PayoutInterval
}

// NewPayoutEstimator returns the estimator for a strategy name. Unknown
// names fall back to the threshold strategy.
func NewPayoutEstimator(strategy string) PayoutIntervalEstimator {
	if strategy == StrategyBlockTime {
		return BlockTimeBased{}
	}
	return ThresholdBased{}
}

// ThresholdBased estimates how long it takes to accumulate the minimum
// payout threshold at the expected reward rate.
type ThresholdBased struct{}

// Name returns the strategy name
func (ThresholdBased) Name() string { return StrategyThreshold }

// Estimate computes days per payout as threshold / expected XMR per day
func (ThresholdBased) Estimate(in PayoutInput) PayoutInterval {
	poolBlocksPerDay := in.BlocksPerDay * util.SafeDiv(in.Pool, in.Network)
	xmrPerBlock := util.SafeDiv(in.Own, in.Pool) * in.BlockReward
	expectedPerDay := poolBlocksPerDay * xmrPerBlock

	days := math.Inf(1)
	if expectedPerDay > 0 {
		days = in.Threshold / expectedPerDay
	}
	return newInterval(StrategyThreshold, days)
}

// BlockTimeBased treats every pool block found while the miner holds shares
// in the window as a payout, so the interval is the pool's block interval.
type BlockTimeBased struct{}

// Name returns the strategy name
func (BlockTimeBased) Name() string { return StrategyBlockTime }

// Estimate computes days per payout as the expected time between pool blocks
func (BlockTimeBased) Estimate(in PayoutInput) PayoutInterval {
	days := math.Inf(1)
	if in.Own > 0 && in.Pool > 0 && in.Network > 0 {
		poolBlockSeconds := in.BlockTime.Seconds() * in.Network / in.Pool
		days = poolBlockSeconds / util.SecondsPerDay
	}

	out := newInterval(StrategyBlockTime, days)
	if out.Available && in.LastBlockFound > 0 && !in.Now.IsZero() {
		next := float64(in.LastBlockFound) + days*util.SecondsPerDay - float64(in.Now.Unix())
		next = math.Max(next, 0)
		out.NextSeconds = &next
	}
	return out
}

func newInterval(strategy string, days float64) PayoutInterval {
	out := PayoutInterval{
		Strategy: strategy,
		Days:     days,
		Every:    Unavailable,
		Text:     Unavailable,
	}
	if !util.Finite(days) || days <= 0 {
		out.Days = math.Inf(1)
		return out
	}

	hours := days * 24
	out.Available = true
	out.Hours = &hours
	out.PerDay = 1 / days
	if days > maxIntervalDays {
		out.Every = "more than 100 years"
	} else {
		out.Every = util.FormatDuration(time.Duration(days * util.SecondsPerDay * float64(time.Second)))
	}
	out.Text = fmt.Sprintf("%.2f payouts/day (~%.1fh/payout)", out.PerDay, hours)
	return out
}
