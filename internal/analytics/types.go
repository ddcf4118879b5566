// Package analytics derives the smoothed, human-facing figures shown on the
// dashboard: moving averages, projected earnings, payout cadence and luck.
// Every function here is pure and tolerates degenerate input without
// returning NaN or panicking.
package analytics

import (
	"sort"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Share is one sidechain share as reported by the ledger. Inclusion 0 marks
// an uncle.
type Share struct {
	Timestamp   int64  `json:"timestamp"`
	Difficulty  uint64 `json:"difficulty"`
	Inclusion   int    `json:"inclusion"`
	WindowDepth int    `json:"window_depth"`
	MinerID     uint64 `json:"miner"`
}

// IsUncle reports whether the share was included as an uncle
func (s Share) IsUncle() bool {
	return s.Inclusion == 0
}

// Payout is one coinbase output credited to the wallet, in atomic units
type Payout struct {
	Timestamp      int64  `json:"timestamp"`
	CoinbaseReward uint64 `json:"coinbase_reward"`
}

// XMR returns the payout amount in coin units
func (p Payout) XMR() float64 {
	return util.AtomicToCoin(p.CoinbaseReward)
}

// Window is the reconstructed PPLNS window
type Window struct {
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	TotalWeight uint64 `json:"total_weight"`
	Depth       int    `json:"depth"`
	Degraded    bool   `json:"degraded"`
}

// Duration returns the window length in seconds
func (w Window) Duration() int64 {
	return w.End - w.Start
}

// SortPayoutsNewestFirst orders payouts by descending timestamp in place
func SortPayoutsNewestFirst(payouts []Payout) {
	sort.SliceStable(payouts, func(i, j int) bool {
		return payouts[i].Timestamp > payouts[j].Timestamp
	})
}

// PayoutSummary is the recent-payouts card
type PayoutSummary struct {
	Count      int      `json:"count"`
	TotalXMR   float64  `json:"total_xmr"`
	TotalFiat  float64  `json:"total_fiat"`
	LastPayout int64    `json:"last_payout"`
	Recent     []Payout `json:"recent"`
}

// SummarizePayouts totals lifetime payouts and keeps the newest limit entries.
// The input is sorted newest first as a side effect.
func SummarizePayouts(payouts []Payout, price float64, limit int) PayoutSummary {
	SortPayoutsNewestFirst(payouts)

	var sum PayoutSummary
	sum.Count = len(payouts)
	for _, p := range payouts {
		sum.TotalXMR += p.XMR()
	}
	sum.TotalFiat = sum.TotalXMR * price
	if len(payouts) > 0 {
		sum.LastPayout = payouts[0].Timestamp
	}

	if limit < 0 {
		limit = 0
	}
	n := min(limit, len(payouts))
	sum.Recent = make([]Payout, n)
	copy(sum.Recent, payouts[:n])
	return sum
}
