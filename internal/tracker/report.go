package tracker

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/history"
	"github.com/Tanguille/p2pool-dashboard/internal/rpc"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

var errZeroDifficulty = errors.New("network difficulty is zero")

// Report is everything the dashboard displays. Each card is replaced only
// when the tick produced fresh inputs for it, so transient failures show
// the last good values.
type Report struct {
	UpdatedAt int64    `json:"updated_at"`
	Failures  []string `json:"failures,omitempty"`

	Status   *Status                     `json:"status"`
	Hashrate *HashrateCard               `json:"hashrate"`
	Network  *NetworkCard                `json:"network"`
	Pool     *PoolCard                   `json:"pool"`
	Price    *PriceCard                  `json:"price"`
	Earnings *analytics.EarningsEstimate `json:"earnings"`
	Payout   *PayoutCard                 `json:"payout"`

	Ledger   LedgerCard                `json:"ledger"`
	Payouts  *analytics.PayoutSummary  `json:"payouts,omitempty"`
	Shares   *analytics.ShareTally     `json:"shares,omitempty"`
	Window   *analytics.Window         `json:"window,omitempty"`
	Luck     *analytics.Luck           `json:"luck,omitempty"`
	TrueLuck *TrueLuckCard             `json:"true_luck,omitempty"`
}

// Status is the local miner status card
type Status struct {
	Active                  bool         `json:"active"`
	Connections             int          `json:"connections"`
	Workers                 []rpc.Worker `json:"workers"`
	SharesFound             uint64       `json:"shares_found"`
	SharesFailed            uint64       `json:"shares_failed"`
	CurrentEffort           float64      `json:"current_effort"`
	BlockRewardSharePercent float64      `json:"block_reward_share_percent"`
	LastShare               int64        `json:"last_share"`
	LastShareText           string       `json:"last_share_text"`
}

// HashrateCard holds instantaneous and smoothed hashrates
type HashrateCard struct {
	Instant          analytics.Hashrates `json:"instant"`
	Smoothed         analytics.Hashrates `json:"smoothed"`
	WindowSeconds    int64               `json:"window_seconds"`
	Label            string              `json:"label"`
	PoolSharePercent float64             `json:"pool_share_percent"`
	OwnText          string              `json:"own_text"`
	PoolText         string              `json:"pool_text"`
	NetworkText      string              `json:"network_text"`
}

// NetworkCard is the main chain summary
type NetworkCard struct {
	Height      uint64  `json:"height"`
	Difficulty  uint64  `json:"difficulty"`
	BlockReward float64 `json:"block_reward"`
}

// PoolCard is the sidechain summary
type PoolCard struct {
	Miners           int     `json:"miners"`
	TotalBlocksFound uint64  `json:"total_blocks_found"`
	LastBlockFound   int64   `json:"last_block_found"`
	LastBlockText    string  `json:"last_block_text"`
	PPLNSWeight      uint64  `json:"pplns_weight"`
	SidechainHeight  uint64  `json:"sidechain_height"`
	EffortCurrent    float64 `json:"effort_current,omitempty"`
	EffortAverage    float64 `json:"effort_average,omitempty"`
}

// PriceCard is the fiat price
type PriceCard struct {
	Value  float64 `json:"value"`
	Fiat   string  `json:"fiat"`
	Source string  `json:"source"`
}

// PayoutCard is the estimated payout cadence
type PayoutCard struct {
	analytics.PayoutInterval
	Threshold float64 `json:"threshold"`
}

// LedgerCard describes the ledger selection
type LedgerCard struct {
	Enabled  bool   `json:"enabled"`
	Wallet   string `json:"wallet,omitempty"`
	Observer string `json:"observer,omitempty"`
}

// TrueLuckCard is lifetime luck since the declared mining start
type TrueLuckCard struct {
	Available bool    `json:"available"`
	Value     float64 `json:"value"`
	Text      string  `json:"text"`
}

// clone returns a shallow copy whose card pointers may be replaced
// without touching the original
func (r *Report) clone() *Report {
	if r == nil {
		return &Report{}
	}
	c := *r
	c.Failures = nil
	return &c
}

// Inputs returns the values earnings projections are derived from
func (r *Report) Inputs() (smoothed analytics.Hashrates, blockReward, price float64) {
	if r.Hashrate != nil {
		smoothed = r.Hashrate.Smoothed
	}
	if r.Network != nil {
		blockReward = r.Network.BlockReward
	}
	if r.Price != nil {
		price = r.Price.Value
	}
	return smoothed, blockReward, price
}

// build derives a new report from the previous one and a fresh snapshot
func (t *Tracker) build(prev *Report, snap *snapshot) *Report {
	rep := prev.clone()
	rep.UpdatedAt = snap.at.Unix()
	rep.Failures = snap.failed()
	sort.Strings(rep.Failures)

	blockTime := t.cfg.Sources.BlockTime

	if snap.stratum != nil {
		rep.Status = buildStatus(snap.stratum, snap.at)
	}

	if snap.network != nil {
		rep.Network = &NetworkCard{
			Height:      snap.network.Height,
			Difficulty:  snap.network.Difficulty,
			BlockReward: util.AtomicToCoin(snap.network.Reward),
		}
	}

	if snap.pool != nil {
		ps := snap.pool.PoolStatistics
		rep.Pool = &PoolCard{
			Miners:           ps.Miners,
			TotalBlocksFound: ps.TotalBlocksFound,
			LastBlockFound:   ps.LastBlockFoundTime,
			PPLNSWeight:      ps.PPLNSWeight,
			SidechainHeight:  ps.SidechainHeight,
		}
	} else if rep.Pool != nil {
		p := *rep.Pool
		rep.Pool = &p
	}
	if rep.Pool != nil {
		if snap.foundOK && snap.lastFound > rep.Pool.LastBlockFound {
			rep.Pool.LastBlockFound = snap.lastFound
		}
		if snap.poolInfo != nil {
			rep.Pool.EffortCurrent = snap.poolInfo.Sidechain.Effort.Current
			rep.Pool.EffortAverage = snap.poolInfo.Sidechain.Effort.Average200
		}
		rep.Pool.LastBlockText = "never"
		if rep.Pool.LastBlockFound > 0 {
			rep.Pool.LastBlockText = util.FormatRelative(rep.Pool.LastBlockFound, snap.at)
		}
	}

	if snap.price > 0 {
		fiat := ""
		if t.sources.Price != nil {
			fiat = t.sources.Price.Fiat()
		}
		rep.Price = &PriceCard{Value: snap.price, Fiat: fiat, Source: snap.priceSource}
	}

	rep.Hashrate = t.buildHashrate(rep.Hashrate, snap, blockTime)

	smoothed, blockReward, price := rep.Inputs()
	blocksPerDay := util.BlocksPerDay(blockTime)

	if rep.Hashrate != nil && rep.Network != nil {
		est := analytics.Project(analytics.EarningsInput{
			OwnHashrate:     smoothed.Own,
			NetworkHashrate: smoothed.Network,
			BlockReward:     blockReward,
			BlocksPerDay:    blocksPerDay,
			Price:           price,
			Period:          analytics.PeriodDay,
		})
		rep.Earnings = &est

		var lastBlock int64
		if rep.Pool != nil {
			lastBlock = rep.Pool.LastBlockFound
		}
		interval := t.estimator.Estimate(analytics.PayoutInput{
			Hashrates:      smoothed,
			BlockReward:    blockReward,
			BlocksPerDay:   blocksPerDay,
			BlockTime:      blockTime,
			Threshold:      snap.threshold,
			LastBlockFound: lastBlock,
			Now:            snap.at,
		})
		rep.Payout = &PayoutCard{PayoutInterval: interval, Threshold: snap.threshold}
	}

	t.buildLedger(rep, snap, blockReward, price)
	return rep
}

func buildStatus(st *rpc.StratumStats, now time.Time) *Status {
	s := &Status{
		Active:                  st.Connections > 0,
		Connections:             st.Connections,
		Workers:                 st.ParsedWorkers(),
		SharesFound:             st.SharesFound,
		SharesFailed:            st.SharesFailed,
		CurrentEffort:           st.CurrentEffort,
		BlockRewardSharePercent: st.BlockRewardSharePercent,
		LastShare:               st.LastShareFoundTime,
		LastShareText:           "never",
	}
	if st.LastShareFoundTime > 0 {
		s.LastShareText = util.FormatRelative(st.LastShareFoundTime, now)
	}
	return s
}

// buildHashrate appends the tick's sample when all three hashrates are
// known and smooths over the configured averaging window
func (t *Tracker) buildHashrate(prev *HashrateCard, snap *snapshot, blockTime time.Duration) *HashrateCard {
	own, okOwn := snap.ownHashrate()
	pool, okPool := snap.poolHashrate()
	network, okNet := snap.networkHashrate(blockTime)

	instant := analytics.Hashrates{Own: own, Pool: pool, Network: network}
	if prev != nil {
		if !okOwn {
			instant.Own = prev.Instant.Own
		}
		if !okPool {
			instant.Pool = prev.Instant.Pool
		}
		if !okNet {
			instant.Network = prev.Instant.Network
		}
	}

	if okOwn && okPool && okNet {
		price := snap.price
		if price <= 0 {
			if last, ok := t.series.Last(); ok {
				price = last.Price
			}
		}
		t.series.Append(history.Sample{
			Timestamp:       snap.at.Unix(),
			MyHashrate:      own,
			PoolHashrate:    pool,
			NetworkHashrate: network,
			Price:           price,
		})
	}

	if prev == nil && !(okOwn || okPool || okNet) && t.series.Len() == 0 {
		return nil
	}

	window := t.policy.Window(t.series.Span())
	view := t.series.Slice(window)
	smoothed := analytics.SmoothHashrates(view.Timestamps, view.MyHashrate, view.PoolHashrate, view.NetworkHashrate, window, instant)

	return &HashrateCard{
		Instant:          instant,
		Smoothed:         smoothed,
		WindowSeconds:    int64(window / time.Second),
		Label:            t.policy.Label(window),
		PoolSharePercent: util.SafeDiv(smoothed.Own, smoothed.Pool) * 100,
		OwnText:          util.FormatHashrate(smoothed.Own),
		PoolText:         util.FormatHashrate(smoothed.Pool),
		NetworkText:      util.FormatHashrate(smoothed.Network),
	}
}

// buildLedger fills the ledger-dependent cards. Without a ledger they are
// cleared so the display shows its neutral placeholder.
func (t *Tracker) buildLedger(rep *Report, snap *snapshot, blockReward, price float64) {
	if !t.ledgerEnabled() {
		rep.Ledger = LedgerCard{}
		rep.Payouts, rep.Shares, rep.Window, rep.Luck, rep.TrueLuck = nil, nil, nil, nil, nil
		return
	}

	rep.Ledger = LedgerCard{
		Enabled:  true,
		Wallet:   t.sources.Ledger.Wallet(),
		Observer: snap.observer,
	}

	if snap.payoutsOK {
		sum := analytics.SummarizePayouts(snap.payouts, price, t.cfg.Analytics.RecentPayments)
		rep.Payouts = &sum
	} else if rep.Payouts != nil && price > 0 {
		sum := *rep.Payouts
		sum.TotalFiat = sum.TotalXMR * price
		rep.Payouts = &sum
	}

	var lastPayout int64
	if rep.Payouts != nil {
		lastPayout = rep.Payouts.LastPayout
	}

	if snap.sharesOK {
		tally := analytics.TallyShares(snap.shares, lastPayout)
		rep.Shares = &tally
	}

	if snap.windowOK {
		w := snap.window
		rep.Window = &w
	}

	if rep.Window != nil && snap.sharesOK {
		var poolWeight uint64
		var effortCurrent, effortAverage float64
		if snap.poolInfo != nil {
			poolWeight = snap.poolInfo.Sidechain.Window.Weight
			effortCurrent = snap.poolInfo.Sidechain.Effort.Current
			effortAverage = snap.poolInfo.Sidechain.Effort.Average200
		} else if rep.Luck != nil {
			effortCurrent, effortAverage = rep.Luck.EffortCurrent, rep.Luck.EffortAverage
		}
		if poolWeight == 0 && snap.pool != nil {
			poolWeight = snap.pool.PoolStatistics.PPLNSWeight
		}

		duration := rep.Window.Duration()
		view := t.series.Slice(time.Duration(duration) * time.Second)
		smoothedOwn := analytics.MovingAverage(view.Timestamps, view.MyHashrate, duration)

		luck := analytics.CalculateLuck(analytics.LuckInput{
			Window:              *rep.Window,
			PoolWindowWeight:    poolWeight,
			OwnShares:           snap.shares,
			SmoothedOwnHashrate: smoothedOwn,
			EffortCurrent:       effortCurrent,
			EffortAverage:       effortAverage,
			BlockReward:         blockReward,
			Price:               price,
			UnclePenaltyPercent: t.cfg.Analytics.UnclePenaltyPercent,
		})
		rep.Luck = &luck
	}

	if snap.payoutsOK {
		rep.TrueLuck = t.buildTrueLuck(snap.payouts, rep.Earnings)
	}
}

// buildTrueLuck returns nil when no mining start time is configured
func (t *Tracker) buildTrueLuck(payouts []analytics.Payout, earnings *analytics.EarningsEstimate) *TrueLuckCard {
	startTime, err := t.cfg.MiningStartedAt()
	if err != nil || startTime.IsZero() {
		return nil
	}

	var expected float64
	if earnings != nil {
		expected = earnings.XMRPerDay
	}

	total, last := analytics.PaidSince(payouts, startTime)
	v, err := analytics.TrueLuck(analytics.TrueLuckInput{
		Start:            startTime,
		LastPayout:       last,
		TotalPaidXMR:     total,
		ExpectedDailyXMR: expected,
	})
	if err != nil {
		return &TrueLuckCard{Text: err.Error()}
	}
	return &TrueLuckCard{Available: true, Value: v, Text: formatFactor(v)}
}

func formatFactor(v float64) string {
	return fmt.Sprintf("%.2fx", v)
}
