package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/pplns"
	"github.com/Tanguille/p2pool-dashboard/internal/rpc"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Source names used in logs, failure lists and metrics
const (
	SourceStratum   = "stratum"
	SourcePool      = "pool"
	SourceNetwork   = "network"
	SourceXMRig     = "xmrig"
	SourceThreshold = "threshold"
	SourcePrice     = "price"
	SourcePayouts   = "payouts"
	SourceShares    = "shares"
	SourcePoolInfo  = "pool_info"
	SourceFound     = "found_blocks"
	SourceWindow    = "pplns_window"
)

// DataSource is the local p2pool data-api
type DataSource interface {
	Stratum(ctx context.Context) (*rpc.StratumStats, error)
	PoolStats(ctx context.Context) (*rpc.PoolStats, error)
	NetworkStats(ctx context.Context) (*rpc.NetworkStats, error)
	MinPaymentThreshold(ctx context.Context, fallback float64) (float64, error)
}

// NetworkSource provides network stats when the data-api has none
type NetworkSource interface {
	NetworkStats(ctx context.Context) (*rpc.NetworkStats, error)
}

// MinerSource reports the miner's own hashrate
type MinerSource interface {
	Summary(ctx context.Context) (*rpc.XMRigSummary, error)
}

// PriceSource reports the coin price in the configured fiat
type PriceSource interface {
	Price(ctx context.Context) (float64, string, error)
	SetLastKnown(price float64)
	Fiat() string
}

// Ledger is the payout-sharing ledger for one wallet. Each tick reads all
// of its ledger values from a single session.
type Ledger interface {
	Enabled() bool
	Wallet() string
	Session() rpc.LedgerSession
}

// Sources groups the collaborators polled on every tick. Only Data is
// required; nil members disable the values they feed.
type Sources struct {
	Data    DataSource
	Monerod NetworkSource
	XMRig   MinerSource
	Price   PriceSource
	Ledger  Ledger
}

// WindowSource reconstructs the current PPLNS window from shares
type WindowSource interface {
	Reconstruct(ctx context.Context, shares pplns.ShareSource) (analytics.Window, error)
}

// snapshot is everything fetched in one tick. A nil pointer or false ok
// flag marks a value that could not be fetched.
type snapshot struct {
	at time.Time

	stratum *rpc.StratumStats
	pool    *rpc.PoolStats
	network *rpc.NetworkStats
	xmrig   *rpc.XMRigSummary

	threshold float64

	price       float64
	priceSource string

	observer  string
	payouts   []analytics.Payout
	payoutsOK bool
	shares    []analytics.Share
	sharesOK  bool
	poolInfo  *rpc.PoolInfo
	lastFound int64
	foundOK   bool
	window    analytics.Window
	windowOK  bool

	mu       sync.Mutex
	failures map[string]error
}

func (s *snapshot) fail(source string, err error) {
	util.Warnf("Fetch %s failed: %v", source, err)
	s.mu.Lock()
	s.failures[source] = err
	s.mu.Unlock()
}

// failed returns the names of the sources that failed
func (s *snapshot) failed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.failures))
	for name := range s.failures {
		names = append(names, name)
	}
	return names
}

// fetch issues every independent request of a tick as one bounded batch.
// A failing request only leaves its own fields empty.
func (t *Tracker) fetch(ctx context.Context) *snapshot {
	snap := &snapshot{
		at:        t.now(),
		threshold: t.cfg.Analytics.MinPayoutThreshold,
		failures:  make(map[string]error),
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Poller.FetchTimeout)
	defer cancel()

	swg := sizedwaitgroup.New(t.cfg.Poller.MaxParallel)
	run := func(job func(ctx context.Context)) {
		swg.Add()
		go func() {
			defer swg.Done()
			job(t.agent.ForGoroutine(ctx))
		}()
	}

	src := t.sources

	run(func(ctx context.Context) {
		st, err := src.Data.Stratum(ctx)
		if err != nil {
			snap.fail(SourceStratum, err)
			return
		}
		snap.stratum = st
	})

	run(func(ctx context.Context) {
		ps, err := src.Data.PoolStats(ctx)
		if err != nil {
			snap.fail(SourcePool, err)
			return
		}
		snap.pool = ps
	})

	run(func(ctx context.Context) {
		ns, err := src.Data.NetworkStats(ctx)
		if err == nil && ns.Difficulty > 0 {
			snap.network = ns
			return
		}
		if src.Monerod == nil {
			if err == nil {
				err = errZeroDifficulty
			}
			snap.fail(SourceNetwork, err)
			return
		}
		util.Debugf("Data-api network stats unavailable (%v), asking monerod", err)
		ns, err = src.Monerod.NetworkStats(ctx)
		if err != nil {
			snap.fail(SourceNetwork, err)
			return
		}
		snap.network = ns
	})

	if src.XMRig != nil {
		run(func(ctx context.Context) {
			sum, err := src.XMRig.Summary(ctx)
			if err != nil {
				snap.fail(SourceXMRig, err)
				return
			}
			snap.xmrig = sum
		})
	}

	run(func(ctx context.Context) {
		v, err := src.Data.MinPaymentThreshold(ctx, t.cfg.Analytics.MinPayoutThreshold)
		if err != nil {
			util.Debugf("Payout threshold unavailable, using %.4f: %v", v, err)
		}
		snap.threshold = v
	})

	if src.Price != nil {
		run(func(ctx context.Context) {
			price, source, err := src.Price.Price(ctx)
			if err != nil {
				snap.fail(SourcePrice, err)
				return
			}
			snap.price, snap.priceSource = price, source
		})
	}

	if t.ledgerEnabled() {
		session := src.Ledger.Session()
		snap.observer = session.Base()

		run(func(ctx context.Context) {
			payouts, err := session.Payouts(ctx)
			if err != nil {
				snap.fail(SourcePayouts, err)
				return
			}
			snap.payouts, snap.payoutsOK = payouts, true
		})

		run(func(ctx context.Context) {
			shares, err := session.MinerShares(ctx, t.cfg.Ledger.ShareLimit)
			if err != nil {
				snap.fail(SourceShares, err)
				return
			}
			snap.shares, snap.sharesOK = shares, true
		})

		run(func(ctx context.Context) {
			info, err := session.PoolInfo(ctx)
			if err != nil {
				snap.fail(SourcePoolInfo, err)
				return
			}
			snap.poolInfo = info
		})

		run(func(ctx context.Context) {
			ts, err := session.LastFoundBlock(ctx)
			if err != nil {
				snap.fail(SourceFound, err)
				return
			}
			snap.lastFound, snap.foundOK = ts, true
		})

		run(func(ctx context.Context) {
			w, err := t.window.Reconstruct(ctx, session)
			if err != nil {
				snap.fail(SourceWindow, err)
				return
			}
			snap.window, snap.windowOK = w, true
		})
	}

	swg.Wait()
	return snap
}

// ownHashrate prefers the miner's own report over the stratum estimate
func (s *snapshot) ownHashrate() (float64, bool) {
	if s.xmrig != nil {
		if v := s.xmrig.Current(); v > 0 {
			return v, true
		}
	}
	if s.stratum != nil {
		return s.stratum.Hashrate15m, true
	}
	return 0, false
}

func (s *snapshot) poolHashrate() (float64, bool) {
	if s.pool == nil {
		return 0, false
	}
	return s.pool.PoolStatistics.HashRate, true
}

func (s *snapshot) networkHashrate(blockTime time.Duration) (float64, bool) {
	if s.network == nil {
		return 0, false
	}
	return util.DifficultyToHashrate(s.network.Difficulty, blockTime), true
}
