// Package tracker drives the poll tick: it fetches every source, appends
// the history sample, derives the report and persists state.
package tracker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/history"
	"github.com/Tanguille/p2pool-dashboard/internal/newrelic"
	"github.com/Tanguille/p2pool-dashboard/internal/notify"
	"github.com/Tanguille/p2pool-dashboard/internal/storage"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

const (
	// reportCacheTTL bounds how stale a cached report may be on restart
	reportCacheTTL = 24 * time.Hour

	subscriberBuffer = 4
)

// Options are the optional collaborators of a Tracker
type Options struct {
	// Store persists the history series. Nil keeps history in memory only.
	Store history.Store
	// Redis caches the last report and archives payouts. May be nil.
	Redis    *storage.RedisClient
	Notifier *notify.Notifier
	Agent    *newrelic.Agent
	// Window reconstructs the PPLNS window. Defaults to a reconstructor
	// over the ledger.
	Window WindowSource
}

// Stats are the tracker's own counters
type Stats struct {
	Ticks       int64 `json:"ticks"`
	Skipped     int64 `json:"skipped"`
	LastTick    int64 `json:"last_tick"`
	LastSaved   int64 `json:"last_saved"`
	HistorySize int   `json:"history_size"`
	Leader      bool  `json:"leader"`
}

// Tracker owns the history series and the last good report. Ticks never
// overlap: a tick that fires while the previous one is running is skipped.
type Tracker struct {
	cfg       *config.Config
	sources   Sources
	series    *history.Series
	policy    analytics.AveragingPolicy
	estimator analytics.PayoutIntervalEstimator
	window    WindowSource

	store    history.Store
	redis    *storage.RedisClient
	notifier *notify.Notifier
	agent    *newrelic.Agent

	now        func() time.Time
	instanceID string

	inFlight  atomic.Bool
	ticks     atomic.Int64
	skipped   atomic.Int64
	leader    atomic.Bool
	lastSaved atomic.Int64

	mu     sync.RWMutex
	report *Report

	// event state, touched only from the tick
	lastPayout    int64
	payoutsSeeded bool
	lastFound     int64
	lastEffort    float64
	minerActive   *bool

	subMu       sync.Mutex
	subscribers map[chan *Report]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a tracker. sources.Data is required.
func New(cfg *config.Config, sources Sources, opts Options) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())

	series := history.NewSeries(cfg.History.Retention)

	t := &Tracker{
		cfg:     cfg,
		sources: sources,
		series:  series,
		policy: analytics.AveragingPolicy{
			Kind:        cfg.Analytics.AveragePolicy,
			FixedWindow: cfg.Analytics.FixedWindow,
			MaxWindow:   cfg.Analytics.MaxWindow,
		},
		estimator:   analytics.NewPayoutEstimator(cfg.Analytics.PayoutStrategy),
		window:      opts.Window,
		store:       opts.Store,
		redis:       opts.Redis,
		notifier:    opts.Notifier,
		agent:       opts.Agent,
		now:         time.Now,
		instanceID:  instanceID(),
		subscribers: make(map[chan *Report]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	if t.agent == nil {
		t.agent = newrelic.NewAgent(&cfg.NewRelic)
	}
	if t.window == nil && t.ledgerEnabled() {
		t.window = newLedgerWindow(cfg.Ledger.ShareLimit)
	}
	return t
}

// SetClock overrides the time source, for tests
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
	t.series.SetClock(now)
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func (t *Tracker) ledgerEnabled() bool {
	return t.sources.Ledger != nil && t.sources.Ledger.Enabled()
}

// Start restores persisted state and begins polling
func (t *Tracker) Start() error {
	if t.sources.Data == nil {
		return fmt.Errorf("tracker requires a data source")
	}

	util.Info("Starting tracker...")
	t.restore(t.ctx)

	// First tick immediately so the dashboard has data before the first interval
	t.Tick(t.ctx)

	t.wg.Add(1)
	go t.pollLoop()

	util.Infof("Tracker started, polling every %v", t.cfg.Poller.Interval)
	return nil
}

// Stop halts polling, waits for the running tick and saves history
func (t *Tracker) Stop() {
	util.Info("Stopping tracker...")
	t.cancel()
	t.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.series.Save(ctx, t.store); err != nil {
		util.Warnf("Final history save failed: %v", err)
	}
	if t.redis != nil {
		if err := t.redis.UnlockTicks(t.instanceID); err != nil {
			util.Debugf("Release poller lock: %v", err)
		}
	}
	if t.notifier != nil {
		t.notifier.Wait()
	}
	util.Info("Tracker stopped")
}

// pollLoop fires a tick every interval
func (t *Tracker) pollLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.Poller.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				t.Tick(t.ctx)
			}()
		}
	}
}

// Tick runs one poll cycle. It returns false when skipped because another
// tick is still in flight.
func (t *Tracker) Tick(ctx context.Context) bool {
	if !t.inFlight.CompareAndSwap(false, true) {
		t.skipped.Add(1)
		util.Warnf("Previous tick still running, skipping this one")
		if t.redis != nil {
			if err := t.redis.RecordSkippedTick(); err != nil {
				util.Debugf("Record skipped tick: %v", err)
			}
		}
		return false
	}
	defer t.inFlight.Store(false)

	started := t.now()

	if !t.acquireLeadership() {
		t.followLeader(ctx)
		return true
	}

	txn := t.agent.StartTransaction("tick")
	if txn != nil {
		defer txn.End()
		ctx = t.agent.NewContext(ctx, txn)
	}

	snap := t.fetch(ctx)
	for source, err := range snap.failures {
		t.agent.RecordSourceFailure(source, err)
		t.agent.NoticeError(txn, fmt.Errorf("%s: %w", source, err))
	}

	t.mu.RLock()
	prev := t.report
	t.mu.RUnlock()

	rep := t.build(prev, snap)

	t.mu.Lock()
	t.report = rep
	t.mu.Unlock()

	t.ticks.Add(1)
	t.emitEvents(snap, rep)
	t.persist(ctx, rep)
	t.publish(rep)

	took := t.now().Sub(started)
	t.agent.RecordTick(took, len(rep.Failures))
	if rep.Hashrate != nil {
		t.agent.UpdateHashrateMetrics(rep.Hashrate.Smoothed.Own, rep.Hashrate.Smoothed.Pool, rep.Hashrate.Smoothed.Network)
	}
	if rep.Luck != nil && rep.Luck.Available {
		t.agent.UpdateLuckMetrics(rep.Luck.Adjusted, rep.Luck.EffortCurrent, rep.Luck.EffortAverage)
	}
	if t.redis != nil {
		if err := t.redis.RecordTick(len(rep.Failures) == 0, took, started); err != nil {
			util.Debugf("Record tick: %v", err)
		}
	}

	util.Debugf("Tick done in %v, %d samples, %d failed sources", took, t.series.Len(), len(rep.Failures))
	return true
}

// acquireLeadership reports whether this instance polls. Without Redis
// every instance polls.
func (t *Tracker) acquireLeadership() bool {
	if t.redis == nil {
		t.leader.Store(true)
		return true
	}

	ok, err := t.redis.LockTicks(t.instanceID, 3*t.cfg.Poller.Interval)
	if err != nil {
		util.Warnf("Poller lock unavailable, polling anyway: %v", err)
		ok = true
	}
	if ok != t.leader.Load() {
		if ok {
			util.Info("This instance is now polling")
		} else {
			util.Info("Another instance is polling, serving its cached report")
		}
	}
	t.leader.Store(ok)
	return ok
}

// followLeader mirrors the polling instance's report and history
func (t *Tracker) followLeader(ctx context.Context) {
	data, err := t.redis.GetLastReport()
	if err != nil || data == nil {
		return
	}

	var rep Report
	if err := sonic.Unmarshal(data, &rep); err != nil {
		util.Warnf("Cached report is corrupt: %v", err)
		return
	}

	if t.cfg.History.Backend == config.BackendRedis {
		t.series.Load(ctx, t.store)
	}

	t.mu.Lock()
	t.report = &rep
	t.mu.Unlock()
	t.publish(&rep)
}

// restore loads persisted history and the cached report
func (t *Tracker) restore(ctx context.Context) {
	t.series.Load(ctx, t.store)
	if last, ok := t.series.Last(); ok && last.Price > 0 && t.sources.Price != nil {
		t.sources.Price.SetLastKnown(last.Price)
	}

	if t.redis == nil {
		return
	}

	data, err := t.redis.GetLastReport()
	if err != nil {
		util.Warnf("Load cached report: %v", err)
		return
	}
	if data == nil {
		return
	}

	var rep Report
	if err := sonic.Unmarshal(data, &rep); err != nil {
		util.Warnf("Cached report is corrupt, ignoring: %v", err)
		return
	}
	t.mu.Lock()
	t.report = &rep
	t.mu.Unlock()
	util.Infof("Restored report from %s", util.FormatRelative(rep.UpdatedAt, t.now()))
}

// persist saves history on the configured cadence and caches the report
func (t *Tracker) persist(ctx context.Context, rep *Report) {
	now := t.now()
	if t.store != nil && now.Unix()-t.lastSaved.Load() >= int64(t.cfg.History.SaveInterval/time.Second) {
		if err := t.series.Save(ctx, t.store); err != nil {
			util.Warnf("History save failed: %v", err)
		} else {
			t.lastSaved.Store(now.Unix())
		}
	}

	if t.redis == nil {
		return
	}
	data, err := sonic.Marshal(rep)
	if err != nil {
		util.Warnf("Encode report: %v", err)
		return
	}
	if err := t.redis.SetLastReport(data, reportCacheTTL); err != nil {
		util.Warnf("Cache report: %v", err)
	}
}

// Report returns the latest report, or nil before the first tick
func (t *Tracker) Report() *Report {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report
}

// Earnings projects earnings for period from the latest smoothed values,
// independent of the poll cadence
func (t *Tracker) Earnings(period analytics.Period) (analytics.EarningsEstimate, bool) {
	rep := t.Report()
	if rep == nil || rep.Hashrate == nil {
		return analytics.EarningsEstimate{Period: period}, false
	}

	smoothed, blockReward, price := rep.Inputs()
	return analytics.Project(analytics.EarningsInput{
		OwnHashrate:     smoothed.Own,
		NetworkHashrate: smoothed.Network,
		BlockReward:     blockReward,
		BlocksPerDay:    util.BlocksPerDay(t.cfg.Sources.BlockTime),
		Price:           price,
		Period:          period,
	}), true
}

// History returns samples newer than window, or all of them when window
// is not positive
func (t *Tracker) History(window time.Duration) history.View {
	if window <= 0 {
		return t.series.All()
	}
	return t.series.Slice(window)
}

// HistoryLog returns the full series in the parallel-array log form
func (t *Tracker) HistoryLog() history.Log {
	return history.ToLog(t.series.Samples())
}

// Threshold returns the payout threshold from the latest report
func (t *Tracker) Threshold() float64 {
	rep := t.Report()
	if rep == nil || rep.Payout == nil {
		return t.cfg.Analytics.MinPayoutThreshold
	}
	return rep.Payout.Threshold
}

// Stats returns the tracker's counters
func (t *Tracker) Stats() Stats {
	s := Stats{
		Ticks:       t.ticks.Load(),
		Skipped:     t.skipped.Load(),
		HistorySize: t.series.Len(),
		Leader:      t.leader.Load(),
	}
	if rep := t.Report(); rep != nil {
		s.LastTick = rep.UpdatedAt
	}
	s.LastSaved = t.lastSaved.Load()
	return s
}

// Subscribe returns a channel receiving every new report. Slow subscribers
// miss reports rather than block the tick.
func (t *Tracker) Subscribe() (<-chan *Report, func()) {
	ch := make(chan *Report, subscriberBuffer)

	t.subMu.Lock()
	t.subscribers[ch] = struct{}{}
	t.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.subMu.Lock()
			delete(t.subscribers, ch)
			t.subMu.Unlock()
			close(ch)
		})
	}
}

func (t *Tracker) publish(rep *Report) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subscribers {
		select {
		case ch <- rep:
		default:
		}
	}
}
