package rpc

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// ObserverState is the health of one observer for monitoring
type ObserverState struct {
	Name         string        `json:"name"`
	URL          string        `json:"url"`
	Healthy      bool          `json:"healthy"`
	Active       bool          `json:"active"`
	LastCheck    time.Time     `json:"last_check"`
	SuccessCount int32         `json:"success_count"`
	FailCount    int32         `json:"fail_count"`
	ResponseTime time.Duration `json:"response_time"`
	Height       uint64        `json:"sidechain_height"`
}

// observer wraps a LedgerClient with failover bookkeeping
type observer struct {
	client *LedgerClient
	name   string

	mu           sync.RWMutex
	healthy      bool
	failCount    int32
	successCount int32
	lastCheck    time.Time
	responseTime time.Duration
	height       uint64
}

// ObserverManager tracks the health of the configured observers and keeps
// the first healthy one in configuration order active.
type ObserverManager struct {
	observers []*observer
	cfg       *config.LedgerConfig
	wallet    string

	activeIdx int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewObserverManager creates a manager for cfg.Observers. With no wallet or
// no observers every session call returns ErrLedgerDisabled.
func NewObserverManager(ctx context.Context, cfg *config.LedgerConfig, timeout time.Duration) *ObserverManager {
	mgrCtx, cancel := context.WithCancel(ctx)

	mgr := &ObserverManager{
		cfg:    cfg,
		wallet: cfg.Wallet,
		ctx:    mgrCtx,
		cancel: cancel,
	}

	if cfg.Wallet == "" {
		return mgr
	}
	if !util.ValidateAddress(cfg.Wallet) {
		util.Warnf("Ledger wallet looks invalid: %s", cfg.Wallet)
	}

	for _, base := range cfg.Observers {
		client := NewLedgerClient(base, cfg.Wallet, timeout)
		if client.Base() == "" {
			continue
		}
		name := client.Base()
		if u, err := url.Parse(client.Base()); err == nil && u.Host != "" {
			name = u.Host
		}
		mgr.observers = append(mgr.observers, &observer{
			client:  client,
			name:    name,
			healthy: true,
		})
	}

	return mgr
}

// Enabled reports whether any observer is configured for a wallet
func (m *ObserverManager) Enabled() bool {
	return m != nil && len(m.observers) > 0
}

// Wallet returns the wallet address being tracked
func (m *ObserverManager) Wallet() string {
	return m.wallet
}

// Start begins the health check loop
func (m *ObserverManager) Start() {
	if len(m.observers) == 0 {
		util.Info("No ledger observers configured, ledger features disabled")
		return
	}

	util.Infof("Starting observer manager with %d observers", len(m.observers))
	for i, o := range m.observers {
		util.Infof("  [%d] %s", i, o.name)
	}

	m.checkAll()
	util.Infof("%d of %d observers healthy", m.HealthyCount(), len(m.observers))

	m.wg.Add(1)
	go m.healthCheckLoop()
}

// Stop shuts down the health check loop
func (m *ObserverManager) Stop() {
	m.cancel()
	m.wg.Wait()
	util.Info("Observer manager stopped")
}

// healthCheckLoop periodically checks all observers
func (m *ObserverManager) healthCheckLoop() {
	defer m.wg.Done()

	interval := m.cfg.HealthCheckInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkAll()
		}
	}
}

// checkAll checks every observer concurrently then reselects the active one
func (m *ObserverManager) checkAll() {
	var wg sync.WaitGroup

	for _, o := range m.observers {
		wg.Add(1)
		go func(o *observer) {
			defer wg.Done()
			m.check(o)
		}(o)
	}

	wg.Wait()
	m.selectBest()
}

// check fetches pool_info from one observer as its health probe
func (m *ObserverManager) check(o *observer) {
	start := time.Now()
	info, err := o.client.PoolInfo(m.ctx)
	responseTime := time.Since(start)

	o.mu.Lock()
	defer o.mu.Unlock()

	o.lastCheck = time.Now()
	o.responseTime = responseTime

	if err != nil {
		o.failCount++
		o.successCount = 0
		if o.failCount >= int32(m.maxFailures()) && o.healthy {
			o.healthy = false
			util.Warnf("Observer %s marked UNHEALTHY after %d failures: %v", o.name, o.failCount, err)
		}
		return
	}

	o.successCount++
	o.height = info.Sidechain.Height

	recovery := m.cfg.RecoveryThreshold
	if recovery == 0 {
		recovery = 2
	}
	if !o.healthy && o.successCount >= int32(recovery) {
		o.healthy = true
		o.failCount = 0
		util.Infof("Observer %s recovered (height=%d, response=%v)", o.name, o.height, responseTime)
	} else if o.healthy {
		o.failCount = 0
	}
}

func (m *ObserverManager) maxFailures() int {
	if m.cfg.MaxFailures == 0 {
		return 3
	}
	return m.cfg.MaxFailures
}

// selectBest makes the first healthy observer in configuration order active
func (m *ObserverManager) selectBest() {
	for i, o := range m.observers {
		o.mu.RLock()
		healthy := o.healthy
		o.mu.RUnlock()
		if !healthy {
			continue
		}

		if old := atomic.SwapInt32(&m.activeIdx, int32(i)); old != int32(i) {
			util.Infof("Switched to observer %s", o.name)
		}
		return
	}
	util.Warn("No healthy ledger observers available")
}

// States returns the state of all observers for monitoring
func (m *ObserverManager) States() []ObserverState {
	active := atomic.LoadInt32(&m.activeIdx)
	states := make([]ObserverState, len(m.observers))

	for i, o := range m.observers {
		o.mu.RLock()
		states[i] = ObserverState{
			Name:         o.name,
			URL:          o.client.Base(),
			Healthy:      o.healthy,
			Active:       int32(i) == active,
			LastCheck:    o.lastCheck,
			SuccessCount: o.successCount,
			FailCount:    o.failCount,
			ResponseTime: o.responseTime,
			Height:       o.height,
		}
		o.mu.RUnlock()
	}
	return states
}

// HealthyCount returns the number of healthy observers
func (m *ObserverManager) HealthyCount() int {
	count := 0
	for _, o := range m.observers {
		o.mu.RLock()
		if o.healthy {
			count++
		}
		o.mu.RUnlock()
	}
	return count
}

// RecordSuccess records a successful call on the active observer
func (m *ObserverManager) RecordSuccess() {
	m.recordSuccess(int(atomic.LoadInt32(&m.activeIdx)))
}

// RecordFailure records a failed call on the active observer and fails
// over once it becomes unhealthy
func (m *ObserverManager) RecordFailure() {
	m.recordFailure(int(atomic.LoadInt32(&m.activeIdx)))
}

func (m *ObserverManager) recordSuccess(idx int) {
	if idx < 0 || idx >= len(m.observers) {
		return
	}
	o := m.observers[idx]
	o.mu.Lock()
	o.successCount++
	o.failCount = 0
	o.healthy = true
	o.mu.Unlock()
}

func (m *ObserverManager) recordFailure(idx int) {
	if idx < 0 || idx >= len(m.observers) {
		return
	}

	o := m.observers[idx]
	o.mu.Lock()
	o.failCount++
	o.successCount = 0
	shouldFailover := o.failCount >= int32(m.maxFailures()) && o.healthy
	if shouldFailover {
		o.healthy = false
		util.Warnf("Observer %s marked unhealthy due to call failures", o.name)
	}
	o.mu.Unlock()

	if shouldFailover {
		m.selectBest()
	}
}

// LedgerSession is a set of ledger calls answered by a single observer.
// Observers may follow different sidechains, so values that are combined
// with each other must come from the same session.
type LedgerSession interface {
	Base() string
	Payouts(ctx context.Context) ([]analytics.Payout, error)
	MinerShares(ctx context.Context, limit int) ([]analytics.Share, error)
	PoolShares(ctx context.Context, limit int) ([]analytics.Share, error)
	PoolInfo(ctx context.Context) (*PoolInfo, error)
	LastFoundBlock(ctx context.Context) (int64, error)
}

// Session pins the active observer. Failures are counted against it and a
// failover only affects sessions opened afterwards.
func (m *ObserverManager) Session() LedgerSession {
	if len(m.observers) == 0 {
		return &LedgerClient{}
	}

	idx := int(atomic.LoadInt32(&m.activeIdx))
	if idx < 0 || idx >= len(m.observers) {
		idx = 0
	}
	return &observerSession{mgr: m, idx: idx, client: m.observers[idx].client}
}

// observerSession forwards every call to one observer and feeds the result
// into that observer's health
type observerSession struct {
	mgr    *ObserverManager
	idx    int
	client *LedgerClient
}

func (s *observerSession) record(err error) error {
	if err != nil {
		s.mgr.recordFailure(s.idx)
		return err
	}
	s.mgr.recordSuccess(s.idx)
	return nil
}

func (s *observerSession) Base() string {
	return s.client.Base()
}

func (s *observerSession) Payouts(ctx context.Context) ([]analytics.Payout, error) {
	out, err := s.client.Payouts(ctx)
	return out, s.record(err)
}

func (s *observerSession) MinerShares(ctx context.Context, limit int) ([]analytics.Share, error) {
	out, err := s.client.MinerShares(ctx, limit)
	return out, s.record(err)
}

func (s *observerSession) PoolShares(ctx context.Context, limit int) ([]analytics.Share, error) {
	out, err := s.client.PoolShares(ctx, limit)
	return out, s.record(err)
}

func (s *observerSession) PoolInfo(ctx context.Context) (*PoolInfo, error) {
	out, err := s.client.PoolInfo(ctx)
	return out, s.record(err)
}

func (s *observerSession) LastFoundBlock(ctx context.Context) (int64, error) {
	out, err := s.client.LastFoundBlock(ctx)
	return out, s.record(err)
}
