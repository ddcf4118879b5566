// Package newrelic provides New Relic APM integration for monitoring.
package newrelic

import (
	"context"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Agent wraps New Relic APM functionality
type Agent struct {
	cfg *config.NewRelicConfig
	app *newrelic.Application
	mu  sync.RWMutex
}

// NewAgent creates a new New Relic agent
func NewAgent(cfg *config.NewRelicConfig) *Agent {
	return &Agent{
		cfg: cfg,
	}
}

// Start initializes the New Relic agent
func (a *Agent) Start() error {
	if !a.cfg.Enabled {
		util.Info("New Relic APM disabled")
		return nil
	}

	if a.cfg.LicenseKey == "" {
		util.Warn("New Relic license key not configured, APM disabled")
		return nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(a.cfg.AppName),
		newrelic.ConfigLicense(a.cfg.LicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return err
	}

	// Wait for connection (up to 5 seconds)
	if err := app.WaitForConnection(5 * time.Second); err != nil {
		util.Warnf("New Relic connection timeout: %v (will retry in background)", err)
	}

	a.mu.Lock()
	a.app = app
	a.mu.Unlock()

	util.Infof("New Relic APM enabled for app: %s", a.cfg.AppName)
	return nil
}

// Stop shuts down the New Relic agent
func (a *Agent) Stop() {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		util.Info("Shutting down New Relic agent")
		app.Shutdown(10 * time.Second)
	}
}

// StartTransaction starts a new New Relic transaction
func (a *Agent) StartTransaction(name string) *newrelic.Transaction {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app == nil {
		return nil
	}
	return app.StartTransaction(name)
}

// RecordCustomEvent records a custom event
func (a *Agent) RecordCustomEvent(eventType string, params map[string]interface{}) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomEvent(eventType, params)
	}
}

// RecordCustomMetric records a custom metric
func (a *Agent) RecordCustomMetric(name string, value float64) {
	a.mu.RLock()
	app := a.app
	a.mu.RUnlock()

	if app != nil {
		app.RecordCustomMetric(name, value)
	}
}

// NoticeError records an error
func (a *Agent) NoticeError(txn *newrelic.Transaction, err error) {
	if txn != nil && err != nil {
		txn.NoticeError(err)
	}
}

// NewContext adds transaction to context
func (a *Agent) NewContext(ctx context.Context, txn *newrelic.Transaction) context.Context {
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn)
}

// FromContext gets transaction from context
func (a *Agent) FromContext(ctx context.Context) *newrelic.Transaction {
	return newrelic.FromContext(ctx)
}

// ForGoroutine returns ctx carrying a goroutine-local handle of its
// transaction, or ctx unchanged when it has none
func (a *Agent) ForGoroutine(ctx context.Context) context.Context {
	txn := a.FromContext(ctx)
	if txn == nil {
		return ctx
	}
	return newrelic.NewContext(ctx, txn.NewGoroutine())
}

// RecordTick records one poll tick
func (a *Agent) RecordTick(took time.Duration, failedSources int) {
	a.RecordCustomMetric("Custom/Tick/DurationMs", float64(took.Milliseconds()))
	a.RecordCustomMetric("Custom/Tick/FailedSources", float64(failedSources))
}

// RecordSourceFailure records a failed fetch from one upstream source
func (a *Agent) RecordSourceFailure(source string, err error) {
	a.RecordCustomEvent("SourceFailure", map[string]interface{}{
		"source": source,
		"error":  err.Error(),
	})
}

// RecordPayout records a payout received by the wallet
func (a *Agent) RecordPayout(timestamp int64, amountXMR float64) {
	a.RecordCustomEvent("Payout", map[string]interface{}{
		"timestamp": timestamp,
		"amount":    amountXMR,
	})
}

// UpdateHashrateMetrics updates smoothed hashrate metrics
func (a *Agent) UpdateHashrateMetrics(own, pool, network float64) {
	a.RecordCustomMetric("Custom/Hashrate/Own", own)
	a.RecordCustomMetric("Custom/Hashrate/Pool", pool)
	a.RecordCustomMetric("Custom/Hashrate/Network", network)
}

// UpdateLuckMetrics updates luck and pool effort metrics
func (a *Agent) UpdateLuckMetrics(luck, effortCurrent, effortAverage float64) {
	a.RecordCustomMetric("Custom/Luck/Factor", luck)
	a.RecordCustomMetric("Custom/Effort/Current", effortCurrent)
	a.RecordCustomMetric("Custom/Effort/Average", effortAverage)
}
