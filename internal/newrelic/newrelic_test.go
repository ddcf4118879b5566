package newrelic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/Tanguille/p2pool-dashboard/internal/config"
)

func TestNewAgent(t *testing.T) {
	cfg := &config.NewRelicConfig{
		Enabled:    true,
		AppName:    "p2pool-dashboard",
		LicenseKey: "test_key",
	}

	agent := NewAgent(cfg)

	if agent.cfg != cfg {
		t.Error("Agent.cfg not set correctly")
	}
	if agent.app != nil {
		t.Error("Agent.app should be nil before Start()")
	}
}

func TestStartWithoutApplication(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.NewRelicConfig
	}{
		{"disabled", config.NewRelicConfig{Enabled: false}},
		{"no license key", config.NewRelicConfig{Enabled: true, AppName: "p2pool-dashboard"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			agent := NewAgent(&cfg)

			if err := agent.Start(); err != nil {
				t.Errorf("Start() error = %v", err)
			}
			if txn := agent.StartTransaction("tick"); txn != nil {
				t.Error("StartTransaction() should return nil")
			}

			// Should not panic
			agent.Stop()
		})
	}
}

func TestContextHelpersNilTransaction(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{})
	ctx := context.Background()

	if got := agent.NewContext(ctx, nil); got != ctx {
		t.Error("NewContext should return original context when txn is nil")
	}
	if txn := agent.FromContext(ctx); txn != nil {
		t.Error("FromContext should return nil for empty context")
	}
	if got := agent.ForGoroutine(ctx); got != ctx {
		t.Error("ForGoroutine should return original context without a transaction")
	}

	// Should not panic with nil transaction
	agent.NoticeError(nil, errors.New("boom"))
}

func TestDomainRecordersNotStarted(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{})

	// None of these should panic without an application
	agent.RecordTick(1500*time.Millisecond, 2)
	agent.RecordSourceFailure("xmrig", errors.New("connection refused"))
	agent.RecordPayout(1700000000, 0.00123)
	agent.UpdateHashrateMetrics(1000, 1e6, 3e9)
	agent.UpdateLuckMetrics(1.2, 85, 100)
}

func TestConcurrentAccess(t *testing.T) {
	agent := NewAgent(&config.NewRelicConfig{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agent.StartTransaction("tick")
			agent.ForGoroutine(context.Background())
			agent.RecordCustomEvent("test", nil)
			agent.RecordCustomMetric("test", 1.0)
		}()
	}
	wg.Wait()
}

func TestForGoroutineCopiesTransaction(t *testing.T) {
	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName("p2pool-dashboard-test"),
		newrelic.ConfigEnabled(false),
	)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	txn := app.StartTransaction("tick")
	defer txn.End()

	agent := NewAgent(&config.NewRelicConfig{})
	ctx := agent.NewContext(context.Background(), txn)

	got := agent.FromContext(agent.ForGoroutine(ctx))
	if got == nil {
		t.Fatal("ForGoroutine lost the transaction")
	}
	if got == txn {
		t.Error("ForGoroutine should hand out a goroutine-local transaction")
	}
}
