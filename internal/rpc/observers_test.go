package rpc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/pplns"
)

func TestNewObserverManager(t *testing.T) {
	cfg := &config.LedgerConfig{
		Wallet:    testWallet,
		Observers: []string{"https://mini.p2pool.observer/api/", "https://p2pool.observer/api", ""},
	}

	mgr := NewObserverManager(context.Background(), cfg, time.Second)
	if !mgr.Enabled() {
		t.Fatal("manager should be enabled")
	}

	states := mgr.States()
	if len(states) != 2 {
		t.Fatalf("Expected 2 observers (blank skipped), got %d", len(states))
	}
	if states[0].Name != "mini.p2pool.observer" {
		t.Errorf("Expected name to be the host, got %q", states[0].Name)
	}
	if states[0].URL != "https://mini.p2pool.observer/api" {
		t.Errorf("Expected trailing slash trimmed, got %q", states[0].URL)
	}
	if !states[0].Active || states[1].Active {
		t.Error("Expected the first observer to be active")
	}
	if mgr.HealthyCount() != 2 {
		t.Errorf("Expected 2 healthy observers, got %d", mgr.HealthyCount())
	}
}

func TestNewObserverManagerInvalidWallet(t *testing.T) {
	cfg := &config.LedgerConfig{
		Wallet:    "not-a-wallet",
		Observers: []string{"https://p2pool.observer/api"},
	}

	mgr := NewObserverManager(context.Background(), cfg, time.Second)
	if !mgr.Enabled() {
		t.Error("an invalid-looking wallet should only warn")
	}
	if mgr.Wallet() != "not-a-wallet" {
		t.Errorf("Wallet() = %s", mgr.Wallet())
	}
}

func TestObserverManagerDisabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.LedgerConfig
	}{
		{"no wallet", &config.LedgerConfig{Observers: []string{"https://p2pool.observer/api"}}},
		{"no observers", &config.LedgerConfig{Wallet: testWallet}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr := NewObserverManager(context.Background(), tt.cfg, time.Second)
			if mgr.Enabled() {
				t.Error("manager should be disabled")
			}
			session := mgr.Session()
			if session.Base() != "" {
				t.Errorf("session base = %q, want empty", session.Base())
			}
			if _, err := session.Payouts(context.Background()); !errors.Is(err, ErrLedgerDisabled) {
				t.Errorf("Payouts() error = %v, want ErrLedgerDisabled", err)
			}
		})
	}
}

func TestObserverManagerRecordFailure(t *testing.T) {
	cfg := &config.LedgerConfig{
		Wallet:      testWallet,
		Observers:   []string{"http://primary", "http://backup"},
		MaxFailures: 2,
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)

	mgr.RecordFailure()
	if got := mgr.Session().Base(); got != "http://primary" {
		t.Errorf("Expected primary still active after 1 failure, got %s", got)
	}

	mgr.RecordFailure()
	if got := mgr.Session().Base(); got != "http://backup" {
		t.Errorf("Expected failover to backup, got %s", got)
	}

	states := mgr.States()
	if states[0].Healthy {
		t.Error("Expected primary to be unhealthy")
	}
	if states[0].SuccessCount != 0 || states[0].FailCount != 2 {
		t.Errorf("primary counters = %d/%d", states[0].SuccessCount, states[0].FailCount)
	}

	mgr.RecordSuccess()
	if !mgr.States()[1].Healthy {
		t.Error("Expected backup to be healthy")
	}
}

func TestSessionStaysOnOneObserver(t *testing.T) {
	var primaryHits, backupHits int32
	primary := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&primaryHits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})
	backup := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&backupHits, 1)
		w.Write([]byte(`[{"timestamp":100,"coinbase_reward":5}]`))
	})

	cfg := &config.LedgerConfig{
		Wallet:      testWallet,
		Observers:   []string{primary.URL, backup.URL},
		MaxFailures: 2,
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)

	session := mgr.Session()
	for i := 0; i < 3; i++ {
		if _, err := session.Payouts(context.Background()); !errors.Is(err, ErrHTTPStatus) {
			t.Fatalf("call %d error = %v, want ErrHTTPStatus", i, err)
		}
	}
	if n := atomic.LoadInt32(&backupHits); n != 0 {
		t.Errorf("backup hit %d times from a session pinned to primary", n)
	}
	if session.Base() != primary.URL {
		t.Errorf("session base = %s, want primary", session.Base())
	}

	next := mgr.Session()
	if next.Base() != backup.URL {
		t.Fatalf("next session base = %s, want backup after %d failures", next.Base(), cfg.MaxFailures)
	}
	payouts, err := next.Payouts(context.Background())
	if err != nil || len(payouts) != 1 {
		t.Errorf("Payouts() = %+v, %v", payouts, err)
	}
	if n := atomic.LoadInt32(&primaryHits); n != 3 {
		t.Errorf("primary hits = %d, want 3", n)
	}
}

func TestSessionWindowFromOneSidechain(t *testing.T) {
	var mainCalls int32
	mainChain := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&mainCalls, 1) == 1 {
			w.Write([]byte(`[{"timestamp":100,"difficulty":30,"window_depth":3}]`))
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	})
	var miniHits int32
	miniChain := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&miniHits, 1)
		w.Write([]byte(`[{"timestamp":99,"difficulty":5,"window_depth":2160},{"timestamp":98,"difficulty":5},{"timestamp":97,"difficulty":5}]`))
	})

	cfg := &config.LedgerConfig{
		Wallet:      testWallet,
		Observers:   []string{mainChain.URL, miniChain.URL},
		MaxFailures: 1,
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)

	w, err := pplns.NewReconstructor(0).Reconstruct(context.Background(), mgr.Session())
	if !errors.Is(err, ErrHTTPStatus) {
		t.Fatalf("Reconstruct() error = %v, want the window fetch failure", err)
	}
	if !w.Degraded {
		t.Errorf("window = %+v, want degraded", w)
	}
	if n := atomic.LoadInt32(&miniHits); n != 0 {
		t.Errorf("other sidechain queried %d times during one reconstruction", n)
	}
	if got := mgr.Session().Base(); got != miniChain.URL {
		t.Errorf("next session base = %s, want failover between reconstructions", got)
	}
}

func TestObserverManagerAllFail(t *testing.T) {
	down := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	cfg := &config.LedgerConfig{Wallet: testWallet, Observers: []string{down.URL}}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)

	if _, err := mgr.Session().PoolInfo(context.Background()); !errors.Is(err, ErrHTTPStatus) {
		t.Errorf("PoolInfo() error = %v, want ErrHTTPStatus", err)
	}
}

func TestObserverManagerHealthCheck(t *testing.T) {
	healthy := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"sidechain":{"height":777}}`))
	})
	down := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	cfg := &config.LedgerConfig{
		Wallet:      testWallet,
		Observers:   []string{down.URL, healthy.URL},
		MaxFailures: 1,
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)
	mgr.checkAll()

	states := mgr.States()
	if states[0].Healthy {
		t.Error("Expected failing observer to be unhealthy")
	}
	if !states[1].Healthy || states[1].Height != 777 {
		t.Errorf("healthy observer state = %+v", states[1])
	}
	if got := mgr.Session().Base(); got != healthy.URL {
		t.Errorf("Expected healthy observer to be active, got %s", got)
	}
}

func TestObserverManagerConcurrentAccess(t *testing.T) {
	cfg := &config.LedgerConfig{
		Wallet:    testWallet,
		Observers: []string{"http://a", "http://b"},
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				mgr.RecordSuccess()
			} else {
				mgr.RecordFailure()
			}
			_ = mgr.States()
			_ = mgr.Session()
		}(i)
	}
	wg.Wait()
}

func TestObserverManagerStop(t *testing.T) {
	srv := mockObserver(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	cfg := &config.LedgerConfig{
		Wallet:              testWallet,
		Observers:           []string{srv.URL},
		HealthCheckInterval: 10 * time.Millisecond,
	}
	mgr := NewObserverManager(context.Background(), cfg, time.Second)
	mgr.Start()

	done := make(chan struct{})
	go func() {
		mgr.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}
