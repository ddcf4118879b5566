package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
)

const testWallet = "4AdUndXHHZ6cfufTMvppY6JwXNouMBzSkbLYfpAV5Usx3skxNgYeYTRj5UzqtReoS44qo9mtmXCqY45DJ852K5Jv2684Rge"

func setupTestRedis(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := NewRedisClient(mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestNewRedisClientUnreachable(t *testing.T) {
	if _, err := NewRedisClient("127.0.0.1:1", "", 0); err == nil {
		t.Error("NewRedisClient() should fail for an unreachable server")
	}
}

func TestHistoryBlob(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	data, err := client.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if data != nil {
		t.Errorf("Load() on empty redis = %q, want nil", data)
	}

	if err := client.Save(ctx, []byte(`{"version":1}`)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err = client.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(data) != `{"version":1}` {
		t.Errorf("Load() = %q", data)
	}
}

func TestLastReportTTL(t *testing.T) {
	client, mr := setupTestRedis(t)

	if err := client.SetLastReport([]byte(`{"ok":true}`), time.Minute); err != nil {
		t.Fatalf("SetLastReport() error = %v", err)
	}

	data, err := client.GetLastReport()
	if err != nil {
		t.Fatalf("GetLastReport() error = %v", err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("GetLastReport() = %q", data)
	}

	mr.FastForward(2 * time.Minute)

	data, err = client.GetLastReport()
	if err != nil {
		t.Fatalf("GetLastReport() after expiry error = %v", err)
	}
	if data != nil {
		t.Errorf("GetLastReport() after expiry = %q, want nil", data)
	}
}

func TestRecordPayouts(t *testing.T) {
	client, _ := setupTestRedis(t)

	first := []analytics.Payout{
		{Timestamp: 1000, CoinbaseReward: 1_000_000_000},
		{Timestamp: 2000, CoinbaseReward: 2_000_000_000},
	}
	added, err := client.RecordPayouts(testWallet, first)
	if err != nil {
		t.Fatalf("RecordPayouts() error = %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("RecordPayouts() added %d, want 2", len(added))
	}

	second := append(first, analytics.Payout{Timestamp: 3000, CoinbaseReward: 3_000_000_000})
	added, err = client.RecordPayouts(testWallet, second)
	if err != nil {
		t.Fatalf("RecordPayouts() error = %v", err)
	}
	if len(added) != 1 || added[0].Timestamp != 3000 {
		t.Errorf("RecordPayouts() added = %+v, want only ts 3000", added)
	}

	got, err := client.GetPayouts(testWallet, 10)
	if err != nil {
		t.Fatalf("GetPayouts() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetPayouts() len = %d, want 3", len(got))
	}
	if got[0].Timestamp != 3000 || got[2].Timestamp != 1000 {
		t.Errorf("GetPayouts() not newest first: %+v", got)
	}
	if got[1].CoinbaseReward != 2_000_000_000 {
		t.Errorf("GetPayouts()[1].CoinbaseReward = %d", got[1].CoinbaseReward)
	}

	limited, err := client.GetPayouts(testWallet, 1)
	if err != nil {
		t.Fatalf("GetPayouts() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("GetPayouts(limit 1) len = %d", len(limited))
	}
}

func TestRecordPayoutsEmpty(t *testing.T) {
	client, _ := setupTestRedis(t)

	added, err := client.RecordPayouts(testWallet, nil)
	if err != nil || added != nil {
		t.Errorf("RecordPayouts(nil) = %v, %v", added, err)
	}
}

func TestLastNotifiedPayout(t *testing.T) {
	client, _ := setupTestRedis(t)

	ts, err := client.LastNotifiedPayout(testWallet)
	if err != nil || ts != 0 {
		t.Fatalf("LastNotifiedPayout() = %d, %v; want 0, nil", ts, err)
	}

	if err := client.SetLastNotifiedPayout(testWallet, 1700000000); err != nil {
		t.Fatalf("SetLastNotifiedPayout() error = %v", err)
	}

	ts, err = client.LastNotifiedPayout(testWallet)
	if err != nil || ts != 1700000000 {
		t.Errorf("LastNotifiedPayout() = %d, %v", ts, err)
	}
}

func TestTickStats(t *testing.T) {
	client, _ := setupTestRedis(t)
	at := time.Unix(1700000000, 0)

	if err := client.RecordTick(true, 250*time.Millisecond, at); err != nil {
		t.Fatalf("RecordTick() error = %v", err)
	}
	if err := client.RecordTick(false, 3*time.Second, at.Add(10*time.Second)); err != nil {
		t.Fatalf("RecordTick() error = %v", err)
	}
	if err := client.RecordSkippedTick(); err != nil {
		t.Fatalf("RecordSkippedTick() error = %v", err)
	}

	stats, err := client.GetTickStats()
	if err != nil {
		t.Fatalf("GetTickStats() error = %v", err)
	}

	tests := []struct {
		name string
		got  int64
		want int64
	}{
		{"total", stats.Total, 2},
		{"failed", stats.Failed, 1},
		{"skipped", stats.Skipped, 1},
		{"lastTick", stats.LastTick, 1700000010},
		{"lastSuccess", stats.LastSuccess, 1700000000},
		{"lastDurationMs", stats.LastDurationMs, 3000},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("TickStats.%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestTickLock(t *testing.T) {
	client, mr := setupTestRedis(t)

	ok, err := client.LockTicks("a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("LockTicks(a) = %v, %v", ok, err)
	}

	ok, err = client.LockTicks("b", time.Minute)
	if err != nil || ok {
		t.Errorf("LockTicks(b) while held = %v, %v; want false", ok, err)
	}

	// Holder refreshes its own lock
	ok, err = client.LockTicks("a", time.Minute)
	if err != nil || !ok {
		t.Errorf("LockTicks(a) refresh = %v, %v", ok, err)
	}

	if err := client.UnlockTicks("b"); err != nil {
		t.Fatalf("UnlockTicks(b) error = %v", err)
	}
	if !mr.Exists(keyTickLock) {
		t.Error("UnlockTicks by non-owner should not release the lock")
	}

	if err := client.UnlockTicks("a"); err != nil {
		t.Fatalf("UnlockTicks(a) error = %v", err)
	}
	if mr.Exists(keyTickLock) {
		t.Error("UnlockTicks by owner should release the lock")
	}

	if err := client.UnlockTicks("a"); err != nil {
		t.Errorf("UnlockTicks() on missing lock error = %v", err)
	}
}

func TestPayoutMember(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"1000:5", true},
		{"1000", false},
		{"x:5", false},
		{"1000:-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, ok := parsePayoutMember(tt.in)
			if ok != tt.ok {
				t.Errorf("parsePayoutMember(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
		})
	}

	p := analytics.Payout{Timestamp: 42, CoinbaseReward: 7}
	got, ok := parsePayoutMember(payoutMember(p))
	if !ok || got != p {
		t.Errorf("payoutMember round trip = %+v, %v", got, ok)
	}
}
