package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

const (
	keyPrefix = "p2pool-dash:"

	// Key patterns
	keyHistory        = keyPrefix + "history"
	keyReport         = keyPrefix + "report:last"
	keyPayouts        = keyPrefix + "payouts:%s"
	keyNotifiedPayout = keyPrefix + "payouts:%s:notified"
	keyTicks          = keyPrefix + "ticks"
	keyTickLock       = keyPrefix + "tick:lock"
)

// RedisClient wraps Redis operations for the dashboard
type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisClient creates a new Redis client
func NewRedisClient(url, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	util.Info("Connected to Redis at ", url)
	return &RedisClient{client: client, ctx: ctx}, nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Load returns the persisted history blob, or nil when none is stored.
func (r *RedisClient) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, keyHistory).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the persisted history blob.
func (r *RedisClient) Save(ctx context.Context, blob []byte) error {
	return r.client.Set(ctx, keyHistory, blob, 0).Err()
}

// SetLastReport caches the most recent report so restarts show last good values
func (r *RedisClient) SetLastReport(data []byte, ttl time.Duration) error {
	return r.client.Set(r.ctx, keyReport, data, ttl).Err()
}

// GetLastReport returns the cached report, or nil if it expired or was never set
func (r *RedisClient) GetLastReport() ([]byte, error) {
	data, err := r.client.Get(r.ctx, keyReport).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return data, err
}

// RecordPayouts archives payouts for a wallet and returns the ones not seen before.
// Members are "timestamp:reward" scored by timestamp, so re-recording is a no-op.
func (r *RedisClient) RecordPayouts(wallet string, payouts []analytics.Payout) ([]analytics.Payout, error) {
	if len(payouts) == 0 {
		return nil, nil
	}

	key := fmt.Sprintf(keyPayouts, wallet)
	pipe := r.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(payouts))
	for i, p := range payouts {
		cmds[i] = pipe.ZAddNX(r.ctx, key, &redis.Z{
			Score:  float64(p.Timestamp),
			Member: payoutMember(p),
		})
	}
	if _, err := pipe.Exec(r.ctx); err != nil {
		return nil, err
	}

	var added []analytics.Payout
	for i, cmd := range cmds {
		if cmd.Val() > 0 {
			added = append(added, payouts[i])
		}
	}
	return added, nil
}

// GetPayouts returns archived payouts for a wallet, newest first
func (r *RedisClient) GetPayouts(wallet string, limit int64) ([]analytics.Payout, error) {
	key := fmt.Sprintf(keyPayouts, wallet)
	results, err := r.client.ZRevRange(r.ctx, key, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}

	payouts := make([]analytics.Payout, 0, len(results))
	for _, result := range results {
		if p, ok := parsePayoutMember(result); ok {
			payouts = append(payouts, p)
		}
	}
	return payouts, nil
}

// LastNotifiedPayout returns the timestamp of the newest payout already announced
func (r *RedisClient) LastNotifiedPayout(wallet string) (int64, error) {
	v, err := r.client.Get(r.ctx, fmt.Sprintf(keyNotifiedPayout, wallet)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return v, err
}

// SetLastNotifiedPayout records the newest announced payout timestamp
func (r *RedisClient) SetLastNotifiedPayout(wallet string, ts int64) error {
	return r.client.Set(r.ctx, fmt.Sprintf(keyNotifiedPayout, wallet), ts, 0).Err()
}

// RecordTick updates tick counters
func (r *RedisClient) RecordTick(ok bool, took time.Duration, at time.Time) error {
	pipe := r.client.Pipeline()
	pipe.HIncrBy(r.ctx, keyTicks, "total", 1)
	if ok {
		pipe.HSet(r.ctx, keyTicks, "lastSuccess", at.Unix())
	} else {
		pipe.HIncrBy(r.ctx, keyTicks, "failed", 1)
	}
	pipe.HSet(r.ctx, keyTicks, "lastTick", at.Unix())
	pipe.HSet(r.ctx, keyTicks, "lastDurationMs", took.Milliseconds())
	_, err := pipe.Exec(r.ctx)
	return err
}

// RecordSkippedTick counts a tick dropped because the previous one was still running
func (r *RedisClient) RecordSkippedTick() error {
	return r.client.HIncrBy(r.ctx, keyTicks, "skipped", 1).Err()
}

// GetTickStats returns tick counters
func (r *RedisClient) GetTickStats() (*TickStats, error) {
	data, err := r.client.HGetAll(r.ctx, keyTicks).Result()
	if err != nil {
		return nil, err
	}

	stats := &TickStats{}
	if v, ok := data["total"]; ok {
		stats.Total, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["failed"]; ok {
		stats.Failed, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["skipped"]; ok {
		stats.Skipped, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["lastTick"]; ok {
		stats.LastTick, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["lastSuccess"]; ok {
		stats.LastSuccess, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := data["lastDurationMs"]; ok {
		stats.LastDurationMs, _ = strconv.ParseInt(v, 10, 64)
	}

	return stats, nil
}

// LockTicks acquires the poller lock so only one dashboard instance polls
// against a shared Redis
func (r *RedisClient) LockTicks(lockID string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(r.ctx, keyTickLock, lockID, ttl).Result()
	if err != nil || ok {
		return ok, err
	}

	// Refresh our own lock
	current, err := r.client.Get(r.ctx, keyTickLock).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if current == lockID {
		return true, r.client.Expire(r.ctx, keyTickLock, ttl).Err()
	}
	return false, nil
}

// UnlockTicks releases the poller lock
func (r *RedisClient) UnlockTicks(lockID string) error {
	// Only unlock if we own the lock
	current, err := r.client.Get(r.ctx, keyTickLock).Result()
	if err != nil {
		if err == redis.Nil {
			return nil
		}
		return err
	}
	if current == lockID {
		return r.client.Del(r.ctx, keyTickLock).Err()
	}
	return nil
}

func payoutMember(p analytics.Payout) string {
	return fmt.Sprintf("%d:%d", p.Timestamp, p.CoinbaseReward)
}

func parsePayoutMember(s string) (analytics.Payout, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return analytics.Payout{}, false
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return analytics.Payout{}, false
	}
	reward, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return analytics.Payout{}, false
	}
	return analytics.Payout{Timestamp: ts, CoinbaseReward: reward}, true
}
