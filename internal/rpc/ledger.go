package rpc

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/analytics"
)

// PoolInfo is the subset of the observer pool_info the dashboard reads
type PoolInfo struct {
	Sidechain struct {
		Height     uint64 `json:"height"`
		Difficulty uint64 `json:"difficulty"`
		Effort     struct {
			Current    float64 `json:"current"`
			Average10  float64 `json:"average10"`
			Average50  float64 `json:"average50"`
			Average200 float64 `json:"average200"`
		} `json:"effort"`
		Window struct {
			Blocks int    `json:"blocks"`
			Uncles int    `json:"uncles"`
			Weight uint64 `json:"weight"`
		} `json:"window"`
	} `json:"sidechain"`
}

// FoundBlock is one main chain block found by the pool
type FoundBlock struct {
	Timestamp int64 `json:"timestamp"`
	MainBlock struct {
		Height    uint64 `json:"height"`
		Timestamp int64  `json:"timestamp"`
		Reward    uint64 `json:"reward"`
	} `json:"main_block"`
}

// FoundAt returns the block timestamp, preferring the main chain header
func (b FoundBlock) FoundAt() int64 {
	if b.MainBlock.Timestamp > 0 {
		return b.MainBlock.Timestamp
	}
	return b.Timestamp
}

// LedgerClient queries a p2pool observer for one wallet
type LedgerClient struct {
	*endpoint
	baseURL string
	wallet  string
}

// NewLedgerClient creates an observer client. An empty base or wallet gives
// a disabled client whose calls return ErrLedgerDisabled.
func NewLedgerClient(baseURL, wallet string, timeout time.Duration) *LedgerClient {
	return &LedgerClient{
		endpoint: newEndpoint("ledger", timeout),
		baseURL:  strings.TrimRight(baseURL, "/"),
		wallet:   strings.TrimSpace(wallet),
	}
}

// Enabled reports whether a ledger is configured
func (c *LedgerClient) Enabled() bool {
	return c != nil && c.baseURL != "" && c.wallet != ""
}

// Base returns the observer base URL
func (c *LedgerClient) Base() string {
	return c.baseURL
}

// Wallet returns the queried wallet address
func (c *LedgerClient) Wallet() string {
	return c.wallet
}

// Payouts returns every payout to the wallet
func (c *LedgerClient) Payouts(ctx context.Context) ([]analytics.Payout, error) {
	if !c.Enabled() {
		return nil, ErrLedgerDisabled
	}

	var out []analytics.Payout
	u := fmt.Sprintf("%s/payouts/%s", c.baseURL, url.PathEscape(c.wallet))
	if err := c.getJSON(ctx, u, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MinerShares returns the wallet's most recent shares
func (c *LedgerClient) MinerShares(ctx context.Context, limit int) ([]analytics.Share, error) {
	if !c.Enabled() {
		return nil, ErrLedgerDisabled
	}

	q := url.Values{}
	q.Set("miner", c.wallet)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	return c.shares(ctx, q)
}

// PoolShares returns the newest pool-wide shares
func (c *LedgerClient) PoolShares(ctx context.Context, limit int) ([]analytics.Share, error) {
	if !c.Enabled() {
		return nil, ErrLedgerDisabled
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	return c.shares(ctx, q)
}

func (c *LedgerClient) shares(ctx context.Context, q url.Values) ([]analytics.Share, error) {
	var out []analytics.Share
	if err := c.getJSON(ctx, c.baseURL+"/shares?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// PoolInfo returns the sidechain summary including pool-wide effort
func (c *LedgerClient) PoolInfo(ctx context.Context) (*PoolInfo, error) {
	if !c.Enabled() {
		return nil, ErrLedgerDisabled
	}

	var out PoolInfo
	if err := c.getJSON(ctx, c.baseURL+"/pool_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LastFoundBlock returns the timestamp of the pool's most recent block, or
// 0 if it has found none
func (c *LedgerClient) LastFoundBlock(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, ErrLedgerDisabled
	}

	var out []FoundBlock
	if err := c.getJSON(ctx, c.baseURL+"/found_blocks?limit=1", nil, &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].FoundAt(), nil
}
