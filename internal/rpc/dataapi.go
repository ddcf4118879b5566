package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// StratumStats is the p2pool local stratum summary
type StratumStats struct {
	Hashrate1m              float64  `json:"hashrate_1m"`
	Hashrate15m             float64  `json:"hashrate_15m"`
	Hashrate24h             float64  `json:"hashrate_24h"`
	SharesFound             uint64   `json:"shares_found"`
	SharesFailed            uint64   `json:"shares_failed"`
	Connections             int      `json:"connections"`
	Workers                 []string `json:"workers"`
	BlockRewardSharePercent float64  `json:"block_reward_share_percent"`
	CurrentEffort           float64  `json:"current_effort"`
	LastShareFoundTime      int64    `json:"last_share_found_time"`
}

// ParsedWorkers decodes the CSV worker entries, skipping malformed ones
func (s *StratumStats) ParsedWorkers() []Worker {
	workers := make([]Worker, 0, len(s.Workers))
	for _, raw := range s.Workers {
		w, err := ParseWorker(raw)
		if err != nil {
			util.Debugf("Skipping worker entry %q: %v", raw, err)
			continue
		}
		workers = append(workers, w)
	}
	return workers
}

// PoolStatistics is the sidechain summary inside pool stats
type PoolStatistics struct {
	HashRate            float64 `json:"hashRate"`
	Miners              int     `json:"miners"`
	TotalHashes         uint64  `json:"totalHashes"`
	LastBlockFoundTime  int64   `json:"lastBlockFoundTime"`
	LastBlockFound      uint64  `json:"lastBlockFound"`
	TotalBlocksFound    uint64  `json:"totalBlocksFound"`
	PPLNSWeight         uint64  `json:"pplnsWeight"`
	PPLNSWindowSize     int     `json:"pplnsWindowSize"`
	SidechainDifficulty uint64  `json:"sidechainDifficulty"`
	SidechainHeight     uint64  `json:"sidechainHeight"`
}

// PoolStats is the p2pool pool stats document
type PoolStats struct {
	PoolList       []string       `json:"pool_list"`
	PoolStatistics PoolStatistics `json:"pool_statistics"`
}

// NetworkStats is the p2pool network stats document. Reward is in atomic units.
type NetworkStats struct {
	Difficulty uint64 `json:"difficulty"`
	Hash       string `json:"hash"`
	Height     uint64 `json:"height"`
	Reward     uint64 `json:"reward"`
	Timestamp  int64  `json:"timestamp"`
}

// StatsMod is the p2pool stats_mod document
type StatsMod struct {
	Config struct {
		Ports []struct {
			Port int  `json:"port"`
			TLS  bool `json:"tls"`
		} `json:"ports"`
		Fee                 float64 `json:"fee"`
		MinPaymentThreshold uint64  `json:"minPaymentThreshold"`
	} `json:"config"`
}

// DataAPIClient reads the JSON files p2pool writes to its --data-api directory
type DataAPIClient struct {
	*endpoint
	baseURL string
}

// NewDataAPIClient creates a client for a data-api base URL
func NewDataAPIClient(baseURL string, timeout time.Duration) *DataAPIClient {
	return &DataAPIClient{
		endpoint: newEndpoint("p2pool data-api", timeout),
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

// Stratum returns the local stratum summary
func (c *DataAPIClient) Stratum(ctx context.Context) (*StratumStats, error) {
	var out StratumStats
	if err := c.getJSON(ctx, c.baseURL+"/local/stratum", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PoolStats returns the sidechain pool statistics
func (c *DataAPIClient) PoolStats(ctx context.Context) (*PoolStats, error) {
	var out PoolStats
	if err := c.getJSON(ctx, c.baseURL+"/pool/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NetworkStats returns main chain difficulty and reward
func (c *DataAPIClient) NetworkStats(ctx context.Context) (*NetworkStats, error) {
	var out NetworkStats
	if err := c.getJSON(ctx, c.baseURL+"/network/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MinPaymentThreshold returns the payout threshold in XMR from stats_mod.
// fallback is returned when the node does not report one.
func (c *DataAPIClient) MinPaymentThreshold(ctx context.Context, fallback float64) (float64, error) {
	var out StatsMod
	if err := c.getJSON(ctx, c.baseURL+"/stats_mod", nil, &out); err != nil {
		return fallback, err
	}
	if out.Config.MinPaymentThreshold == 0 {
		return fallback, nil
	}
	return util.AtomicToCoin(out.Config.MinPaymentThreshold), nil
}
