// Package storage provides persistence for the dashboard: the history blob,
// the last good report and the payout archive.
package storage

// TickStats holds poller counters
type TickStats struct {
	Total          int64 `json:"total"`
	Failed         int64 `json:"failed"`
	Skipped        int64 `json:"skipped"`
	LastTick       int64 `json:"lastTick"`
	LastSuccess    int64 `json:"lastSuccess"`
	LastDurationMs int64 `json:"lastDurationMs"`
}
