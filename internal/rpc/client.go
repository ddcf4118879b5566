// Package rpc provides the HTTP clients for the p2pool node, the local
// miner, monerod, the payout ledger and fiat price sources.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/newrelic/go-agent/v3/newrelic"

	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

// Errors shared by every client
var (
	ErrHTTPStatus     = errors.New("unexpected http status")
	ErrLedgerDisabled = errors.New("ledger not configured")
)

// unhealthyAfter is the number of consecutive failures before a source is
// reported unhealthy
const unhealthyAfter = 3

// endpoint is the shared HTTP plumbing and health tracking of a source
type endpoint struct {
	name   string
	client *http.Client

	mu           sync.RWMutex
	healthy      bool
	lastCheck    time.Time
	successCount int
	failCount    int
}

func newEndpoint(name string, timeout time.Duration) *endpoint {
	return &endpoint{
		name:    name,
		client:  &http.Client{Timeout: timeout},
		healthy: true,
	}
}

// getJSON fetches url and decodes the body into out
func (e *endpoint) getJSON(ctx context.Context, url string, header http.Header, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}

	body, err := e.do(req)
	if err != nil {
		return err
	}

	if err := sonic.Unmarshal(body, out); err != nil {
		e.recordFailure()
		return fmt.Errorf("%s: decode %s: %w", e.name, url, err)
	}
	e.recordSuccess()
	return nil
}

// do executes req and returns the body of a 2xx response. A New Relic
// transaction in the request context gets an external segment.
func (e *endpoint) do(req *http.Request) ([]byte, error) {
	var seg *newrelic.ExternalSegment
	if txn := newrelic.FromContext(req.Context()); txn != nil {
		seg = newrelic.StartExternalSegment(txn, req)
	}
	resp, err := e.client.Do(req)
	if seg != nil {
		seg.Response = resp
		seg.End()
	}
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("%s: %w", e.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		e.recordFailure()
		return nil, fmt.Errorf("%s: read body: %w", e.name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e.recordFailure()
		return nil, fmt.Errorf("%s: %w: %s", e.name, ErrHTTPStatus, resp.Status)
	}
	return body, nil
}

// recordSuccess records a successful call
func (e *endpoint) recordSuccess() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successCount++
	e.failCount = 0
	e.healthy = true
	e.lastCheck = time.Now()
}

// recordFailure records a failed call
func (e *endpoint) recordFailure() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failCount++
	if e.failCount >= unhealthyAfter && e.healthy {
		e.healthy = false
		util.Warnf("%s marked unhealthy after %d failures", e.name, e.failCount)
	}
	e.lastCheck = time.Now()
}

// IsHealthy returns whether the source answered recently
func (e *endpoint) IsHealthy() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.healthy
}

// Health is a point-in-time view of a source's health
type Health struct {
	Name         string    `json:"name"`
	Healthy      bool      `json:"healthy"`
	LastCheck    time.Time `json:"last_check"`
	SuccessCount int       `json:"success_count"`
	FailCount    int       `json:"fail_count"`
}

// Health returns the current health counters
func (e *endpoint) Health() Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Health{
		Name:         e.name,
		Healthy:      e.healthy,
		LastCheck:    e.lastCheck,
		SuccessCount: e.successCount,
		FailCount:    e.failCount,
	}
}
