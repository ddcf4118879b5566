package rpc

import (
	"context"
	"net/http"
	"time"
)

// XMRigSummary is the subset of the xmrig HTTP API summary the dashboard reads
type XMRigSummary struct {
	WorkerID string `json:"worker_id"`
	Uptime   int64  `json:"uptime"`
	Hashrate struct {
		// Total holds the 10s, 60s and 15m averages; entries may be null
		Total   []float64 `json:"total"`
		Highest float64   `json:"highest"`
	} `json:"hashrate"`
}

// Current returns the shortest non-zero hashrate average
func (s *XMRigSummary) Current() float64 {
	for _, v := range s.Hashrate.Total {
		if v > 0 {
			return v
		}
	}
	return 0
}

// XMRigClient reads the xmrig summary endpoint
type XMRigClient struct {
	*endpoint
	url   string
	token string
}

// NewXMRigClient creates a client for an xmrig summary URL. token is sent as
// a bearer token when set.
func NewXMRigClient(url, token string, timeout time.Duration) *XMRigClient {
	return &XMRigClient{
		endpoint: newEndpoint("xmrig", timeout),
		url:      url,
		token:    token,
	}
}

// Summary returns the miner summary
func (c *XMRigClient) Summary(ctx context.Context) (*XMRigSummary, error) {
	var header http.Header
	if c.token != "" {
		header = http.Header{"Authorization": []string{"Bearer " + c.token}}
	}

	var out XMRigSummary
	if err := c.getJSON(ctx, c.url, header, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
