package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// MonerodClient talks to a monerod JSON-RPC endpoint
type MonerodClient struct {
	*endpoint
	url       string
	timeout   time.Duration
	requestID uint64
}

// NewMonerodClient creates a monerod client for a json_rpc URL
func NewMonerodClient(url string, timeout time.Duration) *MonerodClient {
	return &MonerodClient{
		endpoint: newEndpoint("monerod", timeout),
		url:      url,
		timeout:  timeout,
	}
}

// RPCRequest represents a JSON-RPC request
type RPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCResponse represents a JSON-RPC response
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// DaemonInfo is the subset of get_info the dashboard reads
type DaemonInfo struct {
	Height       uint64 `json:"height"`
	Difficulty   uint64 `json:"difficulty"`
	Target       uint64 `json:"target"`
	Synchronized bool   `json:"synchronized"`
	Status       string `json:"status"`
}

// BlockHeader is the subset of a block header the dashboard reads
type BlockHeader struct {
	Height     uint64 `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	Difficulty uint64 `json:"difficulty"`
	Reward     uint64 `json:"reward"`
}

// call makes an RPC call
func (c *MonerodClient) call(ctx context.Context, method string, params interface{}) ([]byte, error) {
	id := atomic.AddUint64(&c.requestID, 1)

	body, err := sonic.Marshal(RPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var rpcResp RPCResponse
	if err := sonic.Unmarshal(respBody, &rpcResp); err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("monerod: decode %s: %w", method, err)
	}

	if rpcResp.Error != nil {
		c.recordFailure()
		return nil, rpcResp.Error
	}

	c.recordSuccess()
	return rpcResp.Result, nil
}

// GetInfo returns the daemon's chain state
func (c *MonerodClient) GetInfo(ctx context.Context) (*DaemonInfo, error) {
	result, err := c.call(ctx, "get_info", nil)
	if err != nil {
		return nil, err
	}

	var info DaemonInfo
	if err := sonic.Unmarshal(result, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetLastBlockHeader returns the header of the chain tip
func (c *MonerodClient) GetLastBlockHeader(ctx context.Context) (*BlockHeader, error) {
	result, err := c.call(ctx, "get_last_block_header", nil)
	if err != nil {
		return nil, err
	}

	node, err := sonic.Get(result, "block_header")
	if err != nil {
		return nil, fmt.Errorf("monerod: block_header missing: %w", err)
	}
	return decodeHeader(node)
}

func decodeHeader(node ast.Node) (*BlockHeader, error) {
	raw, err := node.Raw()
	if err != nil {
		return nil, err
	}
	var hdr BlockHeader
	if err := sonic.UnmarshalString(raw, &hdr); err != nil {
		return nil, err
	}
	return &hdr, nil
}

// NetworkStats adapts get_info and the tip header to the data-api network
// stats layout
func (c *MonerodClient) NetworkStats(ctx context.Context) (*NetworkStats, error) {
	info, err := c.GetInfo(ctx)
	if err != nil {
		return nil, err
	}

	stats := &NetworkStats{
		Difficulty: info.Difficulty,
		Height:     info.Height,
	}
	if hdr, err := c.GetLastBlockHeader(ctx); err == nil {
		stats.Reward = hdr.Reward
		stats.Timestamp = hdr.Timestamp
	}
	return stats, nil
}
