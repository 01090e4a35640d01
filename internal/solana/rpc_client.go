package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"solana-stakepool-lab/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements RPCClient using HTTP JSON-RPC 2.0.
type HTTPClient struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new Solana RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface check.
var _ RPCClient = (*HTTPClient)(nil)

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) (err error) {
	started := time.Now()
	defer func() {
		observability.DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(time.Since(started).Seconds())
		if err != nil {
			observability.DefaultMetrics.RPCCallErrors.WithLabelValues(method).Inc()
		}
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// rawAccount is the wire shape of one account value.
type rawAccount struct {
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

func (r *rawAccount) decode() (*AccountInfo, error) {
	info := &AccountInfo{
		Lamports:   r.Lamports,
		Owner:      r.Owner,
		Executable: r.Executable,
		RentEpoch:  r.RentEpoch,
	}
	if len(r.Data) >= 1 && r.Data[0] != "" {
		data, err := base64.StdEncoding.DecodeString(r.Data[0])
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		info.Data = data
	}
	return info, nil
}

// GetAccountInfo retrieves account info by public key.
// Returns nil if account not found.
func (c *HTTPClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	params := []interface{}{
		pubkey,
		map[string]interface{}{
			"encoding": "base64",
		},
	}

	var result struct {
		Value *rawAccount `json:"value"`
	}
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, nil
	}
	return result.Value.decode()
}

// GetMultipleAccounts retrieves up to 100 accounts per request, preserving
// input order.
func (c *HTTPClient) GetMultipleAccounts(ctx context.Context, pubkeys []string) ([]*AccountInfo, error) {
	const batchSize = 100

	accounts := make([]*AccountInfo, 0, len(pubkeys))
	for start := 0; start < len(pubkeys); start += batchSize {
		end := start + batchSize
		if end > len(pubkeys) {
			end = len(pubkeys)
		}

		params := []interface{}{
			pubkeys[start:end],
			map[string]interface{}{
				"encoding": "base64",
			},
		}

		var result struct {
			Value []*rawAccount `json:"value"`
		}
		if err := c.call(ctx, "getMultipleAccounts", params, &result); err != nil {
			return nil, err
		}

		for _, raw := range result.Value {
			if raw == nil {
				accounts = append(accounts, nil)
				continue
			}
			info, err := raw.decode()
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, info)
		}
	}

	return accounts, nil
}

// GetProgramAccounts retrieves all accounts owned by a program. dataLen > 0
// adds a dataSize filter so the node prunes the scan server-side.
func (c *HTTPClient) GetProgramAccounts(ctx context.Context, programID string, dataLen int) ([]KeyedAccountInfo, error) {
	config := map[string]interface{}{
		"encoding": "base64",
	}
	if dataLen > 0 {
		config["filters"] = []interface{}{
			map[string]interface{}{"dataSize": dataLen},
		}
	}
	params := []interface{}{programID, config}

	var result []struct {
		Pubkey  string     `json:"pubkey"`
		Account rawAccount `json:"account"`
	}
	if err := c.call(ctx, "getProgramAccounts", params, &result); err != nil {
		return nil, err
	}

	accounts := make([]KeyedAccountInfo, 0, len(result))
	for _, r := range result {
		info, err := r.Account.decode()
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", r.Pubkey, err)
		}
		accounts = append(accounts, KeyedAccountInfo{Pubkey: r.Pubkey, Account: *info})
	}
	return accounts, nil
}

// GetInflationReward retrieves the epoch rewards for the addresses, aligned
// with input order. Nil entries mean the address earned nothing.
func (c *HTTPClient) GetInflationReward(ctx context.Context, epoch uint64, addresses []string) ([]*InflationReward, error) {
	params := []interface{}{
		addresses,
		map[string]interface{}{
			"epoch": epoch,
		},
	}

	var result []*InflationReward
	if err := c.call(ctx, "getInflationReward", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetBlockTime retrieves the estimated production time of a block.
func (c *HTTPClient) GetBlockTime(ctx context.Context, slot uint64) (*int64, error) {
	params := []interface{}{slot}
	var result *int64
	if err := c.call(ctx, "getBlockTime", params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetEpochInfo retrieves the current epoch and slot.
func (c *HTTPClient) GetEpochInfo(ctx context.Context) (*EpochInfo, error) {
	var result EpochInfo
	if err := c.call(ctx, "getEpochInfo", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEpochSchedule retrieves the cluster's epoch schedule.
func (c *HTTPClient) GetEpochSchedule(ctx context.Context) (*EpochScheduleInfo, error) {
	var result EpochScheduleInfo
	if err := c.call(ctx, "getEpochSchedule", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetSupply retrieves the cluster's SOL supply breakdown.
func (c *HTTPClient) GetSupply(ctx context.Context) (*SupplyInfo, error) {
	params := []interface{}{
		map[string]interface{}{
			// Exclude the non-circulating account list from the response.
			"excludeNonCirculatingAccountsList": true,
		},
	}

	var result struct {
		Value SupplyInfo `json:"value"`
	}
	if err := c.call(ctx, "getSupply", params, &result); err != nil {
		return nil, err
	}
	return &result.Value, nil
}

// GetVoteAccounts retrieves the current and delinquent vote accounts.
func (c *HTTPClient) GetVoteAccounts(ctx context.Context) (*VoteAccountsInfo, error) {
	var result VoteAccountsInfo
	if err := c.call(ctx, "getVoteAccounts", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLatestBlockhash retrieves the most recent blockhash.
func (c *HTTPClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getLatestBlockhash", nil, &result); err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}
