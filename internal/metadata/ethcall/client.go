// Package ethcall issues read-only eth_call queries against an Ethereum
// JSON-RPC endpoint for the token-URI views of the ERC-721 and ERC-1155
// standards.
package ethcall

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Function selectors of the standard token-URI views.
const (
	selectorTokenURI = "c87b56dd" // tokenURI(uint256)
	selectorURI      = "0e89341c" // uri(uint256)
)

// Default configuration values.
const (
	DefaultTimeout     = 20 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 5 * time.Second
	DefaultBackoffMult = 2.0
)

// Client is an eth_call JSON-RPC client with retries and backoff.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	requestID   atomic.Uint64
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates an eth_call client for the given RPC endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
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

// TokenURI calls the ERC-721 tokenURI(uint256) view on contract.
func (c *Client) TokenURI(ctx context.Context, contract, assetID string) (string, error) {
	return c.stringCall(ctx, contract, selectorTokenURI, assetID)
}

// URI calls the ERC-1155 uri(uint256) view on contract.
func (c *Client) URI(ctx context.Context, contract, assetID string) (string, error) {
	return c.stringCall(ctx, contract, selectorURI, assetID)
}

func (c *Client) stringCall(ctx context.Context, contract, selector, assetID string) (string, error) {
	data, err := encodeUintCall(selector, assetID)
	if err != nil {
		return "", err
	}

	var result string
	if err := c.call(ctx, "eth_call", []interface{}{
		map[string]string{"to": contract, "data": data},
		"latest",
	}, &result); err != nil {
		return "", err
	}

	return decodeString(result)
}

// encodeUintCall builds the calldata for a single-uint256 view:
// 4-byte selector followed by the id left-padded to 32 bytes.
func encodeUintCall(selector, assetID string) (string, error) {
	id, ok := new(big.Int).SetString(strings.TrimPrefix(assetID, "0x"), hexOrDecimalBase(assetID))
	if !ok {
		return "", fmt.Errorf("invalid asset id %q", assetID)
	}
	if id.Sign() < 0 || id.BitLen() > 256 {
		return "", fmt.Errorf("asset id %q out of uint256 range", assetID)
	}
	return fmt.Sprintf("0x%s%064x", selector, id), nil
}

func hexOrDecimalBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

// decodeString decodes an ABI-encoded dynamic string return value:
// a 32-byte offset, a 32-byte length, then the raw bytes.
func decodeString(hexResult string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexResult, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode call result: %w", err)
	}
	if len(raw) < 64 {
		return "", fmt.Errorf("call result too short (%d bytes)", len(raw))
	}

	// The offset and length words come straight from the RPC response;
	// compare them against the buffer size before any arithmetic so an
	// oversized word cannot wrap around and slice out of range.
	total := uint64(len(raw))
	offsetWord := new(big.Int).SetBytes(raw[:32])
	if !offsetWord.IsUint64() || offsetWord.Uint64() > total-32 {
		return "", fmt.Errorf("string offset %s out of range", offsetWord)
	}
	offset := offsetWord.Uint64()
	lengthWord := new(big.Int).SetBytes(raw[offset : offset+32])
	if !lengthWord.IsUint64() || lengthWord.Uint64() > total-offset-32 {
		return "", fmt.Errorf("string length %s out of range", lengthWord)
	}
	length := lengthWord.Uint64()

	return string(raw[offset+32 : offset+32+length]), nil
}

// rpcRequest is a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// RPC-level errors (such as a revert on a contract without the queried
// view) are returned immediately and never retried.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
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
