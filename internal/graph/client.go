// Package graph provides the client for the paginated NFT trade-query
// endpoint (a The Graph style GraphQL API).
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrSourceUnavailable indicates the trade-query endpoint is unreachable
// or returned a malformed response. Fatal to the run: no partial state
// may be persisted on top of an incomplete scan.
var ErrSourceUnavailable = errors.New("trade source unavailable")

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0

	// MaxPageSize is the endpoint-side limit on `first`.
	MaxPageSize = 1000
)

// tradesQuery requests NFT trades ordered by descending internal id.
// The optional $before variable bounds the page below the previous one.
const tradesQuery = `
query trades($first: Int, $before: String) {
  transactions(
    first: $first
    orderBy: internalID
    orderDirection: desc
    where: {typename: "TradeNFT", internalID_lt: $before}
  ) {
    id
    internalID
    block { id timestamp }
    accountBuyer { id address }
    accountSeller { id address }
    token { id name symbol decimals address }
    nfts { id nftID token creatorFeeBips }
    realizedNFTPrice
    feeBuyer
    feeBipsA
    feeBipsB
  }
}`

const tradesQueryUnbounded = `
query trades($first: Int) {
  transactions(
    first: $first
    orderBy: internalID
    orderDirection: desc
    where: {typename: "TradeNFT"}
  ) {
    id
    internalID
    block { id timestamp }
    accountBuyer { id address }
    accountSeller { id address }
    token { id name symbol decimals address }
    nfts { id nftID token creatorFeeBips }
    realizedNFTPrice
    feeBuyer
    feeBipsA
    feeBipsB
  }
}`

// Client queries the trade endpoint over HTTP with retries and
// exponential backoff.
type Client struct {
	endpoint    string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the initial retry delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// NewClient creates a new trade-query client.
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

// gqlRequest is a GraphQL HTTP request body.
type gqlRequest struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// gqlResponse is a GraphQL HTTP response body.
type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

// Trades fetches one page of up to count trades ordered by descending
// internal id. A non-empty beforeCursor bounds the page strictly below
// that cursor; an empty cursor starts from the newest trade.
func (c *Client) Trades(ctx context.Context, count int, beforeCursor string) ([]Trade, error) {
	if count <= 0 || count > MaxPageSize {
		count = MaxPageSize
	}

	query := tradesQueryUnbounded
	variables := map[string]interface{}{"first": count}
	if beforeCursor != "" {
		query = tradesQuery
		variables["before"] = beforeCursor
	}

	body, err := json.Marshal(gqlRequest{
		Query:         query,
		OperationName: "trades",
		Variables:     variables,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	respBody, err := c.post(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	var resp gqlResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrSourceUnavailable, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%w: query error: %s", ErrSourceUnavailable, resp.Errors[0].Message)
	}

	var data struct {
		Transactions []Trade `json:"transactions"`
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("%w: response carries no data", ErrSourceUnavailable)
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: unmarshal trades: %v", ErrSourceUnavailable, err)
	}

	return data.Transactions, nil
}

// post performs the HTTP POST with retries and exponential backoff.
func (c *Client) post(ctx context.Context, body []byte) ([]byte, error) {
	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
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

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
