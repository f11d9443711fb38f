package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single price lookup.
const DefaultTimeout = 15 * time.Second

// HTTPSource implements PriceSource against a simple symbol-pair price
// endpoint (GET ?fsym=X&tsyms=Y returning {"Y": rate}).
type HTTPSource struct {
	endpoint string
	client   *http.Client
}

// HTTPSourceOption configures HTTPSource.
type HTTPSourceOption func(*HTTPSource)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) HTTPSourceOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a price source for the given endpoint URL.
func NewHTTPSource(endpoint string, opts ...HTTPSourceOption) *HTTPSource {
	s := &HTTPSource{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rate fetches the fromSymbol→toSymbol exchange rate.
func (s *HTTPSource) Rate(ctx context.Context, fromSymbol, toSymbol string) (float64, error) {
	q := url.Values{}
	q.Set("fsym", fromSymbol)
	q.Set("tsyms", toSymbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var pairs map[string]float64
	if err := json.Unmarshal(body, &pairs); err != nil {
		return 0, fmt.Errorf("unmarshal rates: %w", err)
	}

	rate, ok := pairs[toSymbol]
	if !ok {
		return 0, fmt.Errorf("response has no %s rate", toSymbol)
	}
	return rate, nil
}

var _ PriceSource = (*HTTPSource)(nil)
