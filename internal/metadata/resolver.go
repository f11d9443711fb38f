// Package metadata resolves off-chain asset metadata (title, image)
// through an ordered chain of token-standard query strategies.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"nft-tracker/internal/domain"
)

// ErrUnavailable indicates every strategy failed for an asset. The
// caller recovers per asset: the record stays without title/image and
// is retried on a future run.
var ErrUnavailable = errors.New("asset metadata unavailable")

// ipfsScheme is the decentralized-storage prefix rewritten to the HTTP
// gateway before fetching or storing URLs.
const ipfsScheme = "ipfs://"

// DefaultFetchTimeout bounds one metadata-document download.
const DefaultFetchTimeout = 20 * time.Second

// ChainCaller queries the token-URI views of a contract.
type ChainCaller interface {
	// TokenURI calls the ERC-721 tokenURI(uint256) view.
	TokenURI(ctx context.Context, contract, assetID string) (string, error)
	// URI calls the ERC-1155 uri(uint256) view.
	URI(ctx context.Context, contract, assetID string) (string, error)
}

// strategy is one step of the fallback chain. The next step runs only
// when the previous one returned an error; an empty URI from a
// successful call still terminates the chain.
type strategy struct {
	name  string
	fetch func(ctx context.Context, contract, assetID string) (string, error)
}

// Resolver resolves asset metadata by trying each strategy in order and
// fetching the JSON document behind the first URI obtained.
type Resolver struct {
	strategies []strategy
	client     *http.Client
	gateway    string
	logger     *log.Logger
}

// ResolverOption configures Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the client used to download metadata documents.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.client = client
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver. counterfactualContract is the
// well-known contract answering uri() for assets minted off-chain and
// not yet settled; gateway is the HTTP prefix substituted for the
// decentralized-storage scheme.
func NewResolver(chain ChainCaller, counterfactualContract, gateway string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:  &http.Client{Timeout: DefaultFetchTimeout},
		gateway: gateway,
		logger:  log.Default(),
	}
	r.strategies = []strategy{
		{name: "erc721", fetch: chain.TokenURI},
		{name: "erc1155", fetch: chain.URI},
		{name: "counterfactual", fetch: func(ctx context.Context, _, assetID string) (string, error) {
			return chain.URI(ctx, counterfactualContract, assetID)
		}},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// metadataDoc is the subset of the metadata JSON document we keep.
type metadataDoc struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Resolve returns the asset's descriptive metadata, or ErrUnavailable
// when every strategy fails or the document cannot be fetched.
func (r *Resolver) Resolve(ctx context.Context, contract, assetID string) (*domain.AssetMetadata, error) {
	uri, err := r.resolveURI(ctx, contract, assetID)
	if err != nil {
		return nil, err
	}

	doc, err := r.fetchDocument(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: asset %s: %v", ErrUnavailable, assetID, err)
	}

	return &domain.AssetMetadata{
		Title: doc.Name,
		Image: r.rewriteGateway(doc.Image),
	}, nil
}

// resolveURI walks the strategy chain, stopping at the first call that
// does not error.
func (r *Resolver) resolveURI(ctx context.Context, contract, assetID string) (string, error) {
	var lastErr error
	for _, s := range r.strategies {
		uri, err := s.fetch(ctx, contract, assetID)
		if err != nil {
			r.logger.Printf("[INFO] %s lookup failed for asset %s: %v", s.name, assetID, err)
			lastErr = err
			continue
		}
		if uri == "" {
			return "", fmt.Errorf("%w: asset %s: %s returned an empty uri", ErrUnavailable, assetID, s.name)
		}
		return uri, nil
	}
	return "", fmt.Errorf("%w: asset %s: all strategies failed: %v", ErrUnavailable, assetID, lastErr)
}

// fetchDocument downloads and decodes the metadata JSON document.
func (r *Resolver) fetchDocument(ctx context.Context, uri string) (*metadataDoc, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.rewriteGateway(uri), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var doc metadataDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return &doc, nil
}

// rewriteGateway substitutes the decentralized-storage scheme with the
// configured HTTP gateway. Other URLs pass through unchanged.
func (r *Resolver) rewriteGateway(u string) string {
	return strings.Replace(u, ipfsScheme, r.gateway, 1)
}
