package metadata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// fakeChain scripts the outcome of each token-URI view.
type fakeChain struct {
	tokenURI    func(contract, assetID string) (string, error)
	uri         func(contract, assetID string) (string, error)
	tokenURICalls []string
	uriCalls      []string
}

func (c *fakeChain) TokenURI(ctx context.Context, contract, assetID string) (string, error) {
	c.tokenURICalls = append(c.tokenURICalls, contract)
	return c.tokenURI(contract, assetID)
}

func (c *fakeChain) URI(ctx context.Context, contract, assetID string) (string, error) {
	c.uriCalls = append(c.uriCalls, contract)
	return c.uri(contract, assetID)
}

func metadataServer(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolveFirstStrategyWins(t *testing.T) {
	srv := metadataServer(t, `{"name": "Dragon #7", "image": "https://img.example/7.png"}`)

	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) { return srv.URL, nil },
		uri:      func(contract, assetID string) (string, error) { t.Fatal("uri must not be called"); return "", nil },
	}

	r := NewResolver(chain, "0xcounterfactual", "https://gw.example/")
	meta, err := r.Resolve(context.Background(), "0xc", "7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Title != "Dragon #7" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Image != "https://img.example/7.png" {
		t.Errorf("Image = %q", meta.Image)
	}
}

func TestResolveFallbackOrder(t *testing.T) {
	srv := metadataServer(t, `{"name": "CF", "image": ""}`)

	// ERC-721 and ERC-1155 views both revert; the counterfactual
	// contract answers.
	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) {
			return "", fmt.Errorf("execution reverted")
		},
		uri: func(contract, assetID string) (string, error) {
			if contract == "0xcounterfactual" {
				return srv.URL, nil
			}
			return "", fmt.Errorf("execution reverted")
		},
	}

	r := NewResolver(chain, "0xcounterfactual", "https://gw.example/")
	meta, err := r.Resolve(context.Background(), "0xc", "7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if meta.Title != "CF" {
		t.Errorf("Title = %q", meta.Title)
	}
	if len(chain.tokenURICalls) != 1 {
		t.Errorf("tokenURI called %d times", len(chain.tokenURICalls))
	}
	if len(chain.uriCalls) != 2 {
		t.Fatalf("uri called %d times, want asset contract then counterfactual", len(chain.uriCalls))
	}
	if chain.uriCalls[0] != "0xc" || chain.uriCalls[1] != "0xcounterfactual" {
		t.Errorf("uri call order = %v", chain.uriCalls)
	}
}

func TestResolveEmptyURITerminatesChain(t *testing.T) {
	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) { return "", nil },
		uri:      func(contract, assetID string) (string, error) { t.Fatal("uri must not be called"); return "", nil },
	}

	r := NewResolver(chain, "0xcounterfactual", "https://gw.example/")
	_, err := r.Resolve(context.Background(), "0xc", "7")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestResolveAllStrategiesFail(t *testing.T) {
	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) { return "", fmt.Errorf("revert") },
		uri:      func(contract, assetID string) (string, error) { return "", fmt.Errorf("revert") },
	}

	r := NewResolver(chain, "0xcounterfactual", "https://gw.example/")
	_, err := r.Resolve(context.Background(), "0xc", "7")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestResolveRewritesGatewayInURIAndImage(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Write([]byte(`{"name": "X", "image": "ipfs://Qmimg/7.png"}`))
	}))
	defer srv.Close()

	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) { return "ipfs://Qmdoc/7.json", nil },
		uri:      func(contract, assetID string) (string, error) { return "", nil },
	}

	r := NewResolver(chain, "0xcounterfactual", srv.URL+"/ipfs/")
	meta, err := r.Resolve(context.Background(), "0xc", "7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if requested != "/ipfs/Qmdoc/7.json" {
		t.Errorf("document fetched from %q", requested)
	}
	if meta.Image != srv.URL+"/ipfs/Qmimg/7.png" {
		t.Errorf("Image = %q", meta.Image)
	}
}

func TestResolveBadDocument(t *testing.T) {
	srv := metadataServer(t, `not json`)

	chain := &fakeChain{
		tokenURI: func(contract, assetID string) (string, error) { return srv.URL, nil },
		uri:      func(contract, assetID string) (string, error) { return "", nil },
	}

	r := NewResolver(chain, "0xcounterfactual", "https://gw.example/")
	_, err := r.Resolve(context.Background(), "0xc", "7")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
