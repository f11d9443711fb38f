package ethcall

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// abiString encodes s as an ABI dynamic string return value.
func abiString(s string) string {
	padded := []byte(s)
	if rem := len(padded) % 32; rem != 0 {
		padded = append(padded, make([]byte, 32-rem)...)
	}
	return fmt.Sprintf("0x%064x%064x%s", 32, len(s), hex.EncodeToString(padded))
}

func TestEncodeUintCall(t *testing.T) {
	tests := []struct {
		selector string
		assetID  string
		want     string
	}{
		{selectorTokenURI, "1", "0xc87b56dd" + strings.Repeat("0", 63) + "1"},
		{selectorURI, "255", "0x0e89341c" + strings.Repeat("0", 62) + "ff"},
		{selectorURI, "0xff", "0x0e89341c" + strings.Repeat("0", 62) + "ff"},
	}
	for _, tt := range tests {
		got, err := encodeUintCall(tt.selector, tt.assetID)
		if err != nil {
			t.Fatalf("encodeUintCall(%q): %v", tt.assetID, err)
		}
		if got != tt.want {
			t.Errorf("encodeUintCall(%q) = %q, want %q", tt.assetID, got, tt.want)
		}
	}
}

func TestEncodeUintCallRejectsBadIDs(t *testing.T) {
	for _, id := range []string{"", "not-a-number", "-5", "0x" + strings.Repeat("f", 65)} {
		if _, err := encodeUintCall(selectorURI, id); err == nil {
			t.Errorf("encodeUintCall(%q): expected an error", id)
		}
	}
}

func TestDecodeString(t *testing.T) {
	got, err := decodeString(abiString("ipfs://Qm123/5.json"))
	if err != nil {
		t.Fatalf("decodeString: %v", err)
	}
	if got != "ipfs://Qm123/5.json" {
		t.Errorf("decodeString = %q", got)
	}
}

func TestDecodeStringRejectsOversizedWords(t *testing.T) {
	word := func(v *big.Int) string { return fmt.Sprintf("%064x", v) }
	u64 := new(big.Int).Lsh(big.NewInt(1), 64)

	nearMax := word(new(big.Int).Sub(u64, big.NewInt(16)))
	overMax := word(new(big.Int).Add(u64, big.NewInt(32)))
	zero := word(big.NewInt(0))

	// An offset or length word near or past 2^64 must fail the bounds
	// check instead of wrapping around and slicing out of range.
	cases := []struct {
		name string
		in   string
	}{
		{"offset wraps past the buffer", "0x" + nearMax + zero},
		{"offset beyond uint64", "0x" + overMax + zero},
		{"length wraps past the buffer", "0x" + word(big.NewInt(32)) + nearMax + zero},
		{"length beyond uint64", "0x" + word(big.NewInt(32)) + overMax + zero},
	}
	for _, tt := range cases {
		if _, err := decodeString(tt.in); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestDecodeStringRejectsTruncated(t *testing.T) {
	for _, in := range []string{"0x", "0x00", "0x" + strings.Repeat("00", 63)} {
		if _, err := decodeString(in); err == nil {
			t.Errorf("decodeString(%q): expected an error", in)
		}
	}
}

func TestTokenURI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Method != "eth_call" {
			t.Errorf("method = %q", req.Method)
		}
		call := req.Params[0].(map[string]interface{})
		if call["to"] != "0xcontract" {
			t.Errorf("to = %v", call["to"])
		}
		if !strings.HasPrefix(call["data"].(string), "0x"+selectorTokenURI) {
			t.Errorf("data = %v, want the tokenURI selector", call["data"])
		}
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  mustJSON(abiString("https://meta.example/7.json")),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	uri, err := c.TokenURI(context.Background(), "0xcontract", "7")
	if err != nil {
		t.Fatalf("TokenURI: %v", err)
	}
	if uri != "https://meta.example/7.json" {
		t.Errorf("uri = %q", uri)
	}
}

func TestURIRevertNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(rpcResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &rpcError{Code: 3, Message: "execution reverted"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithMaxRetries(5))
	if _, err := c.URI(context.Background(), "0xcontract", "7"); err == nil {
		t.Fatal("expected a revert error")
	}
	if calls != 1 {
		t.Errorf("reverted call retried %d times, want 1 attempt", calls)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
