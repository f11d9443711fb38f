package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"nft-tracker/internal/graph"
	"nft-tracker/internal/rates"
)

// fakeSource pages through a fixed newest-first trade list the way the
// query endpoint does.
type fakeSource struct {
	trades []graph.Trade
	calls  int
	err    error
}

func (s *fakeSource) Trades(ctx context.Context, count int, beforeCursor string) ([]graph.Trade, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}

	start := 0
	if beforeCursor != "" {
		for i, tr := range s.trades {
			if tr.InternalID == beforeCursor {
				start = i + 1
				break
			}
		}
	}
	end := start + count
	if end > len(s.trades) {
		end = len(s.trades)
	}
	return s.trades[start:end], nil
}

// fakeTrades builds n trades with descending internal ids starting at
// top, one second apart starting at tsSec.
func fakeTrades(top, n int, tsSec int64) []graph.Trade {
	trades := make([]graph.Trade, 0, n)
	for i := 0; i < n; i++ {
		id := strconv.Itoa(top - i)
		trades = append(trades, graph.Trade{
			ID:         "tx-" + id,
			InternalID: id,
			Block:      graph.Block{Timestamp: strconv.FormatInt(tsSec-int64(i), 10)},
			Token:      graph.Token{Symbol: "ETH", Decimals: 18},
			NFTs: []graph.NFT{{
				ID:       "nft-0xc-" + id,
				AssetID:  id,
				Contract: "0xc",
			}},
			RealizedNFTPrice: "1000000000000000000",
			FeeBuyer:         "0",
		})
	}
	return trades
}

func newTestIngestor(source TradeSource, pageSize int) *Ingestor {
	conv := rates.NewConverter(fixedSource{rate: 1}, rates.NewCache(), nil)
	return NewIngestor(source, NewNormalizer(conv, 0), pageSize, nil)
}

func TestIngestStopsAtCheckpoint(t *testing.T) {
	src := &fakeSource{trades: fakeTrades(100, 10, 1_700_000_000)}
	ing := newTestIngestor(src, 4)

	txs, checkpoint, err := ing.Ingest(context.Background(), "97", 0)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// 100, 99, 98; the checkpoint record itself is excluded.
	if len(txs) != 3 {
		t.Fatalf("got %d transactions, want 3", len(txs))
	}
	for i, want := range []string{"100", "99", "98"} {
		if txs[i].InternalID != want {
			t.Errorf("txs[%d].InternalID = %q, want %q", i, txs[i].InternalID, want)
		}
	}
	if checkpoint != "100" {
		t.Errorf("checkpoint = %q, want 100", checkpoint)
	}
}

func TestIngestStopsAtRetentionThreshold(t *testing.T) {
	// Trades at 1000s, 999s, 998s... threshold 998500ms excludes the
	// third trade and everything older.
	src := &fakeSource{trades: fakeTrades(100, 10, 1000)}
	ing := newTestIngestor(src, 10)

	txs, checkpoint, err := ing.Ingest(context.Background(), "", 998_500)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("got %d transactions, want 2", len(txs))
	}
	if checkpoint != "100" {
		t.Errorf("checkpoint = %q, want 100", checkpoint)
	}
	if src.calls != 1 {
		t.Errorf("source queried %d times, want 1", src.calls)
	}
}

func TestIngestCheckpointBeatsThreshold(t *testing.T) {
	// The checkpoint record is also outside the retention window; the
	// checkpoint stop must win and not drag in older in-window records.
	src := &fakeSource{trades: fakeTrades(100, 10, 1000)}
	ing := newTestIngestor(src, 10)

	txs, _, err := ing.Ingest(context.Background(), "99", 999_500)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(txs) != 1 || txs[0].InternalID != "100" {
		t.Fatalf("expected only trade 100, got %v", txs)
	}
}

func TestIngestPagesUntilExhausted(t *testing.T) {
	src := &fakeSource{trades: fakeTrades(100, 10, 1_700_000_000)}
	ing := newTestIngestor(src, 3)

	txs, checkpoint, err := ing.Ingest(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(txs) != 10 {
		t.Fatalf("got %d transactions, want all 10", len(txs))
	}
	if checkpoint != "100" {
		t.Errorf("checkpoint = %q, want 100", checkpoint)
	}
	// 4 pages of 3 (last one short) plus the empty page ending the scan.
	if src.calls < 4 {
		t.Errorf("source queried %d times, want at least 4", src.calls)
	}
}

func TestIngestNothingNew(t *testing.T) {
	src := &fakeSource{trades: fakeTrades(100, 5, 1_700_000_000)}
	ing := newTestIngestor(src, 5)

	txs, checkpoint, err := ing.Ingest(context.Background(), "100", 0)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("got %d transactions, want 0", len(txs))
	}
	if checkpoint != "100" {
		t.Errorf("checkpoint = %q, want the old checkpoint back", checkpoint)
	}
}

func TestIngestEmptySource(t *testing.T) {
	src := &fakeSource{}
	ing := newTestIngestor(src, 5)

	txs, checkpoint, err := ing.Ingest(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(txs) != 0 || checkpoint != "" {
		t.Errorf("expected an empty result, got %d txs, checkpoint %q", len(txs), checkpoint)
	}
}

func TestIngestSourceFailure(t *testing.T) {
	src := &fakeSource{err: fmt.Errorf("%w: boom", graph.ErrSourceUnavailable)}
	ing := newTestIngestor(src, 5)

	_, _, err := ing.Ingest(context.Background(), "", 0)
	if !errors.Is(err, graph.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

// failingRateSource fails every lookup.
type failingRateSource struct{}

func (failingRateSource) Rate(ctx context.Context, from, to string) (float64, error) {
	return 0, fmt.Errorf("down")
}

func TestIngestRateFailureIsFatal(t *testing.T) {
	trades := fakeTrades(100, 2, 1_700_000_000)
	for i := range trades {
		trades[i].Token = graph.Token{Symbol: "LRC", Decimals: 18}
	}
	src := &fakeSource{trades: trades}

	conv := rates.NewConverter(failingRateSource{}, rates.NewCache(), nil)
	ing := NewIngestor(src, NewNormalizer(conv, 0), 5, nil)

	_, _, err := ing.Ingest(context.Background(), "", 0)
	if !errors.Is(err, rates.ErrRateUnavailable) {
		t.Fatalf("expected ErrRateUnavailable, got %v", err)
	}
}

func TestIngestMalformedRecordIsSourceError(t *testing.T) {
	trades := fakeTrades(100, 2, 1_700_000_000)
	trades[0].RealizedNFTPrice = "bogus"
	src := &fakeSource{trades: trades}
	ing := newTestIngestor(src, 5)

	_, _, err := ing.Ingest(context.Background(), "", 0)
	if !errors.Is(err, graph.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}
