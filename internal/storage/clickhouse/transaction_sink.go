package clickhouse

import (
	"context"
	"fmt"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/storage"
)

// TransactionSink implements storage.TransactionSink using ClickHouse.
// Duplicate cursors collapse through the ReplacingMergeTree engine, so
// re-ingesting an overlapping batch is harmless.
type TransactionSink struct {
	conn *Conn
}

// NewTransactionSink creates a new TransactionSink.
func NewTransactionSink(conn *Conn) *TransactionSink {
	return &TransactionSink{conn: conn}
}

var _ storage.TransactionSink = (*TransactionSink)(nil)

// InsertBulk appends a batch of transactions.
func (s *TransactionSink) InsertBulk(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO transactions (
			internal_id, external_id, asset_id, contract_id, buyer, seller,
			timestamp_ms, price_eth, network_fee_eth, marketplace_fee_eth,
			royalty_eth, is_primary
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range txs {
		isPrimary := uint8(0)
		if t.IsPrimaryMarketplace {
			isPrimary = 1
		}
		err = batch.Append(
			t.InternalID, t.ExternalID, t.AssetID, t.ContractID, t.Buyer, t.Seller,
			uint64(t.Timestamp), t.PriceEth, t.NetworkFeeEth, t.MarketplaceFeeEth,
			t.RoyaltyEth, isPrimary,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// CountByContract returns the number of stored trades per collection
// contract, for ad-hoc inspection.
func (s *TransactionSink) CountByContract(ctx context.Context, contractID string) (uint64, error) {
	var count uint64
	err := s.conn.QueryRow(ctx,
		`SELECT count() FROM transactions WHERE contract_id = ?`, contractID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by contract: %w", err)
	}
	return count, nil
}
