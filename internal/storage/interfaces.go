package storage

import (
	"context"

	"nft-tracker/internal/domain"
)

// RunStore keeps the operational history of pipeline runs.
type RunStore interface {
	// Insert records one finished run.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// Latest retrieves up to limit runs, newest first.
	Latest(ctx context.Context, limit int) ([]*domain.RunRecord, error)
}

// TransactionSink receives normalized transactions for ad-hoc
// analytics, independent of the persisted dataset files.
type TransactionSink interface {
	// InsertBulk appends a batch of transactions.
	InsertBulk(ctx context.Context, txs []domain.Transaction) error
}
