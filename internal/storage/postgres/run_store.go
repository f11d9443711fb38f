package postgres

import (
	"context"
	"fmt"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/storage"
)

// RunStore implements storage.RunStore on PostgreSQL.
type RunStore struct {
	pool *Pool
}

// NewRunStore creates a new RunStore.
func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

var _ storage.RunStore = (*RunStore)(nil)

// Insert records one finished run and assigns its id.
func (s *RunStore) Insert(ctx context.Context, r *domain.RunRecord) error {
	if r == nil || r.Status == "" {
		return storage.ErrInvalidInput
	}

	const query = `
		INSERT INTO runs (
			started_at, finished_at, status, transactions_ingested,
			checkpoint, volume_24h, trade_count_24h, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		r.StartedAt, r.FinishedAt, r.Status, r.TransactionsIngested,
		r.Checkpoint, r.Volume24h, r.TradeCount24h, r.Error,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Latest retrieves up to limit runs, newest first.
func (s *RunStore) Latest(ctx context.Context, limit int) ([]*domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, started_at, finished_at, status, transactions_ingested,
		       checkpoint, volume_24h, trade_count_24h, error
		FROM runs
		ORDER BY id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunRecord
	for rows.Next() {
		var r domain.RunRecord
		if err := rows.Scan(
			&r.ID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.TransactionsIngested,
			&r.Checkpoint, &r.Volume24h, &r.TradeCount24h, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
