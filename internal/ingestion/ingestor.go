package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/graph"
	"nft-tracker/internal/rates"
)

// TradeSource fetches one page of raw trades ordered by descending
// internal id, bounded strictly below beforeCursor when it is non-empty.
type TradeSource interface {
	Trades(ctx context.Context, count int, beforeCursor string) ([]graph.Trade, error)
}

// Ingestor walks the trade source backward from the newest trade until
// it reaches the checkpoint left by the previous run or falls out of
// the retention window.
type Ingestor struct {
	source     TradeSource
	normalizer *Normalizer
	pageSize   int
	logger     *log.Logger
}

// NewIngestor creates an Ingestor. A zero pageSize selects the
// endpoint's maximum page size.
func NewIngestor(source TradeSource, normalizer *Normalizer, pageSize int, logger *log.Logger) *Ingestor {
	if pageSize <= 0 || pageSize > graph.MaxPageSize {
		pageSize = graph.MaxPageSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Ingestor{
		source:     source,
		normalizer: normalizer,
		pageSize:   pageSize,
		logger:     logger,
	}
}

// Ingest returns all transactions newer than the checkpoint cursor and
// within the retention window, ordered newest first, along with the new
// checkpoint (the newest ingested cursor, or the old checkpoint when
// nothing new was found).
//
// The checkpoint match is authoritative and checked first; the age
// threshold is a secondary safety bound for runs without a usable
// checkpoint. The record matching either condition is excluded.
func (i *Ingestor) Ingest(ctx context.Context, checkpoint string, retentionThreshold int64) ([]domain.Transaction, string, error) {
	var out []domain.Transaction
	before := ""

	for {
		if before == "" {
			i.logger.Printf("[INFO] querying %d trades starting from the latest", i.pageSize)
		} else {
			i.logger.Printf("[INFO] querying %d trades below cursor %s", i.pageSize, before)
		}

		page, err := i.source.Trades(ctx, i.pageSize, before)
		if err != nil {
			return nil, "", err
		}
		if len(page) == 0 {
			i.logger.Printf("[INFO] trade source exhausted after %d transactions", len(out))
			break
		}
		before = page[len(page)-1].InternalID

		stop := false
		for _, raw := range page {
			if checkpoint != "" && raw.InternalID == checkpoint {
				i.logger.Printf("[INFO] reached checkpoint cursor %s, scan complete", checkpoint)
				stop = true
				break
			}

			ts, err := parseTimestampMs(raw.Block.Timestamp)
			if err != nil {
				return nil, "", fmt.Errorf("%w: trade %s: %v", graph.ErrSourceUnavailable, raw.InternalID, err)
			}
			if ts < retentionThreshold {
				i.logger.Printf("[INFO] trade %s is older than the retention window, scan complete", raw.InternalID)
				stop = true
				break
			}

			tx, err := i.normalizer.Normalize(ctx, raw)
			if err != nil {
				return nil, "", normalizeError(err)
			}
			out = append(out, tx)
		}

		if stop {
			break
		}
	}

	newCheckpoint := checkpoint
	if len(out) > 0 {
		newCheckpoint = out[0].InternalID
	}
	return out, newCheckpoint, nil
}

// normalizeError keeps rate-lookup failures distinguishable; any other
// normalization failure means the source handed us a malformed record.
func normalizeError(err error) error {
	if errors.Is(err, rates.ErrRateUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", graph.ErrSourceUnavailable, err)
}
