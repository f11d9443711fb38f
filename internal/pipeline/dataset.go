package pipeline

import (
	"nft-tracker/internal/domain"
)

// Default dataset parameters.
const (
	// DefaultTransactionsLimit bounds the persisted latest-transactions
	// list; the dashboard never pages past it.
	DefaultTransactionsLimit = 1000

	// DefaultPopularTradeCount is the weekly trade count from which an
	// asset is worth resolving metadata for even when it has left the
	// latest-transactions list.
	DefaultPopularTradeCount = 3

	DefaultDailyRetention    = 24 * 60        // minutes
	DefaultWeeklyRetention   = 7 * 24 * 60    // minutes
	DefaultDailyGranularity  = 30             // minutes
	DefaultWeeklyGranularity = 60             // minutes
)

// Paths are the logical locations of the persisted dataset files.
type Paths struct {
	Transactions string
	Daily        string
	Weekly       string
	Assets       string
	Summary      string
}

// DefaultPaths locates the dataset under data/ in the content store.
func DefaultPaths() Paths {
	return Paths{
		Transactions: "data/transactions.json",
		Daily:        "data/daily.json",
		Weekly:       "data/weekly.json",
		Assets:       "data/assets.json",
		Summary:      "data/summary.json",
	}
}

// SeriesFile is the persisted form of one granularity: the bucket
// labels, the per-asset and per-collection bucket maps, and the
// pagination cursor the next run resumes from.
type SeriesFile struct {
	Labels              []int64          `json:"labels"`
	NftBuckets          domain.BucketMap `json:"nftBuckets"`
	CollectionBuckets   domain.BucketMap `json:"collectionBuckets"`
	LastProcessedCursor string           `json:"lastProcessedCursor"`
}

// AssetsFile maps asset id to its persisted record.
type AssetsFile map[string]*domain.AssetRecord
