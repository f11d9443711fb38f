package domain

// Bucket holds aggregate trade statistics for one entity within one
// fixed time slot. Buckets with a zero trade count are never stored:
// absence means no activity, not measured-zero.
type Bucket struct {
	TradeCount        int     `json:"trades"`
	AveragePrice      float64 `json:"avgPrice"`
	PriceSum          float64 `json:"priceSum"`
	NetworkFeeSum     float64 `json:"networkFees"`
	MarketplaceFeeSum float64 `json:"marketplaceFees"`
	RoyaltySum        float64 `json:"royalties"`
	PrimaryCount      int     `json:"primary"`
}

// BucketMap maps a tracked entity id (asset id or collection contract)
// to its buckets keyed by bucket-boundary label (ms since epoch).
type BucketMap map[string]map[int64]Bucket

// TimeSeries is one granularity's resampled view: the ordered list of
// bucket-boundary labels (ascending, fixed spacing) and the sparse
// per-entity bucket maps.
type TimeSeries struct {
	Labels []int64   `json:"labels"`
	Data   BucketMap `json:"data"`
}

// Trades returns the total trade count across all buckets of one entity.
func (m BucketMap) Trades(entityID string) int {
	var total int
	for _, b := range m[entityID] {
		total += b.TradeCount
	}
	return total
}
