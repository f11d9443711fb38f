// Package resample bins transactions into fixed-width time buckets per
// tracked entity and merges them into the previously persisted bucket
// maps, pruning everything outside the retention window.
package resample

import (
	"nft-tracker/internal/domain"
)

// KeyFunc selects the grouping key of a transaction.
type KeyFunc func(domain.Transaction) string

// ByAsset groups transactions by the traded asset id.
func ByAsset(t domain.Transaction) string { return t.AssetID }

// ByCollection groups transactions by the parent collection contract.
func ByCollection(t domain.Transaction) string { return t.ContractID }

// Labels generates the bucket-boundary labels for one granularity:
// evenly spaced timestamps every granularityMinutes, from the retention
// threshold rounded down to the interval up to now rounded up to it,
// both ends included.
func Labels(retentionThreshold, now int64, granularityMinutes int) []int64 {
	coeff := int64(granularityMinutes) * 60 * 1000
	start := (retentionThreshold / coeff) * coeff
	end := ((now + coeff - 1) / coeff) * coeff

	labels := make([]int64, 0, (end-start)/coeff+1)
	for t := start; t <= end; t += coeff {
		labels = append(labels, t)
	}
	return labels
}

// Resample bins the transactions into buckets at the given granularity
// and merges them into the prior bucket map. Prior buckets older than
// retentionThreshold are dropped first, and entities left without any
// bucket disappear from the result. The prior map is not mutated.
func Resample(transactions []domain.Transaction, prior domain.BucketMap, granularityMinutes int, retentionThreshold, now int64, key KeyFunc) domain.TimeSeries {
	labels := Labels(retentionThreshold, now, granularityMinutes)
	data := pruned(prior, retentionThreshold)

	// Group in-range transactions by (entity, assigned label). A
	// transaction is assigned to the latest label strictly below its
	// timestamp; one with no such label is dropped.
	grouped := make(map[string]map[int64][]domain.Transaction)
	for _, t := range transactions {
		if t.Timestamp <= retentionThreshold {
			continue
		}
		label, ok := assign(labels, t.Timestamp)
		if !ok {
			continue
		}
		k := key(t)
		if grouped[k] == nil {
			grouped[k] = make(map[int64][]domain.Transaction)
		}
		grouped[k][label] = append(grouped[k][label], t)
	}

	// Rebuild every entity that traded in range. Labels with new
	// transactions merge into the existing bucket; labels with only a
	// prior bucket carry it forward; all other labels stay absent.
	for entity, byLabel := range grouped {
		old := data[entity]
		rebuilt := make(map[int64]domain.Bucket, len(byLabel)+len(old))
		for _, label := range labels {
			batch := byLabel[label]
			if len(batch) == 0 {
				if prev, ok := old[label]; ok {
					rebuilt[label] = prev
				}
				continue
			}
			if prev, ok := old[label]; ok {
				rebuilt[label] = merge(batch, &prev)
			} else {
				rebuilt[label] = merge(batch, nil)
			}
		}
		data[entity] = rebuilt
	}

	return domain.TimeSeries{Labels: labels, Data: data}
}

// assign finds the latest label strictly below ts, searching newest to
// oldest.
func assign(labels []int64, ts int64) (int64, bool) {
	for i := len(labels) - 1; i >= 0; i-- {
		if ts > labels[i] {
			return labels[i], true
		}
	}
	return 0, false
}

// pruned copies the prior bucket map, dropping buckets older than the
// threshold and entities left empty.
func pruned(prior domain.BucketMap, threshold int64) domain.BucketMap {
	out := make(domain.BucketMap, len(prior))
	for entity, buckets := range prior {
		kept := make(map[int64]domain.Bucket, len(buckets))
		for label, b := range buckets {
			if label >= threshold {
				kept[label] = b
			}
		}
		if len(kept) > 0 {
			out[entity] = kept
		}
	}
	return out
}

// merge folds a batch of new transactions into an existing bucket, or
// opens a fresh one when old is nil.
//
// The merged average is the sum of the per-batch averages, not a
// trade-weighted mean. The persisted dataset has always carried this
// value; consumers chart it as-is, so the formula is kept.
func merge(batch []domain.Transaction, old *domain.Bucket) domain.Bucket {
	b := domain.Bucket{TradeCount: len(batch)}
	for _, t := range batch {
		b.PriceSum += t.PriceEth
		b.NetworkFeeSum += t.NetworkFeeEth
		b.MarketplaceFeeSum += t.MarketplaceFeeEth
		b.RoyaltySum += t.RoyaltyEth
		if t.IsPrimaryMarketplace {
			b.PrimaryCount++
		}
	}
	b.AveragePrice = b.PriceSum / float64(b.TradeCount)

	if old == nil {
		return b
	}
	return domain.Bucket{
		TradeCount:        old.TradeCount + b.TradeCount,
		AveragePrice:      old.PriceSum/float64(old.TradeCount) + b.PriceSum/float64(b.TradeCount),
		PriceSum:          old.PriceSum + b.PriceSum,
		NetworkFeeSum:     old.NetworkFeeSum + b.NetworkFeeSum,
		MarketplaceFeeSum: old.MarketplaceFeeSum + b.MarketplaceFeeSum,
		RoyaltySum:        old.RoyaltySum + b.RoyaltySum,
		PrimaryCount:      old.PrimaryCount + b.PrimaryCount,
	}
}
