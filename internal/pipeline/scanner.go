// Package pipeline orchestrates one scan: hydrate the persisted
// dataset, ingest new trades, resample, resolve metadata, and commit
// the rebuilt dataset atomically.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"nft-tracker/internal/domain"
	"nft-tracker/internal/gitstore"
	"nft-tracker/internal/observability"
	"nft-tracker/internal/resample"
	"nft-tracker/internal/storage"
)

// ContentStore is the persisted-dataset backend.
type ContentStore interface {
	GetFile(ctx context.Context, path string) (*gitstore.File, error)
	CommitFiles(ctx context.Context, files map[string][]byte, message string) error
}

// TradeIngestor produces the transactions newer than the checkpoint.
type TradeIngestor interface {
	Ingest(ctx context.Context, checkpoint string, retentionThreshold int64) ([]domain.Transaction, string, error)
}

// MetadataResolver resolves descriptive metadata for one asset.
type MetadataResolver interface {
	Resolve(ctx context.Context, contract, assetID string) (*domain.AssetMetadata, error)
}

// Options configures a Scanner. Store, Ingestor and Resolver are
// required; the rest default or stay disabled when unset.
type Options struct {
	Store    ContentStore
	Ingestor TradeIngestor
	Resolver MetadataResolver

	// RunStore records run history; nil disables recording.
	RunStore storage.RunStore
	// Sink mirrors ingested transactions to the analytics store; nil
	// disables mirroring.
	Sink storage.TransactionSink

	Metrics *observability.Metrics
	Logger  *log.Logger

	Paths Paths

	// Retention and granularity in minutes; zero selects defaults.
	DailyRetention    int
	WeeklyRetention   int
	DailyGranularity  int
	WeeklyGranularity int

	TransactionsLimit int
	PopularTradeCount int

	// Clock is the time source, overridable in tests.
	Clock func() time.Time
}

// Scanner runs the scan pipeline.
type Scanner struct {
	opts Options
}

// Result is the outcome of one successful run.
type Result struct {
	Status               string
	TransactionsIngested int
	Checkpoint           string
	AssetsTracked        int
	MetadataResolved     int
	MetadataFailed       int
	StaleAssetsDeleted   int
	Volume24h            float64
	TradeCount24h        int
}

// NewScanner creates a Scanner, filling in option defaults.
func NewScanner(opts Options) (*Scanner, error) {
	if opts.Store == nil || opts.Ingestor == nil || opts.Resolver == nil {
		return nil, errors.New("pipeline: store, ingestor and resolver are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Paths == (Paths{}) {
		opts.Paths = DefaultPaths()
	}
	if opts.DailyRetention <= 0 {
		opts.DailyRetention = DefaultDailyRetention
	}
	if opts.WeeklyRetention <= 0 {
		opts.WeeklyRetention = DefaultWeeklyRetention
	}
	if opts.DailyGranularity <= 0 {
		opts.DailyGranularity = DefaultDailyGranularity
	}
	if opts.WeeklyGranularity <= 0 {
		opts.WeeklyGranularity = DefaultWeeklyGranularity
	}
	if opts.TransactionsLimit <= 0 {
		opts.TransactionsLimit = DefaultTransactionsLimit
	}
	if opts.PopularTradeCount <= 0 {
		opts.PopularTradeCount = DefaultPopularTradeCount
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Scanner{opts: opts}, nil
}

// Run executes one scan. A run with no new transactions succeeds
// without writing anything. Any returned error means the dataset was
// left untouched; the next run recomputes from the same checkpoint.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	o := &s.opts
	started := o.Clock()
	res, err := s.run(ctx, started)
	finished := o.Clock()

	if o.Metrics != nil {
		o.Metrics.RunDuration.Observe(finished.Sub(started).Seconds())
	}

	rec := &domain.RunRecord{
		StartedAt:  started.UnixMilli(),
		FinishedAt: finished.UnixMilli(),
	}
	if err != nil {
		rec.Status = domain.RunStatusFailed
		rec.Error = err.Error()
	} else {
		rec.Status = res.Status
		rec.TransactionsIngested = res.TransactionsIngested
		rec.Checkpoint = res.Checkpoint
		rec.Volume24h = res.Volume24h
		rec.TradeCount24h = res.TradeCount24h
	}
	s.recordRun(ctx, rec)

	if o.Metrics != nil {
		o.Metrics.RunsTotal.WithLabelValues(rec.Status).Inc()
		if err == nil {
			o.Metrics.LastSuccessfulRun.Set(float64(finished.Unix()))
		}
	}
	return res, err
}

func (s *Scanner) run(ctx context.Context, started time.Time) (*Result, error) {
	o := &s.opts
	now := started.UnixMilli()
	dailyThreshold := now - int64(o.DailyRetention)*60*1000
	weeklyThreshold := now - int64(o.WeeklyRetention)*60*1000

	// 1. Hydrate the persisted dataset. A missing file is an empty
	// dataset, not an error.
	latest, err := loadJSON[[]domain.TransactionSummary](ctx, o.Store, o.Paths.Transactions)
	if err != nil {
		return nil, err
	}
	daily, err := loadJSON[SeriesFile](ctx, o.Store, o.Paths.Daily)
	if err != nil {
		return nil, err
	}
	weekly, err := loadJSON[SeriesFile](ctx, o.Store, o.Paths.Weekly)
	if err != nil {
		return nil, err
	}
	assets, err := loadJSON[AssetsFile](ctx, o.Store, o.Paths.Assets)
	if err != nil {
		return nil, err
	}
	if assets == nil {
		assets = make(AssetsFile)
	}

	// 2. Ingest everything newer than the last processed cursor.
	checkpoint := weekly.LastProcessedCursor
	txs, newCheckpoint, err := o.Ingestor.Ingest(ctx, checkpoint, weeklyThreshold)
	if err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		o.Logger.Printf("[INFO] no new transactions since cursor %q, nothing to do", checkpoint)
		return &Result{Status: domain.RunStatusNoNewTrades, Checkpoint: checkpoint}, nil
	}
	o.Logger.Printf("[INFO] ingested %d new transactions, checkpoint %s -> %s", len(txs), checkpoint, newCheckpoint)
	if o.Metrics != nil {
		o.Metrics.TransactionsIngested.Add(float64(len(txs)))
	}

	// 3. Merge the latest-transactions list: new first, deduplicated by
	// cursor, newest first, capped.
	latest = mergeLatest(txs, latest, o.TransactionsLimit)

	// 4. Track newly seen assets. The newest trade per asset sets the
	// last observed price.
	for _, t := range txs {
		rec, ok := assets[t.AssetID]
		if !ok {
			rec = &domain.AssetRecord{ContractID: t.ContractID}
			assets[t.AssetID] = rec
		}
		rec.DisplayTemplate = t.DisplayTemplate
	}
	seenPrice := make(map[string]bool, len(txs))
	for _, t := range txs {
		if !seenPrice[t.AssetID] {
			assets[t.AssetID].LastPrice = t.PriceEth
			seenPrice[t.AssetID] = true
		}
	}

	// 5. Resample both granularities for both entity kinds.
	dailyNft := resample.Resample(txs, daily.NftBuckets, o.DailyGranularity, dailyThreshold, now, resample.ByAsset)
	dailyCollection := resample.Resample(txs, daily.CollectionBuckets, o.DailyGranularity, dailyThreshold, now, resample.ByCollection)
	weeklyNft := resample.Resample(txs, weekly.NftBuckets, o.WeeklyGranularity, weeklyThreshold, now, resample.ByAsset)
	weeklyCollection := resample.Resample(txs, weekly.CollectionBuckets, o.WeeklyGranularity, weeklyThreshold, now, resample.ByCollection)

	// 6. Resolve metadata for assets still worth displaying: those in
	// the latest list, or with enough weekly trades. Failures are
	// per-asset; the record keeps whatever it had.
	resolved, failed := s.resolveMetadata(ctx, assets, weeklyNft.Data, latest)

	// 7. Drop assets that fell out of the weekly series entirely.
	stale := 0
	for id := range assets {
		if _, ok := weeklyNft.Data[id]; !ok {
			delete(assets, id)
			stale++
		}
	}
	if stale > 0 {
		o.Logger.Printf("[INFO] deleted %d assets with no trades left in the weekly window", stale)
	}
	if o.Metrics != nil {
		o.Metrics.TrackedAssets.Set(float64(len(assets)))
	}

	// 8. Mirror the batch to the analytics sink. Best effort: the sink
	// is not part of the persisted dataset.
	if o.Sink != nil {
		if err := o.Sink.InsertBulk(ctx, txs); err != nil {
			o.Logger.Printf("[WARN] analytics sink insert failed: %v", err)
		}
	}

	// 9. Build the run summary from the fresh daily series.
	summary := domain.Summary{
		UpdatedAt:          now,
		LastTradeTimestamp: txs[0].Timestamp,
	}
	for _, buckets := range dailyNft.Data {
		for _, b := range buckets {
			summary.Volume += b.PriceSum
			summary.TradeCount += b.TradeCount
		}
	}

	// 10. Commit every file in one revision.
	files, err := encodeFiles(o.Paths, latest, SeriesFile{
		Labels:              dailyNft.Labels,
		NftBuckets:          dailyNft.Data,
		CollectionBuckets:   dailyCollection.Data,
		LastProcessedCursor: newCheckpoint,
	}, SeriesFile{
		Labels:              weeklyNft.Labels,
		NftBuckets:          weeklyNft.Data,
		CollectionBuckets:   weeklyCollection.Data,
		LastProcessedCursor: newCheckpoint,
	}, assets, summary)
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("scanner: %d new trades, cursor %s", len(txs), newCheckpoint)
	commitStart := o.Clock()
	if err := o.Store.CommitFiles(ctx, files, message); err != nil {
		return nil, err
	}
	if o.Metrics != nil {
		o.Metrics.CommitDuration.Observe(o.Clock().Sub(commitStart).Seconds())
	}
	o.Logger.Printf("[INFO] committed %d files: %s", len(files), message)

	return &Result{
		Status:               domain.RunStatusCompleted,
		TransactionsIngested: len(txs),
		Checkpoint:           newCheckpoint,
		AssetsTracked:        len(assets),
		MetadataResolved:     resolved,
		MetadataFailed:       failed,
		StaleAssetsDeleted:   stale,
		Volume24h:            summary.Volume,
		TradeCount24h:        summary.TradeCount,
	}, nil
}

// resolveMetadata fills in title and image for assets missing them,
// sequentially, isolating per-asset failures.
func (s *Scanner) resolveMetadata(ctx context.Context, assets AssetsFile, weeklyNft domain.BucketMap, latest []domain.TransactionSummary) (resolved, failed int) {
	o := &s.opts

	inLatest := make(map[string]bool, len(latest))
	for _, t := range latest {
		inLatest[t.AssetID] = true
	}

	candidates := make([]string, 0, len(assets))
	for id, rec := range assets {
		if rec.Title != "" {
			continue
		}
		if inLatest[id] || weeklyNft.Trades(id) >= o.PopularTradeCount {
			candidates = append(candidates, id)
		}
	}
	sort.Strings(candidates)

	for _, id := range candidates {
		rec := assets[id]
		meta, err := o.Resolver.Resolve(ctx, rec.ContractID, id)
		if err != nil {
			o.Logger.Printf("[WARN] metadata resolution failed for asset %s: %v", id, err)
			failed++
			continue
		}
		rec.Title = meta.Title
		rec.Image = meta.Image
		resolved++
	}

	if o.Metrics != nil {
		o.Metrics.MetadataResolved.Add(float64(resolved))
		o.Metrics.MetadataFailed.Add(float64(failed))
	}
	return resolved, failed
}

// recordRun persists the run record. Failures are logged, never fatal.
func (s *Scanner) recordRun(ctx context.Context, rec *domain.RunRecord) {
	if s.opts.RunStore == nil {
		return
	}
	if err := s.opts.RunStore.Insert(ctx, rec); err != nil {
		s.opts.Logger.Printf("[WARN] recording run history failed: %v", err)
	}
}

// mergeLatest prepends the new transactions to the persisted list,
// dropping duplicate cursors, and re-sorts newest first before capping.
func mergeLatest(txs []domain.Transaction, prior []domain.TransactionSummary, limit int) []domain.TransactionSummary {
	seen := make(map[string]bool, len(txs)+len(prior))
	merged := make([]domain.TransactionSummary, 0, len(txs)+len(prior))
	for _, t := range txs {
		if !seen[t.InternalID] {
			seen[t.InternalID] = true
			merged = append(merged, t.Summarize())
		}
	}
	for _, t := range prior {
		if !seen[t.InternalID] {
			seen[t.InternalID] = true
			merged = append(merged, t)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp > merged[j].Timestamp })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// loadJSON reads and decodes one dataset file, mapping a missing file
// to the zero value.
func loadJSON[T any](ctx context.Context, store ContentStore, path string) (T, error) {
	var v T
	f, err := store.GetFile(ctx, path)
	if errors.Is(err, gitstore.ErrNotFound) {
		return v, nil
	}
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(f.Content, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", path, err)
	}
	return v, nil
}

// encodeFiles marshals the five dataset files for commit.
func encodeFiles(paths Paths, latest []domain.TransactionSummary, daily, weekly SeriesFile, assets AssetsFile, summary domain.Summary) (map[string][]byte, error) {
	files := make(map[string][]byte, 5)
	for _, part := range []struct {
		path string
		v    any
	}{
		{paths.Transactions, latest},
		{paths.Daily, daily},
		{paths.Weekly, weekly},
		{paths.Assets, assets},
		{paths.Summary, summary},
	} {
		data, err := json.Marshal(part.v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", part.path, err)
		}
		files[part.path] = data
	}
	return files, nil
}
