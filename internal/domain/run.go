package domain

// Run statuses recorded in the run history.
const (
	RunStatusCompleted   = "COMPLETED"
	RunStatusNoNewTrades = "NO_NEW_TRADES"
	RunStatusFailed      = "FAILED"
)

// RunRecord is one pipeline run's outcome, kept for operational history.
type RunRecord struct {
	ID                   int64   // assigned by the store
	StartedAt            int64   // ms since epoch
	FinishedAt           int64   // ms since epoch
	Status               string  // COMPLETED | NO_NEW_TRADES | FAILED
	TransactionsIngested int     // newly ingested trades
	Checkpoint           string  // cursor persisted by the run
	Volume24h            float64 // summary volume at commit time
	TradeCount24h        int     // summary trade count at commit time
	Error                string  // failure detail, empty on success
}
