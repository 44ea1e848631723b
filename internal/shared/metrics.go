package shared

// MetricsRecorder receives domain counters. A nil recorder is allowed
// wherever one is accepted.
type MetricsRecorder interface {
	LedgerEntryBooked(entryType, category string)
	StockMoved(direction string, qty int64)
}
