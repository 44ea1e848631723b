package inventory

import (
	"context"
	"time"
)

// LowStockEvent is raised after a commit leaves a part below its minimum.
type LowStockEvent struct {
	PartID         int64
	Name           string
	QuantityOnHand int64
	MinThreshold   int64
	DetectedAt     time.Time
}

// LowStockNotifier delivers low-stock events, typically to a job queue.
type LowStockNotifier interface {
	NotifyLowStock(ctx context.Context, evt LowStockEvent) error
}

// LowStockEventFor returns the event for p when it is below threshold.
func LowStockEventFor(p Part, at time.Time) (LowStockEvent, bool) {
	if !p.BelowThreshold() {
		return LowStockEvent{}, false
	}
	return LowStockEvent{
		PartID:         p.ID,
		Name:           p.Name,
		QuantityOnHand: p.QuantityOnHand,
		MinThreshold:   p.MinThreshold,
		DetectedAt:     at,
	}, true
}
