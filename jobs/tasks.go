package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInventoryLowStock raises a restock alert for one part.
	TaskInventoryLowStock = "inventory:low_stock"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// LowStockPayload describes a part that fell below its minimum threshold.
type LowStockPayload struct {
	PartID         int64     `json:"part_id"`
	Name           string    `json:"name"`
	QuantityOnHand int64     `json:"quantity_on_hand"`
	MinThreshold   int64     `json:"min_threshold"`
	DetectedAt     time.Time `json:"detected_at"`
}

// NewLowStockTask constructs an Asynq task from a committed low-stock event.
func NewLowStockTask(evt inventory.LowStockEvent) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{
		PartID:         evt.PartID,
		Name:           evt.Name,
		QuantityOnHand: evt.QuantityOnHand,
		MinThreshold:   evt.MinThreshold,
		DetectedAt:     evt.DetectedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInventoryLowStock, body, asynq.Queue(QueueDefault)), nil
}

// IdempotencyCleanupPayload carries the retention window.
type IdempotencyCleanupPayload struct {
	RetainHours int `json:"retain_hours"`
}

// NewIdempotencyCleanupTask constructs the periodic cleanup task.
func NewIdempotencyCleanupTask(retain time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(IdempotencyCleanupPayload{RetainHours: int(retain / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, body, asynq.Queue(QueueDefault)), nil
}
