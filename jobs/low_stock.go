package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-workshop/internal/jobs"
)

// LowStockJob turns low-stock tasks into restock alerts in the worker log.
type LowStockJob struct {
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle processes TaskInventoryLowStock tasks.
func (j *LowStockJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload LowStockPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskInventoryLowStock)
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "part below minimum stock",
		slog.Int64("part_id", payload.PartID),
		slog.String("name", payload.Name),
		slog.Int64("on_hand", payload.QuantityOnHand),
		slog.Int64("min_threshold", payload.MinThreshold),
		slog.Time("detected_at", payload.DetectedAt))
	j.Metrics.LowStockAlerted()
	return tracker.End(nil)
}
