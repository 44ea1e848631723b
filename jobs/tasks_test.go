package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-workshop/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-workshop/internal/jobs"
)

func TestNewLowStockTaskPayload(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task, err := NewLowStockTask(inventory.LowStockEvent{PartID: 4, Name: "Spark plug", QuantityOnHand: 1, MinThreshold: 6, DetectedAt: at})
	require.NoError(t, err)
	require.Equal(t, TaskInventoryLowStock, task.Type())

	var payload LowStockPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(4), payload.PartID)
	require.Equal(t, int64(6), payload.MinThreshold)
	require.True(t, payload.DetectedAt.Equal(at))
}

func TestLowStockJobHandle(t *testing.T) {
	job := &LowStockJob{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	}
	task, err := NewLowStockTask(inventory.LowStockEvent{PartID: 1, Name: "Filter"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskInventoryLowStock, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeCleaner struct {
	olderThan time.Duration
	purged    int64
	err       error
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.purged, f.err
}

func TestIdempotencyCleanupJob(t *testing.T) {
	cleaner := &fakeCleaner{purged: 12}
	job := &IdempotencyCleanupJob{Store: cleaner, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.olderThan)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, DefaultKeyRetention, cleaner.olderThan)

	cleaner.err = context.DeadlineExceeded
	require.ErrorIs(t, job.Handle(context.Background(), task), context.DeadlineExceeded)

	var unset *IdempotencyCleanupJob
	require.Error(t, unset.Handle(context.Background(), task))
}

func TestClientNotifyLowStockDeduplicatesPerPart(t *testing.T) {
	mr := miniredis.RunT(t)
	opts := asynq.RedisClientOpt{Addr: mr.Addr()}
	client, err := NewClient(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.NotifyLowStock(ctx, inventory.LowStockEvent{PartID: 9, QuantityOnHand: 1}))
	require.NoError(t, client.NotifyLowStock(ctx, inventory.LowStockEvent{PartID: 9, QuantityOnHand: 0}))
	require.NoError(t, client.NotifyLowStock(ctx, inventory.LowStockEvent{PartID: 10, QuantityOnHand: 0}))

	inspector := asynq.NewInspector(opts)
	t.Cleanup(func() { _ = inspector.Close() })
	pending, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}`, rec.Body.String())
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueueDepth(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.JSONEq(t, `{"queue":"default","pending":3,"active":0,"scheduled":0,"retry":1,"archived":0}`, rec.Body.String())
}

func TestHealthUnavailableIsProblem(t *testing.T) {
	h := NewHandler(stubInspector{err: errors.New("redis down")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	require.NotContains(t, rec.Body.String(), "redis down")
}

func TestNewWorkerRejectsDuplicateHandlers(t *testing.T) {
	noop := func(context.Context, *asynq.Task) error { return nil }
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: miniredis.RunT(t).Addr()},
		Handlers: []TaskHandler{
			{Type: TaskInventoryLowStock, Handler: noop},
			{Type: TaskInventoryLowStock, Handler: noop},
		},
	})
	require.ErrorContains(t, err, TaskInventoryLowStock)
}
