package shared

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Audit actions recorded by the workshop services.
const (
	AuditOrderCreated     = "order.created"
	AuditOrderStatus      = "order.status_changed"
	AuditOrderDeleted     = "order.deleted"
	AuditOrderUpdated     = "order.updated"
	AuditItemAdded        = "order.item_added"
	AuditItemUpdated      = "order.item_updated"
	AuditItemRemoved      = "order.item_removed"
	AuditChecklist        = "order.checklist_replaced"
	AuditInventoryReceive = "inventory.received"
	AuditInventoryPrice   = "inventory.price_recorded"
)

// AuditEntry is a row in audit_trail.
type AuditEntry struct {
	Action    string
	Entity    string
	EntityID  int64
	RequestID string
	Meta      map[string]any
	At        time.Time
}

// AuditLogger writes records into audit_trail.
type AuditLogger struct {
	pool *pgxpool.Pool
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(pool *pgxpool.Pool) *AuditLogger {
	return &AuditLogger{pool: pool}
}

// Record persists the entry. The request id is taken from the context when
// the caller did not set one.
func (l *AuditLogger) Record(ctx context.Context, entry AuditEntry) error {
	if l == nil || l.pool == nil {
		return errors.New("audit logger not initialised")
	}
	if entry.Action == "" || entry.Entity == "" || entry.EntityID == 0 {
		return errors.New("audit entry requires action/entity/entity_id")
	}
	if entry.RequestID == "" {
		entry.RequestID = middleware.GetReqID(ctx)
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(entry.Meta)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `INSERT INTO audit_trail (action, entity, entity_id, request_id, meta, occurred_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`, entry.Action, entry.Entity, entry.EntityID, entry.RequestID, metaJSON, entry.At)
	return err
}
