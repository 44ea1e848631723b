// Package ledger is the append-only sink for revenue and expense entries
// booked by order finalization and stock receipts.
package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// EntryType separates money in from money out.
type EntryType string

const (
	// TypeRevenue is money earned.
	TypeRevenue EntryType = "revenue"
	// TypeExpense is money spent.
	TypeExpense EntryType = "expense"
)

// Status tracks settlement.
type Status string

const (
	// StatusPending is not yet settled.
	StatusPending Status = "pending"
	// StatusPaid is settled.
	StatusPaid Status = "paid"
)

// Categories booked by the workshop core.
const (
	CategoryOrderRevenue = "order_revenue"
	CategoryPartPurchase = "part_purchase"
)

// Entry is a single financial record.
type Entry struct {
	ID            int64
	Type          EntryType
	Category      string
	Description   string
	Amount        decimal.Decimal
	DueDate       time.Time
	PaidDate      *time.Time
	Status        Status
	LinkedOrderID *int64
	SourceKey     uuid.UUID
	CreatedAt     time.Time
}

// ErrNonPositiveAmount rejects entries that would book nothing or a negative value.
var ErrNonPositiveAmount = fmt.Errorf("%w: ledger amount must be > 0", shared.ErrValidation)

// ErrInvalidEntry rejects entries missing their classification.
var ErrInvalidEntry = fmt.Errorf("%w: ledger entry requires type, category and status", shared.ErrValidation)

// SourceKey derives the deterministic key of the event that produced an entry,
// e.g. SourceKey("order-revenue", 42).
func SourceKey(kind string, id int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%d", kind, id)))
}

// PaidNow builds a settled entry dated at now.
func PaidNow(entryType EntryType, category, description string, amount decimal.Decimal, now time.Time) Entry {
	paid := now
	return Entry{
		Type:        entryType,
		Category:    category,
		Description: description,
		Amount:      amount,
		DueDate:     now,
		PaidDate:    &paid,
		Status:      StatusPaid,
	}
}
