package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/ledger"
	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// Part is a stocked inventory unit.
type Part struct {
	ID             int64
	Name           string
	Category       string
	Brand          string
	QuantityOnHand int64
	MinThreshold   int64
	PurchasePrice  decimal.Decimal
	SalePrice      decimal.Decimal
	Location       string
	TotalUsed      int64
	UpdatedAt      time.Time
}

// BelowThreshold reports whether the part needs restocking.
func (p Part) BelowThreshold() bool {
	return p.QuantityOnHand < p.MinThreshold
}

// PriceHistoryEntry is an immutable record of a receipt or price change.
type PriceHistoryEntry struct {
	ID               int64
	PartID           int64
	RecordedAt       time.Time
	PurchasePrice    decimal.Decimal
	Supplier         string
	QuantityReceived int64
	TotalPaid        decimal.Decimal
	SalePriceAtTime  decimal.Decimal
}

// ReceiveInput describes purchased stock arriving at the warehouse.
type ReceiveInput struct {
	PartID        int64
	Qty           int64
	TotalPaid     decimal.Decimal
	PurchasePrice decimal.Decimal
	SalePrice     decimal.Decimal
	Supplier      string
	// IdempotencyKey, when set, makes repeated submissions fail with a conflict.
	IdempotencyKey string
}

// ReceiveResult is the outcome of a committed receipt.
type ReceiveResult struct {
	Part    Part
	History PriceHistoryEntry
	// Expense is nil when nothing was paid for the stock.
	Expense *ledger.Entry
}

// PriceInput records an ad-hoc purchase price change.
type PriceInput struct {
	PartID   int64
	Price    decimal.Decimal
	Supplier string
}

// Movement directions reported to metrics.
const (
	DirectionOut     = "out"
	DirectionIn      = "in"
	DirectionReceive = "receive"
)

var (
	// ErrPartNotFound indicates a missing part row.
	ErrPartNotFound = fmt.Errorf("%w: part", shared.ErrNotFound)
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be > 0", shared.ErrValidation)
	// ErrInvalidAmount indicates a negative amount paid.
	ErrInvalidAmount = fmt.Errorf("%w: total paid must be >= 0", shared.ErrValidation)
	// ErrInvalidPrice indicates a negative unit price.
	ErrInvalidPrice = fmt.Errorf("%w: price must be >= 0", shared.ErrValidation)
	// ErrInsufficientStock is returned by Deduct when negative stock is disabled.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", shared.ErrValidation)
)
