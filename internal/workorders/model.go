// Package workorders owns the service order lifecycle: order fields, line
// items, checklist and status transitions, and the transactions that keep
// part stock and the ledger consistent with them.
package workorders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-workshop/internal/shared"
)

// Status is a workflow state of a service order.
type Status string

const (
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusAwaitingPart     Status = "awaiting_part"
	StatusInProgress       Status = "in_progress"
	StatusReadyForPickup   Status = "ready_for_pickup"
	StatusFinalized        Status = "finalized"
)

var allStatuses = []Status{
	StatusAwaitingApproval,
	StatusAwaitingPart,
	StatusInProgress,
	StatusReadyForPickup,
	StatusFinalized,
}

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, error) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// ItemKind separates stocked parts from labour.
type ItemKind string

const (
	KindPart    ItemKind = "part"
	KindService ItemKind = "service"
)

// Order is a repair job with its line items and checklist.
type Order struct {
	ID               int64
	Number           int64
	CustomerID       *int64
	VehicleID        *int64
	Status           Status
	OpenedAt         time.Time
	FinalizedAt      *time.Time
	DeliveryEstimate *time.Time
	Description      string
	EntryMileage     int64
	DiscountPercent  decimal.Decimal
	Items            []Item
	Checklist        []ChecklistEntry
}

// GrossTotal is Σ(quantity × unit price). This is the amount booked as revenue.
func (o Order) GrossTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// NetTotal applies the order discount to the gross total. Display only.
func (o Order) NetTotal() decimal.Decimal {
	factor := decimal.NewFromInt(100).Sub(o.DiscountPercent).Div(decimal.NewFromInt(100))
	return o.GrossTotal().Mul(factor).Round(2)
}

// Item is an order line.
type Item struct {
	ID          int64
	OrderID     int64
	Kind        ItemKind
	PartID      *int64
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// LineTotal returns quantity × unit price.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// IsPart reports whether the line moves stock.
func (i Item) IsPart() bool {
	return i.Kind == KindPart && i.PartID != nil
}

// ChecklistEntry is one inspection line on an order.
type ChecklistEntry struct {
	ID      int64
	OrderID int64
	Label   string
	Checked bool
	Notes   string
}

// CreateInput carries fields for a new order.
type CreateInput struct {
	CustomerID       *int64
	VehicleID        *int64
	Description      string
	EntryMileage     int64
	DeliveryEstimate *time.Time
	DiscountPercent  decimal.Decimal
}

// FieldPatch is a partial update; nil fields are left alone.
type FieldPatch struct {
	Description      *string
	EntryMileage     *int64
	CustomerID       *int64
	VehicleID        *int64
	DeliveryEstimate *time.Time
	DiscountPercent  *decimal.Decimal
}

// auditMeta lists the fields the patch touches.
func (p FieldPatch) auditMeta() map[string]any {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(p.Description != nil, "description")
	add(p.EntryMileage != nil, "entry_mileage")
	add(p.CustomerID != nil, "customer_id")
	add(p.VehicleID != nil, "vehicle_id")
	add(p.DeliveryEstimate != nil, "delivery_estimate")
	add(p.DiscountPercent != nil, "discount_percent")
	return map[string]any{"fields": fields}
}

// IsEmpty reports whether the patch changes nothing.
func (p FieldPatch) IsEmpty() bool {
	return p.Description == nil && p.EntryMileage == nil && p.CustomerID == nil &&
		p.VehicleID == nil && p.DeliveryEstimate == nil && p.DiscountPercent == nil
}

// ItemInput describes a line to add.
type ItemInput struct {
	Kind        ItemKind
	PartID      *int64
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
}

// ItemPatch is a partial update of a line.
type ItemPatch struct {
	Description *string
	Quantity    *int64
	UnitPrice   *decimal.Decimal
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status *Status
	Page   shared.Page
}

var (
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = fmt.Errorf("%w: order", shared.ErrNotFound)
	// ErrItemNotFound indicates a missing line on the given order.
	ErrItemNotFound = fmt.Errorf("%w: order item", shared.ErrNotFound)
	// ErrInvalidStatus indicates a status outside the workflow.
	ErrInvalidStatus = fmt.Errorf("%w: unknown status", shared.ErrValidation)
	// ErrInvalidOrder indicates bad order fields.
	ErrInvalidOrder = fmt.Errorf("%w: invalid order", shared.ErrValidation)
	// ErrInvalidItem indicates a bad line.
	ErrInvalidItem = fmt.Errorf("%w: invalid item", shared.ErrValidation)
	// ErrEmptyPatch indicates an update with nothing to change.
	ErrEmptyPatch = fmt.Errorf("%w: nothing to update", shared.ErrValidation)
)

func validateDiscount(d, limit decimal.Decimal) error {
	if d.IsNegative() || d.GreaterThan(limit) {
		return fmt.Errorf("%w: discount percent must be between 0 and %s", ErrInvalidOrder, limit.String())
	}
	return nil
}

func (in CreateInput) validate(maxDiscount decimal.Decimal) error {
	if in.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidOrder)
	}
	if in.EntryMileage < 0 {
		return fmt.Errorf("%w: entry mileage must be >= 0", ErrInvalidOrder)
	}
	return validateDiscount(in.DiscountPercent, maxDiscount)
}

func (p FieldPatch) validate(maxDiscount decimal.Decimal) error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Description != nil && *p.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidOrder)
	}
	if p.EntryMileage != nil && *p.EntryMileage < 0 {
		return fmt.Errorf("%w: entry mileage must be >= 0", ErrInvalidOrder)
	}
	if p.DiscountPercent != nil {
		return validateDiscount(*p.DiscountPercent, maxDiscount)
	}
	return nil
}

func (in ItemInput) validate() error {
	switch in.Kind {
	case KindPart:
		if in.PartID == nil || *in.PartID <= 0 {
			return fmt.Errorf("%w: part items need a part id", ErrInvalidItem)
		}
	case KindService:
		if in.PartID != nil {
			return fmt.Errorf("%w: service items cannot reference a part", ErrInvalidItem)
		}
	default:
		return fmt.Errorf("%w: kind must be part or service", ErrInvalidItem)
	}
	if in.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidItem)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be >= 0", ErrInvalidItem)
	}
	return nil
}

func (p ItemPatch) validate() error {
	if p.Description == nil && p.Quantity == nil && p.UnitPrice == nil {
		return ErrEmptyPatch
	}
	if p.Quantity != nil && *p.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0", ErrInvalidItem)
	}
	if p.UnitPrice != nil && p.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must be >= 0", ErrInvalidItem)
	}
	return nil
}
