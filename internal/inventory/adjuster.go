package inventory

import (
	"context"
	"fmt"
)

// Adjuster moves stock for order items. It never opens a transaction: every
// call runs on the TxRepository handed in by the caller, after locking the
// part row.
type Adjuster struct {
	allowNegative bool
}

// NewAdjuster builds an Adjuster honouring the negative-stock policy in cfg.
func NewAdjuster(cfg ServiceConfig) *Adjuster {
	return &Adjuster{allowNegative: cfg.AllowNegativeStock}
}

// Deduct removes qty from stock and adds it to the used counter.
func (a *Adjuster) Deduct(ctx context.Context, tx TxRepository, partID, qty int64) (Part, error) {
	if qty <= 0 {
		return Part{}, ErrInvalidQuantity
	}
	part, err := tx.GetPartForUpdate(ctx, partID)
	if err != nil {
		return Part{}, err
	}
	remaining := part.QuantityOnHand - qty
	if remaining < 0 && !a.allowNegative {
		return Part{}, fmt.Errorf("%w: part %d has %d on hand, %d requested", ErrInsufficientStock, partID, part.QuantityOnHand, qty)
	}
	part.QuantityOnHand = remaining
	part.TotalUsed += qty
	if err := tx.UpdateStock(ctx, part); err != nil {
		return Part{}, err
	}
	return part, nil
}

// Restore puts qty back on hand. The used counter never goes below zero.
func (a *Adjuster) Restore(ctx context.Context, tx TxRepository, partID, qty int64) (Part, error) {
	if qty <= 0 {
		return Part{}, ErrInvalidQuantity
	}
	part, err := tx.GetPartForUpdate(ctx, partID)
	if err != nil {
		return Part{}, err
	}
	part.QuantityOnHand += qty
	part.TotalUsed = max(0, part.TotalUsed-qty)
	if err := tx.UpdateStock(ctx, part); err != nil {
		return Part{}, err
	}
	return part, nil
}
